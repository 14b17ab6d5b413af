package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	config "psychometrics-api/configs"
	"psychometrics-api/pkg/models"
	"psychometrics-api/pkg/services"

	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/pkg/errors"
)

func newRootCommand(out io.Writer) *ffcli.Command {
	fs := flag.NewFlagSet("psychometrics", flag.ContinueOnError)
	return &ffcli.Command{
		Name:       "psychometrics",
		ShortUsage: "psychometrics <subcommand> [flags]",
		ShortHelp:  "offline reliability analysis and IRT calibration",
		FlagSet:    fs,
		Subcommands: []*ffcli.Command{
			newReliabilityCommand(out),
			newCalibrateCommand(out),
			newSimulateCommand(out),
		},
		Exec: func(context.Context, []string) error {
			fs.Usage()
			return flag.ErrHelp
		},
	}
}

func newReliabilityCommand(out io.Writer) *ffcli.Command {
	fs := flag.NewFlagSet("psychometrics reliability", flag.ContinueOnError)
	var (
		_         = fs.String("config", "", "config file (optional), json format")
		file      = fs.String("file", "", "score table (.xlsx or .csv)")
		maxPoints = fs.Float64("max-points", 0, "max points per item (0 = infer from data)")
	)
	return &ffcli.Command{
		Name:       "reliability",
		ShortUsage: "psychometrics reliability -file scores.csv",
		ShortHelp:  "compute KR-20 / Cronbach's alpha, item analysis and recommendations",
		FlagSet:    fs,
		Options:    commandOptions(),
		Exec: func(_ context.Context, _ []string) error {
			imported, err := readMatrixFile(*file)
			if err != nil {
				return err
			}
			result, err := services.NewReliabilityService().AnalyzeAssessment(filepath.Base(*file), imported.ResponseMatrix(*maxPoints))
			if err != nil {
				return err
			}
			return writeJSON(out, result)
		},
	}
}

func newCalibrateCommand(out io.Writer) *ffcli.Command {
	fs := flag.NewFlagSet("psychometrics calibrate", flag.ContinueOnError)
	var (
		_               = fs.String("config", "", "config file (optional), json format")
		file            = fs.String("file", "", "0/1 response matrix (.xlsx or .csv)")
		model           = fs.String("model", string(models.Model2PL), "IRT model: 1PL, 2PL or 3PL")
		maxIterations   = fs.Int("max-iterations", 0, "maximum JML cycles (0 = engine settings)")
		tolerance       = fs.Float64("tolerance", 0, "log-likelihood convergence tolerance (0 = engine settings)")
		thetaBound      = fs.Float64("theta-bound", 0, "ability bound |θ| (0 = engine settings)")
		difficultyBound = fs.Float64("difficulty-bound", 0, "difficulty bound |b| (0 = engine settings)")
		withThetas      = fs.Bool("thetas", false, "include examinee ability estimates in the output")
	)
	return &ffcli.Command{
		Name:       "calibrate",
		ShortUsage: "psychometrics calibrate -file responses.csv -model 2PL",
		ShortHelp:  "calibrate IRT item parameters by joint maximum likelihood",
		FlagSet:    fs,
		Options:    commandOptions(),
		Exec: func(ctx context.Context, _ []string) error {
			modelType, err := services.ParseModelType(*model)
			if err != nil {
				return err
			}
			imported, err := readMatrixFile(*file)
			if err != nil {
				return err
			}
			responses, err := imported.BinaryResponses()
			if err != nil {
				return err
			}
			// サーバーと同じエンジン設定（engine.yaml / IRT_* 環境変数）を基準にフラグで上書き
			opts := config.LoadConfig().Engine
			if *maxIterations > 0 {
				opts.MaxIterations = *maxIterations
			}
			if *tolerance > 0 {
				opts.Tolerance = *tolerance
			}
			if *thetaBound > 0 {
				opts.ThetaBound = *thetaBound
			}
			if *difficultyBound > 0 {
				opts.DifficultyBound = *difficultyBound
			}
			svc := services.NewIRTService(opts)
			result, err := svc.Calibrate(ctx, responses, modelType)
			if err != nil {
				return err
			}
			if !*withThetas {
				result.Thetas = nil
			}
			return writeJSON(out, calibrationOutput{ItemIDs: imported.ItemIDs, CalibrationResult: result})
		},
	}
}

// calibrationOutput labels calibrated items with their column headers.
type calibrationOutput struct {
	ItemIDs []string `json:"item_ids"`
	*models.CalibrationResult
}

func newSimulateCommand(out io.Writer) *ffcli.Command {
	fs := flag.NewFlagSet("psychometrics simulate", flag.ContinueOnError)
	var (
		_         = fs.String("config", "", "config file (optional), json format")
		items     = fs.Int("items", 20, "number of items")
		examinees = fs.Int("examinees", 500, "number of examinees")
		model     = fs.String("model", string(models.Model2PL), "generating model: 1PL, 2PL or 3PL")
		seed      = fs.Int64("seed", 1, "random seed")
		outFile   = fs.String("out", "simulated.csv", "output file (.xlsx or .csv)")
	)
	return &ffcli.Command{
		Name:       "simulate",
		ShortUsage: "psychometrics simulate -items 20 -examinees 500 -out responses.xlsx",
		ShortHelp:  "generate a synthetic response matrix from random item parameters",
		FlagSet:    fs,
		Options:    commandOptions(),
		Exec: func(_ context.Context, _ []string) error {
			modelType, err := services.ParseModelType(*model)
			if err != nil {
				return err
			}
			if *items < 1 || *examinees < 1 {
				return errors.Errorf("items and examinees must be positive, got %d and %d", *items, *examinees)
			}
			sim := simulate(modelType, *items, *examinees, rand.New(rand.NewSource(*seed)))

			f, err := os.Create(*outFile)
			if err != nil {
				return errors.Wrap(err, "failed to create output file")
			}
			if err := services.WriteResponseFile(f, *outFile, sim.ItemIDs, sim.ExamineeIDs, sim.Responses); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return errors.Wrap(err, "failed to close output file")
			}
			return writeJSON(out, simulationSummary{
				Output:         *outFile,
				ModelType:      modelType,
				ItemIDs:        sim.ItemIDs,
				ItemParameters: sim.Items,
			})
		},
	}
}

// simulation 生成パラメータと反応行列
type simulation struct {
	ItemIDs     []string
	ExamineeIDs []string
	Items       []models.ItemParameters
	Thetas      []float64
	Responses   [][]int
}

type simulationSummary struct {
	Output         string                  `json:"output"`
	ModelType      models.ModelType        `json:"model_type"`
	ItemIDs        []string                `json:"item_ids"`
	ItemParameters []models.ItemParameters `json:"item_parameters"`
}

// simulate draws b ~ N(0,1), a ~ U(0.6, 2.0) and c ~ U(0.05, 0.25) as the model allows,
// and abilities θ ~ N(0,1).
func simulate(modelType models.ModelType, itemCount, examineeCount int, rng *rand.Rand) simulation {
	sim := simulation{
		ItemIDs:     make([]string, itemCount),
		ExamineeIDs: make([]string, examineeCount),
		Items:       make([]models.ItemParameters, itemCount),
		Thetas:      make([]float64, examineeCount),
	}
	for j := range sim.Items {
		sim.ItemIDs[j] = fmt.Sprintf("Q%d", j+1)
		item := models.ItemParameters{
			ModelType:      modelType,
			Difficulty:     rng.NormFloat64(),
			Discrimination: models.ReferenceDiscrimination,
		}
		if modelType != models.Model1PL {
			item.Discrimination = 0.6 + 1.4*rng.Float64()
		}
		if modelType == models.Model3PL {
			item.Guessing = 0.05 + 0.2*rng.Float64()
		}
		sim.Items[j] = item
	}
	for i := range sim.Thetas {
		sim.ExamineeIDs[i] = fmt.Sprintf("S%04d", i+1)
		sim.Thetas[i] = rng.NormFloat64()
	}
	sim.Responses = services.SimulateResponses(sim.Items, sim.Thetas, rng)
	return sim
}

func readMatrixFile(path string) (*services.ImportedMatrix, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("-file is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open input file")
	}
	defer f.Close()
	return services.ParseResponseFile(path, f)
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(v), "failed to write output")
}
