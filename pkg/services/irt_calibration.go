package services

import (
	"context"
	"log"
	"math"

	"psychometrics-api/pkg/models"

	"github.com/pkg/errors"
)

const (
	minDiscrimination = 0.1
	maxDiscrimination = 4.0
	maxGuessing       = 0.5
	initialGuessing   = 0.1

	// Fisher scoring steps per item / examinee in each JML cycle
	innerSteps  = 5
	stepEpsilon = 1e-6
	ridge       = 1e-8

	maxThetaStep          = 1.0
	maxDifficultyStep     = 1.0
	maxDiscriminationStep = 0.5
	maxGuessingStep       = 0.05
)

// calibrationState holds the current JML iterate.
type calibrationState struct {
	model  models.ModelType
	opts   IRTOptions
	items  []models.ItemParameters
	thetas []float64
}

func (st *calibrationState) snapshot() calibrationState {
	return calibrationState{
		model:  st.model,
		opts:   st.opts,
		items:  append([]models.ItemParameters(nil), st.items...),
		thetas: append([]float64(nil), st.thetas...),
	}
}

// Calibrate 二値反応行列から項目パラメータを同時最尤推定（JML）で較正
//
// Item parameters and abilities are updated alternately by Fisher scoring until the
// log-likelihood changes by less than Tolerance or MaxIterations is reached.
// Non-convergence is reported through Converged=false together with the best iterate.
func (s *IRTService) Calibrate(ctx context.Context, responses [][]int, modelType models.ModelType) (*models.CalibrationResult, error) {
	if !modelType.Valid() {
		return nil, invalidInputf("unknown model type %q (expected 1PL, 2PL or 3PL)", modelType)
	}
	if err := validateBinaryMatrix(responses, 2, 2); err != nil {
		return nil, err
	}

	opts := s.opts
	n := len(responses)
	k := len(responses[0])

	items := make([]models.ItemParameters, k)
	degenerate := []int{}
	var active []int
	for j := 0; j < k; j++ {
		correct := 0
		for i := range responses {
			correct += responses[i][j]
		}
		item := models.ItemParameters{ModelType: modelType, Discrimination: models.ReferenceDiscrimination}
		switch correct {
		case 0:
			item.Difficulty = opts.DifficultyBound
			item.Degenerate = true
			degenerate = append(degenerate, j)
		case n:
			item.Difficulty = -opts.DifficultyBound
			item.Degenerate = true
			degenerate = append(degenerate, j)
		default:
			p := float64(correct) / float64(n)
			item.Difficulty = clamp(-math.Log(p/(1-p)), -opts.DifficultyBound, opts.DifficultyBound)
			if modelType == models.Model3PL {
				item.Guessing = initialGuessing
			}
			active = append(active, j)
		}
		items[j] = item
	}
	if len(active) == 0 {
		return nil, degenerateDataf("all %d items were answered uniformly (all correct or all incorrect)", k)
	}

	// θの初期値: 較正対象項目の合計点を標準化
	scores := make([]float64, n)
	for i, row := range responses {
		for _, j := range active {
			scores[i] += float64(row[j])
		}
	}
	mean := calculateMean(scores)
	sd := math.Sqrt(populationVariance(scores))
	thetas := make([]float64, n)
	isExtreme := make([]bool, n)
	extreme := []int{}
	for i := range responses {
		switch scores[i] {
		case 0:
			thetas[i] = -opts.ThetaBound
		case float64(len(active)):
			thetas[i] = opts.ThetaBound
		default:
			if sd > 0 {
				thetas[i] = clamp((scores[i]-mean)/sd, -opts.ThetaBound, opts.ThetaBound)
			}
			continue
		}
		isExtreme[i] = true
		extreme = append(extreme, i)
	}

	st := &calibrationState{model: modelType, opts: opts, items: items, thetas: thetas}
	bestLL := st.logLikelihood(responses, active)
	best := st.snapshot()
	prevLL := bestLL
	converged := false
	iterations := 0

	for iter := 1; iter <= opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "calibration aborted after %d iterations", iterations)
		}
		iterations = iter

		for _, j := range active {
			st.updateItem(responses, j)
		}
		for i := range st.thetas {
			if !isExtreme[i] {
				st.updateTheta(responses, active, i)
			}
		}
		st.rescale(active, isExtreme)

		ll := st.logLikelihood(responses, active)
		if ll > bestLL {
			bestLL = ll
			best = st.snapshot()
		}
		if math.Abs(ll-prevLL) < opts.Tolerance {
			converged = true
			break
		}
		prevLL = ll
	}

	freeParams := modelType.FreeParameters() * len(active)
	fp := float64(freeParams)
	result := &models.CalibrationResult{
		ModelType: modelType,
		Items:     best.items,
		Fit: models.ModelFit{
			LogLikelihood:  bestLL,
			AIC:            2*fp - 2*bestLL,
			BIC:            fp*math.Log(float64(n)) - 2*bestLL,
			FreeParameters: freeParams,
			Examinees:      n,
		},
		Converged:  converged,
		Iterations: iterations,
		Thetas:     best.thetas,
		Diagnostics: models.CalibrationDiagnostics{
			DegenerateItems:  degenerate,
			ExtremeExaminees: extreme,
		},
	}

	if converged {
		log.Printf("✅ [IRT較正] %s: %d名 × %d項目, %d回で収束 (logL=%.3f)", modelType, n, k, iterations, bestLL)
	} else {
		log.Printf("⚠️ [IRT較正] %s: %d回で収束せず、最良の推定値を返します (logL=%.3f)", modelType, iterations, bestLL)
	}
	if len(degenerate) > 0 {
		log.Printf("⚠️ [IRT較正] 推定不能な項目（全員正答/全員誤答）: %v", degenerate)
	}
	return result, nil
}

// updateItem runs Fisher scoring on the free parameters of item j with abilities held fixed.
func (st *calibrationState) updateItem(responses [][]int, j int) {
	free := st.model.FreeParameters()
	item := &st.items[j]
	derivs := make([]float64, free)

	for step := 0; step < innerSteps; step++ {
		grad := make([]float64, free)
		info := make([][]float64, free)
		for r := range info {
			info[r] = make([]float64, free)
		}

		a, b, c := item.Discrimination, item.Difficulty, item.Guessing
		for i, theta := range st.thetas {
			l := logistic(a * (theta - b))
			p := clamp(c+(1-c)*l, probEpsilon, 1-probEpsilon)
			w := l * (1 - l)
			dA := (1 - c) * w * (theta - b)
			dB := -(1 - c) * w * a
			dC := 1 - l
			switch st.model {
			case models.Model1PL:
				derivs[0] = dB
			case models.Model2PL:
				derivs[0], derivs[1] = dA, dB
			default:
				derivs[0], derivs[1], derivs[2] = dA, dB, dC
			}

			pq := p * (1 - p)
			resid := (float64(responses[i][j]) - p) / pq
			for r := 0; r < free; r++ {
				grad[r] += resid * derivs[r]
				for q := 0; q <= r; q++ {
					info[r][q] += derivs[r] * derivs[q] / pq
				}
			}
		}
		for r := 0; r < free; r++ {
			info[r][r] += ridge
			for q := 0; q < r; q++ {
				info[q][r] = info[r][q]
			}
		}

		delta, err := solveSymmetric(info, grad)
		if err != nil {
			return
		}

		var maxDelta float64
		for _, d := range delta {
			maxDelta = math.Max(maxDelta, math.Abs(d))
		}
		switch st.model {
		case models.Model1PL:
			item.Difficulty += clamp(delta[0], -maxDifficultyStep, maxDifficultyStep)
		case models.Model2PL:
			item.Discrimination += clamp(delta[0], -maxDiscriminationStep, maxDiscriminationStep)
			item.Difficulty += clamp(delta[1], -maxDifficultyStep, maxDifficultyStep)
		default:
			item.Discrimination += clamp(delta[0], -maxDiscriminationStep, maxDiscriminationStep)
			item.Difficulty += clamp(delta[1], -maxDifficultyStep, maxDifficultyStep)
			item.Guessing += clamp(delta[2], -maxGuessingStep, maxGuessingStep)
		}
		item.Discrimination = clamp(item.Discrimination, minDiscrimination, maxDiscrimination)
		item.Difficulty = clamp(item.Difficulty, -st.opts.DifficultyBound, st.opts.DifficultyBound)
		item.Guessing = clamp(item.Guessing, 0, maxGuessing)

		if maxDelta < stepEpsilon {
			return
		}
	}
}

// updateTheta runs Fisher scoring on examinee i's ability with item parameters held fixed.
func (st *calibrationState) updateTheta(responses [][]int, active []int, i int) {
	theta := st.thetas[i]
	for step := 0; step < innerSteps; step++ {
		var grad, info float64
		for _, j := range active {
			g, inf := thetaScore(st.items[j], responses[i][j], theta)
			grad += g
			info += inf
		}
		if info <= 0 {
			break
		}
		delta := clamp(grad/info, -maxThetaStep, maxThetaStep)
		theta = clamp(theta+delta, -st.opts.ThetaBound, st.opts.ThetaBound)
		if math.Abs(delta) < stepEpsilon {
			break
		}
	}
	st.thetas[i] = theta
}

// rescale fixes the latent scale: 1PL centres abilities, 2PL/3PL standardize them.
// Item parameters receive the compensating transform so the likelihood is unchanged.
func (st *calibrationState) rescale(active []int, isExtreme []bool) {
	var vals []float64
	for i, t := range st.thetas {
		if !isExtreme[i] {
			vals = append(vals, t)
		}
	}
	if len(vals) < 2 {
		return
	}
	m := calculateMean(vals)
	sd := 1.0
	if st.model != models.Model1PL {
		if v := math.Sqrt(populationVariance(vals)); v > 1e-6 {
			sd = v
		}
	}
	for i := range st.thetas {
		if !isExtreme[i] {
			st.thetas[i] = clamp((st.thetas[i]-m)/sd, -st.opts.ThetaBound, st.opts.ThetaBound)
		}
	}
	for _, j := range active {
		it := &st.items[j]
		it.Difficulty = clamp((it.Difficulty-m)/sd, -st.opts.DifficultyBound, st.opts.DifficultyBound)
		if st.model != models.Model1PL {
			it.Discrimination = clamp(it.Discrimination*sd, minDiscrimination, maxDiscrimination)
		}
	}
}

func (st *calibrationState) logLikelihood(responses [][]int, active []int) float64 {
	var ll float64
	for i, row := range responses {
		for _, j := range active {
			ll += responseLogLikelihood(st.items[j], row[j], st.thetas[i])
		}
	}
	return ll
}

// thetaScore returns the score (first derivative of the log-likelihood in θ) and
// the expected information contributed by one response.
func thetaScore(item models.ItemParameters, u int, theta float64) (grad, info float64) {
	a, c := item.Discrimination, item.Guessing
	l := logistic(a * (theta - item.Difficulty))
	p := clamp(c+(1-c)*l, probEpsilon, 1-probEpsilon)
	dTheta := (1 - c) * a * l * (1 - l)
	pq := p * (1 - p)
	return (float64(u) - p) / pq * dTheta, dTheta * dTheta / pq
}

func responseLogLikelihood(item models.ItemParameters, u int, theta float64) float64 {
	p := clamp(ProbabilityCorrect(item, theta), probEpsilon, 1-probEpsilon)
	if u == 1 {
		return math.Log(p)
	}
	return math.Log(1 - p)
}
