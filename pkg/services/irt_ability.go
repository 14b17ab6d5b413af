package services

import (
	"context"
	"math"
	"runtime"

	"psychometrics-api/pkg/models"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// EstimateAbility 項目パラメータを固定して受験者の能力θを最尤推定
func (s *IRTService) EstimateAbility(responses []int, items []models.ItemParameters) (*models.AbilityEstimate, error) {
	return s.EstimateAbilityWithZ(responses, items, s.opts.ConfidenceZ)
}

// EstimateAbilityWithZ is EstimateAbility with an explicit confidence-interval z value.
func (s *IRTService) EstimateAbilityWithZ(responses []int, items []models.ItemParameters, z float64) (*models.AbilityEstimate, error) {
	if len(responses) != len(items) {
		return nil, invalidInputf("got %d responses for %d items", len(responses), len(items))
	}
	items = normalizeItems(items)
	if err := validateItemParameters(items); err != nil {
		return nil, err
	}
	if err := validateBinaryMatrix([][]int{responses}, 1, 1); err != nil {
		return nil, err
	}
	if z <= 0 {
		z = s.opts.ConfidenceZ
	}
	return s.estimateAbility(responses, items, z), nil
}

// maxStepHalvings bounds the step-halving line search of one Newton iteration.
const maxStepHalvings = 10

// estimateAbility assumes validated input.
func (s *IRTService) estimateAbility(responses []int, items []models.ItemParameters, z float64) *models.AbilityEstimate {
	bound := s.opts.ThetaBound
	raw := 0
	for _, u := range responses {
		raw += u
	}

	est := &models.AbilityEstimate{}
	switch raw {
	case len(responses):
		// 全問正答: MLEは+∞に発散するため上限でクランプ
		est.Theta = bound
		est.AtBoundary = true
		est.Boundary = "upper"
	case 0:
		est.Theta = -bound
		est.AtBoundary = true
		est.Boundary = "lower"
	default:
		prop := float64(raw) / float64(len(responses))
		theta := clamp(math.Log(prop/(1-prop)), -bound, bound)
		for iter := 1; iter <= s.opts.MaxIterations; iter++ {
			est.Iterations = iter
			var grad, expected, observed float64
			for j, it := range items {
				g, e, o := thetaDerivatives(it, responses[j], theta)
				grad += g
				expected += e
				observed += o
			}
			// 観測情報量が正ならNewton法、そうでなければFisherスコアリング
			info := observed
			if info <= 0 {
				info = expected
			}
			if info <= 0 {
				break
			}
			step := clamp(grad/info, -maxThetaStep, maxThetaStep)
			converged := math.Abs(step) < s.opts.Tolerance

			current := abilityLogLikelihood(items, responses, theta)
			for h := 0; h < maxStepHalvings && abilityLogLikelihood(items, responses, clamp(theta+step, -bound, bound)) < current; h++ {
				step /= 2
			}
			theta = clamp(theta+step, -bound, bound)
			if converged {
				est.Converged = true
				break
			}
		}
		est.Theta = theta
		// 3PLでは内点に最大値が存在しない場合がある
		if theta >= bound {
			est.AtBoundary = true
			est.Boundary = "upper"
			est.Converged = false
		} else if theta <= -bound {
			est.AtBoundary = true
			est.Boundary = "lower"
			est.Converged = false
		}
	}

	est.Information = TestInformation(items, est.Theta)
	est.StandardError = standardErrorFromInformation(est.Information)
	est.ConfidenceInterval = [2]float64{est.Theta - z*est.StandardError, est.Theta + z*est.StandardError}
	return est
}

// thetaDerivatives returns the score of one response in θ with its expected
// (Fisher) and observed information. Observed information can be negative away from the MLE.
func thetaDerivatives(item models.ItemParameters, u int, theta float64) (grad, expected, observed float64) {
	a, c := item.Discrimination, item.Guessing
	l := logistic(a * (theta - item.Difficulty))
	p := clamp(c+(1-c)*l, probEpsilon, 1-probEpsilon)
	q := 1 - p
	d1 := (1 - c) * a * l * (1 - l)
	d2 := d1 * a * (1 - 2*l)
	if u == 1 {
		return d1 / p, d1 * d1 / (p * q), d1*d1/(p*p) - d2/p
	}
	return -d1 / q, d1 * d1 / (p * q), d1*d1/(q*q) + d2/q
}

func abilityLogLikelihood(items []models.ItemParameters, responses []int, theta float64) float64 {
	var ll float64
	for j, it := range items {
		ll += responseLogLikelihood(it, responses[j], theta)
	}
	return ll
}

// EstimateAbilities estimates abilities for many examinees sharing the same items.
// Rows are processed in parallel; results keep the input order.
func (s *IRTService) EstimateAbilities(ctx context.Context, rows [][]int, items []models.ItemParameters, z float64) ([]models.AbilityEstimate, error) {
	if len(rows) == 0 {
		return nil, invalidInputf("at least 1 response vector is required")
	}
	items = normalizeItems(items)
	if err := validateItemParameters(items); err != nil {
		return nil, err
	}
	for i, row := range rows {
		if len(row) != len(items) {
			return nil, invalidInputf("row %d has %d responses for %d items", i, len(row), len(items))
		}
	}
	if err := validateBinaryMatrix(rows, 1, 1); err != nil {
		return nil, err
	}
	if z <= 0 {
		z = s.opts.ConfidenceZ
	}

	out := make([]models.AbilityEstimate, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range rows {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = *s.estimateAbility(rows[i], items, z)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "batch ability estimation aborted")
	}
	return out, nil
}
