package services

import (
	"math"
	"math/rand"
	"strings"

	"psychometrics-api/pkg/models"
)

// probEpsilon keeps probabilities away from 0 and 1 inside logarithms and weights.
const probEpsilon = 1e-10

// ParseModelType accepts "1PL", "2PL" or "3PL" (case-insensitive).
func ParseModelType(s string) (models.ModelType, error) {
	m := models.ModelType(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", invalidInputf("unknown model type %q (expected 1PL, 2PL or 3PL)", s)
	}
	return m, nil
}

// ProbabilityCorrect 3PLモデルの正答確率 P(θ) = c + (1-c) / (1 + exp(-a(θ-b)))
func ProbabilityCorrect(item models.ItemParameters, theta float64) float64 {
	return item.Guessing + (1-item.Guessing)*logistic(item.Discrimination*(theta-item.Difficulty))
}

// ItemInformation returns the Fisher information of item at theta:
// a² · Q · (P − c)² / (P · (1 − c)²)
func ItemInformation(item models.ItemParameters, theta float64) float64 {
	a, c := item.Discrimination, item.Guessing
	l := logistic(a * (theta - item.Difficulty))
	p := clamp(c+(1-c)*l, probEpsilon, 1-probEpsilon)
	// P − c = (1 − c)·L, so the (1 − c)² factors cancel
	return a * a * (1 - p) * l * l / p
}

// TestInformation テスト情報量（項目情報量の和）
func TestInformation(items []models.ItemParameters, theta float64) float64 {
	var total float64
	for _, it := range items {
		total += ItemInformation(it, theta)
	}
	return total
}

// validateItemParameters checks that every item names a known model family and is a usable 3PL parameter set.
func validateItemParameters(items []models.ItemParameters) error {
	if len(items) == 0 {
		return invalidInputf("at least 1 item parameter set is required")
	}
	for j, it := range items {
		if !it.ModelType.Valid() {
			return invalidInputf("item %d: unknown model type %q (expected 1PL, 2PL or 3PL)", j, it.ModelType)
		}
		if !isFinite(it.Difficulty) || !isFinite(it.Discrimination) || !isFinite(it.Guessing) {
			return invalidInputf("item %d has non-finite parameters", j)
		}
		if it.Discrimination <= 0 {
			return invalidInputf("item %d discrimination must be positive, got %v", j, it.Discrimination)
		}
		if it.Guessing < 0 || it.Guessing >= 1 {
			return invalidInputf("item %d guessing must be in [0, 1), got %v", j, it.Guessing)
		}
	}
	return nil
}

// normalizeItems fills in model-family constraints for items supplied by callers
// (1PL: a = 1, c = 0; 2PL: c = 0; missing a defaults to 1).
func normalizeItems(items []models.ItemParameters) []models.ItemParameters {
	out := make([]models.ItemParameters, len(items))
	for j, it := range items {
		switch it.ModelType {
		case models.Model1PL:
			it.Discrimination = models.ReferenceDiscrimination
			it.Guessing = 0
		case models.Model2PL:
			it.Guessing = 0
		}
		if it.Discrimination == 0 {
			it.Discrimination = models.ReferenceDiscrimination
		}
		out[j] = it
	}
	return out
}

// SimulateResponses draws a 0/1 response matrix (examinees × items) from the 3PL model.
func SimulateResponses(items []models.ItemParameters, thetas []float64, rng *rand.Rand) [][]int {
	out := make([][]int, len(thetas))
	for i, theta := range thetas {
		row := make([]int, len(items))
		for j, it := range items {
			if rng.Float64() < ProbabilityCorrect(it, theta) {
				row[j] = 1
			}
		}
		out[i] = row
	}
	return out
}

// maxStandardError caps 1/√I when the information underflows to zero.
const maxStandardError = 1e6

// standardErrorFromInformation returns 1/√I, capped at maxStandardError.
func standardErrorFromInformation(info float64) float64 {
	if info <= 1/(maxStandardError*maxStandardError) {
		return maxStandardError
	}
	return 1 / math.Sqrt(info)
}
