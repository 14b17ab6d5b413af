package services

import (
	"math"

	"psychometrics-api/pkg/models"
)

// maxCurvePoints bounds the size of an information curve request.
const maxCurvePoints = 2001

// InformationCurve テスト情報曲線と測定誤差を θ グリッド上で計算
func (s *IRTService) InformationCurve(items []models.ItemParameters, from, to, step float64, includeItems bool) ([]models.InformationPoint, error) {
	items = normalizeItems(items)
	if err := validateItemParameters(items); err != nil {
		return nil, err
	}
	if !isFinite(from) || !isFinite(to) || !isFinite(step) || step <= 0 || to < from {
		return nil, invalidInputf("invalid theta grid: from=%v to=%v step=%v", from, to, step)
	}
	// 点数はint変換の前に浮動小数点で検査する（オーバーフロー対策）
	span := math.Floor((to-from)/step + 1e-9)
	if !isFinite(span) || span+1 > maxCurvePoints {
		return nil, invalidInputf("theta grid from=%v to=%v step=%v exceeds %d points", from, to, step, maxCurvePoints)
	}
	count := int(span) + 1

	points := make([]models.InformationPoint, 0, count)
	for i := 0; i < count; i++ {
		theta := from + float64(i)*step
		pt := models.InformationPoint{Theta: theta}
		if includeItems {
			pt.ItemInformation = make([]float64, len(items))
		}
		for j, it := range items {
			info := ItemInformation(it, theta)
			pt.Information += info
			if includeItems {
				pt.ItemInformation[j] = info
			}
		}
		pt.StandardError = standardErrorFromInformation(pt.Information)
		points = append(points, pt)
	}
	return points, nil
}

// SelectNextItem 適応型テスト（CAT）: 未実施項目のうち θ で情報量が最大の項目を選択
func (s *IRTService) SelectNextItem(theta float64, items []models.ItemParameters, administered []int) (int, float64, error) {
	items = normalizeItems(items)
	if err := validateItemParameters(items); err != nil {
		return -1, 0, err
	}
	if !isFinite(theta) {
		return -1, 0, invalidInputf("theta must be finite")
	}
	used := make(map[int]bool, len(administered))
	for _, idx := range administered {
		if idx < 0 || idx >= len(items) {
			return -1, 0, invalidInputf("administered index %d is out of range [0, %d)", idx, len(items))
		}
		used[idx] = true
	}

	best, bestInfo := -1, -1.0
	for j, it := range items {
		if used[j] {
			continue
		}
		if info := ItemInformation(it, theta); info > bestInfo {
			best, bestInfo = j, info
		}
	}
	if best < 0 {
		return -1, 0, invalidInputf("all %d items have already been administered", len(items))
	}
	return best, bestInfo, nil
}
