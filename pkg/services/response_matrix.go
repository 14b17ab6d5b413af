package services

import (
	"math"

	"psychometrics-api/pkg/models"
)

// ResponseMatrix 受験者×項目の得点行列
// Scores[i][j] は受験者 i の項目 j の得点（0 ≤ score ≤ MaxPoints[j]）。
type ResponseMatrix struct {
	Scores    [][]float64
	MaxPoints []float64 // 省略時は列の最大値（最低1）
	ItemIDs   []string  // 省略可
}

// NewResponseMatrix wraps a score matrix with inferred max points.
func NewResponseMatrix(scores [][]float64) ResponseMatrix {
	return ResponseMatrix{Scores: scores}
}

// BinaryMatrix converts a 0/1 matrix to a ResponseMatrix with max points of 1.
func BinaryMatrix(responses [][]int) ResponseMatrix {
	scores := make([][]float64, len(responses))
	for i, row := range responses {
		scores[i] = make([]float64, len(row))
		for j, v := range row {
			scores[i][j] = float64(v)
		}
	}
	m := ResponseMatrix{Scores: scores}
	if len(responses) > 0 {
		m.MaxPoints = make([]float64, len(responses[0]))
		for j := range m.MaxPoints {
			m.MaxPoints[j] = 1
		}
	}
	return m
}

// MatrixFromItemResponses 受験者ごとの回答セットを得点行列に変換
// An item is scored by points when max_points > 0, otherwise 1/0 from correct.
// Every row must list the same questions in the same order with the same max points.
func MatrixFromItemResponses(responses [][]models.ItemResponse) (ResponseMatrix, error) {
	if len(responses) == 0 {
		return ResponseMatrix{}, invalidInputf("responses must not be empty")
	}
	first := responses[0]
	k := len(first)
	m := ResponseMatrix{
		Scores:    make([][]float64, len(responses)),
		MaxPoints: make([]float64, k),
		ItemIDs:   make([]string, k),
	}
	for j, r := range first {
		m.ItemIDs[j] = r.QuestionID
		m.MaxPoints[j] = 1
		if r.MaxPoints > 0 {
			m.MaxPoints[j] = r.MaxPoints
		}
	}

	for i, row := range responses {
		if len(row) != k {
			return ResponseMatrix{}, invalidInputf("examinee %d answered %d items, expected %d", i, len(row), k)
		}
		m.Scores[i] = make([]float64, k)
		for j, r := range row {
			if r.QuestionID != m.ItemIDs[j] {
				return ResponseMatrix{}, invalidInputf("examinee %d item %d is %q, expected %q", i, j, r.QuestionID, m.ItemIDs[j])
			}
			if r.MaxPoints <= 0 {
				if m.MaxPoints[j] != 1 || first[j].MaxPoints > 0 {
					return ResponseMatrix{}, invalidInputf("item %q mixes point-scored and correct/incorrect responses", r.QuestionID)
				}
				if r.Correct {
					m.Scores[i][j] = 1
				}
				continue
			}
			if r.MaxPoints != m.MaxPoints[j] {
				return ResponseMatrix{}, invalidInputf("item %q has inconsistent max points (%v vs %v)", r.QuestionID, r.MaxPoints, m.MaxPoints[j])
			}
			m.Scores[i][j] = r.Points
		}
	}
	if err := m.Validate(); err != nil {
		return ResponseMatrix{}, err
	}
	return m, nil
}

// ExamineeCount 受験者数
func (m ResponseMatrix) ExamineeCount() int {
	return len(m.Scores)
}

// ItemCount 項目数
func (m ResponseMatrix) ItemCount() int {
	if len(m.Scores) == 0 {
		return 0
	}
	return len(m.Scores[0])
}

// Validate checks the shape and value-domain invariants of the matrix.
func (m ResponseMatrix) Validate() error {
	n := m.ExamineeCount()
	if n < 2 {
		return invalidInputf("at least 2 examinees are required, got %d", n)
	}
	k := m.ItemCount()
	if k < 2 {
		return invalidInputf("at least 2 items are required, got %d", k)
	}
	for i, row := range m.Scores {
		if len(row) != k {
			return invalidInputf("row %d has %d items, expected %d", i, len(row), k)
		}
		for j, v := range row {
			if !isFinite(v) || v < 0 {
				return invalidInputf("score at row %d, item %d must be a finite non-negative number, got %v", i, j, v)
			}
		}
	}
	if m.MaxPoints != nil {
		if len(m.MaxPoints) != k {
			return invalidInputf("max points has %d entries, expected %d", len(m.MaxPoints), k)
		}
		for j, mp := range m.MaxPoints {
			if !isFinite(mp) || mp <= 0 {
				return invalidInputf("max points for item %d must be positive, got %v", j, mp)
			}
			for i, row := range m.Scores {
				if row[j] > mp {
					return invalidInputf("score %v at row %d exceeds max points %v for item %d", row[j], i, mp, j)
				}
			}
		}
	}
	if m.ItemIDs != nil && len(m.ItemIDs) != k {
		return invalidInputf("item ids has %d entries, expected %d", len(m.ItemIDs), k)
	}
	return nil
}

// Column 項目 j の得点列
func (m ResponseMatrix) Column(j int) []float64 {
	col := make([]float64, len(m.Scores))
	for i, row := range m.Scores {
		col[i] = row[j]
	}
	return col
}

// Totals 受験者ごとの合計点
func (m ResponseMatrix) Totals() []float64 {
	totals := make([]float64, len(m.Scores))
	for i, row := range m.Scores {
		for _, v := range row {
			totals[i] += v
		}
	}
	return totals
}

// ResolvedMaxPoints returns MaxPoints, inferring each item's maximum from the data when absent.
func (m ResponseMatrix) ResolvedMaxPoints() []float64 {
	if m.MaxPoints != nil {
		return m.MaxPoints
	}
	k := m.ItemCount()
	out := make([]float64, k)
	for j := 0; j < k; j++ {
		maxVal := 0.0
		for _, row := range m.Scores {
			maxVal = math.Max(maxVal, row[j])
		}
		if maxVal <= 0 {
			maxVal = 1
		}
		out[j] = maxVal
	}
	return out
}

// IsDichotomous reports whether every item shares one max M and every score is 0 or M.
func (m ResponseMatrix) IsDichotomous() (bool, float64) {
	maxPoints := m.ResolvedMaxPoints()
	if len(maxPoints) == 0 {
		return false, 0
	}
	shared := maxPoints[0]
	for _, mp := range maxPoints {
		if mp != shared {
			return false, 0
		}
	}
	for _, row := range m.Scores {
		for _, v := range row {
			if v != 0 && v != shared {
				return false, 0
			}
		}
	}
	return true, shared
}

// WithoutColumn 項目 j を除いた行列（MaxPoints / ItemIDs も同様に除外）
func (m ResponseMatrix) WithoutColumn(j int) ResponseMatrix {
	out := ResponseMatrix{Scores: make([][]float64, len(m.Scores))}
	for i, row := range m.Scores {
		r := make([]float64, 0, len(row)-1)
		r = append(r, row[:j]...)
		r = append(r, row[j+1:]...)
		out.Scores[i] = r
	}
	if m.MaxPoints != nil {
		out.MaxPoints = append(append([]float64{}, m.MaxPoints[:j]...), m.MaxPoints[j+1:]...)
	}
	if m.ItemIDs != nil {
		out.ItemIDs = append(append([]string{}, m.ItemIDs[:j]...), m.ItemIDs[j+1:]...)
	}
	return out
}

// validateBinaryMatrix checks that responses is a rectangular 0/1 matrix with at least minRows x minCols.
func validateBinaryMatrix(responses [][]int, minRows, minCols int) error {
	if len(responses) == 0 || len(responses) < minRows {
		return invalidInputf("at least %d examinees are required, got %d", minRows, len(responses))
	}
	k := len(responses[0])
	if k < minCols {
		return invalidInputf("at least %d items are required, got %d", minCols, k)
	}
	for i, row := range responses {
		if len(row) != k {
			return invalidInputf("row %d has %d items, expected %d", i, len(row), k)
		}
		for j, v := range row {
			if v != 0 && v != 1 {
				return invalidInputf("response at row %d, item %d must be 0 or 1, got %d", i, j, v)
			}
		}
	}
	return nil
}
