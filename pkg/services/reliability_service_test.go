package services

import (
	"math/rand"
	"strings"
	"testing"

	"psychometrics-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBinary(rng *rand.Rand, n, k int) [][]int {
	out := make([][]int, n)
	for i := range out {
		ability := rng.NormFloat64()
		out[i] = make([]int, k)
		for j := range out[i] {
			if rng.Float64() < logistic(ability-0.3*float64(j-k/2)) {
				out[i][j] = 1
			}
		}
	}
	return out
}

func TestComputeReliabilitySmallScenario(t *testing.T) {
	svc := NewReliabilityService()
	m := BinaryMatrix([][]int{
		{1, 1, 0},
		{1, 0, 0},
		{0, 1, 1},
		{0, 0, 1},
	})

	rel, err := svc.ComputeReliability(m)
	require.NoError(t, err)
	assert.Equal(t, "kr20", rel.Method)
	require.NotNil(t, rel.KR20)
	assert.InDelta(t, -3.0, *rel.KR20, 1e-9)
	assert.InDelta(t, rel.CronbachAlpha, *rel.KR20, 1e-9)
	assert.InDelta(t, 1.0, rel.SEM, 1e-9)
	assert.Equal(t, models.BandPoor, rel.Band)
	assert.Equal(t, 3, rel.ItemCount)
	assert.Equal(t, 4, rel.ExamineeCount)

	stats, err := svc.ComputeItemAnalysis(m)
	require.NoError(t, err)
	require.Len(t, stats, 3)
	for j, st := range stats {
		assert.Equal(t, j, st.ItemIndex)
		assert.InDelta(t, 0.5, st.Difficulty, 1e-12)
		assert.True(t, st.Flagged)
	}
	// 項目2の残差合計は全員1点なので相関は定義されない
	assert.Nil(t, stats[1].Discrimination)
	require.NotNil(t, stats[0].Discrimination)
	assert.InDelta(t, -0.7071, *stats[0].Discrimination, 1e-4)
	// 削除後に残るのは2項目なので未定義
	assert.Nil(t, stats[0].AlphaIfDeleted)
}

func TestKR20EqualsAlphaOnBinaryData(t *testing.T) {
	svc := NewReliabilityService()
	rng := rand.New(rand.NewSource(3))
	for trial := 0; trial < 5; trial++ {
		m := BinaryMatrix(randomBinary(rng, 50+10*trial, 8))
		rel, err := svc.ComputeReliability(m)
		require.NoError(t, err)
		require.NotNil(t, rel.KR20)
		assert.InDelta(t, rel.CronbachAlpha, *rel.KR20, 1e-9)
	}
}

func TestReliabilityColumnPermutationInvariance(t *testing.T) {
	svc := NewReliabilityService()
	rng := rand.New(rand.NewSource(11))
	responses := randomBinary(rng, 80, 6)
	perm := []int{3, 0, 5, 1, 4, 2}

	permuted := make([][]int, len(responses))
	for i, row := range responses {
		permuted[i] = make([]int, len(row))
		for j, src := range perm {
			permuted[i][j] = row[src]
		}
	}

	orig, err := svc.ComputeReliability(BinaryMatrix(responses))
	require.NoError(t, err)
	moved, err := svc.ComputeReliability(BinaryMatrix(permuted))
	require.NoError(t, err)
	assert.InDelta(t, orig.Coefficient, moved.Coefficient, 1e-12)
	assert.InDelta(t, orig.SEM, moved.SEM, 1e-12)

	origStats, err := svc.ComputeItemAnalysis(BinaryMatrix(responses))
	require.NoError(t, err)
	movedStats, err := svc.ComputeItemAnalysis(BinaryMatrix(permuted))
	require.NoError(t, err)
	for j, src := range perm {
		assert.InDelta(t, origStats[src].Difficulty, movedStats[j].Difficulty, 1e-12)
		require.NotNil(t, movedStats[j].Discrimination)
		assert.InDelta(t, *origStats[src].Discrimination, *movedStats[j].Discrimination, 1e-12)
		assert.InDelta(t, *origStats[src].AlphaIfDeleted, *movedStats[j].AlphaIfDeleted, 1e-12)
	}
}

func TestComputeReliabilityDegenerate(t *testing.T) {
	svc := NewReliabilityService()
	// 全員の合計点が同じ
	_, err := svc.ComputeReliability(BinaryMatrix([][]int{
		{1, 0},
		{0, 1},
		{1, 0},
	}))
	assert.True(t, IsDegenerateData(err), "got %v", err)
	assert.False(t, IsInvalidInput(err))

	_, err = svc.AnalyzeAssessment("same", BinaryMatrix([][]int{{1, 1}, {1, 1}}))
	assert.True(t, IsDegenerateData(err))
}

func TestComputeReliabilityValidation(t *testing.T) {
	svc := NewReliabilityService()
	testCases := map[string]ResponseMatrix{
		"one examinee": NewResponseMatrix([][]float64{{1, 0, 1}}),
		"one item":     NewResponseMatrix([][]float64{{1}, {0}}),
		"ragged":       NewResponseMatrix([][]float64{{1, 0}, {1}}),
		"negative":     NewResponseMatrix([][]float64{{1, -1}, {0, 1}}),
		"above max":    {Scores: [][]float64{{2, 0}, {0, 1}}, MaxPoints: []float64{1, 1}},
		"max mismatch": {Scores: [][]float64{{1, 0}, {0, 1}}, MaxPoints: []float64{1}},
		"ids mismatch": {Scores: [][]float64{{1, 0}, {0, 1}}, ItemIDs: []string{"a"}},
		"empty":        {},
	}
	for name, m := range testCases {
		_, err := svc.ComputeReliability(m)
		assert.True(t, IsInvalidInput(err), "%s: got %v", name, err)
		_, err = svc.ComputeItemAnalysis(m)
		assert.True(t, IsInvalidInput(err), "%s: got %v", name, err)
	}
}

func TestComputeReliabilityPolytomous(t *testing.T) {
	svc := NewReliabilityService()
	m := ResponseMatrix{
		Scores: [][]float64{
			{4, 3, 2},
			{2, 2, 1},
			{3, 4, 4},
			{1, 0, 1},
			{0, 1, 0},
		},
		MaxPoints: []float64{4, 4, 4},
	}
	rel, err := svc.ComputeReliability(m)
	require.NoError(t, err)
	assert.Equal(t, "cronbach_alpha", rel.Method)
	assert.Nil(t, rel.KR20)
	assert.Equal(t, rel.CronbachAlpha, rel.Coefficient)
	assert.Greater(t, rel.Coefficient, 0.8)

	stats, err := svc.ComputeItemAnalysis(m)
	require.NoError(t, err)
	assert.InDelta(t, 10.0/20.0, stats[0].Difficulty, 1e-12)
	assert.InDelta(t, 10.0/20.0, stats[1].Difficulty, 1e-12)
	assert.InDelta(t, 8.0/20.0, stats[2].Difficulty, 1e-12)
}

func TestItemAnalysisUndefinedDiscrimination(t *testing.T) {
	svc := NewReliabilityService()
	m := BinaryMatrix([][]int{
		{1, 1, 0},
		{1, 0, 1},
		{1, 1, 1},
		{1, 0, 0},
	})
	m.ItemIDs = []string{"q1", "q2", "q3"}

	result, err := svc.AnalyzeAssessment("a1", m)
	require.NoError(t, err)
	first := result.ItemAnalysis[0]
	assert.Equal(t, "q1", first.QuestionID)
	assert.Nil(t, first.Discrimination)
	assert.Nil(t, first.DiscriminationPValue)
	assert.True(t, first.Flagged)
	assert.Equal(t, 1.0, first.Difficulty)

	joined := strings.Join(result.Recommendations, "\n")
	assert.Contains(t, joined, "Review item q1: discrimination is undefined")
	assert.Contains(t, joined, "item q1 is very easy")
}

func TestAlphaIfDeletedRequiresThreeRemainingItems(t *testing.T) {
	svc := NewReliabilityService()

	stats, err := svc.ComputeItemAnalysis(BinaryMatrix([][]int{
		{1, 1, 1},
		{0, 1, 1},
		{0, 0, 1},
		{0, 0, 0},
	}))
	require.NoError(t, err)
	for _, st := range stats {
		assert.Nil(t, st.AlphaIfDeleted, "item %d", st.ItemIndex)
	}

	m := BinaryMatrix([][]int{
		{1, 1, 1, 1},
		{0, 1, 1, 1},
		{0, 0, 1, 1},
		{0, 0, 0, 1},
		{0, 0, 0, 0},
	})
	stats, err = svc.ComputeItemAnalysis(m)
	require.NoError(t, err)
	for j, st := range stats {
		require.NotNil(t, st.AlphaIfDeleted, "item %d", j)
		want, _, ok := cronbachAlpha(m.WithoutColumn(j))
		require.True(t, ok)
		assert.InDelta(t, want, *st.AlphaIfDeleted, 1e-12)
	}
}

func TestClassifyReliability(t *testing.T) {
	testCases := []struct {
		coefficient float64
		expected    models.ReliabilityBand
	}{
		{-3, models.BandPoor},
		{0.59, models.BandPoor},
		{0.60, models.BandQuestionable},
		{0.69, models.BandQuestionable},
		{0.70, models.BandAcceptable},
		{0.80, models.BandGood},
		{0.89, models.BandGood},
		{0.90, models.BandExcellent},
		{1.0, models.BandExcellent},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, ClassifyReliability(tc.coefficient), "coefficient=%v", tc.coefficient)
	}
}

func TestRecommendations(t *testing.T) {
	svc := NewReliabilityService()
	kr20 := 0.85
	low := 0.12
	good := 0.45
	recs := svc.Recommendations(
		&models.ReliabilityResult{Method: "kr20", Coefficient: kr20, KR20: &kr20},
		[]models.ItemStatistic{
			{ItemIndex: 0, Difficulty: 0.5, Discrimination: &good},
			{ItemIndex: 1, QuestionID: "Q7", Difficulty: 0.1, Discrimination: &low, Flagged: true},
		},
	)
	require.Len(t, recs, 3)
	assert.Equal(t, "Overall reliability is good (KR-20 = 0.85, 0.80-0.90)", recs[0])
	assert.Equal(t, "Review item Q7: discrimination 0.12 is below 0.20", recs[1])
	assert.Equal(t, "item Q7 is very hard (difficulty 0.10 < 0.20)", recs[2])

	recs = svc.Recommendations(&models.ReliabilityResult{Method: "cronbach_alpha", Coefficient: 0.65}, nil)
	require.Len(t, recs, 2)
	assert.Equal(t, "Overall reliability is questionable (alpha = 0.65, 0.60-0.70)", recs[0])
	assert.Contains(t, recs[1], "Low reliability")
}
