package services

import (
	"fmt"
	"log"
	"math"

	"psychometrics-api/pkg/models"
)

// DiscriminationThreshold 識別力がこの値未満の項目は見直し対象
const DiscriminationThreshold = 0.20

// 信頼性係数の評価区分の境界値
const (
	reliabilityQuestionable = 0.60
	reliabilityAcceptable   = 0.70
	reliabilityGood         = 0.80
	reliabilityExcellent    = 0.90
)

// minItemsAfterDeletion 項目削除時のαを報告するのに必要な残り項目数
const minItemsAfterDeletion = 3

// 難易度（p値）の警告閾値
const (
	difficultyTooEasy = 0.90
	difficultyTooHard = 0.20
)

// ReliabilityService 古典的テスト理論（CTT）による信頼性・項目分析サービス
type ReliabilityService struct{}

// NewReliabilityService 新しい信頼性分析サービスを作成
func NewReliabilityService() *ReliabilityService {
	return &ReliabilityService{}
}

// ComputeReliability computes Cronbach's alpha (and KR-20 for dichotomous data) and the SEM.
func (s *ReliabilityService) ComputeReliability(m ResponseMatrix) (*models.ReliabilityResult, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return s.computeReliability(m)
}

func (s *ReliabilityService) computeReliability(m ResponseMatrix) (*models.ReliabilityResult, error) {
	k := m.ItemCount()
	totals := m.Totals()
	alpha, totalVar, ok := cronbachAlpha(m)
	if !ok {
		return nil, degenerateDataf("total scores have zero variance across %d examinees", m.ExamineeCount())
	}

	result := &models.ReliabilityResult{
		Method:        "cronbach_alpha",
		Coefficient:   alpha,
		CronbachAlpha: alpha,
		ItemCount:     k,
		ExamineeCount: m.ExamineeCount(),
		TotalMean:     calculateMean(totals),
		TotalSD:       math.Sqrt(totalVar),
	}

	if dichotomous, maxPoints := m.IsDichotomous(); dichotomous {
		var sumPQ float64
		for j := 0; j < k; j++ {
			p := calculateMean(m.Column(j)) / maxPoints
			sumPQ += p * (1 - p)
		}
		kf := float64(k)
		kr20 := (kf / (kf - 1)) * (1 - maxPoints*maxPoints*sumPQ/totalVar)
		result.KR20 = &kr20
		result.Method = "kr20"
		result.Coefficient = kr20
	}

	result.SEM = result.TotalSD * math.Sqrt(1-math.Min(result.Coefficient, 1))
	result.Band = ClassifyReliability(result.Coefficient)
	return result, nil
}

// cronbachAlpha computes alpha with population variances.
// ok is false when the total score variance is zero.
func cronbachAlpha(m ResponseMatrix) (alpha, totalVar float64, ok bool) {
	k := m.ItemCount()
	totalVar = populationVariance(m.Totals())
	if totalVar <= varianceEpsilon {
		return 0, totalVar, false
	}
	var sumItemVars float64
	for j := 0; j < k; j++ {
		sumItemVars += populationVariance(m.Column(j))
	}
	kf := float64(k)
	return (kf / (kf - 1.0)) * (1.0 - sumItemVars/totalVar), totalVar, true
}

// ComputeItemAnalysis 項目ごとの難易度・識別力・項目削除時のαを計算（入力列順）
func (s *ReliabilityService) ComputeItemAnalysis(m ResponseMatrix) ([]models.ItemStatistic, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return s.computeItemAnalysis(m), nil
}

func (s *ReliabilityService) computeItemAnalysis(m ResponseMatrix) []models.ItemStatistic {
	k := m.ItemCount()
	n := m.ExamineeCount()
	totals := m.Totals()
	maxPoints := m.ResolvedMaxPoints()

	stats := make([]models.ItemStatistic, k)
	for j := 0; j < k; j++ {
		col := m.Column(j)
		rest := make([]float64, n)
		for i := range totals {
			rest[i] = totals[i] - col[i]
		}

		stat := models.ItemStatistic{
			ItemIndex:  j,
			Difficulty: calculateMean(col) / maxPoints[j],
		}
		if m.ItemIDs != nil {
			stat.QuestionID = m.ItemIDs[j]
		}
		if r, ok := pearson(col, rest); ok {
			p := correlationPValue(r, n)
			stat.Discrimination = &r
			stat.DiscriminationPValue = &p
		}
		stat.Flagged = stat.Discrimination == nil || *stat.Discrimination < DiscriminationThreshold

		// 削除後に minItemsAfterDeletion 項目以上残る場合のみ定義される
		if k-1 >= minItemsAfterDeletion {
			if a, _, ok := cronbachAlpha(m.WithoutColumn(j)); ok {
				stat.AlphaIfDeleted = &a
			}
		}
		stats[j] = stat
	}
	return stats
}

// ClassifyReliability maps a reliability coefficient to its band.
func ClassifyReliability(coefficient float64) models.ReliabilityBand {
	switch {
	case coefficient >= reliabilityExcellent:
		return models.BandExcellent
	case coefficient >= reliabilityGood:
		return models.BandGood
	case coefficient >= reliabilityAcceptable:
		return models.BandAcceptable
	case coefficient >= reliabilityQuestionable:
		return models.BandQuestionable
	default:
		return models.BandPoor
	}
}

// Recommendations 信頼性と項目統計からルールベースの改善提案を生成
func (s *ReliabilityService) Recommendations(rel *models.ReliabilityResult, stats []models.ItemStatistic) []string {
	label := "alpha"
	if rel.Method == "kr20" {
		label = "KR-20"
	}
	coef := rel.Coefficient

	var recs []string
	switch ClassifyReliability(coef) {
	case models.BandExcellent:
		recs = append(recs, fmt.Sprintf("Overall reliability is excellent (%s = %.2f >= 0.90)", label, coef))
	case models.BandGood:
		recs = append(recs, fmt.Sprintf("Overall reliability is good (%s = %.2f, 0.80-0.90)", label, coef))
	case models.BandAcceptable:
		recs = append(recs, fmt.Sprintf("Overall reliability is acceptable (%s = %.2f, 0.70-0.80)", label, coef))
	case models.BandQuestionable:
		recs = append(recs, fmt.Sprintf("Overall reliability is questionable (%s = %.2f, 0.60-0.70)", label, coef))
	default:
		recs = append(recs, fmt.Sprintf("Overall reliability is poor (%s = %.2f < 0.60)", label, coef))
	}
	if coef < reliabilityAcceptable {
		recs = append(recs, "Low reliability: consider adding items or revising items with weak discrimination")
	}

	for _, st := range stats {
		name := itemLabel(st)
		switch {
		case st.Discrimination == nil:
			recs = append(recs, fmt.Sprintf("Review %s: discrimination is undefined (no score variance)", name))
		case *st.Discrimination < DiscriminationThreshold:
			recs = append(recs, fmt.Sprintf("Review %s: discrimination %.2f is below 0.20", name, *st.Discrimination))
		}
		if st.Difficulty > difficultyTooEasy {
			recs = append(recs, fmt.Sprintf("%s is very easy (difficulty %.2f > 0.90)", name, st.Difficulty))
		} else if st.Difficulty < difficultyTooHard {
			recs = append(recs, fmt.Sprintf("%s is very hard (difficulty %.2f < 0.20)", name, st.Difficulty))
		}
	}
	return recs
}

func itemLabel(st models.ItemStatistic) string {
	if st.QuestionID != "" {
		return "item " + st.QuestionID
	}
	return fmt.Sprintf("item %d", st.ItemIndex+1)
}

// AnalyzeAssessment 信頼性・項目分析・提案をまとめて計算
func (s *ReliabilityService) AnalyzeAssessment(assessmentID string, m ResponseMatrix) (*models.AnalysisResponse, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	rel, err := s.computeReliability(m)
	if err != nil {
		return nil, err
	}
	stats := s.computeItemAnalysis(m)

	log.Printf("📊 [信頼性分析] %s: 受験者%d名 × %d項目, %s=%.3f (%s)",
		assessmentID, rel.ExamineeCount, rel.ItemCount, rel.Method, rel.Coefficient, rel.Band)

	return &models.AnalysisResponse{
		AssessmentID:    assessmentID,
		Reliability:     *rel,
		ItemAnalysis:    stats,
		Recommendations: s.Recommendations(rel, stats),
	}, nil
}
