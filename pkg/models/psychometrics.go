package models

// ModelType IRTモデルの種類（ロジスティックモデルのパラメータ数）
type ModelType string

const (
	Model1PL ModelType = "1PL"
	Model2PL ModelType = "2PL"
	Model3PL ModelType = "3PL"
)

// ReferenceDiscrimination 1PLで固定される識別力
const ReferenceDiscrimination = 1.0

// FreeParameters 項目あたりの自由パラメータ数
func (m ModelType) FreeParameters() int {
	switch m {
	case Model1PL:
		return 1
	case Model2PL:
		return 2
	case Model3PL:
		return 3
	}
	return 0
}

// Valid reports whether m is one of the supported model families.
func (m ModelType) Valid() bool {
	return m.FreeParameters() > 0
}

// ReliabilityBand 信頼性係数の評価区分
type ReliabilityBand string

const (
	BandPoor         ReliabilityBand = "poor"
	BandQuestionable ReliabilityBand = "questionable"
	BandAcceptable   ReliabilityBand = "acceptable"
	BandGood         ReliabilityBand = "good"
	BandExcellent    ReliabilityBand = "excellent"
)

// ReliabilityResult テスト全体の信頼性指標
type ReliabilityResult struct {
	Method        string          `json:"method"` // "kr20" or "cronbach_alpha"
	Coefficient   float64         `json:"coefficient"`
	CronbachAlpha float64         `json:"cronbach_alpha"`
	KR20          *float64        `json:"kr20,omitempty"` // 二値データの場合のみ
	SEM           float64         `json:"sem"`
	ItemCount     int             `json:"item_count"`
	ExamineeCount int             `json:"examinee_count"`
	TotalMean     float64         `json:"total_mean"`
	TotalSD       float64         `json:"total_sd"`
	Band          ReliabilityBand `json:"band"`
}

// ItemStatistic 項目ごとの古典的テスト理論の統計量
type ItemStatistic struct {
	ItemIndex            int      `json:"item_index"`
	QuestionID           string   `json:"question_id,omitempty"`
	Difficulty           float64  `json:"difficulty"`                       // p値（正答率、または得点率）
	Discrimination       *float64 `json:"discrimination,omitempty"`         // 修正項目-合計相関
	DiscriminationPValue *float64 `json:"discrimination_p_value,omitempty"` // 相関の両側p値
	AlphaIfDeleted       *float64 `json:"alpha_if_deleted,omitempty"`
	Flagged              bool     `json:"flagged"`
}

// ItemParameters IRT項目パラメータ
type ItemParameters struct {
	ModelType      ModelType `json:"model_type"`
	Difficulty     float64   `json:"difficulty"`           // b
	Discrimination float64   `json:"discrimination"`       // a
	Guessing       float64   `json:"guessing"`             // c
	Degenerate     bool      `json:"degenerate,omitempty"` // 全員正答/全員誤答で推定不能
}

// ModelFit モデル適合度
type ModelFit struct {
	LogLikelihood  float64 `json:"log_likelihood"`
	AIC            float64 `json:"aic"`
	BIC            float64 `json:"bic"`
	FreeParameters int     `json:"free_parameters"`
	Examinees      int     `json:"examinees"`
}

// CalibrationDiagnostics 推定時に検出された境界ケース
type CalibrationDiagnostics struct {
	DegenerateItems  []int `json:"degenerate_items"`
	ExtremeExaminees []int `json:"extreme_examinees"`
}

// CalibrationResult 項目較正の結果
type CalibrationResult struct {
	ModelType   ModelType              `json:"model_type"`
	Items       []ItemParameters       `json:"item_parameters"`
	Fit         ModelFit               `json:"model_fit"`
	Converged   bool                   `json:"converged"`
	Iterations  int                    `json:"iterations"`
	Thetas      []float64              `json:"thetas"`
	Diagnostics CalibrationDiagnostics `json:"diagnostics"`
}

// AbilityEstimate 受験者の能力推定値
type AbilityEstimate struct {
	Theta              float64    `json:"theta"`
	StandardError      float64    `json:"standard_error"`
	ConfidenceInterval [2]float64 `json:"confidence_interval"`
	Information        float64    `json:"information"`
	AtBoundary         bool       `json:"at_boundary"`
	Boundary           string     `json:"boundary,omitempty"` // "upper" / "lower"
	Converged          bool       `json:"converged"`
	Iterations         int        `json:"iterations"`
}

// InformationPoint テスト情報曲線上の1点
type InformationPoint struct {
	Theta           float64   `json:"theta"`
	Information     float64   `json:"information"`
	StandardError   float64   `json:"standard_error"`
	ItemInformation []float64 `json:"item_information,omitempty"`
}
