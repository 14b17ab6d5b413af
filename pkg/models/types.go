package models

// ItemResponse represents one examinee's response to one item
type ItemResponse struct {
	QuestionID string  `json:"question_id"`
	Correct    bool    `json:"correct"`
	Points     float64 `json:"points"`
	MaxPoints  float64 `json:"max_points"` // 0 の場合は correct を 0/1 で採点
}

// AssessmentData 信頼性分析・項目分析のリクエスト
type AssessmentData struct {
	AssessmentID string           `json:"assessment_id" binding:"required"`
	Responses    [][]ItemResponse `json:"responses" binding:"required"` // 受験者ごとの回答セット
}

// AnalysisResponse 信頼性分析のレスポンス
type AnalysisResponse struct {
	AssessmentID    string            `json:"assessment_id"`
	Reliability     ReliabilityResult `json:"reliability"`
	ItemAnalysis    []ItemStatistic   `json:"item_analysis"`
	Recommendations []string          `json:"recommendations"`
}

// ItemAnalysisResponse 項目分析のみのレスポンス
type ItemAnalysisResponse struct {
	AssessmentID string          `json:"assessment_id"`
	ItemAnalysis []ItemStatistic `json:"item_analysis"`
}

// ItemCalibrationRequest represents an IRT item calibration request
type ItemCalibrationRequest struct {
	AssessmentID string  `json:"assessment_id" binding:"required"`
	Responses    [][]int `json:"responses" binding:"required"` // 二値の反応行列（受験者×項目）
	ModelType    string  `json:"model_type,omitempty"`         // デフォルト: 2PL
}

// ItemCalibrationResponse 較正済みの項目パラメータ
type ItemCalibrationResponse struct {
	AssessmentID   string                 `json:"assessment_id"`
	ModelType      ModelType              `json:"model_type"`
	ItemParameters []ItemParameters       `json:"item_parameters"`
	ModelFit       ModelFit               `json:"model_fit"`
	Converged      bool                   `json:"converged"`
	Iterations     int                    `json:"iterations"`
	Diagnostics    CalibrationDiagnostics `json:"diagnostics"`
}

// AbilityEstimationRequest represents a single examinee's ability estimation request
type AbilityEstimationRequest struct {
	StudentResponses []int            `json:"student_responses" binding:"required"`
	ItemParameters   []ItemParameters `json:"item_parameters" binding:"required"`
	ConfidenceLevel  float64          `json:"confidence_level,omitempty"` // 例: 0.95
}

// BatchAbilityRequest 複数受験者の能力推定リクエスト（項目パラメータは共通）
type BatchAbilityRequest struct {
	Responses       [][]int          `json:"responses" binding:"required"`
	ItemParameters  []ItemParameters `json:"item_parameters" binding:"required"`
	ConfidenceLevel float64          `json:"confidence_level,omitempty"`
}

// BatchAbilityResponse 入力順の能力推定値
type BatchAbilityResponse struct {
	Estimates []AbilityEstimate `json:"estimates"`
	Count     int               `json:"count"`
}

// InformationRequest テスト情報曲線のリクエスト
type InformationRequest struct {
	ItemParameters []ItemParameters `json:"item_parameters" binding:"required"`
	ThetaMin       *float64         `json:"theta_min,omitempty"` // デフォルト: -4
	ThetaMax       *float64         `json:"theta_max,omitempty"` // デフォルト: 4
	Step           float64          `json:"step,omitempty"`      // デフォルト: 0.5
	IncludeItems   bool             `json:"include_items,omitempty"`
}

// NextItemRequest 適応型テストの次項目選択リクエスト
type NextItemRequest struct {
	Theta          float64          `json:"theta"`
	ItemParameters []ItemParameters `json:"item_parameters" binding:"required"`
	Administered   []int            `json:"administered,omitempty"`
}

// NextItemResponse 選択された項目
type NextItemResponse struct {
	ItemIndex   int     `json:"item_index"`
	Information float64 `json:"information"`
}

// AssessmentResult EOC予測の入力となる過去の評価結果
type AssessmentResult struct {
	AssessmentID string  `json:"assessment_id" binding:"required"`
	Score        float64 `json:"score"`
	MaxScore     float64 `json:"max_score"`
	Date         string  `json:"date"`
}

// ProgressData スタンダードごとの習熟状況
type ProgressData struct {
	StandardID   string  `json:"standard_id" binding:"required"`
	MasteryLevel string  `json:"mastery_level"`
	Confidence   float64 `json:"confidence"`
}

// PredictionRequest EOCスコア予測のリクエスト
type PredictionRequest struct {
	StudentID         string             `json:"student_id" binding:"required"`
	AssessmentResults []AssessmentResult `json:"assessment_results" binding:"dive"`
	ProgressData      []ProgressData     `json:"progress_data" binding:"dive"`
	DaysUntilEOC      int                `json:"days_until_eoc"`
}
