package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"psychometrics-api/pkg/models"
	"psychometrics-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// 情報曲線の既定グリッド
const (
	defaultThetaMin = -4.0
	defaultThetaMax = 4.0
	defaultStep     = 0.5
)

// IRTHandler 項目反応理論のハンドラ
type IRTHandler struct {
	irtService         *services.IRTService
	calibrationTimeout time.Duration
}

// NewIRTHandler は新しいIRTHandlerを生成します。
func NewIRTHandler(irtService *services.IRTService, calibrationTimeout time.Duration) *IRTHandler {
	return &IRTHandler{irtService: irtService, calibrationTimeout: calibrationTimeout}
}

func (h *IRTHandler) calibrate(c *gin.Context, assessmentID, rawModel string, responses [][]int) {
	if strings.TrimSpace(rawModel) == "" {
		rawModel = string(models.Model2PL)
	}
	modelType, err := services.ParseModelType(rawModel)
	if err != nil {
		respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	if h.calibrationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.calibrationTimeout)
		defer cancel()
	}
	result, err := h.irtService.Calibrate(ctx, responses, modelType)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ItemCalibrationResponse{
		AssessmentID:   assessmentID,
		ModelType:      result.ModelType,
		ItemParameters: result.Items,
		ModelFit:       result.Fit,
		Converged:      result.Converged,
		Iterations:     result.Iterations,
		Diagnostics:    result.Diagnostics,
	})
}

// Calibrate 二値反応行列から項目パラメータを較正
func (h *IRTHandler) Calibrate(c *gin.Context) {
	var req models.ItemCalibrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	h.calibrate(c, req.AssessmentID, req.ModelType, req.Responses)
}

// CalibrateUpload 反応行列ファイル（.xlsx / .csv）から項目パラメータを較正
func (h *IRTHandler) CalibrateUpload(c *gin.Context) {
	imported, err := readUpload(c)
	if err != nil {
		respondError(c, err)
		return
	}
	responses, err := imported.BinaryResponses()
	if err != nil {
		respondError(c, err)
		return
	}
	assessmentID := strings.TrimSpace(c.PostForm("assessment_id"))
	if assessmentID == "" {
		assessmentID = "upload"
	}
	h.calibrate(c, assessmentID, c.PostForm("model_type"), responses)
}

// EstimateAbility 既知の項目パラメータから受験者の能力θを推定
func (h *IRTHandler) EstimateAbility(c *gin.Context) {
	var req models.AbilityEstimationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	z, err := confidenceZ(req.ConfidenceLevel)
	if err != nil {
		respondError(c, err)
		return
	}
	estimate, err := h.irtService.EstimateAbilityWithZ(req.StudentResponses, req.ItemParameters, z)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, estimate)
}

// EstimateAbilityBatch 複数受験者の能力θを並列に推定
func (h *IRTHandler) EstimateAbilityBatch(c *gin.Context) {
	var req models.BatchAbilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	z, err := confidenceZ(req.ConfidenceLevel)
	if err != nil {
		respondError(c, err)
		return
	}
	estimates, err := h.irtService.EstimateAbilities(c.Request.Context(), req.Responses, req.ItemParameters, z)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.BatchAbilityResponse{Estimates: estimates, Count: len(estimates)})
}

// Information テスト情報曲線を返す
func (h *IRTHandler) Information(c *gin.Context) {
	var req models.InformationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	from, to, step := defaultThetaMin, defaultThetaMax, defaultStep
	if req.ThetaMin != nil {
		from = *req.ThetaMin
	}
	if req.ThetaMax != nil {
		to = *req.ThetaMax
	}
	if req.Step != 0 {
		step = req.Step
	}
	curve, err := h.irtService.InformationCurve(req.ItemParameters, from, to, step, req.IncludeItems)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"curve": curve})
}

// NextItem 適応型テストで次に出題する項目を選択
func (h *IRTHandler) NextItem(c *gin.Context) {
	var req models.NextItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	idx, info, err := h.irtService.SelectNextItem(req.Theta, req.ItemParameters, req.Administered)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NextItemResponse{ItemIndex: idx, Information: info})
}
