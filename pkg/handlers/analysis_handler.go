package handlers

import (
	"net/http"
	"strings"

	"psychometrics-api/pkg/models"
	"psychometrics-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// AnalysisHandler 古典的テスト理論（信頼性・項目分析）のハンドラ
type AnalysisHandler struct {
	reliabilityService *services.ReliabilityService
}

// NewAnalysisHandler は新しいAnalysisHandlerを生成します。
func NewAnalysisHandler(reliabilityService *services.ReliabilityService) *AnalysisHandler {
	return &AnalysisHandler{reliabilityService: reliabilityService}
}

// AssessReliability 信頼性係数・項目分析・改善提案を返す
func (h *AnalysisHandler) AssessReliability(c *gin.Context) {
	var req models.AssessmentData
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	m, err := services.MatrixFromItemResponses(req.Responses)
	if err != nil {
		respondError(c, err)
		return
	}
	result, err := h.reliabilityService.AnalyzeAssessment(req.AssessmentID, m)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ItemAnalysis 項目ごとの困難度・識別力・項目削除時のαを返す
func (h *AnalysisHandler) ItemAnalysis(c *gin.Context) {
	var req models.AssessmentData
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	m, err := services.MatrixFromItemResponses(req.Responses)
	if err != nil {
		respondError(c, err)
		return
	}
	stats, err := h.reliabilityService.ComputeItemAnalysis(m)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ItemAnalysisResponse{
		AssessmentID: req.AssessmentID,
		ItemAnalysis: stats,
	})
}

// UploadAssessment 得点表ファイル（.xlsx / .csv）から信頼性分析を行う
func (h *AnalysisHandler) UploadAssessment(c *gin.Context) {
	imported, err := readUpload(c)
	if err != nil {
		respondError(c, err)
		return
	}
	maxPoints, err := postFormFloat(c, "max_points")
	if err != nil {
		respondError(c, err)
		return
	}
	assessmentID := strings.TrimSpace(c.PostForm("assessment_id"))
	if assessmentID == "" {
		assessmentID = "upload"
	}

	result, err := h.reliabilityService.AnalyzeAssessment(assessmentID, imported.ResponseMatrix(maxPoints))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
