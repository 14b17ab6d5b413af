package handlers

import (
	"net/http"

	"psychometrics-api/pkg/models"

	"github.com/gin-gonic/gin"
)

// PredictionHandler EOCスコア予測のハンドラ
// The prediction model is served elsewhere; requests are validated and answered with 501.
type PredictionHandler struct{}

// NewPredictionHandler は新しいPredictionHandlerを生成します。
func NewPredictionHandler() *PredictionHandler {
	return &PredictionHandler{}
}

func notImplemented(c *gin.Context, count int) {
	c.JSON(http.StatusNotImplemented, gin.H{
		"error":      "EOC prediction is not available on this server",
		"error_type": "not_implemented",
		"received":   count,
	})
}

// PredictEOC 単一生徒のEOCスコア予測
func (h *PredictionHandler) PredictEOC(c *gin.Context) {
	var req models.PredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	notImplemented(c, 1)
}

// BatchPredict 複数生徒のEOCスコア予測
func (h *PredictionHandler) BatchPredict(c *gin.Context) {
	var req []models.PredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	if len(req) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least 1 prediction request is required", "error_type": "invalid_request"})
		return
	}
	notImplemented(c, len(req))
}
