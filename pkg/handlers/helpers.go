package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"

	"psychometrics-api/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

// maxUploadBytes アップロードファイルの上限（10MB）
const maxUploadBytes = 10 << 20

// respondError maps an engine error to its HTTP status and error_type.
func respondError(c *gin.Context, err error) {
	status, errorType := http.StatusInternalServerError, "internal_error"
	switch {
	case services.IsInvalidInput(err):
		status, errorType = http.StatusBadRequest, "invalid_input"
	case services.IsDegenerateData(err):
		status, errorType = http.StatusUnprocessableEntity, "degenerate_data"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status, errorType = http.StatusServiceUnavailable, "timeout"
	case isTooLarge(err):
		status, errorType = http.StatusRequestEntityTooLarge, "payload_too_large"
	}
	if status >= http.StatusInternalServerError {
		log.Printf("❌ [%s] %s %s: %v", c.GetString("request_id"), c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "error_type": errorType})
}

// respondBindingError リクエストボディの形式エラー
func respondBindingError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":      "リクエストの形式が正しくありません: " + err.Error(),
		"error_type": "invalid_request",
	})
}

// isTooLarge reports whether err came from the MaxBytesReader limit.
func isTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}

// readUpload reads the multipart "file" field and parses it as a score table.
func readUpload(c *gin.Context) (*services.ImportedMatrix, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	file, fileHeader, err := c.Request.FormFile("file")
	if err != nil {
		if isTooLarge(err) {
			return nil, errors.Wrapf(err, "アップロードは%dバイトまでです", maxUploadBytes)
		}
		return nil, &services.InvalidInputError{Reason: "ファイルの取得に失敗しました: " + err.Error()}
	}
	defer file.Close()

	log.Printf("📂 [アップロード] %s (%d bytes)", fileHeader.Filename, fileHeader.Size)
	return services.ParseResponseFile(fileHeader.Filename, file)
}

// postFormFloat parses an optional numeric form field.
func postFormFloat(c *gin.Context, key string) (float64, error) {
	raw := strings.TrimSpace(c.PostForm(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &services.InvalidInputError{Reason: key + " must be a number, got " + strconv.Quote(raw)}
	}
	return v, nil
}

// confidenceZ resolves an optional confidence level to a z value; 0 keeps the service default.
func confidenceZ(level float64) (float64, error) {
	if level == 0 {
		return 0, nil
	}
	return services.ZForConfidence(level)
}
