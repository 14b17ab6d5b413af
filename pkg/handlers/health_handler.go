package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ServiceName / Version はヘルスチェックで返す識別情報
const (
	ServiceName = "psychometrics-api"
	Version     = "1.0.0"
)

// Root はサービス情報を返します。
func Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": ServiceName,
		"version": Version,
		"status":  "ok",
	})
}

// HealthCheck は外部のヘルスチェッカー（例: ロードバランサー）からのリクエストに応答します。
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": ServiceName})
}
