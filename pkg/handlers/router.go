package handlers

import (
	config "psychometrics-api/configs"
	"psychometrics-api/pkg/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine with every route and middleware.
// cmd/server and the serverless entry point share it.
func NewRouter(cfg *config.Config) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Ginルーターの初期化
	r := gin.Default()

	// サービスの初期化
	monitoringService := services.NewMonitoringService()
	reliabilityService := services.NewReliabilityService()
	irtService := services.NewIRTService(cfg.Engine)

	// ハンドラーの初期化
	analysisHandler := NewAnalysisHandler(reliabilityService)
	irtHandler := NewIRTHandler(irtService, cfg.CalibrationTimeout)
	predictionHandler := NewPredictionHandler()
	monitoringHandler := NewMonitoringHandler(monitoringService)

	// ミドルウェアの登録
	r.Use(monitoringService.LoggingMiddleware())
	r.Use(cors.Default())

	// ヘルスチェックエンドポイント
	r.GET("/", Root)
	r.GET("/health", HealthCheck)

	api := r.Group("/api")
	{
		// 古典的テスト理論API
		analysis := api.Group("/analysis")
		{
			analysis.POST("/assess-reliability", analysisHandler.AssessReliability)
			analysis.POST("/item-analysis", analysisHandler.ItemAnalysis)
			analysis.POST("/upload", analysisHandler.UploadAssessment)
		}

		// 項目反応理論API
		irt := api.Group("/irt")
		{
			irt.POST("/calibrate", irtHandler.Calibrate)
			irt.POST("/calibrate/upload", irtHandler.CalibrateUpload)
			irt.POST("/estimate-ability", irtHandler.EstimateAbility)
			irt.POST("/estimate-ability/batch", irtHandler.EstimateAbilityBatch)
			irt.POST("/information", irtHandler.Information)
			irt.POST("/next-item", irtHandler.NextItem)
		}

		// EOC予測API
		predictions := api.Group("/predictions")
		{
			predictions.POST("/predict-eoc", predictionHandler.PredictEOC)
			predictions.POST("/batch-predict", predictionHandler.BatchPredict)
		}

		// モニタリングAPI
		monitoring := api.Group("/monitoring")
		{
			monitoring.GET("/logs", monitoringHandler.GetLogs)
		}
	}

	return r
}
