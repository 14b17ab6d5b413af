package main

import (
	"log"

	config "psychometrics-api/configs"
	"psychometrics-api/pkg/handlers"

	"github.com/joho/godotenv"
)

func main() {
	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	// 設定の読み込み
	cfg := config.LoadConfig()
	log.Printf("🟢 設定を読み込みました (environment=%s, max_iterations=%d, calibration_timeout=%v)",
		cfg.Environment, cfg.Engine.MaxIterations, cfg.CalibrationTimeout)

	r := handlers.NewRouter(cfg)

	log.Printf("🚀 Psychometrics API を起動します (port %s)", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
