package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"psychometrics-api/pkg/services"

	"github.com/pkg/errors"
)

// DefaultEngineSettingsPath エンジン設定ファイルの既定パス
const DefaultEngineSettingsPath = "configs/engine.yaml"

// Config holds the application configuration
type Config struct {
	Port               string
	Environment        string
	EngineSettingsPath string
	CalibrationTimeout time.Duration
	Engine             services.IRTOptions
}

// LoadConfig loads configuration from defaults, the engine settings file and
// environment variables, later sources overriding earlier ones.
func LoadConfig() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Environment:        getEnv("ENVIRONMENT", "development"),
		EngineSettingsPath: getEnv("ENGINE_SETTINGS_PATH", DefaultEngineSettingsPath),
		CalibrationTimeout: 30 * time.Second,
		Engine:             services.DefaultIRTOptions(),
	}

	settings, err := LoadEngineSettings(cfg.EngineSettingsPath)
	switch {
	case err == nil:
		settings.applyTo(cfg)
	case errors.Is(err, os.ErrNotExist):
		log.Printf("ℹ️  エンジン設定ファイルが見つかりません (%s)。既定値を使用します", cfg.EngineSettingsPath)
	default:
		log.Printf("⚠️ エンジン設定ファイルを読み込めませんでした: %v", err)
	}

	cfg.CalibrationTimeout = getEnvDuration("CALIBRATION_TIMEOUT", cfg.CalibrationTimeout)
	cfg.Engine.MaxIterations = getEnvInt("IRT_MAX_ITERATIONS", cfg.Engine.MaxIterations)
	cfg.Engine.Tolerance = getEnvFloat("IRT_TOLERANCE", cfg.Engine.Tolerance)
	cfg.Engine.ThetaBound = getEnvFloat("IRT_THETA_BOUND", cfg.Engine.ThetaBound)
	cfg.Engine.DifficultyBound = getEnvFloat("IRT_DIFFICULTY_BOUND", cfg.Engine.DifficultyBound)
	cfg.Engine.ConfidenceZ = getEnvFloat("IRT_CONFIDENCE_Z", cfg.Engine.ConfidenceZ)
	return cfg
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		log.Printf("⚠️ %s=%q は正の整数ではありません。%d を使用します", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f <= 0 {
		log.Printf("⚠️ %s=%q は正の数値ではありません。%v を使用します", key, value, defaultValue)
		return defaultValue
	}
	return f
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		log.Printf("⚠️ %s=%q は有効な期間ではありません。%v を使用します", key, value, defaultValue)
		return defaultValue
	}
	return d
}
