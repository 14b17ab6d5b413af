package config

import (
	"os"
	"time"

	"psychometrics-api/pkg/services"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// EngineSettings はengine.yamlの構造を定義
type EngineSettings struct {
	IRT                services.IRTOptions `yaml:"irt"`
	CalibrationTimeout string              `yaml:"calibration_timeout"`
}

// LoadEngineSettings はYAMLファイルからエンジン設定を読み込む
func LoadEngineSettings(path string) (*EngineSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "エンジン設定ファイルの読み込みに失敗")
	}

	var settings EngineSettings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, errors.Wrap(err, "YAMLのパースに失敗")
	}
	if settings.CalibrationTimeout != "" {
		d, err := time.ParseDuration(settings.CalibrationTimeout)
		if err != nil || d <= 0 {
			return nil, errors.Errorf("calibration_timeout %q is not a positive duration", settings.CalibrationTimeout)
		}
	}
	return &settings, nil
}

// applyTo overrides cfg with every non-zero value in the file.
func (s *EngineSettings) applyTo(cfg *Config) {
	if s.IRT.MaxIterations > 0 {
		cfg.Engine.MaxIterations = s.IRT.MaxIterations
	}
	if s.IRT.Tolerance > 0 {
		cfg.Engine.Tolerance = s.IRT.Tolerance
	}
	if s.IRT.ThetaBound > 0 {
		cfg.Engine.ThetaBound = s.IRT.ThetaBound
	}
	if s.IRT.DifficultyBound > 0 {
		cfg.Engine.DifficultyBound = s.IRT.DifficultyBound
	}
	if s.IRT.ConfidenceZ > 0 {
		cfg.Engine.ConfidenceZ = s.IRT.ConfidenceZ
	}
	if d, err := time.ParseDuration(s.CalibrationTimeout); err == nil && d > 0 {
		cfg.CalibrationTimeout = d
	}
}
