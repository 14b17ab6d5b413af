package services

// IRTOptions 反復推定の設定
type IRTOptions struct {
	MaxIterations   int     `yaml:"max_iterations"`   // 最大反復回数
	Tolerance       float64 `yaml:"tolerance"`        // 収束判定（対数尤度の変化量 / θの更新量）
	ThetaBound      float64 `yaml:"theta_bound"`      // |θ| の上限
	DifficultyBound float64 `yaml:"difficulty_bound"` // |b| の上限（推定不能項目のフォールバック値）
	ConfidenceZ     float64 `yaml:"confidence_z"`     // 信頼区間の z 値
}

// DefaultIRTOptions returns the engine defaults.
func DefaultIRTOptions() IRTOptions {
	return IRTOptions{
		MaxIterations:   100,
		Tolerance:       1e-4,
		ThetaBound:      4,
		DifficultyBound: 4,
		ConfidenceZ:     1.96,
	}
}

// withDefaults replaces zero or negative fields with the defaults.
func (o IRTOptions) withDefaults() IRTOptions {
	d := DefaultIRTOptions()
	if o.MaxIterations <= 0 {
		o.MaxIterations = d.MaxIterations
	}
	if o.Tolerance <= 0 {
		o.Tolerance = d.Tolerance
	}
	if o.ThetaBound <= 0 {
		o.ThetaBound = d.ThetaBound
	}
	if o.DifficultyBound <= 0 {
		o.DifficultyBound = d.DifficultyBound
	}
	if o.ConfidenceZ <= 0 {
		o.ConfidenceZ = d.ConfidenceZ
	}
	return o
}

// IRTService 項目反応理論（IRT）による項目較正・能力推定サービス
// Options are immutable after construction, so one service can serve concurrent requests.
type IRTService struct {
	opts IRTOptions
}

// NewIRTService 新しいIRTサービスを作成
func NewIRTService(opts IRTOptions) *IRTService {
	return &IRTService{opts: opts.withDefaults()}
}

// Options returns the effective options.
func (s *IRTService) Options() IRTOptions {
	return s.opts
}
