package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Score  ScoreConfig  `yaml:"score" mapstructure:"score"`
	Geo    GeoConfig    `yaml:"geo" mapstructure:"geo"`
	Dedup  DedupConfig  `yaml:"dedup" mapstructure:"dedup"`
	Worker WorkerConfig `yaml:"worker" mapstructure:"worker"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ScoreConfig holds the pairwise scoring weights and curve parameters.
// Weights must sum to 1.0.
type ScoreConfig struct {
	CoordinateWeight float64 `yaml:"coordinate_weight" mapstructure:"coordinate_weight"`
	AddressWeight    float64 `yaml:"address_weight" mapstructure:"address_weight"`
	FeaturesWeight   float64 `yaml:"features_weight" mapstructure:"features_weight"`

	// CoordinateDecayM is the distance in meters at which the coordinate
	// score reaches zero.
	CoordinateDecayM float64 `yaml:"coordinate_decay_m" mapstructure:"coordinate_decay_m"`

	// SizeTolerance is the relative size difference treated as identical.
	// SizeZero is the relative difference at which the size score hits 0;
	// it matches the hard-reject bound so scored pairs degrade smoothly.
	SizeTolerance float64 `yaml:"size_tolerance" mapstructure:"size_tolerance"`
	SizeZero      float64 `yaml:"size_zero" mapstructure:"size_zero"`
}

// GeoConfig configures the nearby-listing search.
type GeoConfig struct {
	// RadiusM bounds the candidate search to roughly city-block scale.
	RadiusM       float64 `yaml:"radius_m" mapstructure:"radius_m"`
	MaxCandidates int     `yaml:"max_candidates" mapstructure:"max_candidates"`
}

// DedupConfig holds candidate derivation thresholds and hard-reject bounds.
type DedupConfig struct {
	ConfirmThreshold float64 `yaml:"confirm_threshold" mapstructure:"confirm_threshold"`
	ReviewThreshold  float64 `yaml:"review_threshold" mapstructure:"review_threshold"`

	// MaxPriceDiff is relative to the lower of the two prices.
	// MaxSizeDiff is relative to the smaller of the two sizes.
	MaxPriceDiff float64 `yaml:"max_price_diff" mapstructure:"max_price_diff"`
	MaxSizeDiff  float64 `yaml:"max_size_diff" mapstructure:"max_size_diff"`
}

// WorkerConfig configures the listing processing pool and scheduler.
type WorkerConfig struct {
	Concurrency     int     `yaml:"concurrency" mapstructure:"concurrency"`
	BatchSize       int     `yaml:"batch_size" mapstructure:"batch_size"`
	RatePerSecond   float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	SweepSchedule   string  `yaml:"sweep_schedule" mapstructure:"sweep_schedule"`
	RequeueSchedule string  `yaml:"requeue_schedule" mapstructure:"requeue_schedule"`

	// WaitingMaxAgeSecs is how long a Waiting listing sits before the
	// scheduler re-queues it for another pass.
	WaitingMaxAgeSecs int `yaml:"waiting_max_age_secs" mapstructure:"waiting_max_age_secs"`
}

// ServerConfig configures the review API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DEDUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key needs one so AutomaticEnv can bind it during
	// Unmarshal.
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("score.coordinate_weight", 0.20)
	v.SetDefault("score.address_weight", 0.15)
	v.SetDefault("score.features_weight", 0.65)
	v.SetDefault("score.coordinate_decay_m", 200.0)
	v.SetDefault("score.size_tolerance", 0.05)
	v.SetDefault("score.size_zero", 0.15)
	v.SetDefault("geo.radius_m", 150.0)
	v.SetDefault("geo.max_candidates", 50)
	v.SetDefault("dedup.confirm_threshold", 0.92)
	v.SetDefault("dedup.review_threshold", 0.65)
	v.SetDefault("dedup.max_price_diff", 0.20)
	v.SetDefault("dedup.max_size_diff", 0.15)
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.batch_size", 50)
	v.SetDefault("worker.rate_per_second", 20.0)
	v.SetDefault("worker.sweep_schedule", "@every 30s")
	v.SetDefault("worker.requeue_schedule", "@every 5m")
	v.SetDefault("worker.waiting_max_age_secs", 300)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
