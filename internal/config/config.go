// Package config loads application configuration from file and
// environment and initializes the global logger.
package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Resolver ResolverConfig `yaml:"resolver" mapstructure:"resolver"`
	Cohort   CohortConfig   `yaml:"cohort" mapstructure:"cohort"`
	Rating   RatingConfig   `yaml:"rating" mapstructure:"rating"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ResolverConfig holds the identity resolver tunables. The acceptance
// threshold and ambiguity margin are deliberately configuration, not
// constants: the source material never fixes them, so they are tuned
// empirically against real division exports.
type ResolverConfig struct {
	AcceptThreshold float64  `yaml:"accept_threshold" mapstructure:"accept_threshold"`
	AmbiguityMargin float64  `yaml:"ambiguity_margin" mapstructure:"ambiguity_margin"`
	ExtraNoiseWords []string `yaml:"extra_noise_words" mapstructure:"extra_noise_words"`
}

// CohortConfig holds the classifier weights and season mapping.
type CohortConfig struct {
	NameTokenWeight    float64 `yaml:"name_token_weight" mapstructure:"name_token_weight"`
	DivisionWeight     float64 `yaml:"division_weight" mapstructure:"division_weight"`
	CoOccurrenceWeight float64 `yaml:"co_occurrence_weight" mapstructure:"co_occurrence_weight"`
	StickyConfidence   float64 `yaml:"sticky_confidence" mapstructure:"sticky_confidence"`
	// SeasonYear converts U-age labels to birth years: U8 in the 2026
	// season means birth year 2018.
	SeasonYear int `yaml:"season_year" mapstructure:"season_year"`
	// RulesPath points at an optional YAML file mapping division label
	// patterns to cohorts.
	RulesPath string `yaml:"rules_path" mapstructure:"rules_path"`
}

// RatingConfig holds the rating calculator tunables.
type RatingConfig struct {
	MinGames int `yaml:"min_games" mapstructure:"min_games"`
}

// ServerConfig configures the read-only query API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	RatePerSecond  float64  `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	RateBurst      int      `yaml:"rate_burst" mapstructure:"rate_burst"`
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
	v.SetEnvPrefix("DSX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "dsx.db")
	v.SetDefault("resolver.accept_threshold", 0.78)
	v.SetDefault("resolver.ambiguity_margin", 0.06)
	v.SetDefault("cohort.name_token_weight", 0.6)
	v.SetDefault("cohort.division_weight", 0.3)
	v.SetDefault("cohort.co_occurrence_weight", 0.1)
	v.SetDefault("cohort.sticky_confidence", 0.6)
	v.SetDefault("cohort.season_year", 2026)
	v.SetDefault("rating.min_games", 3)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_per_second", 25.0)
	v.SetDefault("server.rate_burst", 50)
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

// Validate checks the loaded configuration for values that would make a
// pass or the query API misbehave silently.
func (c *Config) Validate() error {
	var problems []string

	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		problems = append(problems, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	if c.Resolver.AcceptThreshold <= 0 || c.Resolver.AcceptThreshold > 1 {
		problems = append(problems, "resolver.accept_threshold must be in (0, 1]")
	}
	if c.Resolver.AmbiguityMargin < 0 || c.Resolver.AmbiguityMargin >= c.Resolver.AcceptThreshold {
		problems = append(problems, "resolver.ambiguity_margin must be >= 0 and below the accept threshold")
	}
	for name, w := range map[string]float64{
		"cohort.name_token_weight":    c.Cohort.NameTokenWeight,
		"cohort.division_weight":      c.Cohort.DivisionWeight,
		"cohort.co_occurrence_weight": c.Cohort.CoOccurrenceWeight,
	} {
		if w < 0 {
			problems = append(problems, name+" must be >= 0")
		}
	}
	if c.Cohort.SeasonYear < 2000 {
		problems = append(problems, "cohort.season_year must be a four-digit year")
	}
	if c.Rating.MinGames < 0 {
		problems = append(problems, "rating.min_games must be >= 0")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, "server.port must be between 1 and 65535")
	}
	if c.Server.RatePerSecond <= 0 || c.Server.RateBurst <= 0 {
		problems = append(problems, "server.rate_per_second and server.rate_burst must be > 0")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
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
