package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Completion CompletionConfig `yaml:"completion" mapstructure:"completion"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url" validate:"required"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns" validate:"gte=0"`
}

// CompletionConfig configures the completion client.
type CompletionConfig struct {
	Provider    string `yaml:"provider" mapstructure:"provider" validate:"oneof=langdock anthropic"`
	APIKey      string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Region      string `yaml:"region" mapstructure:"region"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries" validate:"gte=1"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gte=1"`
}

// AnthropicConfig holds Anthropic API settings, used when
// completion.provider is "anthropic".
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// SearchConfig configures the web search client.
type SearchConfig struct {
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gte=1"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec" validate:"gt=0"`
	BreakerThreshold int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// FetchConfig configures page fetching for the website, LinkedIn and Kununu
// sources.
type FetchConfig struct {
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gte=1"`
	MaxBytes       int64   `yaml:"max_bytes" mapstructure:"max_bytes" validate:"gte=1"`
	UserAgent      string  `yaml:"user_agent" mapstructure:"user_agent"`
	AcceptLanguage string  `yaml:"accept_language" mapstructure:"accept_language"`
	RatePerSec     float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec" validate:"gt=0"`
}

// BatchConfig configures fetch-all.
type BatchConfig struct {
	MaxConcurrentCompanies int `yaml:"max_concurrent_companies" mapstructure:"max_concurrent_companies" validate:"gte=1,lte=50"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// LoadDotEnv loads KEY=value pairs from path into the environment without
// overriding variables that are already set. A missing file is ignored.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return eris.Wrapf(err, "config: load %s", path)
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("AXIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "axia.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("completion.provider", "langdock")
	v.SetDefault("completion.api_key", "")
	v.SetDefault("completion.base_url", "https://api.langdock.com")
	v.SetDefault("completion.region", "eu")
	v.SetDefault("completion.model", "gpt-4o")
	v.SetDefault("completion.max_retries", 3)
	v.SetDefault("completion.timeout_secs", 120)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("search.base_url", "https://html.duckduckgo.com/html/")
	v.SetDefault("search.timeout_secs", 15)
	v.SetDefault("search.rate_per_sec", 1.0)
	v.SetDefault("search.breaker_threshold", 5)
	v.SetDefault("search.breaker_reset_secs", 30)
	v.SetDefault("fetch.timeout_secs", 15)
	v.SetDefault("fetch.max_bytes", 100_000)
	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("fetch.accept_language", "")
	v.SetDefault("fetch.rate_per_sec", 5.0)
	v.SetDefault("batch.max_concurrent_companies", 5)
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

// Command groups for Validate.
const (
	ModeFetch   = "fetch"
	ModeAnalyze = "analyze"
	ModeStore   = "store"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
	})
	return v
}

// Validate checks the sections a command group needs. Every command needs
// the store and log sections.
func (c *Config) Validate(mode string) error {
	sections := []any{c.Store, c.Log}
	switch mode {
	case ModeStore:
	case ModeFetch:
		sections = append(sections, c.Search, c.Fetch, c.Batch)
	case ModeAnalyze:
		sections = append(sections, c.Completion)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	var problems []string
	for _, s := range sections {
		problems = append(problems, fieldProblems(sectionName(s), validate.Struct(s))...)
	}
	if mode == ModeAnalyze {
		problems = append(problems, c.credentialProblems()...)
	}
	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// credentialProblems reports the missing credentials of the selected
// completion provider.
func (c *Config) credentialProblems() []string {
	var out []string
	switch c.Completion.Provider {
	case "anthropic":
		if c.Anthropic.Key == "" && c.Completion.APIKey == "" {
			out = append(out, "anthropic.key is required")
		}
	default:
		if c.Completion.APIKey == "" {
			out = append(out, "completion.api_key is required")
		}
		if c.Completion.BaseURL == "" {
			out = append(out, "completion.base_url is required")
		}
		if c.Completion.Model == "" {
			out = append(out, "completion.model is required")
		}
	}
	return out
}

func sectionName(s any) string {
	switch s.(type) {
	case StoreConfig:
		return "store"
	case CompletionConfig:
		return "completion"
	case SearchConfig:
		return "search"
	case FetchConfig:
		return "fetch"
	case BatchConfig:
		return "batch"
	case LogConfig:
		return "log"
	}
	return "config"
}

func fieldProblems(section string, err error) []string {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := section + "." + fe.Field()
		switch fe.Tag() {
		case "required":
			out = append(out, key+" is required")
		case "oneof":
			out = append(out, fmt.Sprintf("%s must be one of [%s]", key, fe.Param()))
		case "gt", "gte", "lte":
			out = append(out, fmt.Sprintf("%s must be %s %s", key, fe.Tag(), fe.Param()))
		default:
			out = append(out, fmt.Sprintf("%s is invalid (%s)", key, fe.Tag()))
		}
	}
	return out
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
