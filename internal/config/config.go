// Package config loads the ETL configuration from YAML, environment
// variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	yaml "go.yaml.in/yaml/v3"

	"github.com/Sternrassler/kpi-schedule-etl/pkg/client"
	"github.com/Sternrassler/kpi-schedule-etl/pkg/etl"
	"github.com/Sternrassler/kpi-schedule-etl/pkg/logging"
	"github.com/Sternrassler/kpi-schedule-etl/pkg/ratelimit"
	"github.com/Sternrassler/kpi-schedule-etl/pkg/store"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SCHEDULE_ETL_"

// Config is the complete ETL configuration.
type Config struct {
	Directory DirectoryConfig `yaml:"directory"`
	ETL       ETLConfig       `yaml:"etl"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
}

// DirectoryConfig configures the timetable site client.
type DirectoryConfig struct {
	BaseURL       string        `yaml:"base_url" validate:"required,url"`
	UserAgent     string        `yaml:"user_agent" validate:"required"`
	Timeout       time.Duration `yaml:"timeout" validate:"gt=0"`
	RatePerSecond float64       `yaml:"rate_per_sec" validate:"gt=0"`
	Burst         int           `yaml:"burst" validate:"gte=1"`
	MaxRetries    int           `yaml:"max_retries" validate:"gte=1,lte=10"`
	ListCount     int           `yaml:"list_count" validate:"gte=1,lte=1000"`
	FailureBudget int           `yaml:"failure_budget" validate:"gte=1"`
	BudgetWindow  time.Duration `yaml:"budget_window" validate:"gt=0"`
}

// ETLConfig configures the pipeline and chunking.
type ETLConfig struct {
	MaxConcurrency  int      `yaml:"max_concurrency" validate:"gte=1"`
	ChunkSize       int      `yaml:"chunk_size" validate:"gte=1"`
	GroupPrefixes   []string `yaml:"group_prefixes" validate:"dive,required"`
	TeacherPrefixes []string `yaml:"teacher_prefixes" validate:"dive,required"`
}

// StorageConfig selects the database.
type StorageConfig struct {
	File      string `yaml:"file" validate:"required_without=URL"`
	URL       string `yaml:"url" validate:"omitempty,url"`
	AuthToken string `yaml:"auth_token"`
}

// RedisConfig enables the page cache and the shared failure budget.
// An empty Addr disables both.
type RedisConfig struct {
	Addr     string        `yaml:"addr" validate:"omitempty,hostname_port"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	CacheTTL time.Duration `yaml:"cache_ttl" validate:"gte=0"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Pretty bool   `yaml:"pretty"`
}

// MetricsConfig configures the /metrics and /health listener of serve.
type MetricsConfig struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// ScheduleConfig configures periodic harvesting.
type ScheduleConfig struct {
	Cron string `yaml:"cron" validate:"required"`

	// Timezone is an IANA zone name for Cron; empty means the local zone.
	Timezone string `yaml:"timezone"`
}

// DefaultPrefixes are the first letters of group codes and lecturer surnames.
var DefaultPrefixes = strings.Split("А Б В Г Д Е Є Ж З И І Ї Й К Л М Н О П Р С Т У Ф Х Ц Ч Ш Щ Ю Я", " ")

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Directory: DirectoryConfig{
			BaseURL:       "http://rozklad.kpi.ua",
			UserAgent:     "kpi-schedule-etl/1.0",
			Timeout:       30 * time.Second,
			RatePerSecond: 10,
			Burst:         10,
			MaxRetries:    3,
			ListCount:     100,
			FailureBudget: 100,
			BudgetWindow:  time.Minute,
		},
		ETL: ETLConfig{
			MaxConcurrency:  etl.DefaultPipelineConfig().MaxConcurrency,
			ChunkSize:       4,
			GroupPrefixes:   append([]string(nil), DefaultPrefixes...),
			TeacherPrefixes: append([]string(nil), DefaultPrefixes...),
		},
		Storage: StorageConfig{
			File: "schedules.db",
		},
		Redis: RedisConfig{
			CacheTTL: 6 * time.Hour,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		Schedule: ScheduleConfig{
			Cron: "0 3 * * *",
		},
	}
}

// Load reads path (optional) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		var fromFile Config
		if err := yaml.Unmarshal(data, &fromFile); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		// lists replace the defaults instead of being appended to
		if err := mergo.Merge(&cfg, fromFile, mergo.WithOverride); err != nil {
			return Config{}, fmt.Errorf("merge config: %w", err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct tags and the cross-field rules.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if len(c.ETL.GroupPrefixes) == 0 && len(c.ETL.TeacherPrefixes) == 0 {
		return errors.New("invalid config: etl needs group_prefixes or teacher_prefixes")
	}
	if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
		return fmt.Errorf("invalid config: schedule.cron: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid config: schedule.timezone: %w", err)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Location returns the zone the cron schedule is evaluated in.
func (c Config) Location() (*time.Location, error) {
	if c.Schedule.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Schedule.Timezone)
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = splitList(v)
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("BASE_URL", &cfg.Directory.BaseURL)
	str("USER_AGENT", &cfg.Directory.UserAgent)
	str("DB_FILE", &cfg.Storage.File)
	str("DB_URL", &cfg.Storage.URL)
	str("DB_AUTH_TOKEN", &cfg.Storage.AuthToken)
	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("METRICS_ADDR", &cfg.Metrics.Addr)
	str("CRON", &cfg.Schedule.Cron)
	str("TIMEZONE", &cfg.Schedule.Timezone)
	list("GROUP_PREFIXES", &cfg.ETL.GroupPrefixes)
	list("TEACHER_PREFIXES", &cfg.ETL.TeacherPrefixes)

	if err := num("MAX_CONCURRENCY", &cfg.ETL.MaxConcurrency); err != nil {
		return err
	}
	return num("CHUNK_SIZE", &cfg.ETL.ChunkSize)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ClientConfig builds the timetable client configuration. The Redis
// client is attached by the caller.
func (c Config) ClientConfig() client.Config {
	cc := client.DefaultConfig(c.Directory.BaseURL)
	cc.UserAgent = c.Directory.UserAgent
	cc.Timeout = c.Directory.Timeout
	cc.RatePerSecond = c.Directory.RatePerSecond
	cc.Burst = c.Directory.Burst
	cc.ListCount = c.Directory.ListCount
	cc.Retry.MaxAttempts = c.Directory.MaxRetries
	cc.CacheTTL = c.Redis.CacheTTL
	cc.Budget = ratelimit.Config{
		Budget:        c.Directory.FailureBudget,
		Window:        c.Directory.BudgetWindow,
		ThrottleDelay: ratelimit.DefaultConfig().ThrottleDelay,
	}
	return cc
}

// PipelineConfig builds the pipeline configuration.
func (c Config) PipelineConfig() etl.PipelineConfig {
	return etl.PipelineConfig{MaxConcurrency: c.ETL.MaxConcurrency}
}

// StoreConfig builds the storage configuration.
func (c Config) StoreConfig() store.Config {
	return store.Config{
		File:      c.Storage.File,
		URL:       c.Storage.URL,
		AuthToken: c.Storage.AuthToken,
	}
}

// LoggerConfig builds the logger configuration.
func (c Config) LoggerConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Logging.Level)
	cfg.Pretty = c.Logging.Pretty
	return cfg
}
