package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default().Directory, cfg.Directory)
	require.Equal(t, DefaultPrefixes, cfg.ETL.GroupPrefixes)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
directory:
  base_url: http://rozklad.example.org
  timeout: 5s
etl:
  max_concurrency: 3
  group_prefixes: ["ІП", "ІС"]
redis:
  addr: localhost:6379
  cache_ttl: 1h
schedule:
  cron: "*/30 * * * *"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "http://rozklad.example.org", cfg.Directory.BaseURL)
	require.Equal(t, 5*time.Second, cfg.Directory.Timeout)
	require.Equal(t, 3, cfg.ETL.MaxConcurrency)
	require.Equal(t, []string{"ІП", "ІС"}, cfg.ETL.GroupPrefixes)
	require.Equal(t, DefaultPrefixes, cfg.ETL.TeacherPrefixes)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, time.Hour, cfg.Redis.CacheTTL)
	require.Equal(t, "*/30 * * * *", cfg.Schedule.Cron)

	// untouched sections keep their defaults
	require.Equal(t, Default().Directory.UserAgent, cfg.Directory.UserAgent)
	require.Equal(t, Default().ETL.ChunkSize, cfg.ETL.ChunkSize)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "malformed yaml", content: "directory: [unclosed"},
		{name: "invalid base url", content: "directory:\n  base_url: not a url\n"},
		{name: "negative concurrency", content: "etl:\n  max_concurrency: -2\n"},
		{name: "invalid cron", content: "schedule:\n  cron: every morning\n"},
		{name: "unknown log level", content: "logging:\n  level: verbose\n"},
		{name: "empty prefix", content: "etl:\n  group_prefixes: [\"ІП\", \"\"]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SCHEDULE_ETL_BASE_URL":         "http://localhost:8080",
		"SCHEDULE_ETL_REDIS_ADDR":       "redis:6379",
		"SCHEDULE_ETL_MAX_CONCURRENCY":  "16",
		"SCHEDULE_ETL_GROUP_PREFIXES":   "ІП, ІС ,,КМ",
		"SCHEDULE_ETL_TEACHER_PREFIXES": "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, applyEnv(&cfg, lookup))

	require.Equal(t, "http://localhost:8080", cfg.Directory.BaseURL)
	require.Equal(t, "redis:6379", cfg.Redis.Addr)
	require.Equal(t, 16, cfg.ETL.MaxConcurrency)
	require.Equal(t, []string{"ІП", "ІС", "КМ"}, cfg.ETL.GroupPrefixes)
	require.Equal(t, DefaultPrefixes, cfg.ETL.TeacherPrefixes)

	env["SCHEDULE_ETL_CHUNK_SIZE"] = "four"
	require.Error(t, applyEnv(&cfg, lookup))
}

func TestValidate_NeedsSomePrefixes(t *testing.T) {
	cfg := Default()
	cfg.ETL.GroupPrefixes = nil
	cfg.ETL.TeacherPrefixes = nil
	require.Error(t, cfg.Validate())

	cfg.ETL.TeacherPrefixes = []string{"К"}
	require.NoError(t, cfg.Validate())
}

func TestDerivedConfigs(t *testing.T) {
	cfg := Default()
	cfg.Directory.MaxRetries = 5
	cfg.Directory.FailureBudget = 42

	cc := cfg.ClientConfig()
	require.Equal(t, cfg.Directory.BaseURL, cc.BaseURL)
	require.Equal(t, 5, cc.Retry.MaxAttempts)
	require.Equal(t, 42, cc.Budget.Budget)
	require.Equal(t, cfg.Redis.CacheTTL, cc.CacheTTL)

	require.Equal(t, cfg.ETL.MaxConcurrency, cfg.PipelineConfig().MaxConcurrency)
	require.Equal(t, "schedules.db", cfg.StoreConfig().File)
	require.Equal(t, "info", string(cfg.LoggerConfig().Level))
}

func TestLocation(t *testing.T) {
	cfg := Default()
	loc, err := cfg.Location()
	require.NoError(t, err)
	require.Equal(t, time.Local, loc)

	cfg.Schedule.Timezone = "UTC"
	loc, err = cfg.Location()
	require.NoError(t, err)
	require.Equal(t, time.UTC, loc)

	cfg.Schedule.Timezone = "Mars/Olympus_Mons"
	require.Error(t, cfg.Validate())
}
