package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "zero concurrency",
			mutate: func(cfg *Config) {
				cfg.Concurrency = 0
			},
			wantErr: "concurrency",
		},
		{
			name: "page size above api cap",
			mutate: func(cfg *Config) {
				cfg.PageSize = MaxPageSize + 1
			},
			wantErr: "page size",
		},
		{
			name: "empty base url",
			mutate: func(cfg *Config) {
				cfg.BaseURL = ""
			},
			wantErr: "base URL",
		},
		{
			name: "invalid api url format",
			mutate: func(cfg *Config) {
				cfg.APIBaseURL = "http://"
			},
			wantErr: "API base URL",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "negative cool-down",
			mutate: func(cfg *Config) {
				cfg.CoolDown = -time.Second
			},
			wantErr: "cool-down",
		},
		{
			name: "boundary larger than pool",
			mutate: func(cfg *Config) {
				cfg.Proxies = []string{"10.0.0.1:8000", "10.0.0.2:8000"}
				cfg.ProxyBoundary = 20
			},
			wantErr: "proxy boundary",
		},
		{
			name: "unknown format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "xml"
			},
			wantErr: "output format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidateCredentials(t *testing.T) {
	cfg := DefaultConfig()
	assert.ErrorContains(t, cfg.ValidateCredentials(), "BALDOREMAIL")

	cfg.Email = "buyer@example.test"
	assert.ErrorContains(t, cfg.ValidateCredentials(), "BALDORPASSWORD")

	cfg.Password = "secret"
	assert.NoError(t, cfg.ValidateCredentials())
}

func TestLoginURL(t *testing.T) {
	cfg := DefaultConfig()
	got, err := cfg.LoginURL()
	require.NoError(t, err)
	assert.Equal(t, "https://www.baldorfood.com/users/default/new-login", got)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a:1", "b:2"}, SplitList(" a:1 ,, b:2 ,"))
	assert.Nil(t, SplitList(""))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadEnvFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "BALDOREMAIL=buyer@example.test\n" +
		"BALDORPASSWORD=secret\n" +
		"ROYALPROXIES=10.0.0.1:8000,10.0.0.2:8000\n" +
		"SCRAPER_CONCURRENCY=2\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))

	t.Setenv("SCRAPER_CONCURRENCY", "8")
	t.Setenv("SCRAPER_COOL_DOWN", "250ms")

	cfg, err := Load(envFile, nil)
	require.NoError(t, err)

	assert.Equal(t, "buyer@example.test", cfg.Email)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, []string{"10.0.0.1:8000", "10.0.0.2:8000"}, cfg.Proxies)
	assert.Equal(t, 8, cfg.Concurrency, "environment wins over the env file")
	assert.Equal(t, 250*time.Millisecond, cfg.CoolDown)
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"), nil)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Concurrency)
}

func TestLoadFlagsOverride(t *testing.T) {
	t.Setenv("SCRAPER_CONCURRENCY", "8")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("concurrency", 4, "")
	flags.String("format", "csv", "")
	require.NoError(t, flags.Parse([]string{"--concurrency=1"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Concurrency)
	assert.Equal(t, "csv", cfg.OutputFormat)
}
