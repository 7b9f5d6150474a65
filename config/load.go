package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Keys double as environment variable names (AutomaticEnv upper-cases them)
// and as dotenv entries.
const (
	keyEmail           = "baldoremail"
	keyPassword        = "baldorpassword"
	keyProxies         = "royalproxies"
	keyProxyBoundary   = "scraper_proxy_boundary"
	keyBaseURL         = "scraper_base_url"
	keyAPIBaseURL      = "scraper_api_base_url"
	keyLoginPath       = "scraper_login_path"
	keyConcurrency     = "scraper_concurrency"
	keyCoolDown        = "scraper_cool_down"
	keyPageSize        = "scraper_page_size"
	keyTimeout         = "scraper_timeout"
	keyLoginTimeout    = "scraper_login_timeout"
	keyHeadless        = "scraper_headless"
	keyFailFast        = "scraper_fail_fast"
	keyStrictDiscovery = "scraper_strict_discovery"
	keyRawStore        = "scraper_raw_store"
	keyOutput          = "scraper_output"
	keyFormat          = "scraper_format"
	keyUserAgent       = "scraper_user_agent"
	keyBufferSize      = "scraper_buffer_size"
	keyBatchSize       = "scraper_batch_size"
	keyDedupeMaxSize   = "scraper_dedupe_max_size"
	keyMetricsAddr     = "scraper_metrics_addr"
	keyVerbose         = "scraper_verbose"
)

// flagKeys maps CLI flag names onto configuration keys.
var flagKeys = map[string]string{
	"base-url":         keyBaseURL,
	"api-base-url":     keyAPIBaseURL,
	"concurrency":      keyConcurrency,
	"cool-down":        keyCoolDown,
	"page-size":        keyPageSize,
	"timeout":          keyTimeout,
	"login-timeout":    keyLoginTimeout,
	"headless":         keyHeadless,
	"fail-fast":        keyFailFast,
	"strict-discovery": keyStrictDiscovery,
	"proxy-boundary":   keyProxyBoundary,
	"raw-store":        keyRawStore,
	"output":           keyOutput,
	"format":           keyFormat,
	"user-agent":       keyUserAgent,
	"metrics-addr":     keyMetricsAddr,
	"verbose":          keyVerbose,
}

// Load builds a Config from defaults, an optional dotenv file, the process
// environment and, with the highest precedence, flags the user set.
func Load(envFile string, flags *pflag.FlagSet) (*Config, error) {
	d := DefaultConfig()
	v := viper.New()

	v.SetDefault(keyEmail, "")
	v.SetDefault(keyPassword, "")
	v.SetDefault(keyProxies, "")
	v.SetDefault(keyProxyBoundary, d.ProxyBoundary)
	v.SetDefault(keyBaseURL, d.BaseURL)
	v.SetDefault(keyAPIBaseURL, d.APIBaseURL)
	v.SetDefault(keyLoginPath, d.LoginPath)
	v.SetDefault(keyConcurrency, d.Concurrency)
	v.SetDefault(keyCoolDown, d.CoolDown)
	v.SetDefault(keyPageSize, d.PageSize)
	v.SetDefault(keyTimeout, d.Timeout)
	v.SetDefault(keyLoginTimeout, d.LoginTimeout)
	v.SetDefault(keyHeadless, d.Headless)
	v.SetDefault(keyFailFast, d.FailFast)
	v.SetDefault(keyStrictDiscovery, d.StrictDiscovery)
	v.SetDefault(keyRawStore, d.RawStorePath)
	v.SetDefault(keyOutput, d.OutputFile)
	v.SetDefault(keyFormat, d.OutputFormat)
	v.SetDefault(keyUserAgent, d.UserAgent)
	v.SetDefault(keyBufferSize, d.PipelineBufferSize)
	v.SetDefault(keyBatchSize, d.BatchSize)
	v.SetDefault(keyDedupeMaxSize, d.DedupeMaxSize)
	v.SetDefault(keyMetricsAddr, d.MetricsAddr)
	v.SetDefault(keyVerbose, d.Verbose)

	v.AutomaticEnv()

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read env file %s: %w", envFile, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat env file %s: %w", envFile, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{
		BaseURL:            v.GetString(keyBaseURL),
		APIBaseURL:         v.GetString(keyAPIBaseURL),
		LoginPath:          v.GetString(keyLoginPath),
		Email:              v.GetString(keyEmail),
		Password:           v.GetString(keyPassword),
		Proxies:            SplitList(v.GetString(keyProxies)),
		ProxyBoundary:      v.GetInt(keyProxyBoundary),
		Concurrency:        v.GetInt(keyConcurrency),
		CoolDown:           v.GetDuration(keyCoolDown),
		PageSize:           v.GetInt(keyPageSize),
		Timeout:            v.GetDuration(keyTimeout),
		LoginTimeout:       v.GetDuration(keyLoginTimeout),
		Headless:           v.GetBool(keyHeadless),
		FailFast:           v.GetBool(keyFailFast),
		StrictDiscovery:    v.GetBool(keyStrictDiscovery),
		RawStorePath:       v.GetString(keyRawStore),
		OutputFile:         v.GetString(keyOutput),
		OutputFormat:       v.GetString(keyFormat),
		UserAgent:          v.GetString(keyUserAgent),
		PipelineBufferSize: v.GetInt(keyBufferSize),
		BatchSize:          v.GetInt(keyBatchSize),
		DedupeMaxSize:      v.GetInt(keyDedupeMaxSize),
		MetricsAddr:        v.GetString(keyMetricsAddr),
		Verbose:            v.GetBool(keyVerbose),
	}
	return cfg, nil
}
