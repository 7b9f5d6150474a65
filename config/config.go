package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// MaxPageSize is the largest page the product API serves in one response.
const MaxPageSize = 2000

// Config holds scraper configuration.
type Config struct {
	BaseURL            string
	APIBaseURL         string
	LoginPath          string
	Email              string
	Password           string
	Proxies            []string
	ProxyBoundary      int
	Concurrency        int
	CoolDown           time.Duration
	PageSize           int
	Timeout            time.Duration
	LoginTimeout       time.Duration
	Headless           bool
	FailFast           bool
	StrictDiscovery    bool
	RawStorePath       string
	OutputFile         string
	OutputFormat       string // csv, json, or dual
	UserAgent          string
	PipelineBufferSize int
	BatchSize          int
	DedupeMaxSize      int
	MetricsAddr        string
	Verbose            bool
}

// DefaultConfig returns the settings the catalog scrape was tuned with.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "https://www.baldorfood.com/",
		APIBaseURL:         "https://www.baldorfood.com/api/products",
		LoginPath:          "/users/default/new-login",
		Concurrency:        4,
		CoolDown:           time.Second,
		PageSize:           MaxPageSize,
		Timeout:            120 * time.Second,
		LoginTimeout:       15 * time.Second,
		Headless:           true,
		FailFast:           true,
		RawStorePath:       "baldorfood.db",
		OutputFile:         "result/products.csv",
		OutputFormat:       "csv",
		UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		PipelineBufferSize: 512,
		BatchSize:          64,
		DedupeMaxSize:      100000,
	}
}

// LoginURL resolves the login path against the base URL.
func (c *Config) LoginURL() (string, error) {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(c.LoginPath)
	if err != nil {
		return "", fmt.Errorf("parse login path: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if err := validateURL("base URL", c.BaseURL); err != nil {
		return err
	}
	if err := validateURL("API base URL", c.APIBaseURL); err != nil {
		return err
	}
	if c.LoginPath == "" {
		return fmt.Errorf("login path cannot be empty")
	}
	for i, p := range c.Proxies {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("proxy %d is empty", i)
		}
	}
	if c.ProxyBoundary < 0 {
		return fmt.Errorf("proxy boundary cannot be negative")
	}
	if c.ProxyBoundary > len(c.Proxies) {
		return fmt.Errorf("proxy boundary (%d) cannot exceed the proxy pool size (%d)", c.ProxyBoundary, len(c.Proxies))
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.CoolDown < 0 {
		return fmt.Errorf("cool-down cannot be negative")
	}
	if c.PageSize <= 0 || c.PageSize > MaxPageSize {
		return fmt.Errorf("page size must be between 1 and %d", MaxPageSize)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.LoginTimeout <= 0 {
		return fmt.Errorf("login timeout must be positive")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	return nil
}

// ValidateCredentials reports whether a browser login can be attempted.
func (c *Config) ValidateCredentials() error {
	if c.Email == "" {
		return fmt.Errorf("account email is not set (BALDOREMAIL)")
	}
	if c.Password == "" {
		return fmt.Errorf("account password is not set (BALDORPASSWORD)")
	}
	return nil
}

func validateURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}

// SplitList splits a comma-separated setting, dropping blanks.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
