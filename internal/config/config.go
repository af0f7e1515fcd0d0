package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultURL      = "https://api.capgo.app/private/events"
	DefaultCapgKey  = "your-capgkey-here"
	DefaultTimeout  = 10 * time.Second
	DefaultRetries  = 3
	DefaultLogLevel = "info"

	// maxRetries keeps the worst-case run time of a probe in the minutes range.
	maxRetries = 10
)

// Stub modes understood by the local ingest server.
const (
	StubModeOK        = "ok"
	StubModeStatus    = "status"
	StubModeMalformed = "malformed"
	StubModeHang      = "hang"
)

// Config contains runtime configuration for the probe and the stub server.
type Config struct {
	URL          string
	CapgKey      string
	Timeout      time.Duration // per attempt
	Retries      int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	LogLevel     string
	Stub         StubConfig
}

// StubConfig configures the local stand-in for the events endpoint.
type StubConfig struct {
	Addr   string
	Mode   string
	Status int
}

// Default returns the fixed values the probe uses when nothing overrides them.
func Default() Config {
	return Config{
		URL:          DefaultURL,
		CapgKey:      DefaultCapgKey,
		Timeout:      DefaultTimeout,
		Retries:      DefaultRetries,
		RetryWaitMin: time.Second,
		RetryWaitMax: 4 * time.Second,
		LogLevel:     DefaultLogLevel,
		Stub: StubConfig{
			Addr:   ":8080",
			Mode:   StubModeOK,
			Status: 500,
		},
	}
}

// Load reads overrides from environment variables on top of Default.
// Unset or blank variables keep their defaults.
func Load() (Config, error) {
	cfg := Default()

	if v := env("CAPGO_EVENTS_URL"); v != "" {
		cfg.URL = v
	}
	if v := env("CAPGO_KEY"); v != "" {
		cfg.CapgKey = v
	}
	if v := env("PROBE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := env("STUB_ADDR"); v != "" {
		cfg.Stub.Addr = v
	}
	if v := env("STUB_MODE"); v != "" {
		cfg.Stub.Mode = v
	}

	if err := envMillis("PROBE_TIMEOUT_MS", &cfg.Timeout); err != nil {
		return Config{}, err
	}
	if err := envMillis("PROBE_RETRY_WAIT_MIN_MS", &cfg.RetryWaitMin); err != nil {
		return Config{}, err
	}
	if err := envMillis("PROBE_RETRY_WAIT_MAX_MS", &cfg.RetryWaitMax); err != nil {
		return Config{}, err
	}
	if err := envInt("PROBE_RETRIES", &cfg.Retries); err != nil {
		return Config{}, err
	}
	if err := envInt("STUB_STATUS", &cfg.Stub.Status); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the values a run or a stub server depends on.
func (c Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return errors.Wrapf(err, "invalid url %q", c.URL)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Errorf("url must be an absolute http(s) url: %q", c.URL)
	}
	if strings.TrimSpace(c.CapgKey) == "" {
		return errors.New("capgkey required")
	}
	if c.Timeout <= 0 {
		return errors.Errorf("timeout must be > 0, got %s", c.Timeout)
	}
	if c.Retries < 0 || c.Retries > maxRetries {
		return errors.Errorf("retries must be within [0,%d], got %d", maxRetries, c.Retries)
	}
	if c.RetryWaitMin < 0 || c.RetryWaitMax < c.RetryWaitMin {
		return errors.Errorf("retry wait must satisfy 0 <= min <= max, got min=%s max=%s", c.RetryWaitMin, c.RetryWaitMax)
	}
	return c.Stub.validate()
}

func (s StubConfig) validate() error {
	switch s.Mode {
	case StubModeOK, StubModeStatus, StubModeMalformed, StubModeHang:
	default:
		return errors.Errorf("unsupported stub mode: %s", s.Mode)
	}
	if s.Status < 400 || s.Status > 599 {
		return errors.Errorf("stub status must be an error status (400-599), got %d", s.Status)
	}
	return nil
}

// BackoffBudget is the longest total time the client can spend sleeping
// between attempts: an exponential schedule starting at RetryWaitMin,
// capped at RetryWaitMax.
func (c Config) BackoffBudget() time.Duration {
	var total time.Duration
	wait := c.RetryWaitMin
	for i := 0; i < c.Retries; i++ {
		if wait > c.RetryWaitMax {
			wait = c.RetryWaitMax
		}
		total += wait
		wait *= 2
	}
	return total
}

// Deadline bounds a whole run: every attempt timing out plus every backoff.
func (c Config) Deadline() time.Duration {
	return c.Timeout*time.Duration(c.Retries+1) + c.BackoffBudget()
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}

func envInt(name string, dst *int) error {
	raw := env(name)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return errors.Errorf("%s must be an integer, got %q", name, raw)
	}
	*dst = n
	return nil
}

func envMillis(name string, dst *time.Duration) error {
	var ms int
	raw := env(name)
	if raw == "" {
		return nil
	}
	if err := envInt(name, &ms); err != nil {
		return err
	}
	*dst = time.Duration(ms) * time.Millisecond
	return nil
}
