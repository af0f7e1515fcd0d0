package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// fileConfig mirrors Config with optional fields so that keys absent from the
// file leave the current value untouched.
type fileConfig struct {
	URL            *string  `toml:"url"`
	CapgKey        *string  `toml:"capgkey"`
	TimeoutMs      *int     `toml:"timeout_ms"`
	Retries        *int     `toml:"retries"`
	RetryWaitMinMs *int     `toml:"retry_wait_min_ms"`
	RetryWaitMaxMs *int     `toml:"retry_wait_max_ms"`
	LogLevel       *string  `toml:"log_level"`
	Stub           fileStub `toml:"stub"`
}

type fileStub struct {
	Addr   *string `toml:"addr"`
	Mode   *string `toml:"mode"`
	Status *int    `toml:"status"`
}

// ApplyFile overlays the values found in a TOML file onto cfg.
func ApplyFile(cfg *Config, path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("config path is empty")
	}
	if filepath.Ext(path) != ".toml" {
		return errors.Errorf("config must be a .toml file: %s", path)
	}

	var fc fileConfig
	meta, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return errors.Wrap(err, "decode config failed")
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return errors.Errorf("unknown keys in config: %v", undecoded)
	}

	setString(&cfg.URL, fc.URL)
	setString(&cfg.CapgKey, fc.CapgKey)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.Stub.Addr, fc.Stub.Addr)
	setString(&cfg.Stub.Mode, fc.Stub.Mode)
	setMillis(&cfg.Timeout, fc.TimeoutMs)
	setMillis(&cfg.RetryWaitMin, fc.RetryWaitMinMs)
	setMillis(&cfg.RetryWaitMax, fc.RetryWaitMaxMs)
	if fc.Retries != nil {
		cfg.Retries = *fc.Retries
	}
	if fc.Stub.Status != nil {
		cfg.Stub.Status = *fc.Stub.Status
	}
	return nil
}

func setString(dst *string, v *string) {
	if v == nil {
		return
	}
	if s := strings.TrimSpace(*v); s != "" {
		*dst = s
	}
}

func setMillis(dst *time.Duration, ms *int) {
	if ms != nil {
		*dst = time.Duration(*ms) * time.Millisecond
	}
}
