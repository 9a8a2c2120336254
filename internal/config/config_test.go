package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"defaults pass", func(c *Config) {}, ""},
		{"zero duration", func(c *Config) { c.Run.DurationSeconds = 0 }, "duration"},
		{"negative duration", func(c *Config) { c.Run.DurationSeconds = -5 }, "duration"},
		{"zero fps", func(c *Config) { c.Run.TargetFPS = 0 }, "fps"},
		{"zero sampling rate", func(c *Config) { c.Run.SamplingRate = 0 }, "sampling_rate"},
		{"rate one passes", func(c *Config) { c.Run.SamplingRate = 1 }, ""},
		{"zero topn", func(c *Config) { c.Run.TopN = 0 }, "topn"},
		{"zero routes", func(c *Config) { c.Traffic.NumRoutes = 0 }, "traffic.num_routes"},
		{"max_keys below topn", func(c *Config) { c.Traffic.MaxKeys = 5; c.Run.TopN = 10 }, "traffic.max_keys"},
		{"empty output dir", func(c *Config) { c.Output.Dir = "" }, "output.dir"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.field == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate returned %v, want a ConfigError", err)
			}
			if cfgErr.Field != tc.field {
				t.Errorf("ConfigError field %q, want %q", cfgErr.Field, tc.field)
			}
		})
	}
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
run:
  duration_seconds: 30
  sampling_rate: 100
output:
  dir: /tmp/flows
  pcap: true
clickhouse:
  enabled: true
  host: ch.internal
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Run.DurationSeconds != 30 || cfg.Run.SamplingRate != 100 {
		t.Errorf("run overrides not applied: %+v", cfg.Run)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Run.TargetFPS != 200000 || cfg.Run.TopN != 10 {
		t.Errorf("run defaults lost: %+v", cfg.Run)
	}
	if cfg.Output.Dir != "/tmp/flows" || !cfg.Output.Pcap {
		t.Errorf("output overrides not applied: %+v", cfg.Output)
	}
	if !cfg.ClickHouse.Enabled || cfg.ClickHouse.Host != "ch.internal" {
		t.Errorf("clickhouse overrides not applied: %+v", cfg.ClickHouse)
	}
	if cfg.ClickHouse.Port != 9000 || cfg.ClickHouse.Database != "default" {
		t.Errorf("clickhouse defaults lost: %+v", cfg.ClickHouse)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadConfig succeeded on a missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("run: [not a map"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("LoadConfig succeeded on malformed YAML")
	}
}
