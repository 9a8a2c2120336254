package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RunConfig holds the core generation parameters. It is constructed once at
// startup and read-only afterwards.
type RunConfig struct {
	DurationSeconds int   `yaml:"duration_seconds"`
	TargetFPS       int   `yaml:"target_fps"`
	SamplingRate    int   `yaml:"sampling_rate"`
	TopN            int   `yaml:"topn"`
	ReportsOnly     bool  `yaml:"reports_only"`
	NoReports       bool  `yaml:"no_reports"`
	PeeringReport   bool  `yaml:"peering_report"`
	AutoExit        bool  `yaml:"auto_exit"`
	Seed            int64 `yaml:"seed"`
}

// TrafficConfig tunes the synthetic traffic model.
type TrafficConfig struct {
	// NumRoutes is the number of client ASNs in the synthesized route table.
	NumRoutes int `yaml:"num_routes"`
	// IP2ASNPath optionally points at an ip2asn v4 TSV file to draw real
	// routes from instead of synthesizing them.
	IP2ASNPath string `yaml:"ip2asn_path"`
	// MaxKeys caps the number of distinct keys an aggregation task keeps
	// during the run. Lowest-byte entries are evicted past the ceiling.
	MaxKeys int `yaml:"max_keys"`
}

// OutputConfig controls the on-disk artifacts.
type OutputConfig struct {
	Dir  string `yaml:"dir"`
	Pcap bool   `yaml:"pcap"`
}

// PublishConfig controls the optional NATS publisher.
type PublishConfig struct {
	Enabled         bool   `yaml:"enabled"`
	NATSURL         string `yaml:"nats_url"`
	ProgressSubject string `yaml:"progress_subject"`
	FlowSubject     string `yaml:"flow_subject"`
}

// APIConfig controls the optional HTTP status endpoint.
type APIConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// ClickHouseConfig holds connection settings for the optional ClickHouse
// flow sink.
type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Config is the top-level configuration for the generator.
type Config struct {
	Run        RunConfig        `yaml:"run"`
	Traffic    TrafficConfig    `yaml:"traffic"`
	Output     OutputConfig     `yaml:"output"`
	Publish    PublishConfig    `yaml:"publish"`
	API        APIConfig        `yaml:"api"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// ConfigError reports an invalid configuration value. Validation runs before
// any resource allocation, so a ConfigError guarantees no partial output.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// Default returns a Config mirroring the CLI defaults.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			DurationSeconds: 600,
			TargetFPS:       200000,
			SamplingRate:    1000,
			TopN:            10,
			PeeringReport:   true,
		},
		Traffic: TrafficConfig{
			NumRoutes: 250,
			MaxKeys:   1 << 20,
		},
		Output: OutputConfig{
			Dir: ".",
		},
		Publish: PublishConfig{
			NATSURL:         "nats://127.0.0.1:4222",
			ProgressSubject: "flowforge.progress",
			FlowSubject:     "flowforge.flows",
		},
		API: APIConfig{
			ListenAddr: ":8080",
		},
		ClickHouse: ClickHouseConfig{
			Host:     "127.0.0.1",
			Port:     9000,
			Database: "default",
			Username: "default",
		},
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	return cfg, nil
}

// Validate checks the run parameters, failing fast before any generation.
func (c *Config) Validate() error {
	if c.Run.DurationSeconds <= 0 {
		return &ConfigError{Field: "duration", Reason: "must be greater than zero"}
	}
	if c.Run.TargetFPS <= 0 {
		return &ConfigError{Field: "fps", Reason: "must be greater than zero"}
	}
	if c.Run.SamplingRate < 1 {
		return &ConfigError{Field: "sampling_rate", Reason: "must be at least 1"}
	}
	if c.Run.TopN < 1 {
		return &ConfigError{Field: "topn", Reason: "must be at least 1"}
	}
	if c.Traffic.NumRoutes < 1 {
		return &ConfigError{Field: "traffic.num_routes", Reason: "must be at least 1"}
	}
	if c.Traffic.MaxKeys < c.Run.TopN {
		return &ConfigError{Field: "traffic.max_keys", Reason: "must not be smaller than topn"}
	}
	if c.Output.Dir == "" {
		return &ConfigError{Field: "output.dir", Reason: "must not be empty"}
	}
	return nil
}
