package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/windlass/windlass/pkg/types"
)

// Config is the server configuration loaded from YAML
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DataDir    string `yaml:"data_dir"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	Build     BuildConfig     `yaml:"build"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Health    HealthConfig    `yaml:"health"`

	OrchestratorURL string `yaml:"orchestrator_url"`
	PrometheusAddr  string `yaml:"prometheus_addr"`
	BuildAgentURL   string `yaml:"build_agent_url"`
	WebhookURL      string `yaml:"webhook_url"`

	Rolling types.RollingConfig `yaml:"rolling"`
	Canary  CanaryConfig        `yaml:"canary"`
}

// BuildConfig tunes the build pipeline
type BuildConfig struct {
	Workers      int           `yaml:"workers"`
	QueueLease   time.Duration `yaml:"queue_lease"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ReconcileConfig tunes the status reconciliation loop
type ReconcileConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// HealthConfig holds the deployment health thresholds
type HealthConfig struct {
	MaxErrorRate    float64 `yaml:"max_error_rate"`
	MinSuccessRate  float64 `yaml:"min_success_rate"`
	MaxAvgLatencyMs float64 `yaml:"max_avg_latency_ms"`
}

// CanaryConfig mirrors the canary strategy knobs in YAML-friendly form
type CanaryConfig struct {
	Steps           []int         `yaml:"steps"`
	ObservationTime time.Duration `yaml:"observation_time"`
	AutoPromote     bool          `yaml:"auto_promote"`
	RollbackOnError bool          `yaml:"rollback_on_error"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		DataDir:    "/var/lib/windlass",
		LogLevel:   "info",
		LogJSON:    true,
		Build: BuildConfig{
			Workers:      2,
			QueueLease:   2 * time.Minute,
			PollInterval: time.Second,
		},
		Reconcile: ReconcileConfig{
			Interval: 5 * time.Second,
		},
		Health: HealthConfig{
			MaxErrorRate:    0.05,
			MinSuccessRate:  0.95,
			MaxAvgLatencyMs: 1000,
		},
		OrchestratorURL: "http://localhost:9090",
		PrometheusAddr:  "http://localhost:9091",
		BuildAgentURL:   "http://localhost:9092",
		Rolling: types.RollingConfig{
			MaxUnavailable: 1,
			MaxSurge:       1,
			TotalSteps:     10,
		},
		Canary: CanaryConfig{
			Steps:           []int{10, 25, 50, 100},
			ObservationTime: 5 * time.Minute,
			AutoPromote:     true,
			RollbackOnError: true,
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Build.Workers <= 0 {
		return fmt.Errorf("build.workers must be positive")
	}
	if c.Health.MaxErrorRate < 0 || c.Health.MaxErrorRate > 1 {
		return fmt.Errorf("health.max_error_rate must be between 0 and 1")
	}
	if c.Health.MinSuccessRate < 0 || c.Health.MinSuccessRate > 1 {
		return fmt.Errorf("health.min_success_rate must be between 0 and 1")
	}
	if c.Health.MaxAvgLatencyMs < 0 {
		return fmt.Errorf("health.max_avg_latency_ms must not be negative")
	}
	for _, step := range c.Canary.Steps {
		if step < 0 || step > 100 {
			return fmt.Errorf("canary.steps entries must be between 0 and 100")
		}
	}
	// A step list that never reaches 100 would observe forever without
	// completing the rollout
	if n := len(c.Canary.Steps); n > 0 && c.Canary.Steps[n-1] != 100 {
		return fmt.Errorf("canary.steps must end at 100")
	}
	return nil
}
