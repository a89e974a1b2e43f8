// Package config loads Marcus's YAML configuration file into the typed
// structs the rest of the codebase consumes directly (spec §6
// configuration table).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marcus-ai/marcus/internal/coordinator"
	"github.com/marcus-ai/marcus/internal/depgraph"
	"github.com/marcus-ai/marcus/internal/reconciler"
	"github.com/marcus-ai/marcus/internal/scheduler"
	"github.com/marcus-ai/marcus/internal/taskcontext"
)

// Config is the root of the YAML file Marcus is started with.
type Config struct {
	ListenAddr string         `yaml:"listen_addr"`
	LeaseTTL   yamlDuration   `yaml:"lease_ttl"`
	LeaseRetryK int           `yaml:"lease_retry_k"`
	// OpDeadline bounds a single coordinator op's suspension points (spec
	// §5 "Suspension points"); exceeding it surfaces Timeout.
	OpDeadline yamlDuration   `yaml:"op_deadline"`
	Ranker     RankerConfig   `yaml:"ranker"`
	DepInference DepInferenceConfig `yaml:"dep_inference"`
	Adapter    AdapterConfig  `yaml:"adapter"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Context    ContextConfig  `yaml:"context"`
	NATS       NATSConfig     `yaml:"nats"`
}

// RankerConfig mirrors scheduler.Weights in YAML-friendly form.
type RankerConfig struct {
	Weights     WeightsConfig `yaml:"weights"`
	AgeHorizon  yamlDuration  `yaml:"age_horizon"`
}

// WeightsConfig is scheduler.Weights' field-for-field YAML counterpart.
type WeightsConfig struct {
	Skill    float64 `yaml:"skill"`
	Priority float64 `yaml:"priority"`
	Age      float64 `yaml:"age"`
	Unblock  float64 `yaml:"unblock"`
	Mismatch float64 `yaml:"mismatch"`
}

// DepInferenceConfig configures C4 (spec §4.4).
type DepInferenceConfig struct {
	KeywordTemplates  []string `yaml:"keyword_templates"`
	AdvisorBatchCap   int      `yaml:"advisor_batch_cap"`
	AdvisorConfidence float64  `yaml:"advisor_confidence"`
}

// AdapterConfig selects and configures the board adapter (spec §4.1).
type AdapterConfig struct {
	Provider string `yaml:"provider"` // "local" or "external"
	Path     string `yaml:"path"`     // local adapter's JSON file
	BaseURL  string `yaml:"base_url"` // external adapter's API root
	APIKey   string `yaml:"api_key"`
}

// ReconcilerConfig mirrors reconciler.Config in YAML-friendly form.
type ReconcilerConfig struct {
	Interval      yamlDuration `yaml:"interval"`
	RevertOrphans bool         `yaml:"revert_orphans"`
}

// ContextConfig mirrors taskcontext.Options in YAML-friendly form.
type ContextConfig struct {
	MaxBytes            int  `yaml:"max_bytes"`
	IncludePatternHints bool `yaml:"include_pattern_hints"`
}

// NATSConfig enables the optional NATS bridge (spec §4.1 push-notification
// path).
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Embed   bool   `yaml:"embed"`
	Port    int    `yaml:"port"`
}

// yamlDuration unmarshals YAML duration strings ("10m", "30s") into
// time.Duration.
type yamlDuration time.Duration

func (d *yamlDuration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = yamlDuration(parsed)
	return nil
}

func (d yamlDuration) Duration() time.Duration { return time.Duration(d) }

// Default returns the built-in configuration, matching each component's own
// DefaultConfig/DefaultWeights.
func Default() *Config {
	return &Config{
		ListenAddr:  ":8090",
		LeaseTTL:    yamlDuration(10 * time.Minute),
		LeaseRetryK: 3,
		OpDeadline:  yamlDuration(30 * time.Second),
		Ranker: RankerConfig{
			Weights: WeightsConfig{Skill: 2.0, Priority: 1.5, Age: 1.0, Unblock: 1.0, Mismatch: 1.0},
			AgeHorizon: yamlDuration(7 * 24 * time.Hour),
		},
		DepInference: DepInferenceConfig{AdvisorBatchCap: 20, AdvisorConfidence: 0.7},
		Adapter:      AdapterConfig{Provider: "local", Path: "board.json"},
		Reconciler:   ReconcilerConfig{Interval: yamlDuration(30 * time.Second), RevertOrphans: true},
		Context:      ContextConfig{MaxBytes: 32 * 1024, IncludePatternHints: true},
	}
}

// Load reads and parses a YAML config file at path, filling in defaults for
// anything left zero-valued.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// CoordinatorConfig translates the YAML shape into coordinator.Config.
func (c *Config) CoordinatorConfig() coordinator.Config {
	return coordinator.Config{
		LeaseTTL:    c.LeaseTTL.Duration(),
		LeaseRetryK: c.LeaseRetryK,
		OpDeadline:  c.OpDeadline.Duration(),
		RankerWeights: scheduler.Weights{
			Skill:      c.Ranker.Weights.Skill,
			Priority:   c.Ranker.Weights.Priority,
			Age:        c.Ranker.Weights.Age,
			Unblock:    c.Ranker.Weights.Unblock,
			Mismatch:   c.Ranker.Weights.Mismatch,
			AgeHorizon: c.Ranker.AgeHorizon.Duration(),
		},
		DepInference: depgraph.Options{
			KeywordPatterns:   keywordPatterns(c.DepInference.KeywordTemplates),
			AdvisorBatchCap:   c.DepInference.AdvisorBatchCap,
			AdvisorConfidence: c.DepInference.AdvisorConfidence,
		},
		ContextOpts: taskcontext.Options{
			MaxBytes:            c.Context.MaxBytes,
			IncludePatternHints: c.Context.IncludePatternHints,
		},
	}
}

// keywordPatterns converts raw template strings into depgraph.KeywordPattern
// values; nil/empty leaves depgraph.Infer to fall back to its own defaults.
func keywordPatterns(templates []string) []depgraph.KeywordPattern {
	if len(templates) == 0 {
		return nil
	}
	patterns := make([]depgraph.KeywordPattern, len(templates))
	for i, t := range templates {
		patterns[i] = depgraph.KeywordPattern{Template: t}
	}
	return patterns
}

// ReconcilerConfig translates the YAML shape into reconciler.Config.
func (c *Config) ReconcilerConfig() reconciler.Config {
	return reconciler.Config{
		Interval:      c.Reconciler.Interval.Duration(),
		RevertOrphans: c.Reconciler.RevertOrphans,
		LeaseTTL:      c.LeaseTTL.Duration(),
	}
}
