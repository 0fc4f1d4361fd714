// Package config loads the YAML configuration of the primary-link engine
// and its host process.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/signalsfoundry/mlo-primary/core"
	"github.com/signalsfoundry/mlo-primary/internal/logging"
	"github.com/signalsfoundry/mlo-primary/internal/observability"
	"github.com/signalsfoundry/mlo-primary/internal/regdb"
	"github.com/signalsfoundry/mlo-primary/model"
	"gopkg.in/yaml.v3"
)

const (
	DefaultCongestionPercent = core.DefaultCongestionPercent
	DefaultRegulatoryDBm     = regdb.DefaultMaxDBm
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultMetricsListen     = ":9090"
	DefaultMetricsPath       = "/metrics"
	DefaultTracingExporter   = observability.DefaultTracingExporter
	DefaultTracingService    = observability.DefaultTracingService
	DefaultTracingRatio      = 1.0
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the full configuration document.
type Config struct {
	Policy     PolicyConfig     `yaml:"policy"`
	Regulatory RegulatoryConfig `yaml:"regulatory"`
	// Quotas caps the multi-link peers a PSOC may own, keyed by PSOC id.
	Quotas  map[int]int   `yaml:"quotas,omitempty"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// PolicyConfig mirrors the selector switches.
type PolicyConfig struct {
	AlwaysOffloadFromAssoc bool `yaml:"always_offload_from_assoc"`
	ForcePrimary           bool `yaml:"force_primary"`
	ForcedPSOC             int  `yaml:"forced_psoc"`
	// CongestionPercent is a pointer so that an explicit 0 survives
	// ApplyDefaults.
	CongestionPercent *int `yaml:"congestion_percent,omitempty"`
	// Adjacency lists PSOC pairs whose radios sit next to each other.
	Adjacency [][]int `yaml:"adjacency,omitempty"`
}

// RegulatoryConfig describes the transmit power table.
type RegulatoryConfig struct {
	DefaultDBm *int                `yaml:"default_dbm,omitempty"`
	Rules      []PowerRule         `yaml:"rules,omitempty"`
	Overrides  map[int][]PowerRule `yaml:"psoc_overrides,omitempty"`
}

// PowerRule caps power over an inclusive centre-frequency range.
type PowerRule struct {
	StartMHz uint32 `yaml:"start_mhz"`
	EndMHz   uint32 `yaml:"end_mhz"`
	MaxDBm   int    `yaml:"max_dbm"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source,omitempty"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
	Path   string `yaml:"path"`
}

type TracingConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Exporter    string   `yaml:"exporter"`
	Endpoint    string   `yaml:"endpoint,omitempty"`
	ServiceName string   `yaml:"service_name"`
	SampleRatio *float64 `yaml:"sample_ratio,omitempty"`
}

// Default returns a config with every default applied.
func Default() Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return cfg
}

// Load reads, defaults and validates a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

// Parse decodes a YAML document. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating parent directories.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.Policy.CongestionPercent == nil {
		v := DefaultCongestionPercent
		cfg.Policy.CongestionPercent = &v
	}
	if cfg.Regulatory.DefaultDBm == nil {
		v := DefaultRegulatoryDBm
		cfg.Regulatory.DefaultDBm = &v
	}
	if len(cfg.Regulatory.Rules) == 0 {
		for _, r := range regdb.DefaultRules() {
			cfg.Regulatory.Rules = append(cfg.Regulatory.Rules, PowerRule{StartMHz: r.StartMHz, EndMHz: r.EndMHz, MaxDBm: r.MaxDBm})
		}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = DefaultMetricsListen
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Tracing.Exporter == "" {
		cfg.Tracing.Exporter = DefaultTracingExporter
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = DefaultTracingService
	}
	if cfg.Tracing.SampleRatio == nil {
		v := DefaultTracingRatio
		cfg.Tracing.SampleRatio = &v
	}
}

// Validate checks ranges and cross-field constraints. It expects defaults
// to have been applied.
func Validate(cfg Config) error {
	p := cfg.Policy
	if p.ForcePrimary && !model.PSOCID(p.ForcedPSOC).Valid() {
		return fmt.Errorf("%w: policy.forced_psoc %d out of range", ErrInvalid, p.ForcedPSOC)
	}
	if c := p.CongestionPercent; c != nil && (*c < 0 || *c >= 100) {
		return fmt.Errorf("%w: policy.congestion_percent %d not in [0,100)", ErrInvalid, *c)
	}
	for i, pair := range p.Adjacency {
		if len(pair) != 2 {
			return fmt.Errorf("%w: policy.adjacency[%d] needs exactly two psocs", ErrInvalid, i)
		}
		for _, id := range pair {
			if !model.PSOCID(id).Valid() {
				return fmt.Errorf("%w: policy.adjacency[%d] psoc %d out of range", ErrInvalid, i, id)
			}
		}
	}
	for psoc, max := range cfg.Quotas {
		if !model.PSOCID(psoc).Valid() {
			return fmt.Errorf("%w: quotas psoc %d out of range", ErrInvalid, psoc)
		}
		if max < 0 {
			return fmt.Errorf("%w: quotas[%d] is negative", ErrInvalid, psoc)
		}
	}
	if _, err := cfg.PowerTable(); err != nil {
		return fmt.Errorf("%w: regulatory: %v", ErrInvalid, err)
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: logging.format %q", ErrInvalid, cfg.Logging.Format)
	}
	switch strings.ToLower(cfg.Tracing.Exporter) {
	case "", "stdout", "otlp", "otlpgrpc":
	default:
		return fmt.Errorf("%w: tracing.exporter %q", ErrInvalid, cfg.Tracing.Exporter)
	}
	if r := cfg.Tracing.SampleRatio; r != nil && (*r < 0 || *r > 1) {
		return fmt.Errorf("%w: tracing.sample_ratio %v not in [0,1]", ErrInvalid, *r)
	}
	return nil
}

// EnginePolicy converts the policy section for core.NewEngine.
func (c Config) EnginePolicy() core.PolicyConfig {
	out := core.PolicyConfig{
		AlwaysOffloadFromAssoc: c.Policy.AlwaysOffloadFromAssoc,
		ForcePrimary:           c.Policy.ForcePrimary,
		ForcedPSOC:             model.PSOCID(c.Policy.ForcedPSOC),
		CongestionPercent:      DefaultCongestionPercent,
	}
	if c.Policy.CongestionPercent != nil {
		out.CongestionPercent = *c.Policy.CongestionPercent
	}
	return out
}

// Adjacency returns the configured adjacency table, or nil when none is
// configured so that the central-adjacency rule stays disabled.
func (c Config) Adjacency() core.Adjacency {
	if len(c.Policy.Adjacency) == 0 {
		return nil
	}
	pairs := make([][2]model.PSOCID, 0, len(c.Policy.Adjacency))
	for _, p := range c.Policy.Adjacency {
		if len(p) == 2 {
			pairs = append(pairs, [2]model.PSOCID{model.PSOCID(p[0]), model.PSOCID(p[1])})
		}
	}
	return core.NewAdjacencyTable(pairs...)
}

// PowerTable builds the regulatory power table.
func (c Config) PowerTable() (*regdb.Table, error) {
	def := DefaultRegulatoryDBm
	if c.Regulatory.DefaultDBm != nil {
		def = *c.Regulatory.DefaultDBm
	}
	var opts []regdb.Option
	for psoc, rules := range c.Regulatory.Overrides {
		opts = append(opts, regdb.WithOverride(model.PSOCID(psoc), toRules(rules)...))
	}
	return regdb.New(def, toRules(c.Regulatory.Rules), opts...)
}

func toRules(in []PowerRule) []regdb.Rule {
	out := make([]regdb.Rule, 0, len(in))
	for _, r := range in {
		out = append(out, regdb.Rule{StartMHz: r.StartMHz, EndMHz: r.EndMHz, MaxDBm: r.MaxDBm})
	}
	return out
}

// Quota returns the configured multi-link peer cap of psoc; 0 means
// unlimited. ok is false when the file leaves psoc alone.
func (c Config) Quota(psoc model.PSOCID) (limit int, ok bool) {
	limit, ok = c.Quotas[int(psoc)]
	return limit, ok
}

// LoggerConfig converts the logging section.
func (c Config) LoggerConfig() logging.Config {
	return logging.Config{
		Level:     c.Logging.Level,
		Format:    c.Logging.Format,
		AddSource: c.Logging.AddSource,
	}
}

// TracingOptions converts the tracing section and overlays the environment.
func (c Config) TracingOptions() observability.TracingConfig {
	ratio := DefaultTracingRatio
	if c.Tracing.SampleRatio != nil {
		ratio = *c.Tracing.SampleRatio
	}
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		ServiceName: c.Tracing.ServiceName,
		Exporter:    c.Tracing.Exporter,
		Endpoint:    c.Tracing.Endpoint,
		SampleRatio: ratio,
	}.WithEnv()
}
