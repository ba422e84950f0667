package cmd

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/rsa-sim/rsa-sim/internal/observability"
	"github.com/rsa-sim/rsa-sim/sim"
	"github.com/rsa-sim/rsa-sim/sim/policy"
	"github.com/rsa-sim/rsa-sim/sim/topology"
	"github.com/rsa-sim/rsa-sim/sim/traffic"
)

// ExperimentConfig is the full configuration of one experiment.
// Loaded from YAML via --config; explicitly set flags override file values.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type ExperimentConfig struct {
	// Name defaults to the resolved policy name.
	Name string `yaml:"exp,omitempty"`

	// Network is a built-in topology name; TopologyFile overrides it when set.
	Network      string `yaml:"nw"`
	TopologyFile string `yaml:"topology_file,omitempty"`

	// TrafficFile replaces the traffic section with a traffic spec file.
	TrafficFile string `yaml:"traffic_file,omitempty"`

	Slots          int           `yaml:"n_slot"`
	K              int           `yaml:"k"`
	Policy         string        `yaml:"sa"` // "ff", "lf", "rf", "reject" or a full policy name
	Runs           int           `yaml:"n_run"`
	Seed           int64         `yaml:"seed"`
	Requests       int           `yaml:"n_req"`
	WarmupRequests int           `yaml:"n_warm_req"`
	Workers        int           `yaml:"workers"`
	ReplicaTimeout time.Duration `yaml:"replica_timeout"`

	Traffic traffic.Spec  `yaml:"traffic"`
	Env     sim.EnvConfig `yaml:"env"`
	Save    SaveConfig    `yaml:"save"`

	MetricsOut    string `yaml:"metrics_out,omitempty"`
	TraceExporter string `yaml:"trace_exporter,omitempty"`
	TraceEndpoint string `yaml:"trace_endpoint,omitempty"`
}

// SaveConfig controls experience persistence.
type SaveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	DB        string `yaml:"db"`
	Overwrite bool   `yaml:"overwrite"`
}

// DefaultExperimentConfig returns the defaults of the reference KSP experiments.
func DefaultExperimentConfig() ExperimentConfig {
	return ExperimentConfig{
		Network:        "nsf",
		Slots:          100,
		K:              5,
		Policy:         "ff",
		Runs:           5,
		Seed:           0,
		Requests:       10000,
		WarmupRequests: 3000,
		Traffic:        traffic.DefaultSpec(),
		Env:            sim.DefaultEnvConfig(),
		Save:           SaveConfig{DB: "experiments"},
		TraceExporter:  observability.ExporterNone,
	}
}

// LoadExperimentConfig reads a YAML experiment file on top of the defaults.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadExperimentConfig(path string) (*ExperimentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading experiment config: %w", err)
	}
	cfg := DefaultExperimentConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing experiment config: %w", err)
	}
	if cfg.TrafficFile != "" {
		if err := cfg.loadTrafficFile(cfg.TrafficFile); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// loadTrafficFile replaces the traffic section with the spec in path.
func (c *ExperimentConfig) loadTrafficFile(path string) error {
	spec, err := traffic.LoadSpec(path)
	if err != nil {
		return err
	}
	c.TrafficFile = path
	c.Traffic = *spec
	return nil
}

// PolicyName returns the registry name of the configured policy.
func (c *ExperimentConfig) PolicyName() string {
	return policy.Resolve(c.Policy)
}

// ExperimentName returns the configured name, defaulting to the policy name.
func (c *ExperimentConfig) ExperimentName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.PolicyName()
}

// Validate checks everything that can be checked before the topology is built.
func (c *ExperimentConfig) Validate() error {
	if c.TopologyFile == "" && !topology.IsValidBuiltin(c.Network) {
		return fmt.Errorf("%w: unknown network %q; valid: %v", sim.ErrInvalidConfig, c.Network, topology.BuiltinNames())
	}
	if c.Slots < 1 {
		return fmt.Errorf("%w: n_slot must be >= 1, got %d", sim.ErrInvalidConfig, c.Slots)
	}
	if c.K < 1 {
		return fmt.Errorf("%w: k must be >= 1, got %d", sim.ErrInvalidConfig, c.K)
	}
	if !policy.IsValidPolicy(c.PolicyName()) {
		return fmt.Errorf("%w: unknown spectrum assignment %q; valid: ff, lf, rf, reject", sim.ErrInvalidConfig, c.Policy)
	}
	if c.Runs < 1 {
		return fmt.Errorf("%w: n_run must be >= 1, got %d", sim.ErrInvalidConfig, c.Runs)
	}
	if c.Requests < 0 {
		return fmt.Errorf("%w: n_req must be >= 0, got %d", sim.ErrInvalidConfig, c.Requests)
	}
	if c.WarmupRequests < 0 {
		return fmt.Errorf("%w: n_warm_req must be >= 0, got %d", sim.ErrInvalidConfig, c.WarmupRequests)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", sim.ErrInvalidConfig, c.Workers)
	}
	if c.ReplicaTimeout < 0 {
		return fmt.Errorf("%w: replica_timeout must be >= 0, got %s", sim.ErrInvalidConfig, c.ReplicaTimeout)
	}
	if !observability.ValidExporters[c.TraceExporter] {
		return fmt.Errorf("%w: unknown trace exporter %q; valid: none, stdout, otlp", sim.ErrInvalidConfig, c.TraceExporter)
	}
	if c.Save.Enabled && c.Save.DB == "" {
		return fmt.Errorf("%w: --db must be set when saving", sim.ErrInvalidConfig)
	}
	if err := c.Env.Validate(); err != nil {
		return err
	}
	return nil
}

// ApplyFlags overrides cfg with every flag the user explicitly set.
// Flags left at their defaults never clobber values from the config file.
func ApplyFlags(fs *pflag.FlagSet, cfg *ExperimentConfig) error {
	var err error
	set := func(name string, apply func()) {
		if err == nil && fs.Changed(name) {
			apply()
		}
	}
	getInt := func(name string) int {
		v, e := fs.GetInt(name)
		if e != nil {
			err = e
		}
		return v
	}
	getFloat := func(name string) float64 {
		v, e := fs.GetFloat64(name)
		if e != nil {
			err = e
		}
		return v
	}
	getString := func(name string) string {
		v, e := fs.GetString(name)
		if e != nil {
			err = e
		}
		return v
	}
	getBool := func(name string) bool {
		v, e := fs.GetBool(name)
		if e != nil {
			err = e
		}
		return v
	}

	set("exp", func() { cfg.Name = getString("exp") })
	set("nw", func() { cfg.Network = getString("nw") })
	set("topology-file", func() { cfg.TopologyFile = getString("topology-file") })
	// Loaded before the rate flags so --arrival-rate and --service-time still override it.
	if fs.Changed("traffic-file") {
		path := getString("traffic-file")
		if err == nil {
			if e := cfg.loadTrafficFile(path); e != nil {
				return e
			}
		}
	}
	set("n-slot", func() { cfg.Slots = getInt("n-slot") })
	set("k", func() { cfg.K = getInt("k") })
	set("sa", func() { cfg.Policy = getString("sa") })
	set("n-run", func() { cfg.Runs = getInt("n-run") })
	set("seed", func() {
		v, e := fs.GetInt64("seed")
		if e != nil {
			err = e
		}
		cfg.Seed = v
	})
	set("n-req", func() { cfg.Requests = getInt("n-req") })
	set("n-warm-req", func() { cfg.WarmupRequests = getInt("n-warm-req") })
	set("service-time", func() { cfg.Traffic.ServiceTime = getFloat("service-time") })
	set("arrival-rate", func() { cfg.Traffic.ArrivalRate = getFloat("arrival-rate") })
	set("workers", func() { cfg.Workers = getInt("workers") })
	set("replica-timeout", func() {
		v, e := fs.GetDuration("replica-timeout")
		if e != nil {
			err = e
		}
		cfg.ReplicaTimeout = v
	})
	set("save", func() { cfg.Save.Enabled = getBool("save") })
	set("db", func() { cfg.Save.DB = getString("db") })
	set("overwrite", func() { cfg.Save.Overwrite = getBool("overwrite") })
	set("metrics-out", func() { cfg.MetricsOut = getString("metrics-out") })
	set("trace-exporter", func() { cfg.TraceExporter = getString("trace-exporter") })
	set("trace-endpoint", func() { cfg.TraceEndpoint = getString("trace-endpoint") })
	if err != nil {
		return fmt.Errorf("reading flags: %w", err)
	}
	return nil
}
