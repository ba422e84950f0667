package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	configPath string // YAML experiment file; flags override it
	logLevel   string // Log verbosity level
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "rsa-sim",
	Short: "Evaluation engine for routing and spectrum assignment policies on elastic optical networks",
}

// runCmd evaluates replicas one after another
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate the policy on sequential replicas",
	Run: func(cmd *cobra.Command, args []string) {
		execute(cmd, ModeRun)
	},
}

// batchCmd evaluates replicas in parallel
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Evaluate the policy on a batch of parallel replicas",
	Run: func(cmd *cobra.Command, args []string) {
		execute(cmd, ModeBatch)
	},
}

func execute(cmd *cobra.Command, mode string) {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)

	cfg, err := resolveConfig(cmd.Flags())
	if err != nil {
		logrus.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := runExperiment(ctx, cfg, mode, cmd.OutOrStdout()); err != nil {
		logrus.Fatalf("%s: %v", cfg.ExperimentName(), err)
	}
}

// resolveConfig loads --config (or the defaults) and applies explicitly set flags.
func resolveConfig(fs *pflag.FlagSet) (*ExperimentConfig, error) {
	cfg := DefaultExperimentConfig()
	if configPath != "" {
		loaded, err := LoadExperimentConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	if err := ApplyFlags(fs, &cfg); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// registerExperimentFlags adds the experiment flags to cmd. Defaults mirror
// DefaultExperimentConfig; only flags the user sets override a config file.
func registerExperimentFlags(cmd *cobra.Command) {
	d := DefaultExperimentConfig()
	f := cmd.Flags()

	f.StringVar(&configPath, "config", "", "YAML experiment file")
	f.StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")

	f.String("exp", "", "Experiment name (default: the policy name, e.g. ksp-ff)")
	f.String("nw", d.Network, "Built-in network topology")
	f.String("topology-file", "", "YAML topology file; overrides --nw")
	f.String("traffic-file", "", "YAML traffic spec; replaces the traffic section of --config")
	f.Int("n-slot", d.Slots, "Spectrum slots per link")
	f.IntP("k", "k", d.K, "Number of candidate paths")
	f.String("sa", d.Policy, "Spectrum assignment: ff, lf, rf or reject")
	f.Int("n-run", d.Runs, "Number of replicas")
	f.Int64("seed", d.Seed, "Base seed; replica seeds derive from it")
	f.Int("n-req", d.Requests, "Measured requests per replica")
	f.Int("n-warm-req", d.WarmupRequests, "Warm-up requests per replica")
	f.Float64("service-time", d.Traffic.ServiceTime, "Mean holding time of a connection")
	f.Float64("arrival-rate", d.Traffic.ArrivalRate, "Mean request arrival rate")
	f.Int("workers", d.Workers, "Worker goroutines for batch mode (0 = min(n-run, GOMAXPROCS))")
	f.Duration("replica-timeout", d.ReplicaTimeout, "Deadline per replica (0 = none)")
	f.Bool("save", false, "Persist evaluations and the best experience")
	f.String("db", d.Save.DB, "Directory experiments are saved under")
	f.Bool("overwrite", false, "Delete previously saved results of the experiment first")
	f.String("metrics-out", "", "Write Prometheus metrics to this textfile")
	f.String("trace-exporter", d.TraceExporter, "Trace exporter: none, stdout or otlp")
	f.String("trace-endpoint", "", "OTLP gRPC endpoint (default localhost:4317)")
}

func init() {
	registerExperimentFlags(runCmd)
	registerExperimentFlags(batchCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(batchCmd)
}
