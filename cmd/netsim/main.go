package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/GoSim-25-26J-441/tcpsim/internal/scenario"
	"github.com/GoSim-25-26J-441/tcpsim/internal/sweep"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/config"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/logger"
)

type options struct {
	configPath  string
	sweepPath   string
	resultsPath string
	logFormat   string
	parallelism int
}

// overrideFlags are the config fields that can be set from the command line
var overrideFlags = []struct {
	name, usage string
}{
	{"transport", "transport variant (reno, cubic)"},
	{"topology", "topology (p2p, dumbbell, dual_dest)"},
	{"flows", "number of flows"},
	{"seed", "random seed"},
	{"duration", "transfer duration, e.g. 20s"},
	{"start-time", "application start time, e.g. 1s"},
	{"data-rate", "bottleneck data rate, e.g. 10Mbps"},
	{"delay", "bottleneck delay, e.g. 20ms"},
	{"error-rate", "bottleneck error rate"},
	{"mtu", "link MTU in bytes"},
	{"max-bytes", "bytes each flow sends (0 = unlimited)"},
	{"queue-limit", "per-channel queue limit in frames"},
	{"trace", "enable trace files (true, false)"},
	{"trace-prefix", "trace file prefix"},
	{"trace-format", "trace file format (data, json, yaml)"},
	{"trace-dir", "trace output directory"},
	{"flow-monitor", "flow statistics output path"},
	{"log-level", "log level (debug, info, warn, error)"},
}

func applyOverride(cfg *config.Config, name, value string) error {
	var err error
	switch name {
	case "transport":
		cfg.Transport = value
	case "topology":
		cfg.Topology = value
	case "flows":
		cfg.Flows, err = strconv.Atoi(value)
	case "seed":
		cfg.Seed, err = strconv.ParseInt(value, 10, 64)
	case "duration":
		cfg.Duration = value
	case "start-time":
		cfg.StartTime = value
	case "data-rate":
		cfg.Bottleneck.DataRate = value
	case "delay":
		cfg.Bottleneck.Delay = value
	case "error-rate":
		cfg.Bottleneck.ErrorRate, err = strconv.ParseFloat(value, 64)
	case "mtu":
		cfg.MTU, err = strconv.Atoi(value)
	case "max-bytes":
		cfg.MaxBytes, err = strconv.ParseInt(value, 10, 64)
	case "queue-limit":
		cfg.QueueLimit, err = strconv.Atoi(value)
	case "trace":
		cfg.Tracing.Enabled, err = strconv.ParseBool(value)
	case "trace-prefix":
		cfg.Tracing.Prefix = value
	case "trace-format":
		cfg.Tracing.Format = value
	case "trace-dir":
		cfg.Tracing.Dir = value
	case "flow-monitor":
		cfg.FlowMonitor = value
	case "log-level":
		cfg.LogLevel = value
	default:
		return fmt.Errorf("unknown flag -%s", name)
	}
	if err != nil {
		return fmt.Errorf("%w: -%s=%q: %v", config.ErrInvalidConfig, name, value, err)
	}
	return nil
}

// loadConfig reads the config file (or the defaults) and applies the flags
// that were set explicitly
func loadConfig(path string, overrides map[string]string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	for _, f := range overrideFlags {
		if v, ok := overrides[f.name]; ok {
			if err := applyOverride(cfg, f.name, v); err != nil {
				return nil, err
			}
		}
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseFlags(fs *flag.FlagSet, args []string) (options, map[string]string, error) {
	var opts options
	fs.StringVar(&opts.configPath, "config", "", "experiment config (.yaml, .yml, .json, .lua)")
	fs.StringVar(&opts.sweepPath, "sweep", "", "parameter grid (.yaml, .json); runs a sweep instead of one experiment")
	fs.StringVar(&opts.resultsPath, "results", "", "sweep results output (.yaml, .json)")
	fs.StringVar(&opts.logFormat, "log-format", "", "log format (text, json); default text on a terminal, json otherwise")
	fs.IntVar(&opts.parallelism, "parallelism", 0, "concurrent sweep runs (0 = grid value, then GOMAXPROCS)")
	values := make(map[string]*string, len(overrideFlags))
	for _, f := range overrideFlags {
		values[f.name] = fs.String(f.name, "", f.usage)
	}
	if err := fs.Parse(args); err != nil {
		return opts, nil, err
	}
	overrides := make(map[string]string)
	fs.Visit(func(f *flag.Flag) {
		if v, ok := values[f.Name]; ok {
			overrides[f.Name] = *v
		}
	})
	return opts, overrides, nil
}

func newLogger(format, level string, w *os.File) *slog.Logger {
	if format == "" {
		format = "json"
		if isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd()) {
			format = "text"
		}
	}
	return logger.NewWithFormat(format, level, w)
}

func main() {
	opts, overrides, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	cfg, err := loadConfig(opts.configPath, overrides)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
	logger.SetDefault(newLogger(opts.logFormat, cfg.LogLevel, os.Stderr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.sweepPath != "" {
		err = runSweep(ctx, cfg, opts, os.Stdout)
	} else {
		err = runExperiment(ctx, cfg, os.Stdout)
	}
	if err != nil {
		logger.Error("netsim failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func runExperiment(ctx context.Context, cfg *config.Config, out io.Writer) error {
	res, err := scenario.Run(ctx, cfg, scenario.WithLogger(logger.Default))
	if err != nil {
		return err
	}
	for _, f := range res.Failures() {
		logger.Warn("flow failed", "flow", f.Flow, "error", f.Err)
	}
	res.Summary.Print(out)

	paths, err := res.WriteArtifacts()
	for _, p := range paths {
		logger.Info("artifact written", "path", p)
	}
	return err
}

func runSweep(ctx context.Context, cfg *config.Config, opts options, out io.Writer) error {
	grid, err := sweep.LoadGrid(opts.sweepPath)
	if err != nil {
		return err
	}
	logger.Info("sweep started", "grid", opts.sweepPath, "points", grid.Size())

	outcomes, runErr := sweep.Run(ctx, cfg, grid, sweep.Options{
		Parallelism:    opts.parallelism,
		Logger:         logger.Default,
		WriteArtifacts: cfg.Tracing.Enabled || cfg.FlowMonitor != "",
	})
	if outcomes == nil {
		return runErr
	}

	p := message.NewPrinter(language.English)
	p.Fprintf(out, "\n--- Sweep results (%d points) ---\n", len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			p.Fprintf(out, "%s | FAILED: %v\n", o.Point.Name(), o.Err)
			continue
		}
		p.Fprintf(out, "%s | Aggregate Goodput: %.0f bps | Jain: %.4f\n",
			o.Point.Name(), o.Summary.AggregateBps, o.Summary.JainIndex)
	}
	p.Fprintf(out, "\n--- Per transport ---\n")
	for _, ts := range sweep.ByTransport(outcomes) {
		p.Fprintf(out, "%s | runs: %d | mean aggregate: %.0f bps | stddev: %.0f bps | mean Jain: %.4f | failed flows: %d\n",
			ts.Transport, ts.Runs, ts.MeanAggregateBps, ts.StdDevBps, ts.MeanJainIndex, ts.FailedFlows)
	}

	if opts.resultsPath != "" {
		if err := sweep.WriteResults(opts.resultsPath, outcomes); err != nil {
			return err
		}
		logger.Info("sweep results written", "path", opts.resultsPath)
	}
	return runErr
}
