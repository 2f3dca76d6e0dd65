package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/GoSim-25-26J-441/tcpsim/pkg/config"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/logger"
)

func init() {
	logger.SetDefault(logger.Discard())
}

func parse(t *testing.T, args ...string) (options, map[string]string) {
	t.Helper()
	fs := flag.NewFlagSet("netsim", flag.ContinueOnError)
	fs.SetOutput(&bytes.Buffer{})
	opts, overrides, err := parseFlags(fs, args)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	return opts, overrides
}

func TestLoadConfigOverrides(t *testing.T) {
	opts, overrides := parse(t,
		"-config", "../../configs/p2p.json",
		"-transport", "cubic",
		"-flows", "2",
		"-error-rate", "0.001",
		"-trace", "true",
		"-trace-format", "json")
	if opts.configPath != "../../configs/p2p.json" {
		t.Fatalf("unexpected config path %q", opts.configPath)
	}
	if _, ok := overrides["seed"]; ok {
		t.Fatalf("unset flags must not override the file")
	}

	cfg, err := loadConfig(opts.configPath, overrides)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Transport != config.TransportCubic || cfg.Flows != 2 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Bottleneck.ErrorRate != 0.001 || cfg.Bottleneck.DataRate != "10Mbps" {
		t.Fatalf("unexpected bottleneck %+v", cfg.Bottleneck)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Format != "json" {
		t.Fatalf("unexpected tracing %+v", cfg.Tracing)
	}
	if cfg.Seed != 3 {
		t.Fatalf("expected seed from file, got %d", cfg.Seed)
	}
}

func TestLoadConfigRejectsBadOverrides(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"not a number", []string{"-flows", "many"}},
		{"invalid value", []string{"-transport", "vegas"}},
		{"bad bool", []string{"-trace", "maybe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, overrides := parse(t, tt.args...)
			_, err := loadConfig(opts.configPath, overrides)
			if !errors.Is(err, config.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestRunExperimentWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	_, overrides := parse(t,
		"-trace", "true",
		"-trace-dir", dir,
		"-trace-prefix", "cli",
		"-flow-monitor", filepath.Join(dir, "flows.json"))
	cfg, err := loadConfig("../../configs/p2p.json", overrides)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	var out bytes.Buffer
	if err := runExperiment(context.Background(), cfg, &out); err != nil {
		t.Fatalf("runExperiment: %v", err)
	}
	if !strings.Contains(out.String(), "Goodput per flow (reno)") {
		t.Fatalf("expected summary output, got %q", out.String())
	}
	for _, name := range []string{"cli-n0-cwnd.data", "flows.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}
}

func TestRunSweep(t *testing.T) {
	dir := t.TempDir()
	gridPath := filepath.Join(dir, "grid.yaml")
	if err := os.WriteFile(gridPath, []byte("transports: [reno, cubic]\nparallelism: 2\n"), 0o644); err != nil {
		t.Fatalf("write grid: %v", err)
	}
	cfg, err := loadConfig("../../configs/p2p.json", map[string]string{"duration": "2s"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	var out bytes.Buffer
	opts := options{sweepPath: gridPath, resultsPath: filepath.Join(dir, "results.yaml")}
	if err := runSweep(context.Background(), cfg, opts, &out); err != nil {
		t.Fatalf("runSweep: %v", err)
	}
	for _, want := range []string{"Sweep results (2 points)", "reno | runs: 1", "cubic | runs: 1"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("expected %q in output:\n%s", want, out.String())
		}
	}
	if _, err := os.Stat(opts.resultsPath); err != nil {
		t.Fatalf("expected results file: %v", err)
	}
}
