package sweep

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"github.com/GoSim-25-26J-441/tcpsim/internal/scenario"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/config"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/logger"
)

// Outcome is the result of one grid point
type Outcome struct {
	Point     Point             `yaml:"point" json:"point"`
	Summary   *scenario.Summary `yaml:"summary,omitempty" json:"summary,omitempty"`
	Artifacts []string          `yaml:"artifacts,omitempty" json:"artifacts,omitempty"`
	Err       error             `yaml:"-" json:"-"`
	Error     string            `yaml:"error,omitempty" json:"error,omitempty"`
}

// Options tunes a sweep
type Options struct {
	// Parallelism bounds concurrent runs; zero uses the grid value, then GOMAXPROCS
	Parallelism int
	// Logger receives per-point progress; per-run engines log to Discard
	Logger *slog.Logger
	// WriteArtifacts writes each point's traces and flow statistics
	WriteArtifacts bool
}

// Run evaluates every point of grid over base. Each point runs on its own
// engine; outcomes are returned in grid order. A failed point does not stop
// the others; the first failure is returned alongside the full outcome list.
func Run(ctx context.Context, base *config.Config, grid *Grid, opts Options) ([]Outcome, error) {
	points, err := grid.Expand(base)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("no grid points")
	}

	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = grid.Parallelism
	}
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}
	log := opts.Logger
	if log == nil {
		log = logger.Default
	}
	log.Info("Sweep started", "points", len(points), "parallelism", parallelism)

	// Limit parallelism
	semaphore := make(chan struct{}, parallelism)
	var wg sync.WaitGroup
	outcomes := make([]Outcome, len(points))

	for i, p := range points {
		wg.Add(1)
		go func(idx int, p Point) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			outcomes[idx] = evaluate(ctx, p, opts.WriteArtifacts)
			if outcomes[idx].Err != nil {
				log.Warn("Grid point failed", "point", p.Name(), "error", outcomes[idx].Err)
			} else {
				log.Debug("Grid point completed", "point", p.Name(),
					"aggregate_bps", outcomes[idx].Summary.AggregateBps)
			}
		}(i, p)
	}

	wg.Wait()

	for _, o := range outcomes {
		if o.Err != nil {
			return outcomes, fmt.Errorf("some grid points failed: %w", o.Err)
		}
	}
	log.Info("Sweep completed", "points", len(points))
	return outcomes, nil
}

func evaluate(ctx context.Context, p Point, writeArtifacts bool) Outcome {
	out := Outcome{Point: p}
	if err := ctx.Err(); err != nil {
		out.Err = err
		out.Error = err.Error()
		return out
	}
	res, err := scenario.Run(ctx, p.Config, scenario.WithLogger(logger.Discard()))
	if err != nil {
		out.Err = err
		out.Error = err.Error()
		return out
	}
	out.Summary = res.Summary
	if writeArtifacts {
		paths, err := res.WriteArtifacts()
		out.Artifacts = paths
		if err != nil {
			out.Err = err
			out.Error = err.Error()
		}
	}
	return out
}

// TransportStats aggregates the outcomes of one transport variant
type TransportStats struct {
	Transport        string  `yaml:"transport" json:"transport"`
	Runs             int     `yaml:"runs" json:"runs"`
	MeanAggregateBps float64 `yaml:"mean_aggregate_bps" json:"mean_aggregate_bps"`
	StdDevBps        float64 `yaml:"stddev_aggregate_bps" json:"stddev_aggregate_bps"`
	MeanJainIndex    float64 `yaml:"mean_jain_index" json:"mean_jain_index"`
	FailedFlows      int     `yaml:"failed_flows" json:"failed_flows"`
}

// ByTransport aggregates successful outcomes per transport, sorted by name
func ByTransport(outcomes []Outcome) []TransportStats {
	agg := make(map[string][]float64)
	jain := make(map[string][]float64)
	failed := make(map[string]int)
	for _, o := range outcomes {
		if o.Summary == nil {
			continue
		}
		tr := o.Point.Transport
		agg[tr] = append(agg[tr], o.Summary.AggregateBps)
		jain[tr] = append(jain[tr], o.Summary.JainIndex)
		failed[tr] += o.Summary.FailedFlows
	}

	names := make([]string, 0, len(agg))
	for name := range agg {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]TransportStats, 0, len(names))
	for _, name := range names {
		ts := TransportStats{
			Transport:     name,
			Runs:          len(agg[name]),
			MeanJainIndex: stat.Mean(jain[name], nil),
			FailedFlows:   failed[name],
		}
		if ts.Runs > 1 {
			ts.MeanAggregateBps, ts.StdDevBps = stat.MeanStdDev(agg[name], nil)
		} else {
			ts.MeanAggregateBps = agg[name][0]
		}
		out = append(out, ts)
	}
	return out
}

type resultsFile struct {
	Points     []Outcome        `yaml:"points" json:"points"`
	Transports []TransportStats `yaml:"transports" json:"transports"`
}

// WriteResults writes the outcomes and per-transport aggregates as JSON or YAML
func WriteResults(path string, outcomes []Outcome) error {
	doc := resultsFile{Points: outcomes, Transports: ByTransport(outcomes)}
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(doc)
	case ".json":
		data, err = json.MarshalIndent(doc, "", "  ")
	default:
		return fmt.Errorf("unsupported results extension %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("failed to encode sweep results: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write sweep results %s: %w", path, err)
	}
	return nil
}

// Failed returns the outcomes that ended in error
func Failed(outcomes []Outcome) []Outcome {
	var out []Outcome
	for _, o := range outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}
