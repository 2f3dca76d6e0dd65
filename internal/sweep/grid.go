// Package sweep evaluates an experiment over a parameter grid.
package sweep

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/GoSim-25-26J-441/tcpsim/pkg/config"
)

// Grid lists the values of each swept parameter. An empty dimension keeps the
// base configuration's value.
type Grid struct {
	Transports  []string  `yaml:"transports" json:"transports"`
	Flows       []int     `yaml:"flows" json:"flows"`
	Delays      []string  `yaml:"delays" json:"delays"`
	ErrorRates  []float64 `yaml:"error_rates" json:"error_rates"`
	DataRates   []string  `yaml:"data_rates" json:"data_rates"`
	Seeds       []int64   `yaml:"seeds" json:"seeds"`
	Parallelism int       `yaml:"parallelism" json:"parallelism"`
}

// Point is one grid coordinate and the configuration it produces
type Point struct {
	Index     int            `yaml:"index" json:"index"`
	Transport string         `yaml:"transport" json:"transport"`
	Flows     int            `yaml:"flows" json:"flows"`
	Delay     string         `yaml:"delay" json:"delay"`
	ErrorRate float64        `yaml:"error_rate" json:"error_rate"`
	DataRate  string         `yaml:"data_rate" json:"data_rate"`
	Seed      int64          `yaml:"seed" json:"seed"`
	Config    *config.Config `yaml:"-" json:"-"`
}

// Name is a file-name friendly label for the point
func (p Point) Name() string {
	return fmt.Sprintf("%s-f%d-%s-%s-e%s-s%d",
		p.Transport, p.Flows, p.DataRate, p.Delay,
		strconv.FormatFloat(p.ErrorRate, 'g', -1, 64), p.Seed)
}

// Size returns how many points the grid expands to
func (g *Grid) Size() int {
	n := 1
	for _, l := range []int{len(g.Transports), len(g.Flows), len(g.Delays), len(g.ErrorRates), len(g.DataRates), len(g.Seeds)} {
		if l > 0 {
			n *= l
		}
	}
	return n
}

func orBase[T any](values []T, base T) []T {
	if len(values) == 0 {
		return []T{base}
	}
	return values
}

// Expand returns every grid point applied to a copy of base, in order
// transports, flows, delays, error rates, data rates, seeds (last varies fastest).
// Each point's configuration is validated.
func (g *Grid) Expand(base *config.Config) ([]Point, error) {
	points := make([]Point, 0, g.Size())
	for _, tr := range orBase(g.Transports, base.Transport) {
		for _, fl := range orBase(g.Flows, base.Flows) {
			for _, d := range orBase(g.Delays, base.Bottleneck.Delay) {
				for _, e := range orBase(g.ErrorRates, base.Bottleneck.ErrorRate) {
					for _, r := range orBase(g.DataRates, base.Bottleneck.DataRate) {
						for _, s := range orBase(g.Seeds, base.Seed) {
							p := Point{
								Index:     len(points),
								Transport: tr,
								Flows:     fl,
								Delay:     d,
								ErrorRate: e,
								DataRate:  r,
								Seed:      s,
							}
							cfg := base.Clone()
							cfg.Transport = tr
							cfg.Flows = fl
							cfg.Bottleneck.Delay = d
							cfg.Bottleneck.ErrorRate = e
							cfg.Bottleneck.DataRate = r
							cfg.Seed = s
							cfg.Name = base.Name + "-" + p.Name()
							if cfg.Tracing.Enabled {
								cfg.Tracing.Prefix = base.Tracing.Prefix + "-" + p.Name()
							}
							if cfg.FlowMonitor != "" {
								ext := filepath.Ext(cfg.FlowMonitor)
								cfg.FlowMonitor = strings.TrimSuffix(cfg.FlowMonitor, ext) + "-" + p.Name() + ext
							}
							if err := config.Validate(cfg); err != nil {
								return nil, fmt.Errorf("grid point %d (%s): %w", p.Index, p.Name(), err)
							}
							p.Config = cfg
							points = append(points, p)
						}
					}
				}
			}
		}
	}
	return points, nil
}

// LoadGrid reads a grid from a YAML or JSON file
func LoadGrid(path string) (*Grid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sweep file %s: %w", path, err)
	}
	var g Grid
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &g)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &g)
	default:
		return nil, fmt.Errorf("%w: unsupported sweep file extension %q", config.ErrInvalidConfig, filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse sweep file %s: %v", config.ErrInvalidConfig, path, err)
	}
	if g.Parallelism < 0 {
		return nil, fmt.Errorf("%w: parallelism must be non-negative", config.ErrInvalidConfig)
	}
	return &g, nil
}
