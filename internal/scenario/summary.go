package scenario

import (
	"io"
	"time"

	"golang.org/x/exp/slices"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gonum.org/v1/gonum/stat"

	"github.com/GoSim-25-26J-441/tcpsim/internal/metrics"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/models"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/utils"
)

// Summary is the goodput report of a run
type Summary struct {
	models.GoodputSummary `yaml:",inline"`
}

// Summarize computes per-flow, per-group and aggregate goodput. Group figures
// come from the goodput samples recorded in collector.
func Summarize(transportName string, observation time.Duration, flows []FlowResult, collector *metrics.Collector) *Summary {
	s := &Summary{models.GoodputSummary{
		Transport:          transportName,
		ObservationSeconds: observation.Seconds(),
	}}

	values := make([]float64, 0, len(flows))
	for _, f := range flows {
		fg := models.FlowGoodput{
			Flow:            f.Flow,
			Group:           f.Group,
			ReceivedBytes:   f.ReceivedBytes,
			GoodputBps:      f.GoodputBps,
			Retransmissions: f.Sender.Retransmissions,
			Timeouts:        f.Sender.Timeouts,
			FastRetransmits: f.Sender.FastRetransmits,
			BaseRTTMs:       utils.TimeToMs(f.BaseRTT),
			MeanSRTTMs:      utils.TimeToMs(f.MeanSRTT),
			BottleneckBps:   float64(f.Bottleneck),
		}
		if f.Err != nil {
			fg.Failed = true
			fg.Error = f.Err.Error()
			s.FailedFlows++
		}
		s.Flows = append(s.Flows, fg)
		values = append(values, f.GoodputBps)
		s.AggregateBps += f.GoodputBps
	}

	if len(values) > 0 {
		s.MeanBps = stat.Mean(values, nil)
		if len(values) > 1 {
			_, s.StdDevBps = stat.MeanStdDev(values, nil)
		}
		s.JainIndex = utils.JainIndex(values)
	}

	if collector != nil {
		groups := metrics.GroupAggregations(collector, metrics.MetricGoodput)
		if len(groups) > 1 {
			names := make([]string, 0, len(groups))
			for name := range groups {
				names = append(names, name)
			}
			slices.Sort(names)
			for _, name := range names {
				g := groups[name]
				s.Groups = append(s.Groups, models.GroupGoodput{
					Name:         name,
					Flows:        g.Len(),
					AggregateBps: g.Sum(),
					AverageBps:   g.Mean(),
				})
			}
		}

		totals := collector.Summary()
		for _, name := range collector.GetMetricNames() {
			if agg := totals[name]; agg != nil {
				s.Metrics = append(s.Metrics, models.MetricTotal{Name: name, Aggregation: *agg})
			}
		}
	}
	return s
}

// Print writes the human-readable report
func (s *Summary) Print(w io.Writer) {
	p := message.NewPrinter(language.English)

	p.Fprintf(w, "\n--- Goodput per flow (%s) ---\n", s.Transport)
	for _, f := range s.Flows {
		p.Fprintf(w, "Flow %d | %s | Goodput: %.0f bps | Rx: %d bytes | Retransmissions: %d | Timeouts: %d",
			f.Flow, f.Group, f.GoodputBps, f.ReceivedBytes, f.Retransmissions, f.Timeouts)
		if f.BaseRTTMs > 0 {
			p.Fprintf(w, " | Base RTT: %s", utils.FormatDuration(msToDuration(f.BaseRTTMs)))
		}
		if f.MeanSRTTMs > 0 {
			p.Fprintf(w, " | SRTT: %s", utils.FormatDuration(msToDuration(f.MeanSRTTMs)))
		}
		if f.Failed {
			p.Fprintf(w, " | FAILED: %s", f.Error)
		}
		p.Fprintln(w)
	}

	for _, g := range s.Groups {
		p.Fprintln(w, "------------------------------------------")
		p.Fprintf(w, "%s | Flows: %d | Aggregate Goodput: %.0f bps | Average Per-Flow Goodput: %.0f bps\n",
			g.Name, g.Flows, g.AggregateBps, g.AverageBps)
	}

	p.Fprintln(w, "---")
	p.Fprintf(w, "Observation: %s\n", utils.FormatDuration(utils.SecondsToDuration(s.ObservationSeconds)))
	p.Fprintf(w, "Aggregate Goodput: %.0f bps\n", s.AggregateBps)
	p.Fprintf(w, "Mean Per-Flow Goodput: %.0f bps (stddev %.0f)\n", s.MeanBps, s.StdDevBps)
	p.Fprintf(w, "Jain Fairness Index: %.4f\n", s.JainIndex)
	if s.FailedFlows > 0 {
		p.Fprintf(w, "Failed Flows: %d\n", s.FailedFlows)
	}

	if len(s.Metrics) > 0 {
		p.Fprintln(w, "--- Metrics ---")
		for _, m := range s.Metrics {
			p.Fprintf(w, "%s | count: %d | mean: %.3f | p95: %.3f | max: %.3f\n", m.Name, m.Count, m.Mean, m.P95, m.Max)
		}
	}
}

func msToDuration(ms float64) time.Duration {
	return utils.SecondsToDuration(ms / 1000)
}
