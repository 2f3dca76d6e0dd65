package metrics

import (
	"time"

	"github.com/GoSim-25-26J-441/tcpsim/pkg/utils"
)

// Common metric names
const (
	MetricPacketDelay = "packet_delay_ms"
	MetricGoodput     = "goodput_bps"
	MetricQueueDrops  = "queue_drops"
	MetricLinkLosses  = "link_losses"
	MetricSRTT        = "srtt_ms"
)

// RecordPacketDelay records the one-way delay of a delivered segment
func RecordPacketDelay(collector *Collector, delay time.Duration, at time.Duration, labels map[string]string) {
	collector.Record(MetricPacketDelay, float64(delay)/float64(time.Millisecond), at, labels)
}

// RecordSRTT records a smoothed RTT update of a flow
func RecordSRTT(collector *Collector, srtt time.Duration, at time.Duration, labels map[string]string) {
	collector.Record(MetricSRTT, utils.TimeToMs(srtt), at, labels)
}

// RecordGoodput records the application goodput of a flow
func RecordGoodput(collector *Collector, bps float64, at time.Duration, labels map[string]string) {
	collector.Record(MetricGoodput, bps, at, labels)
}

// RecordQueueDrops records the drop-tail count of a channel
func RecordQueueDrops(collector *Collector, count int64, at time.Duration, labels map[string]string) {
	collector.Record(MetricQueueDrops, float64(count), at, labels)
}

// RecordLinkLosses records the random-loss count of a channel
func RecordLinkLosses(collector *Collector, count int64, at time.Duration, labels map[string]string) {
	collector.Record(MetricLinkLosses, float64(count), at, labels)
}

// CreateFlowLabels creates a labels map for a flow
func CreateFlowLabels(flow int) map[string]string {
	return map[string]string{
		"flow": utils.FlowLabel(flow),
	}
}

// CreateGroupLabels creates a labels map for a flow that belongs to a destination group
func CreateGroupLabels(flow int, group string) map[string]string {
	return map[string]string{
		"flow":  utils.FlowLabel(flow),
		"group": group,
	}
}

// CreateChannelLabels creates a labels map for a channel
func CreateChannelLabels(channel string) map[string]string {
	return map[string]string{
		"channel": channel,
	}
}

// GroupAggregations returns the aggregation of metric for every value of the
// group label, keyed by group
func GroupAggregations(collector *Collector, metric string) map[string]*Group {
	groups := make(map[string]*Group)
	for _, labels := range collector.GetLabelsForMetric(metric) {
		name, ok := labels["group"]
		if !ok {
			continue
		}
		g := groups[name]
		if g == nil {
			g = &Group{Name: name}
			groups[name] = g
		}
		for _, p := range collector.GetTimeSeries(metric, labels) {
			g.values = append(g.values, p.Value)
		}
	}
	return groups
}

// Group holds the values of one label group
type Group struct {
	Name   string
	values []float64
}

// Len returns the number of values in the group
func (g *Group) Len() int { return len(g.values) }

// Sum returns the total of the group values
func (g *Group) Sum() float64 {
	sum := 0.0
	for _, v := range g.values {
		sum += v
	}
	return sum
}

// Mean returns the mean of the group values
func (g *Group) Mean() float64 {
	if len(g.values) == 0 {
		return 0
	}
	return g.Sum() / float64(len(g.values))
}
