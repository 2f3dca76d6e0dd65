package models

import (
	"time"
)

// RunStatus represents the status of a simulation run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// Run represents one execution of an experiment
type Run struct {
	ID              string            `json:"id" yaml:"id"`
	Status          RunStatus         `json:"status" yaml:"status"`
	StartTime       time.Time         `json:"start_time" yaml:"start_time"`
	EndTime         time.Time         `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	WallDuration    time.Duration     `json:"wall_duration,omitempty" yaml:"wall_duration,omitempty"`
	SimTime         time.Duration     `json:"sim_time" yaml:"sim_time"`
	EventsProcessed int64             `json:"events_processed" yaml:"events_processed"`
	Error           string            `json:"error,omitempty" yaml:"error,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// MetricPoint represents a single metric data point stamped with simulation time
type MetricPoint struct {
	At     time.Duration     `json:"at" yaml:"at"`
	Name   string            `json:"name" yaml:"name"`
	Value  float64           `json:"value" yaml:"value"`
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// Aggregation represents aggregated statistics for a metric
type Aggregation struct {
	Count int64   `json:"count" yaml:"count"`
	Sum   float64 `json:"sum" yaml:"sum"`
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
	Mean  float64 `json:"mean" yaml:"mean"`
	P50   float64 `json:"p50" yaml:"p50"`
	P95   float64 `json:"p95" yaml:"p95"`
	P99   float64 `json:"p99" yaml:"p99"`
}

// FlowStats is the per-flow record of the flow monitor
type FlowStats struct {
	Flow           int          `json:"flow" yaml:"flow"`
	Source         int          `json:"source" yaml:"source"`
	Destination    int          `json:"destination" yaml:"destination"`
	TxPackets      int64        `json:"tx_packets" yaml:"tx_packets"`
	TxBytes        int64        `json:"tx_bytes" yaml:"tx_bytes"`
	RxPackets      int64        `json:"rx_packets" yaml:"rx_packets"`
	RxBytes        int64        `json:"rx_bytes" yaml:"rx_bytes"`
	LostPackets    int64        `json:"lost_packets" yaml:"lost_packets"`
	DelaySumSec    float64      `json:"delay_sum_s" yaml:"delay_sum_s"`
	JitterSumSec   float64      `json:"jitter_sum_s" yaml:"jitter_sum_s"`
	MeanDelaySec   float64      `json:"mean_delay_s" yaml:"mean_delay_s"`
	FirstTxSec     float64      `json:"first_tx_s" yaml:"first_tx_s"`
	LastRxSec      float64      `json:"last_rx_s" yaml:"last_rx_s"`
	ThroughputBps  float64      `json:"throughput_bps" yaml:"throughput_bps"`
	DelayHistogram *Aggregation `json:"delay_ms,omitempty" yaml:"delay_ms,omitempty"`
}

// FlowGoodput is the application-level result of one bulk transfer
type FlowGoodput struct {
	Flow            int     `json:"flow" yaml:"flow"`
	Group           string  `json:"group" yaml:"group"`
	ReceivedBytes   int64   `json:"received_bytes" yaml:"received_bytes"`
	GoodputBps      float64 `json:"goodput_bps" yaml:"goodput_bps"`
	Retransmissions int     `json:"retransmissions" yaml:"retransmissions"`
	Timeouts        int     `json:"timeouts" yaml:"timeouts"`
	FastRetransmits int     `json:"fast_retransmits" yaml:"fast_retransmits"`
	BaseRTTMs       float64 `json:"base_rtt_ms" yaml:"base_rtt_ms"`
	MeanSRTTMs      float64 `json:"mean_srtt_ms" yaml:"mean_srtt_ms"`
	BottleneckBps   float64 `json:"bottleneck_bps" yaml:"bottleneck_bps"`
	Failed          bool    `json:"failed" yaml:"failed"`
	Error           string  `json:"error,omitempty" yaml:"error,omitempty"`
}

// GroupGoodput aggregates the flows sharing one destination
type GroupGoodput struct {
	Name         string  `json:"name" yaml:"name"`
	Flows        int     `json:"flows" yaml:"flows"`
	AggregateBps float64 `json:"aggregate_bps" yaml:"aggregate_bps"`
	AverageBps   float64 `json:"average_bps" yaml:"average_bps"`
}

// GoodputSummary is the summary printed at the end of an experiment
type GoodputSummary struct {
	Transport          string         `json:"transport" yaml:"transport"`
	ObservationSeconds float64        `json:"observation_s" yaml:"observation_s"`
	Flows              []FlowGoodput  `json:"flows" yaml:"flows"`
	Groups             []GroupGoodput `json:"groups,omitempty" yaml:"groups,omitempty"`
	AggregateBps       float64        `json:"aggregate_bps" yaml:"aggregate_bps"`
	MeanBps            float64        `json:"mean_bps" yaml:"mean_bps"`
	StdDevBps          float64        `json:"stddev_bps" yaml:"stddev_bps"`
	JainIndex          float64        `json:"jain_index" yaml:"jain_index"`
	FailedFlows        int            `json:"failed_flows" yaml:"failed_flows"`
	Metrics            []MetricTotal  `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// MetricTotal aggregates one collected metric across all of its labels
type MetricTotal struct {
	Name        string `json:"name" yaml:"name"`
	Aggregation `yaml:",inline"`
}
