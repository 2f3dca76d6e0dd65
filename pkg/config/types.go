package config

import (
	"time"
)

// Supported topologies
const (
	TopologyP2P      = "p2p"
	TopologyDumbbell = "dumbbell"
	TopologyDualDest = "dual_dest"
)

// Supported transport variants
const (
	TransportReno  = "reno"
	TransportCubic = "cubic"
)

// Config represents one experiment
type Config struct {
	Name      string `yaml:"name" json:"name"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
	Topology  string `yaml:"topology" json:"topology"`
	Transport string `yaml:"transport" json:"transport"`
	Flows     int    `yaml:"flows" json:"flows"`
	Seed      int64  `yaml:"seed" json:"seed"`

	// Duration is the length of the transfer phase; StartTime is when the
	// applications start.
	Duration  string `yaml:"duration" json:"duration"`
	StartTime string `yaml:"start_time" json:"start_time"`

	MTU         int   `yaml:"mtu" json:"mtu"`
	SegmentSize int   `yaml:"segment_size" json:"segment_size"`
	MaxBytes    int64 `yaml:"max_bytes" json:"max_bytes"`

	// QueueLimit is the number of frames that may wait behind the one being
	// serialized on each channel. Zero means unbounded.
	QueueLimit int `yaml:"queue_limit" json:"queue_limit"`

	Bottleneck LinkConfig `yaml:"bottleneck" json:"bottleneck"`
	Access     LinkConfig `yaml:"access" json:"access"`
	SlowAccess LinkConfig `yaml:"slow_access" json:"slow_access"`

	TCP         TCPConfig     `yaml:"tcp" json:"tcp"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
	FlowMonitor string        `yaml:"flow_monitor" json:"flow_monitor"`
}

// LinkConfig describes one point-to-point link
type LinkConfig struct {
	DataRate  string  `yaml:"data_rate" json:"data_rate"`
	Delay     string  `yaml:"delay" json:"delay"`
	ErrorRate float64 `yaml:"error_rate" json:"error_rate"`
}

// TCPConfig holds transport tuning knobs
type TCPConfig struct {
	InitialWindow   int    `yaml:"initial_window" json:"initial_window"`
	InitialRTO      string `yaml:"initial_rto" json:"initial_rto"`
	MinRTO          string `yaml:"min_rto" json:"min_rto"`
	MaxRTO          string `yaml:"max_rto" json:"max_rto"`
	MaxRetransmits  int    `yaml:"max_retransmits" json:"max_retransmits"`
	DupAckThreshold int    `yaml:"dup_ack_threshold" json:"dup_ack_threshold"`
}

// TracingConfig controls the per-stream trace files
type TracingConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Prefix  string `yaml:"prefix" json:"prefix"`
	Format  string `yaml:"format" json:"format"`
	Dir     string `yaml:"dir" json:"dir"`
}

// Default returns the configuration of the reference experiment
func Default() *Config {
	return &Config{
		Name:       "congestion-control",
		LogLevel:   "info",
		Topology:   TopologyDumbbell,
		Transport:  TransportCubic,
		Flows:      1,
		Seed:       1,
		Duration:   "20s",
		StartTime:  "1s",
		MTU:        400,
		QueueLimit: 100,
		Bottleneck: LinkConfig{DataRate: "10Mbps", Delay: "20ms", ErrorRate: 0.00001},
		Access:     LinkConfig{DataRate: "100Mbps", Delay: "0.01ms"},
		SlowAccess: LinkConfig{DataRate: "100Mbps", Delay: "50ms"},
		TCP: TCPConfig{
			InitialWindow:   1,
			InitialRTO:      "1s",
			MinRTO:          "200ms",
			MaxRTO:          "60s",
			MaxRetransmits:  6,
			DupAckThreshold: 3,
		},
		Tracing: TracingConfig{
			Prefix: "congestion-control",
			Format: "data",
			Dir:    ".",
		},
	}
}

// GetDuration parses the transfer duration
func (c *Config) GetDuration() (time.Duration, error) {
	return time.ParseDuration(c.Duration)
}

// GetStartTime parses the application start time
func (c *Config) GetStartTime() (time.Duration, error) {
	return time.ParseDuration(c.StartTime)
}

// StopTime is the instant the applications stop and the run ends
func (c *Config) StopTime() time.Duration {
	start, _ := c.GetStartTime()
	d, _ := c.GetDuration()
	return start + d
}

// Clone returns a deep copy suitable for per-run mutation
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// GetDelay parses the link propagation delay
func (l LinkConfig) GetDelay() (time.Duration, error) {
	return time.ParseDuration(l.Delay)
}

// RTOs returns the parsed initial, minimum and maximum RTO
func (t TCPConfig) RTOs() (initial, min, max time.Duration, err error) {
	if initial, err = time.ParseDuration(t.InitialRTO); err != nil {
		return 0, 0, 0, err
	}
	if min, err = time.ParseDuration(t.MinRTO); err != nil {
		return 0, 0, 0, err
	}
	if max, err = time.ParseDuration(t.MaxRTO); err != nil {
		return 0, 0, 0, err
	}
	return initial, min, max, nil
}
