package config

import (
	"errors"
	"fmt"

	"github.com/sahilm/fuzzy"

	"github.com/GoSim-25-26J-441/tcpsim/pkg/utils"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid config")

var (
	validTopologies  = []string{TopologyP2P, TopologyDumbbell, TopologyDualDest}
	validTransports  = []string{TransportReno, TransportCubic}
	validLogLevels   = []string{"debug", "info", "warn", "error"}
	validTraceFormat = []string{"data", "json", "yaml"}
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// oneOf checks membership and suggests the closest candidate on a miss
func oneOf(field, value string, candidates []string) error {
	for _, c := range candidates {
		if value == c {
			return nil
		}
	}
	if matches := fuzzy.Find(value, candidates); value != "" && len(matches) > 0 {
		return invalid("%s %q is not supported (did you mean %q?)", field, value, matches[0].Str)
	}
	return invalid("%s %q is not supported (must be one of %v)", field, value, candidates)
}

// Validate rejects configurations the simulator cannot run. Values are
// never silently clamped.
func Validate(cfg *Config) error {
	if err := oneOf("log_level", cfg.LogLevel, validLogLevels); err != nil {
		return err
	}
	if err := oneOf("topology", cfg.Topology, validTopologies); err != nil {
		return err
	}
	if err := oneOf("transport", cfg.Transport, validTransports); err != nil {
		return err
	}

	if cfg.Flows < 1 {
		return invalid("flows must be at least 1, got %d", cfg.Flows)
	}
	if cfg.Topology == TopologyDualDest && cfg.Flows%2 != 0 {
		return invalid("flows must be even for the %s topology, got %d", TopologyDualDest, cfg.Flows)
	}

	duration, err := cfg.GetDuration()
	if err != nil {
		return invalid("duration %q: %v", cfg.Duration, err)
	}
	if duration <= 0 {
		return invalid("duration must be positive, got %s", cfg.Duration)
	}
	start, err := cfg.GetStartTime()
	if err != nil {
		return invalid("start_time %q: %v", cfg.StartTime, err)
	}
	if start < 0 {
		return invalid("start_time cannot be negative, got %s", cfg.StartTime)
	}

	if cfg.MTU <= 0 {
		return invalid("mtu must be positive, got %d", cfg.MTU)
	}
	if cfg.SegmentSize < 0 {
		return invalid("segment_size cannot be negative, got %d", cfg.SegmentSize)
	}
	if cfg.MaxBytes < 0 {
		return invalid("max_bytes cannot be negative, got %d", cfg.MaxBytes)
	}
	if cfg.QueueLimit < 0 {
		return invalid("queue_limit cannot be negative, got %d", cfg.QueueLimit)
	}

	if err := validateLink("bottleneck", cfg.Bottleneck); err != nil {
		return err
	}
	if cfg.Topology != TopologyP2P {
		if err := validateLink("access", cfg.Access); err != nil {
			return err
		}
	}
	if cfg.Topology == TopologyDualDest {
		if err := validateLink("slow_access", cfg.SlowAccess); err != nil {
			return err
		}
	}

	if err := validateTCP(cfg.TCP); err != nil {
		return err
	}

	if cfg.Tracing.Enabled {
		if err := oneOf("tracing.format", cfg.Tracing.Format, validTraceFormat); err != nil {
			return err
		}
		if cfg.Tracing.Prefix == "" {
			return invalid("tracing.prefix cannot be empty when tracing is enabled")
		}
	}
	return nil
}

func validateLink(name string, l LinkConfig) error {
	if _, err := utils.ParseDataRate(l.DataRate); err != nil {
		return invalid("%s.data_rate: %v", name, err)
	}
	delay, err := l.GetDelay()
	if err != nil {
		return invalid("%s.delay %q: %v", name, l.Delay, err)
	}
	if delay < 0 {
		return invalid("%s.delay cannot be negative, got %s", name, l.Delay)
	}
	if l.ErrorRate < 0 || l.ErrorRate > 1 {
		return invalid("%s.error_rate must be between 0 and 1, got %g", name, l.ErrorRate)
	}
	return nil
}

func validateTCP(t TCPConfig) error {
	if t.InitialWindow < 1 {
		return invalid("tcp.initial_window must be at least 1, got %d", t.InitialWindow)
	}
	if t.MaxRetransmits < 1 {
		return invalid("tcp.max_retransmits must be at least 1, got %d", t.MaxRetransmits)
	}
	if t.DupAckThreshold < 1 {
		return invalid("tcp.dup_ack_threshold must be at least 1, got %d", t.DupAckThreshold)
	}
	initial, min, max, err := t.RTOs()
	if err != nil {
		return invalid("tcp rto: %v", err)
	}
	if min <= 0 || max < min {
		return invalid("tcp rto bounds must satisfy 0 < min_rto <= max_rto, got %s and %s", t.MinRTO, t.MaxRTO)
	}
	if initial < min || initial > max {
		return invalid("tcp.initial_rto %s must lie within [%s, %s]", t.InitialRTO, t.MinRTO, t.MaxRTO)
	}
	return nil
}
