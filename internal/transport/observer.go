package transport

import (
	"time"
)

// Traced metric names
const (
	MetricCwnd           = "cwnd"
	MetricSsthresh       = "ssthresh"
	MetricRTT            = "rtt"
	MetricRTO            = "rto"
	MetricNextTx         = "next_tx"
	MetricNextRx         = "next_rx"
	MetricInflight       = "inflight"
	MetricTimeout        = "timeout"
	MetricFastRetransmit = "fast_retransmit"
)

// StateChange describes one mutation of a traced value. Event metrics such as
// timeout carry a running count in New.
type StateChange struct {
	At     time.Duration
	Node   int
	Flow   int
	Metric string
	Old    float64
	New    float64
}

// Observer receives every traced state change
type Observer interface {
	OnStateChange(StateChange)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(StateChange)

// OnStateChange calls f
func (f ObserverFunc) OnStateChange(c StateChange) { f(c) }

// Observers fans a change out to several observers
type Observers []Observer

// OnStateChange forwards to every observer
func (os Observers) OnStateChange(c StateChange) {
	for _, o := range os {
		if o != nil {
			o.OnStateChange(c)
		}
	}
}
