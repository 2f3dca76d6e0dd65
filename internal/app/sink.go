package app

import (
	"time"

	"github.com/GoSim-25-26J-441/tcpsim/internal/transport"
)

// Sink counts the in-order bytes delivered to the receiving application.
// The observation window is [start, stop): the stop event is scheduled when
// the flow is installed, so it runs before any segment arriving at exactly
// the stop time and that segment is not counted.
type Sink struct {
	reasm   transport.Reassembly
	stopped bool
}

// NewSink creates an empty sink
func NewSink() *Sink {
	return &Sink{}
}

// Receive accepts a segment in any order
func (s *Sink) Receive(seg transport.Segment) {
	if s.stopped {
		return
	}
	s.reasm.Add(seg.Seq, seg.Size)
}

// Stop ignores further segments
func (s *Sink) Stop() { s.stopped = true }

// TotalReceivedBytes returns the contiguous bytes received
func (s *Sink) TotalReceivedBytes() int64 { return s.reasm.Next() }

// Goodput is the sink's received bits per second over observation
func (s *Sink) Goodput(observation time.Duration) float64 {
	return Goodput(s.TotalReceivedBytes(), observation)
}

// Goodput converts bytes over an observation window into bits per second
func Goodput(bytes int64, observation time.Duration) float64 {
	if observation <= 0 {
		return 0
	}
	return float64(bytes) * 8 / observation.Seconds()
}
