// Package trace records the time series of transport state variables.
package trace

import (
	"math"
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/GoSim-25-26J-441/tcpsim/internal/transport"
)

// InfValue stands in for an infinite value (the initial ssthresh) in exported traces
const InfValue = float64(math.MaxUint32)

// Key identifies a stream
type Key struct {
	Node   int    `json:"node" yaml:"node"`
	Flow   int    `json:"flow" yaml:"flow"`
	Metric string `json:"metric" yaml:"metric"`
}

func compareKeys(a, b Key) int {
	switch {
	case a.Flow != b.Flow:
		return a.Flow - b.Flow
	case a.Node != b.Node:
		return a.Node - b.Node
	case a.Metric < b.Metric:
		return -1
	case a.Metric > b.Metric:
		return 1
	}
	return 0
}

// Point is one sample
type Point struct {
	At    time.Duration
	Value float64
}

// Stream is an append-only, time-ordered series for one key
type Stream struct {
	key    Key
	points []Point
}

// NewStream creates an empty stream
func NewStream(key Key) *Stream {
	return &Stream{key: key}
}

// Key returns the stream key
func (s *Stream) Key() Key { return s.key }

// Len returns the number of samples
func (s *Stream) Len() int { return len(s.points) }

// Points returns a copy of the samples
func (s *Stream) Points() []Point {
	return slices.Clone(s.points)
}

// Append adds a sample. Samples earlier than the last one are rejected.
func (s *Stream) Append(p Point) bool {
	if n := len(s.points); n > 0 && p.At < s.points[n-1].At {
		return false
	}
	s.points = append(s.points, p)
	return true
}

// eventMetrics are counted occurrences rather than sampled values; they are not back-filled
var eventMetrics = map[string]bool{
	transport.MetricTimeout:        true,
	transport.MetricFastRetransmit: true,
}

// Sink collects state changes into streams. Only subscribed keys are kept
// unless SubscribeAll was called.
type Sink struct {
	mu         sync.RWMutex
	streams    map[Key]*Stream
	subscribed map[Key]bool
	all        bool
}

// NewSink creates an empty sink
func NewSink() *Sink {
	return &Sink{
		streams:    make(map[Key]*Stream),
		subscribed: make(map[Key]bool),
	}
}

// Subscribe registers interest in a key and returns its stream
func (s *Sink) Subscribe(node, flow int, metric string) *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := Key{Node: node, Flow: flow, Metric: metric}
	s.subscribed[key] = true
	return s.streamLocked(key)
}

// SubscribeAll keeps every key the sink observes
func (s *Sink) SubscribeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = true
}

func (s *Sink) streamLocked(key Key) *Stream {
	st, ok := s.streams[key]
	if !ok {
		st = NewStream(key)
		s.streams[key] = st
	}
	return st
}

// OnStateChange implements transport.Observer
func (s *Sink) OnStateChange(c transport.StateChange) {
	key := Key{Node: c.Node, Flow: c.Flow, Metric: c.Metric}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.all && !s.subscribed[key] {
		return
	}
	st := s.streamLocked(key)
	if st.Len() == 0 && !eventMetrics[c.Metric] {
		st.Append(Point{At: 0, Value: finite(c.Old)})
	}
	st.Append(Point{At: c.At, Value: finite(c.New)})
}

func finite(v float64) float64 {
	if math.IsInf(v, 0) {
		return InfValue
	}
	return v
}

// Stream returns the stream for a key
func (s *Sink) Stream(node, flow int, metric string) (*Stream, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.streams[Key{Node: node, Flow: flow, Metric: metric}]
	return st, ok
}

// Streams returns every stream ordered by flow, node, then metric
func (s *Sink) Streams() []*Stream {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Stream, 0, len(s.streams))
	for _, st := range s.streams {
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b *Stream) int { return compareKeys(a.key, b.key) })
	return out
}

// Filter selects streams; nil fields match anything
type Filter struct {
	Node   *int
	Flow   *int
	Metric string
}

// Match reports whether key passes the filter
func (f Filter) Match(key Key) bool {
	if f.Node != nil && *f.Node != key.Node {
		return false
	}
	if f.Flow != nil && *f.Flow != key.Flow {
		return false
	}
	return f.Metric == "" || f.Metric == key.Metric
}

// Select returns the ordered streams that match f
func (s *Sink) Select(f Filter) []*Stream {
	var out []*Stream
	for _, st := range s.Streams() {
		if f.Match(st.key) {
			out = append(out, st)
		}
	}
	return out
}
