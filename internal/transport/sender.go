package transport

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/GoSim-25-26J-441/tcpsim/internal/engine"
)

// SenderStats are the per-flow send counters
type SenderStats struct {
	SegmentsSent    int64
	BytesSent       int64
	BytesAcked      int64
	Retransmissions int
	Timeouts        int
	FastRetransmits int
}

// ConnState is a snapshot of the connection state
type ConnState struct {
	Mode          Mode
	Cwnd          float64
	Ssthresh      float64
	SRTT          time.Duration
	RTTVar        time.Duration
	RTO           time.Duration
	SndUna        int64
	SndNxt        int64
	BytesInFlight int64
}

// Sender is the sending half of one flow. It is driven entirely by engine
// events and must only be used from the engine's goroutine.
type Sender struct {
	eng    *engine.Engine
	flow   int
	node   int
	opts   Options
	law    GrowthLaw
	rtt    *RTTEstimator
	send   func(Segment)
	logger *slog.Logger

	observer     Observer
	onWindowOpen func()
	onFailure    func(error)

	mode     Mode
	cwnd     float64
	ssthresh float64
	sndUna   int64
	sndNxt   int64
	highTx   int64
	buffered int64
	dupAcks  int
	recover  int64
	inflight int64
	retx     map[int64]int

	timer  engine.EventHandle
	closed bool
	err    error
	stats  SenderStats
}

// NewSender builds a sender for flow on node. send puts a segment on the forward path.
func NewSender(eng *engine.Engine, flow, node int, opts Options, law GrowthLaw, send func(Segment)) (*Sender, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if law == nil {
		return nil, fmt.Errorf("%w: growth law is required", ErrInvalidOptions)
	}
	return &Sender{
		eng:      eng,
		flow:     flow,
		node:     node,
		opts:     opts,
		law:      law,
		rtt:      NewRTTEstimator(opts.InitialRTO, opts.MinRTO, opts.MaxRTO),
		send:     send,
		logger:   eng.Logger().With("flow", flow, "node", node),
		mode:     SlowStart,
		cwnd:     float64(opts.InitialWindow * opts.SegmentSize),
		ssthresh: math.Inf(1),
		retx:     make(map[int64]int),
	}, nil
}

// SetObserver attaches a trace observer
func (s *Sender) SetObserver(o Observer) { s.observer = o }

// OnWindowOpen registers a callback run whenever acks open the window
func (s *Sender) OnWindowOpen(fn func()) { s.onWindowOpen = fn }

// OnFailure registers the callback for fatal connection errors
func (s *Sender) OnFailure(fn func(error)) { s.onFailure = fn }

// Flow returns the flow id
func (s *Sender) Flow() int { return s.flow }

// SegmentSize returns the payload bytes per segment
func (s *Sender) SegmentSize() int { return s.opts.SegmentSize }

// Stats returns a copy of the counters
func (s *Sender) Stats() SenderStats { return s.stats }

// Err returns the error that closed the connection, if any
func (s *Sender) Err() error { return s.err }

// Closed reports whether the sender stopped
func (s *Sender) Closed() bool { return s.closed }

// State returns a snapshot of the connection state
func (s *Sender) State() ConnState {
	return ConnState{
		Mode:          s.mode,
		Cwnd:          s.cwnd,
		Ssthresh:      s.ssthresh,
		SRTT:          s.rtt.SRTT(),
		RTTVar:        s.rtt.RTTVar(),
		RTO:           s.rtt.RTO(),
		SndUna:        s.sndUna,
		SndNxt:        s.sndNxt,
		BytesInFlight: s.inflight,
	}
}

// Room is how many more bytes the application may hand over now
func (s *Sender) Room() int64 {
	if s.closed {
		return 0
	}
	room := int64(s.cwnd) - (s.buffered - s.sndUna)
	if room < 0 {
		return 0
	}
	return room
}

// Write hands n more bytes to the sender and transmits what the window allows
func (s *Sender) Write(n int) {
	if s.closed || n <= 0 {
		return
	}
	s.buffered += int64(n)
	s.transmit()
}

// Close stops the sender and its timer
func (s *Sender) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.eng.Cancel(s.timer)
}

// transmit sends from sndNxt while the window has room for the next segment
func (s *Sender) transmit() {
	for !s.closed && s.sndNxt < s.buffered {
		size := int64(s.opts.SegmentSize)
		if rest := s.buffered - s.sndNxt; rest < size {
			size = rest
		}
		if float64(s.sndNxt-s.sndUna+size) > s.cwnd {
			return
		}
		s.emit(s.sndNxt, int(size))
		s.setNextTx(s.sndNxt + size)
	}
}

func (s *Sender) emit(seq int64, size int) {
	retransmission := seq < s.highTx
	if retransmission {
		s.retx[seq]++
		s.stats.Retransmissions++
	}
	if end := seq + int64(size); end > s.highTx {
		s.highTx = end
	}
	s.stats.SegmentsSent++
	s.stats.BytesSent += int64(size)

	if !s.timer.Pending() {
		s.armTimer()
	}
	s.send(Segment{
		Flow:           s.flow,
		Seq:            seq,
		Size:           size,
		SentAt:         s.eng.Now(),
		Retransmission: retransmission,
		Header:         s.opts.HeaderBytes,
	})
}

// retransmitHead resends the oldest unacknowledged segment without moving sndNxt
func (s *Sender) retransmitHead() {
	size := int64(s.opts.SegmentSize)
	if rest := s.highTx - s.sndUna; rest < size {
		size = rest
	}
	if size <= 0 {
		return
	}
	s.emit(s.sndUna, int(size))
}

// OnAck processes an acknowledgment from the receiver
func (s *Sender) OnAck(ack Ack) {
	if s.closed {
		return
	}
	switch {
	case ack.AckNo > s.sndUna:
		s.onNewAck(ack)
	case ack.AckNo == s.sndUna && s.highTx > s.sndUna:
		s.onDupAck()
	}
}

func (s *Sender) onNewAck(ack Ack) {
	acked := ack.AckNo - s.sndUna

	// Karn: no sample when any acknowledged byte was ever retransmitted
	ambiguous := ack.EchoRetransmission
	for seq := range s.retx {
		if seq < ack.AckNo {
			ambiguous = true
			delete(s.retx, seq)
		}
	}
	if !ambiguous {
		s.sampleRTT(s.eng.Now() - ack.EchoSentAt)
	}
	s.sndUna = ack.AckNo
	if s.sndNxt < s.sndUna {
		s.setNextTx(s.sndUna)
	}
	s.stats.BytesAcked += acked

	switch s.mode {
	case FastRecovery:
		if ack.AckNo >= s.recover {
			s.dupAcks = 0
			s.setMode(CongestionAvoidance)
			s.setCwnd(s.ssthresh)
		} else {
			// partial ack: resend the next hole, deflate by the newly acked
			// bytes and add back one segment (RFC 6582)
			s.retransmitHead()
			seg := float64(s.opts.SegmentSize)
			cwnd := s.cwnd - float64(acked)
			if acked >= int64(s.opts.SegmentSize) {
				cwnd += seg
			}
			if cwnd < seg {
				cwnd = seg
			}
			s.setCwnd(cwnd)
		}
	case Loss:
		s.dupAcks = 0
		s.setMode(SlowStart)
		s.grow(acked)
	default:
		s.dupAcks = 0
		s.grow(acked)
	}

	s.updateInflight()
	if s.highTx > s.sndUna {
		s.armTimer()
	} else {
		s.eng.Cancel(s.timer)
	}

	s.transmit()
	if s.onWindowOpen != nil {
		s.onWindowOpen()
	}
}

// grow applies slow start or the growth law once per acknowledged segment
func (s *Sender) grow(acked int64) {
	seg := s.opts.SegmentSize
	segments := int((acked + int64(seg) - 1) / int64(seg))
	cwnd := s.cwnd
	for i := 0; i < segments; i++ {
		if s.mode == SlowStart {
			cwnd += float64(seg)
			if cwnd >= s.ssthresh {
				s.setMode(CongestionAvoidance)
			}
			continue
		}
		cwnd = s.law.Increase(cwnd, seg, s.eng.Now(), s.rtt.SRTT())
	}
	s.setCwnd(cwnd)
}

func (s *Sender) onDupAck() {
	s.dupAcks++
	seg := float64(s.opts.SegmentSize)

	switch {
	case s.mode == FastRecovery:
		s.setCwnd(s.cwnd + seg)
		s.transmit()
		if s.onWindowOpen != nil {
			s.onWindowOpen()
		}
	case s.mode == Loss:
	case s.dupAcks == s.opts.DupAckThreshold:
		s.setSsthresh(s.law.Reduce(s.cwnd, s.opts.SegmentSize, s.eng.Now()))
		s.recover = s.highTx
		s.setMode(FastRecovery)
		s.setCwnd(s.ssthresh + float64(s.opts.DupAckThreshold)*seg)
		s.stats.FastRetransmits++
		s.event(MetricFastRetransmit, s.stats.FastRetransmits)
		s.logger.Debug("Fast retransmit", "seq", s.sndUna, "cwnd", s.cwnd, "ssthresh", s.ssthresh)
		s.retransmitHead()
		s.armTimer()
	}
}

func (s *Sender) onTimeout() {
	if s.closed || s.highTx <= s.sndUna {
		return
	}
	if s.retx[s.sndUna] >= s.opts.MaxRetransmits {
		s.fail(fmt.Errorf("flow %d seq %d after %d retransmissions: %w",
			s.flow, s.sndUna, s.retx[s.sndUna], ErrRetransmissionExhausted))
		return
	}

	s.stats.Timeouts++
	s.event(MetricTimeout, s.stats.Timeouts)

	s.setSsthresh(s.law.Reduce(s.cwnd, s.opts.SegmentSize, s.eng.Now()))
	s.law.Reset()
	s.setMode(Loss)
	s.setCwnd(float64(s.opts.InitialWindow * s.opts.SegmentSize))
	s.dupAcks = 0
	s.recover = s.highTx

	old := s.rtt.RTO()
	s.rtt.Backoff()
	s.notify(MetricRTO, old.Seconds(), s.rtt.RTO().Seconds())

	s.logger.Debug("Retransmission timeout", "seq", s.sndUna, "rto", s.rtt.RTO(), "ssthresh", s.ssthresh)

	// go-back-N: everything past sndUna is resent as the window reopens
	s.setNextTx(s.sndUna)
	s.transmit()
	if !s.timer.Pending() {
		s.armTimer()
	}
}

func (s *Sender) fail(err error) {
	s.err = err
	s.logger.Warn("Connection failed", "error", err)
	s.Close()
	if s.onFailure != nil {
		s.onFailure(err)
	}
}

func (s *Sender) sampleRTT(sample time.Duration) {
	oldSRTT, oldRTO := s.rtt.SRTT(), s.rtt.RTO()
	s.rtt.Sample(sample)
	s.notify(MetricRTT, oldSRTT.Seconds(), s.rtt.SRTT().Seconds())
	s.notify(MetricRTO, oldRTO.Seconds(), s.rtt.RTO().Seconds())
}

func (s *Sender) armTimer() {
	s.eng.Cancel(s.timer)
	h, err := s.eng.Schedule(s.rtt.RTO(), engine.EventKindTimer, s.onTimeout)
	if err != nil {
		return
	}
	s.timer = h
}

func (s *Sender) updateInflight() {
	next := s.sndNxt - s.sndUna
	if next < 0 {
		next = 0
	}
	old := s.inflight
	s.inflight = next
	s.notify(MetricInflight, float64(old), float64(next))
}

func (s *Sender) setNextTx(v int64) {
	old := s.sndNxt
	s.sndNxt = v
	s.notify(MetricNextTx, float64(old), float64(v))
	s.updateInflight()
}

func (s *Sender) setCwnd(v float64) {
	old := s.cwnd
	s.cwnd = v
	s.notify(MetricCwnd, old, v)
}

func (s *Sender) setSsthresh(v float64) {
	old := s.ssthresh
	s.ssthresh = v
	s.notify(MetricSsthresh, old, v)
}

func (s *Sender) setMode(m Mode) {
	if s.mode != m {
		s.logger.Debug("Mode change", "from", s.mode, "to", m, "cwnd", s.cwnd)
	}
	s.mode = m
}

func (s *Sender) event(metric string, count int) {
	s.notify(metric, float64(count-1), float64(count))
}

func (s *Sender) notify(metric string, old, new float64) {
	if s.observer == nil || old == new {
		return
	}
	s.observer.OnStateChange(StateChange{
		At:     s.eng.Now(),
		Node:   s.node,
		Flow:   s.flow,
		Metric: metric,
		Old:    old,
		New:    new,
	})
}
