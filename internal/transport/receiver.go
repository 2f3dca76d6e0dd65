package transport

import (
	"github.com/GoSim-25-26J-441/tcpsim/internal/engine"
)

// ReceiverStats are the per-flow receive counters
type ReceiverStats struct {
	Segments   int64
	Bytes      int64
	Duplicates int64
	OutOfOrder int64
	AcksSent   int64
}

// Receiver acknowledges every arriving segment cumulatively
type Receiver struct {
	eng      *engine.Engine
	flow     int
	node     int
	header   int
	reasm    Reassembly
	sendAck  func(Ack)
	onData   func(Segment)
	observer Observer
	stats    ReceiverStats
}

// NewReceiver returns a receiver that emits acks through sendAck
func NewReceiver(eng *engine.Engine, flow, node, headerBytes int, sendAck func(Ack)) *Receiver {
	return &Receiver{
		eng:     eng,
		flow:    flow,
		node:    node,
		header:  headerBytes,
		sendAck: sendAck,
	}
}

// SetObserver attaches a trace observer
func (r *Receiver) SetObserver(o Observer) { r.observer = o }

// OnData registers the application callback for every arriving segment
func (r *Receiver) OnData(fn func(Segment)) { r.onData = fn }

// Stats returns a copy of the counters
func (r *Receiver) Stats() ReceiverStats { return r.stats }

// NextExpected returns the cumulative ack point
func (r *Receiver) NextExpected() int64 { return r.reasm.Next() }

// OnSegment handles an arriving data segment
func (r *Receiver) OnSegment(seg Segment) {
	r.stats.Segments++
	r.stats.Bytes += int64(seg.Size)

	old := r.reasm.Next()
	switch {
	case seg.End() <= old:
		r.stats.Duplicates++
	case seg.Seq > old:
		r.stats.OutOfOrder++
	}
	r.reasm.Add(seg.Seq, seg.Size)
	if next := r.reasm.Next(); next != old && r.observer != nil {
		r.observer.OnStateChange(StateChange{
			At: r.eng.Now(), Node: r.node, Flow: r.flow,
			Metric: MetricNextRx, Old: float64(old), New: float64(next),
		})
	}

	if r.onData != nil {
		r.onData(seg)
	}

	r.stats.AcksSent++
	r.sendAck(Ack{
		Flow:               r.flow,
		AckNo:              r.reasm.Next(),
		EchoSentAt:         seg.SentAt,
		EchoRetransmission: seg.Retransmission,
		Header:             r.header,
	})
}
