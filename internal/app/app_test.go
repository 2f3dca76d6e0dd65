package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/tcpsim/internal/engine"
	"github.com/GoSim-25-26J-441/tcpsim/internal/link"
	"github.com/GoSim-25-26J-441/tcpsim/internal/transport"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/logger"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/utils"
)

type flow struct {
	eng  *engine.Engine
	bulk *BulkSender
	sink *Sink
	snd  *transport.Sender
}

func newFlow(t *testing.T, loss float64, opts transport.Options) *flow {
	t.Helper()
	eng := engine.NewEngine()
	eng.SetLogger(logger.Discard())

	l, err := link.NewLink(10e6, 2*time.Millisecond, loss)
	if err != nil {
		t.Fatalf("NewLink: %v", err)
	}
	rng := utils.NewRandSource(5)
	fwd := link.NewChannel("fwd", eng, l, rng, 0)
	rev := link.NewChannel("rev", eng, l, nil, 0)

	f := &flow{eng: eng, sink: NewSink()}
	recv := transport.NewReceiver(eng, 1, 1, opts.HeaderBytes, func(a transport.Ack) {
		rev.Send(a, func(fr link.Frame) { f.snd.OnAck(fr.(transport.Ack)) })
	})
	recv.OnData(f.sink.Receive)
	f.snd, err = transport.NewSender(eng, 1, 0, opts, &transport.Reno{}, func(s transport.Segment) {
		fwd.Send(s, func(fr link.Frame) { recv.OnSegment(fr.(transport.Segment)) })
	})
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	f.bulk = NewBulkSender(eng, f.snd)
	return f
}

func TestBulkSenderFiniteTransfer(t *testing.T) {
	opts := transport.DefaultOptions()
	opts.SegmentSize = 1000
	f := newFlow(t, 0, opts)
	if err := f.bulk.Install(time.Second, 10*time.Second, 25500); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if err := f.eng.Run(context.Background(), 10*time.Second); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if f.snd.Stats().BytesAcked != 25500 {
		t.Errorf("acked = %d, want 25500", f.snd.Stats().BytesAcked)
	}
	if f.sink.TotalReceivedBytes() != 25500 {
		t.Errorf("received = %d, want 25500", f.sink.TotalReceivedBytes())
	}
	if !f.snd.Closed() {
		t.Error("stop should close the connection")
	}
}

func TestBulkSenderUnlimitedFillsThePipe(t *testing.T) {
	opts := transport.DefaultOptions()
	opts.SegmentSize = 1000
	f := newFlow(t, 0, opts)
	if err := f.bulk.Install(0, 2*time.Second, 0); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if err := f.eng.Run(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	goodput := f.sink.Goodput(2 * time.Second)
	// slow start from one segment reaches a good share of 10Mbps within 2s
	if goodput < 5e6 || goodput > 10e6 {
		t.Errorf("goodput = %v bps", goodput)
	}
}

func TestBulkSenderRecordsFailure(t *testing.T) {
	opts := transport.DefaultOptions()
	opts.SegmentSize = 1000
	opts.MaxRetransmits = 1
	f := newFlow(t, 1.0, opts)
	if err := f.bulk.Install(0, time.Minute, 0); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if err := f.eng.Run(context.Background(), time.Minute); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !errors.Is(f.bulk.Err(), transport.ErrRetransmissionExhausted) {
		t.Errorf("expected ErrRetransmissionExhausted, got %v", f.bulk.Err())
	}
	if f.sink.TotalReceivedBytes() != 0 {
		t.Error("nothing should arrive on a fully lossy link")
	}
}

func TestInstallRejectsStopBeforeStart(t *testing.T) {
	f := newFlow(t, 0, transport.DefaultOptions())
	if err := f.bulk.Install(2*time.Second, time.Second, 0); err == nil {
		t.Error("expected error")
	}
}

func TestSinkReordersAndStops(t *testing.T) {
	s := NewSink()
	s.Receive(transport.Segment{Seq: 100, Size: 100})
	if s.TotalReceivedBytes() != 0 {
		t.Errorf("out of order bytes counted early: %d", s.TotalReceivedBytes())
	}
	s.Receive(transport.Segment{Seq: 0, Size: 100})
	if s.TotalReceivedBytes() != 200 {
		t.Errorf("received = %d, want 200", s.TotalReceivedBytes())
	}
	s.Stop()
	s.Receive(transport.Segment{Seq: 200, Size: 100})
	if s.TotalReceivedBytes() != 200 {
		t.Errorf("segments after stop were counted")
	}
}

func TestSinkStopIsExclusive(t *testing.T) {
	eng := engine.NewEngine()
	eng.SetLogger(logger.Discard())
	s := NewSink()
	stop := 2 * time.Second

	if _, err := eng.ScheduleAt(stop, engine.EventKindApp, s.Stop); err != nil {
		t.Fatalf("ScheduleAt failed: %v", err)
	}
	arrivals := []struct {
		at  time.Duration
		seq int64
	}{
		{stop - time.Nanosecond, 0},
		{stop, 100},
	}
	for _, a := range arrivals {
		seg := transport.Segment{Seq: a.seq, Size: 100}
		if _, err := eng.ScheduleAt(a.at, engine.EventKindArrival, func() { s.Receive(seg) }); err != nil {
			t.Fatalf("ScheduleAt failed: %v", err)
		}
	}
	if err := eng.Run(context.Background(), stop); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if s.TotalReceivedBytes() != 100 {
		t.Errorf("received = %d, want only the segment before the stop time", s.TotalReceivedBytes())
	}
}

func TestGoodput(t *testing.T) {
	tests := []struct {
		bytes int64
		obs   time.Duration
		want  float64
	}{
		{1000, time.Second, 8000},
		{2500000, 20 * time.Second, 1e6},
		{100, 0, 0},
	}
	for _, tt := range tests {
		if got := Goodput(tt.bytes, tt.obs); got != tt.want {
			t.Errorf("Goodput(%d, %v) = %v, want %v", tt.bytes, tt.obs, got, tt.want)
		}
	}
}
