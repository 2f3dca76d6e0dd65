package link

import (
	"context"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/tcpsim/internal/engine"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/logger"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/utils"
)

type testFrame int

func (f testFrame) WireSize() int { return int(f) }

type alwaysLose struct{}

func (alwaysLose) BernoulliBool(p float64) bool { return p > 0 }

func mustLink(t *testing.T, rate string, delay time.Duration, loss float64) Link {
	t.Helper()
	r, err := ParseDataRate(rate)
	if err != nil {
		t.Fatalf("ParseDataRate(%q): %v", rate, err)
	}
	l, err := NewLink(r, delay, loss)
	if err != nil {
		t.Fatalf("NewLink: %v", err)
	}
	return l
}

func TestDataRateTxTime(t *testing.T) {
	tests := []struct {
		rate  string
		bytes int
		want  time.Duration
	}{
		{"10Mbps", 1250, time.Millisecond},
		{"1Mbps", 125, time.Millisecond},
		{"8bps", 1, time.Second},
		{"100Mbps", 1500, 120 * time.Microsecond},
	}
	for _, tt := range tests {
		r, err := ParseDataRate(tt.rate)
		if err != nil {
			t.Fatalf("ParseDataRate(%q): %v", tt.rate, err)
		}
		if got := r.TxTime(tt.bytes); got != tt.want {
			t.Errorf("%s TxTime(%d) = %v, want %v", tt.rate, tt.bytes, got, tt.want)
		}
	}
}

func TestNewLinkValidation(t *testing.T) {
	if _, err := NewLink(0, time.Millisecond, 0); err == nil {
		t.Error("expected error for zero rate")
	}
	if _, err := NewLink(1e6, -time.Millisecond, 0); err == nil {
		t.Error("expected error for negative delay")
	}
	if _, err := NewLink(1e6, 0, 1.1); err == nil {
		t.Error("expected error for loss above one")
	}
}

func TestLinkTransmit(t *testing.T) {
	l := mustLink(t, "10Mbps", 2*time.Millisecond, 0)
	arrival, ok := l.Transmit(testFrame(1250), time.Second, utils.NewRandSource(1))
	if !ok {
		t.Fatal("frame should be delivered on a lossless link")
	}
	if want := time.Second + time.Millisecond + 2*time.Millisecond; arrival != want {
		t.Errorf("arrival = %v, want %v", arrival, want)
	}

	lossy := mustLink(t, "10Mbps", 2*time.Millisecond, 1)
	if _, ok := lossy.Transmit(testFrame(100), 0, utils.NewRandSource(1)); ok {
		t.Error("loss probability 1 must drop")
	}
	if _, ok := lossy.Transmit(testFrame(100), 0, nil); !ok {
		t.Error("nil loss source must never drop")
	}
}

func TestLinkLossRateIsApproximatelyHonoured(t *testing.T) {
	l := mustLink(t, "10Mbps", 0, 0.1)
	rng := utils.NewRandSource(42)
	lost := 0
	const n = 20000
	for i := 0; i < n; i++ {
		if _, ok := l.Transmit(testFrame(100), 0, rng); !ok {
			lost++
		}
	}
	if frac := float64(lost) / n; frac < 0.09 || frac > 0.11 {
		t.Errorf("loss fraction %v not near 0.1", frac)
	}
}

func newEngine() *engine.Engine {
	e := engine.NewEngine()
	e.SetLogger(logger.Discard())
	return e
}

func TestChannelSerializesBackToBack(t *testing.T) {
	eng := newEngine()
	ch := NewChannel("a->b", eng, mustLink(t, "10Mbps", 5*time.Millisecond, 0), nil, 0)

	var arrivals []time.Duration
	for i := 0; i < 3; i++ {
		ch.Send(testFrame(1250), func(Frame) { arrivals = append(arrivals, eng.Now()) })
	}
	if err := eng.Run(context.Background(), 0); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []time.Duration{6 * time.Millisecond, 7 * time.Millisecond, 8 * time.Millisecond}
	if len(arrivals) != len(want) {
		t.Fatalf("got %d arrivals, want %d", len(arrivals), len(want))
	}
	for i := range want {
		if arrivals[i] != want[i] {
			t.Errorf("frame %d arrived at %v, want %v", i, arrivals[i], want[i])
		}
	}
	stats := ch.Stats()
	if stats.Sent != 3 || stats.Delivered != 3 || stats.Bytes != 3750 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestChannelDropTail(t *testing.T) {
	tests := []struct {
		maxWaiting int
		sent       int
		accepted   int
	}{
		{1, 5, 2},
		{2, 5, 3},
		{5, 5, 5},
		{0, 20, 20},
	}
	for _, tt := range tests {
		eng := newEngine()
		ch := NewChannel("a->b", eng, mustLink(t, "1Mbps", 0, 0), nil, tt.maxWaiting)
		var drops []DropReason
		ch.OnDrop(func(_ Frame, r DropReason) { drops = append(drops, r) })

		accepted := 0
		for i := 0; i < tt.sent; i++ {
			if ch.Send(testFrame(1000), func(Frame) {}) {
				accepted++
			}
		}
		// one frame on the wire plus maxWaiting queued
		if accepted != tt.accepted {
			t.Errorf("maxWaiting %d: accepted %d frames, want %d", tt.maxWaiting, accepted, tt.accepted)
		}
		if dropped := tt.sent - tt.accepted; len(drops) != dropped || (dropped > 0 && drops[0] != DropQueue) {
			t.Errorf("maxWaiting %d: unexpected drops %v", tt.maxWaiting, drops)
		}
		if err := eng.Run(context.Background(), 0); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if ch.Stats().QueueDrops != int64(tt.sent-tt.accepted) {
			t.Errorf("maxWaiting %d: QueueDrops = %d", tt.maxWaiting, ch.Stats().QueueDrops)
		}

		// the queue drains, so later frames are accepted again
		if !ch.Send(testFrame(1000), func(Frame) {}) {
			t.Errorf("maxWaiting %d: frame should be accepted after the queue drained", tt.maxWaiting)
		}
	}
}

func TestChannelLossSchedulesNothing(t *testing.T) {
	eng := newEngine()
	ch := NewChannel("a->b", eng, mustLink(t, "1Mbps", time.Millisecond, 1), alwaysLose{}, 0)
	delivered := false
	var reason DropReason
	ch.OnDrop(func(_ Frame, r DropReason) { reason = r })
	ch.Send(testFrame(100), func(Frame) { delivered = true })
	if err := eng.Run(context.Background(), 0); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if delivered {
		t.Error("lost frame was delivered")
	}
	if reason != DropLoss || ch.Stats().Lost != 1 {
		t.Errorf("expected loss drop, got %q and %+v", reason, ch.Stats())
	}
}

func TestPathForwardsHopByHop(t *testing.T) {
	eng := newEngine()
	access := mustLink(t, "100Mbps", 10*time.Microsecond, 0)
	bottleneck := mustLink(t, "10Mbps", 20*time.Millisecond, 0)
	p := NewPath(
		NewChannel("s->n1", eng, access, nil, 0),
		NewChannel("n1->n2", eng, bottleneck, nil, 0),
		NewChannel("n2->d", eng, access, nil, 0),
	)

	var at time.Duration
	p.Send(testFrame(1250), func(Frame) { at = eng.Now() })
	if err := eng.Run(context.Background(), 0); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// 100us + 10us, 1ms + 20ms, 100us + 10us
	want := 2*(100*time.Microsecond+10*time.Microsecond) + time.Millisecond + 20*time.Millisecond
	if at != want {
		t.Errorf("arrival = %v, want %v", at, want)
	}
	if p.PropagationDelay() != 20*time.Millisecond+20*time.Microsecond {
		t.Errorf("PropagationDelay = %v", p.PropagationDelay())
	}
	if p.Bottleneck() != 10e6 {
		t.Errorf("Bottleneck = %v", p.Bottleneck())
	}
}
