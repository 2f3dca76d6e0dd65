package transport

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestSenderFiveSegmentsLossless(t *testing.T) {
	h := newHarness(t, harnessConfig{
		rate:  "10Mbps",
		delay: 2 * time.Millisecond,
		opts:  testOptions(1024),
		total: 5 * 1024,
	})
	h.run(0)

	st := h.sender.State()
	if st.Cwnd != 6*1024 {
		t.Errorf("cwnd = %v, want %v", st.Cwnd, 6*1024)
	}
	if st.SndUna != 5*1024 || st.BytesInFlight != 0 {
		t.Errorf("unexpected state %+v", st)
	}
	if stats := h.sender.Stats(); stats.Retransmissions != 0 || stats.Timeouts != 0 {
		t.Errorf("expected no retransmissions, got %+v", stats)
	}
	if h.received != 5*1024 {
		t.Errorf("received %d bytes, want %d", h.received, 5*1024)
	}
	if !math.IsInf(st.Ssthresh, 1) {
		t.Errorf("ssthresh should still be infinite, got %v", st.Ssthresh)
	}
	if st.Mode != SlowStart {
		t.Errorf("mode = %v, want slow start", st.Mode)
	}
}

func TestSenderTimeoutAtInitialRTO(t *testing.T) {
	h := newHarness(t, harnessConfig{
		rate:  "10Mbps",
		delay: 2 * time.Millisecond,
		loss:  1.0,
		opts:  testOptions(1024),
	})
	h.run(2500 * time.Millisecond)

	timeouts := h.rec.metric(MetricTimeout)
	if len(timeouts) != 1 {
		t.Fatalf("expected exactly one timeout record, got %d", len(timeouts))
	}
	if timeouts[0].At != time.Second {
		t.Errorf("timeout at %v, want 1s", timeouts[0].At)
	}
	if h.received != 0 {
		t.Errorf("nothing should be received, got %d", h.received)
	}
	st := h.sender.State()
	if st.Mode != Loss {
		t.Errorf("mode = %v, want loss", st.Mode)
	}
	if st.Ssthresh != 2*1024 {
		t.Errorf("ssthresh = %v, want two segments", st.Ssthresh)
	}
	if st.RTO != 2*time.Second {
		t.Errorf("rto = %v, want 2s", st.RTO)
	}
}

func TestSenderFastRetransmit(t *testing.T) {
	var (
		cwndBefore float64
		modeAtFR   Mode
		ssAtFR     float64
		frAt       time.Duration
	)
	opts := testOptions(1024)
	opts.InitialWindow = 10
	h := newHarness(t, harnessConfig{
		rate:    "10Mbps",
		delay:   2 * time.Millisecond,
		loss:    0.5,
		lossSrc: &dropCalls{drop: map[int]bool{2: true}},
		opts:    opts,
		total:   40 * 1024,
		observer: func(h *harness, c StateChange) {
			switch c.Metric {
			case MetricSsthresh:
				if cwndBefore == 0 {
					cwndBefore = h.sender.State().Cwnd
				}
			case MetricFastRetransmit:
				st := h.sender.State()
				modeAtFR, ssAtFR, frAt = st.Mode, st.Ssthresh, c.At
			}
		},
	})
	h.run(0)

	stats := h.sender.Stats()
	if stats.FastRetransmits != 1 {
		t.Fatalf("expected one fast retransmit, got %+v", stats)
	}
	if stats.Timeouts != 0 {
		t.Errorf("loss should be repaired before the RTO, got %d timeouts", stats.Timeouts)
	}
	if modeAtFR != FastRecovery {
		t.Errorf("mode at fast retransmit = %v, want fast recovery", modeAtFR)
	}
	if ssAtFR != cwndBefore/2 {
		t.Errorf("ssthresh = %v, want half of %v", ssAtFR, cwndBefore)
	}
	if frAt >= opts.MinRTO {
		t.Errorf("fast retransmit at %v, not before the RTO deadline", frAt)
	}
	if h.received != 40*1024 {
		t.Errorf("received %d, want %d", h.received, 40*1024)
	}
	if h.sender.State().Mode != CongestionAvoidance {
		t.Errorf("final mode = %v, want congestion avoidance", h.sender.State().Mode)
	}
}

func TestSenderPartialAckDeflatesWindow(t *testing.T) {
	opts := testOptions(1024)
	opts.InitialWindow = 10
	seg := int64(opts.SegmentSize)

	type deflation struct {
		old, new float64
		acked    int64
	}
	var (
		prevUna    int64
		deflations []deflation
	)
	h := newHarness(t, harnessConfig{
		rate:    "10Mbps",
		delay:   2 * time.Millisecond,
		loss:    0.5,
		lossSrc: &dropCalls{drop: map[int]bool{2: true, 5: true}},
		opts:    opts,
		total:   40 * 1024,
		observer: func(h *harness, c StateChange) {
			st := h.sender.State()
			if c.Metric == MetricCwnd && st.Mode == FastRecovery && st.SndUna > prevUna && c.New < c.Old {
				deflations = append(deflations, deflation{c.Old, c.New, st.SndUna - prevUna})
			}
			prevUna = st.SndUna
		},
	})
	h.run(0)

	stats := h.sender.Stats()
	if stats.FastRetransmits != 1 || stats.Timeouts != 0 {
		t.Fatalf("both holes should be repaired in one recovery, got %+v", stats)
	}
	if stats.Retransmissions != 2 {
		t.Errorf("retransmissions = %d, want 2", stats.Retransmissions)
	}
	if len(deflations) == 0 {
		t.Fatal("partial ack did not deflate the window")
	}
	d := deflations[0]
	if d.acked != 3*seg {
		t.Errorf("partial ack covered %d bytes, want %d", d.acked, 3*seg)
	}
	if want := d.old - float64(d.acked) + float64(seg); d.new != want {
		t.Errorf("cwnd after partial ack = %v, want %v (was %v)", d.new, want, d.old)
	}
	if h.received != 40*1024 {
		t.Errorf("received %d, want %d", h.received, 40*1024)
	}
	if h.sender.State().Mode != CongestionAvoidance {
		t.Errorf("final mode = %v, want congestion avoidance", h.sender.State().Mode)
	}
}

func TestSenderRTOBackoffCapped(t *testing.T) {
	opts := testOptions(1024)
	opts.MaxRTO = 4 * time.Second
	opts.MaxRetransmits = 10
	h := newHarness(t, harnessConfig{
		rate:  "10Mbps",
		delay: 2 * time.Millisecond,
		loss:  1.0,
		opts:  opts,
	})
	h.run(12 * time.Second)

	want := []time.Duration{1 * time.Second, 3 * time.Second, 7 * time.Second, 11 * time.Second}
	timeouts := h.rec.metric(MetricTimeout)
	if len(timeouts) != len(want) {
		t.Fatalf("got %d timeouts, want %d", len(timeouts), len(want))
	}
	for i, w := range want {
		if timeouts[i].At != w {
			t.Errorf("timeout %d at %v, want %v", i, timeouts[i].At, w)
		}
	}

	var rtos []float64
	for _, c := range h.rec.metric(MetricRTO) {
		rtos = append(rtos, c.New)
	}
	if len(rtos) != 2 || rtos[0] != 2 || rtos[1] != 4 {
		t.Errorf("rto changes = %v, want [2 4]", rtos)
	}

	// every timeout resets the window to the initial window
	for _, c := range h.rec.metric(MetricCwnd) {
		if c.New != 1024 {
			t.Errorf("cwnd changed to %v under total loss", c.New)
		}
	}
}

func TestSenderRetransmissionExhausted(t *testing.T) {
	opts := testOptions(1024)
	opts.MaxRetransmits = 2
	h := newHarness(t, harnessConfig{
		rate:  "10Mbps",
		delay: 2 * time.Millisecond,
		loss:  1.0,
		opts:  opts,
	})
	h.run(0)

	if !errors.Is(h.failure, ErrRetransmissionExhausted) {
		t.Fatalf("expected ErrRetransmissionExhausted, got %v", h.failure)
	}
	if h.failedAt != 7*time.Second {
		t.Errorf("failed at %v, want 7s", h.failedAt)
	}
	if !h.sender.Closed() || !errors.Is(h.sender.Err(), ErrRetransmissionExhausted) {
		t.Error("sender should be closed with the error")
	}
	if h.sender.Stats().Timeouts != 2 {
		t.Errorf("timeouts = %d, want 2", h.sender.Stats().Timeouts)
	}
}

func TestSenderCwndMonotonicWithinPhase(t *testing.T) {
	for _, law := range []GrowthLaw{&Reno{}, NewCubic()} {
		t.Run(law.Name(), func(t *testing.T) {
			type point struct {
				mode Mode
				cwnd float64
			}
			var points []point
			h := newHarness(t, harnessConfig{
				rate:  "10Mbps",
				delay: 10 * time.Millisecond,
				loss:  0.002,
				opts:  testOptions(1024),
				law:   law,
				observer: func(h *harness, c StateChange) {
					if c.Metric == MetricCwnd {
						points = append(points, point{h.sender.State().Mode, c.New})
					}
				},
			})
			h.run(10 * time.Second)

			if h.sender.Stats().FastRetransmits+h.sender.Stats().Timeouts == 0 {
				t.Fatal("expected at least one loss event")
			}
			for i := 1; i < len(points); i++ {
				prev, cur := points[i-1], points[i]
				// partial acks deflate the window inside fast recovery
				if prev.mode == cur.mode && cur.mode != FastRecovery && cur.cwnd < prev.cwnd {
					t.Fatalf("cwnd decreased within %v: %v -> %v", cur.mode, prev.cwnd, cur.cwnd)
				}
			}
		})
	}
}

func TestNewSenderRejectsBadOptions(t *testing.T) {
	opts := testOptions(0)
	if _, err := NewSender(nil, 1, 0, opts, &Reno{}, nil); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("expected ErrInvalidOptions, got %v", err)
	}
	if _, err := NewSender(nil, 1, 0, testOptions(100), nil, nil); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("expected ErrInvalidOptions for nil law, got %v", err)
	}
}
