package transport

import (
	"context"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/tcpsim/internal/engine"
	"github.com/GoSim-25-26J-441/tcpsim/internal/link"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/logger"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/utils"
)

// dropCalls drops the frames whose 1-based Bernoulli call index is listed
type dropCalls struct {
	calls int
	drop  map[int]bool
}

func (d *dropCalls) BernoulliBool(float64) bool {
	d.calls++
	return d.drop[d.calls]
}

type recorder struct {
	changes []StateChange
}

func (r *recorder) OnStateChange(c StateChange) { r.changes = append(r.changes, c) }

func (r *recorder) metric(name string) []StateChange {
	var out []StateChange
	for _, c := range r.changes {
		if c.Metric == name {
			out = append(out, c)
		}
	}
	return out
}

type harness struct {
	t        *testing.T
	eng      *engine.Engine
	sender   *Sender
	receiver *Receiver
	rec      *recorder
	received int64
	failure  error
	failedAt time.Duration
}

type harnessConfig struct {
	rate     string
	delay    time.Duration
	loss     float64
	lossSrc  link.LossSource
	opts     Options
	law      GrowthLaw
	total    int64 // 0 means unlimited
	observer func(h *harness, c StateChange)
}

func newHarness(t *testing.T, hc harnessConfig) *harness {
	t.Helper()
	eng := engine.NewEngine()
	eng.SetLogger(logger.Discard())

	rate, err := link.ParseDataRate(hc.rate)
	if err != nil {
		t.Fatalf("ParseDataRate: %v", err)
	}
	fwdLink, err := link.NewLink(rate, hc.delay, hc.loss)
	if err != nil {
		t.Fatalf("NewLink: %v", err)
	}
	revLink, err := link.NewLink(rate, hc.delay, 0)
	if err != nil {
		t.Fatalf("NewLink: %v", err)
	}
	lossSrc := hc.lossSrc
	if lossSrc == nil {
		lossSrc = utils.NewRandSource(1)
	}
	fwd := link.NewChannel("fwd", eng, fwdLink, lossSrc, 0)
	rev := link.NewChannel("rev", eng, revLink, nil, 0)

	h := &harness{t: t, eng: eng, rec: &recorder{}}
	law := hc.law
	if law == nil {
		law = &Reno{}
	}

	h.receiver = NewReceiver(eng, 1, 3, hc.opts.HeaderBytes, func(a Ack) {
		rev.Send(a, func(f link.Frame) { h.sender.OnAck(f.(Ack)) })
	})
	h.receiver.OnData(func(s Segment) { h.received += int64(s.Size) })

	h.sender, err = NewSender(eng, 1, 0, hc.opts, law, func(s Segment) {
		fwd.Send(s, func(f link.Frame) { h.receiver.OnSegment(f.(Segment)) })
	})
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	h.sender.SetObserver(ObserverFunc(func(c StateChange) {
		h.rec.OnStateChange(c)
		if hc.observer != nil {
			hc.observer(h, c)
		}
	}))
	h.sender.OnFailure(func(err error) {
		h.failure = err
		h.failedAt = eng.Now()
	})

	var written int64
	seg := int64(hc.opts.SegmentSize)
	feed := func() {
		for h.sender.Room() >= seg && (hc.total == 0 || written < hc.total) {
			n := seg
			if hc.total > 0 && hc.total-written < n {
				n = hc.total - written
			}
			written += n
			h.sender.Write(int(n))
		}
	}
	h.sender.OnWindowOpen(feed)
	if _, err := eng.Schedule(0, engine.EventKindApp, feed); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	return h
}

func (h *harness) run(until time.Duration) {
	h.t.Helper()
	if err := h.eng.Run(context.Background(), until); err != nil {
		h.t.Fatalf("Run failed: %v", err)
	}
}

func testOptions(seg int) Options {
	opts := DefaultOptions()
	opts.SegmentSize = seg
	return opts
}
