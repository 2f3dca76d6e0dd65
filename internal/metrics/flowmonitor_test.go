package metrics

import (
	"math"
	"path/filepath"
	"testing"
	"time"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestFlowMonitorCounts(t *testing.T) {
	m := NewFlowMonitor(nil)
	m.Register(1, 0, 3)

	m.OnTx(1, time.Second, 380)
	m.OnTx(1, 1100*time.Millisecond, 380)
	m.OnTx(1, 1200*time.Millisecond, 380)
	m.OnLost(1)
	m.OnRx(1, 1050*time.Millisecond, time.Second, 380)
	m.OnRx(1, 1170*time.Millisecond, 1100*time.Millisecond, 380)

	stats := m.Stats()
	if len(stats) != 1 {
		t.Fatalf("expected 1 flow, got %d", len(stats))
	}
	s := stats[0]
	if s.Flow != 1 || s.Source != 0 || s.Destination != 3 {
		t.Fatalf("unexpected endpoints %+v", s)
	}
	if s.TxPackets != 3 || s.TxBytes != 1140 || s.RxPackets != 2 || s.RxBytes != 760 || s.LostPackets != 1 {
		t.Fatalf("unexpected counters %+v", s)
	}
	if !almostEqual(s.DelaySumSec, 0.12) {
		t.Errorf("delay sum = %f, want 0.12", s.DelaySumSec)
	}
	if !almostEqual(s.MeanDelaySec, 0.06) {
		t.Errorf("mean delay = %f, want 0.06", s.MeanDelaySec)
	}
	if !almostEqual(s.JitterSumSec, 0.02) {
		t.Errorf("jitter sum = %f, want 0.02", s.JitterSumSec)
	}
	if s.FirstTxSec != 1 || !almostEqual(s.LastRxSec, 1.17) {
		t.Errorf("first tx %f last rx %f", s.FirstTxSec, s.LastRxSec)
	}
	if !almostEqual(s.ThroughputBps, 760*8/0.17) {
		t.Errorf("throughput = %f", s.ThroughputBps)
	}
	if s.DelayHistogram == nil || s.DelayHistogram.Count != 2 || !almostEqual(s.DelayHistogram.Max, 70) {
		t.Errorf("unexpected delay histogram %+v", s.DelayHistogram)
	}
}

func TestFlowMonitorOrdersFlows(t *testing.T) {
	m := NewFlowMonitor(NewCollector())
	m.OnTx(3, 0, 1)
	m.OnTx(1, 0, 1)
	m.OnTx(2, 0, 1)

	stats := m.Stats()
	for i, s := range stats {
		if s.Flow != i+1 {
			t.Fatalf("flow %d at position %d", s.Flow, i)
		}
		if s.RxPackets != 0 || s.ThroughputBps != 0 || s.DelayHistogram != nil {
			t.Fatalf("unexpected rx stats for silent flow %+v", s)
		}
	}
}

func TestFlowMonitorExport(t *testing.T) {
	m := NewFlowMonitor(nil)
	m.Register(1, 0, 3)
	m.Register(2, 0, 4)
	m.OnTx(1, time.Second, 100)
	m.OnRx(1, 2*time.Second, time.Second, 100)
	m.OnTx(2, time.Second, 200)
	m.OnLost(2)

	for _, name := range []string{"flows.json", "flows.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			if err := m.Export(path); err != nil {
				t.Fatalf("Export failed: %v", err)
			}
			got, err := ReadFlowStats(path)
			if err != nil {
				t.Fatalf("ReadFlowStats failed: %v", err)
			}
			want := m.Stats()
			if len(got) != len(want) {
				t.Fatalf("got %d flows, want %d", len(got), len(want))
			}
			for i := range want {
				if got[i].Flow != want[i].Flow || got[i].RxBytes != want[i].RxBytes ||
					got[i].LostPackets != want[i].LostPackets || got[i].Destination != want[i].Destination {
					t.Errorf("flow %d = %+v, want %+v", i, got[i], want[i])
				}
			}
		})
	}
}
