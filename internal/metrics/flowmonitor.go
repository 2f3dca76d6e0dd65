package metrics

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/GoSim-25-26J-441/tcpsim/pkg/models"
)

type flowRecord struct {
	stats     models.FlowStats
	firstTx   time.Duration
	lastRx    time.Duration
	lastDelay time.Duration
	seenTx    bool
	seenRx    bool
}

// FlowMonitor keeps per-flow packet statistics. Per-packet delays are
// recorded in the collector under MetricPacketDelay.
type FlowMonitor struct {
	mu        sync.Mutex
	collector *Collector
	flows     map[int]*flowRecord
}

// NewFlowMonitor creates a monitor recording delays into collector.
// A nil collector gets a private one.
func NewFlowMonitor(collector *Collector) *FlowMonitor {
	if collector == nil {
		collector = NewCollector()
	}
	return &FlowMonitor{
		collector: collector,
		flows:     make(map[int]*flowRecord),
	}
}

// Collector returns the collector holding the delay samples
func (m *FlowMonitor) Collector() *Collector {
	return m.collector
}

// Register names the endpoints of a flow
func (m *FlowMonitor) Register(flow, source, destination int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.record(flow)
	r.stats.Source = source
	r.stats.Destination = destination
}

func (m *FlowMonitor) record(flow int) *flowRecord {
	r, ok := m.flows[flow]
	if !ok {
		r = &flowRecord{stats: models.FlowStats{Flow: flow}}
		m.flows[flow] = r
	}
	return r
}

// OnTx counts a packet leaving the source
func (m *FlowMonitor) OnTx(flow int, at time.Duration, bytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.record(flow)
	if !r.seenTx {
		r.firstTx = at
		r.seenTx = true
	}
	r.stats.TxPackets++
	r.stats.TxBytes += int64(bytes)
}

// OnRx counts a packet reaching the destination
func (m *FlowMonitor) OnRx(flow int, at, sentAt time.Duration, bytes int) {
	m.mu.Lock()
	r := m.record(flow)
	delay := at - sentAt
	if r.seenRx {
		r.stats.JitterSumSec += math.Abs((delay - r.lastDelay).Seconds())
	}
	r.seenRx = true
	r.lastDelay = delay
	r.lastRx = at
	r.stats.RxPackets++
	r.stats.RxBytes += int64(bytes)
	r.stats.DelaySumSec += delay.Seconds()
	m.mu.Unlock()

	RecordPacketDelay(m.collector, delay, at, CreateFlowLabels(flow))
}

// OnLost counts a packet dropped in the network
func (m *FlowMonitor) OnLost(flow int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(flow).stats.LostPackets++
}

// Stats returns the statistics of every flow ordered by flow id
func (m *FlowMonitor) Stats() []models.FlowStats {
	m.mu.Lock()
	ids := make([]int, 0, len(m.flows))
	for id := range m.flows {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]models.FlowStats, 0, len(ids))
	for _, id := range ids {
		r := m.flows[id]
		s := r.stats
		if s.RxPackets > 0 {
			s.MeanDelaySec = s.DelaySumSec / float64(s.RxPackets)
		}
		if r.seenTx {
			s.FirstTxSec = r.firstTx.Seconds()
		}
		if r.seenRx {
			s.LastRxSec = r.lastRx.Seconds()
			if span := (r.lastRx - r.firstTx).Seconds(); span > 0 {
				s.ThroughputBps = float64(s.RxBytes) * 8 / span
			}
		}
		out = append(out, s)
	}
	m.mu.Unlock()

	for i := range out {
		out[i].DelayHistogram = m.collector.GetAggregation(MetricPacketDelay, CreateFlowLabels(out[i].Flow))
	}
	return out
}

type flowStatsFile struct {
	Flows []models.FlowStats `json:"flows" yaml:"flows"`
}

// Export writes the flow statistics to path as JSON or YAML by extension
func (m *FlowMonitor) Export(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create flow monitor dir %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create flow monitor file %s: %w", path, err)
	}
	defer f.Close()

	doc := flowStatsFile{Flows: m.Stats()}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		enc := yaml.NewEncoder(f)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode flow stats: %w", err)
		}
		if err := enc.Close(); err != nil {
			return err
		}
	default:
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode flow stats: %w", err)
		}
	}
	return f.Close()
}

// ReadFlowStats reads a file written by Export
func ReadFlowStats(path string) ([]models.FlowStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow stats %s: %w", path, err)
	}
	var doc flowStatsFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode flow stats %s: %w", path, err)
	}
	return doc.Flows, nil
}
