package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/tcpsim/pkg/models"
)

// Collector collects time-series metrics stamped with simulation time
type Collector struct {
	mu sync.RWMutex

	// Time-series data: metric name -> labels -> []MetricPoint
	timeSeries map[string]map[string][]*models.MetricPoint

	// Aggregated data: metric name -> labels -> Aggregation
	aggregations map[string]map[string]*models.Aggregation
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		timeSeries:   make(map[string]map[string][]*models.MetricPoint),
		aggregations: make(map[string]map[string]*models.Aggregation),
	}
}

// Record records a metric value at a simulation time
func (c *Collector) Record(name string, value float64, at time.Duration, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	labelKey := labelKey(labels)
	if c.timeSeries[name] == nil {
		c.timeSeries[name] = make(map[string][]*models.MetricPoint)
	}

	point := &models.MetricPoint{
		At:     at,
		Name:   name,
		Value:  value,
		Labels: copyLabels(labels),
	}
	c.timeSeries[name][labelKey] = append(c.timeSeries[name][labelKey], point)

	// cached aggregation is stale now
	if c.aggregations[name] != nil {
		delete(c.aggregations[name], labelKey)
	}
}

// GetTimeSeries returns all time-series points for a metric
func (c *Collector) GetTimeSeries(name string, labels map[string]string) []*models.MetricPoint {
	c.mu.RLock()
	defer c.mu.RUnlock()

	points := c.getPointsUnsafe(name, labelKey(labels))
	if points == nil {
		return nil
	}

	// Return a copy
	result := make([]*models.MetricPoint, len(points))
	for i, p := range points {
		result[i] = &models.MetricPoint{
			At:     p.At,
			Name:   p.Name,
			Value:  p.Value,
			Labels: copyLabels(p.Labels),
		}
	}
	return result
}

// GetAggregation calculates and returns aggregated statistics for a metric
func (c *Collector) GetAggregation(name string, labels map[string]string) *models.Aggregation {
	c.mu.RLock()
	defer c.mu.RUnlock()

	points := c.getPointsUnsafe(name, labelKey(labels))
	if len(points) == 0 {
		return nil
	}
	return calculateAggregation(points)
}

// GetOrComputeAggregation gets cached aggregation or computes it
func (c *Collector) GetOrComputeAggregation(name string, labels map[string]string) *models.Aggregation {
	c.mu.Lock()
	defer c.mu.Unlock()

	labelKey := labelKey(labels)
	if c.aggregations[name] == nil {
		c.aggregations[name] = make(map[string]*models.Aggregation)
	}

	// Check cache
	if agg, ok := c.aggregations[name][labelKey]; ok {
		return agg
	}

	// Compute and cache
	points := c.getPointsUnsafe(name, labelKey)
	if len(points) == 0 {
		return nil
	}

	agg := calculateAggregation(points)
	c.aggregations[name][labelKey] = agg
	return agg
}

// Summary aggregates every metric across all of its label combinations
func (c *Collector) Summary() map[string]*models.Aggregation {
	c.mu.RLock()
	defer c.mu.RUnlock()

	summary := make(map[string]*models.Aggregation, len(c.timeSeries))
	for name, labelMap := range c.timeSeries {
		var all []*models.MetricPoint
		for _, points := range labelMap {
			all = append(all, points...)
		}
		if agg := calculateAggregation(all); agg != nil {
			summary[name] = agg
		}
	}
	return summary
}

// GetMetricNames returns all metric names that have been collected, sorted
func (c *Collector) GetMetricNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.timeSeries))
	for name := range c.timeSeries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetLabelsForMetric returns all label combinations for a metric
func (c *Collector) GetLabelsForMetric(name string) []map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.timeSeries[name] == nil {
		return nil
	}

	keys := make([]string, 0, len(c.timeSeries[name]))
	for key := range c.timeSeries[name] {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	labelsList := make([]map[string]string, 0, len(keys))
	for _, key := range keys {
		if points := c.timeSeries[name][key]; len(points) > 0 {
			labelsList = append(labelsList, copyLabels(points[0].Labels))
		}
	}
	return labelsList
}

// getPointsUnsafe returns points without locking (caller must hold lock)
func (c *Collector) getPointsUnsafe(name, labelKey string) []*models.MetricPoint {
	if c.timeSeries[name] == nil {
		return nil
	}
	return c.timeSeries[name][labelKey]
}

// labelKey creates a key from labels for map lookup
func labelKey(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	key := ""
	for _, k := range keys {
		key += k + "=" + labels[k] + ","
	}
	return key
}

// copyLabels creates a copy of the labels map
func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

// calculateAggregation calculates aggregated statistics from metric points
func calculateAggregation(points []*models.MetricPoint) *models.Aggregation {
	if len(points) == 0 {
		return nil
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	return aggregate(values)
}

func aggregate(values []float64) *models.Aggregation {
	if len(values) == 0 {
		return nil
	}
	sort.Float64s(values)

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return &models.Aggregation{
		Count: int64(len(values)),
		Sum:   sum,
		Min:   values[0],
		Max:   values[len(values)-1],
		Mean:  sum / float64(len(values)),
		P50:   calculatePercentile(values, 0.50),
		P95:   calculatePercentile(values, 0.95),
		P99:   calculatePercentile(values, 0.99),
	}
}

// calculatePercentile calculates the percentile value from a sorted slice
func calculatePercentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return 0.0
	}
	if len(sortedValues) == 1 {
		return sortedValues[0]
	}

	index := p * float64(len(sortedValues)-1)
	lower := int(index)
	upper := lower + 1

	if upper >= len(sortedValues) {
		return sortedValues[len(sortedValues)-1]
	}

	weight := index - float64(lower)
	return sortedValues[lower]*(1-weight) + sortedValues[upper]*weight
}
