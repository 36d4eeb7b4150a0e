package metrics

import (
	"sync"
	"time"
)

var (
	_counters      = map[string]Counter{}
	_lockCounters  = sync.RWMutex{}
	_gauges        = map[string]Gauge{}
	_lockGauges    = sync.RWMutex{}
	_maxGauges     = map[string]Gauge{}
	_lockMaxGauges = sync.RWMutex{}
	_avgGauges     = map[string]Gauge{}
	_lockAvgGauges = sync.RWMutex{}
)

// IncrCounterWithGroup increases a counter metric with the given group.
func IncrCounterWithGroup(name string, group string, value Value) {
	if c := getCounter(name, group); c != nil {
		c.Incr(value)
	}
}

// IncrCounterWithDimGroup increases a counter metric with group and
// dimensions.
func IncrCounterWithDimGroup(name string, group string, value Value, dimensions Dimension) {
	if c := getCounter(name, group); c != nil {
		c.IncrWithDim(value, dimensions)
	}
}

// UpdateGaugeWithGroup updates a gauge metric with the given group.
func UpdateGaugeWithGroup(name string, group string, value Value) {
	if g := getGauge(name, group); g != nil {
		g.Update(value)
	}
}

// UpdateGaugeWithDimGroup updates a gauge metric with group and dimensions.
func UpdateGaugeWithDimGroup(name string, group string, value Value, dimensions Dimension) {
	if g := getGauge(name, group); g != nil {
		g.UpdateWithDim(value, dimensions)
	}
}

// UpdateMaxGaugeWithGroup updates a max gauge, which retains the highest
// observed value.
func UpdateMaxGaugeWithGroup(name string, group string, value Value) {
	if g := getMaxGauge(name, group); g != nil {
		g.Update(value)
	}
}

// UpdateAvgGaugeWithGroup updates an average gauge, which tracks the mean
// of observed values.
func UpdateAvgGaugeWithGroup(name string, group string, value Value) {
	if g := getAvgGauge(name, group); g != nil {
		g.Update(value)
	}
}

// RecordStopwatchWithGroup reports the elapsed time since startTime as an
// average-aggregated duration in milliseconds, returning the duration.
func RecordStopwatchWithGroup(name string, group string, startTime time.Time) time.Duration {
	d := time.Since(startTime)
	UpdateAvgGaugeWithGroup(name, group, Value(d.Milliseconds()))
	return d
}

func getCounter(name string, group string) Counter {
	_lockCounters.RLock()
	c, ok := _counters[name]
	_lockCounters.RUnlock()
	if ok && c != nil {
		return c
	}

	_lockCounters.Lock()
	defer _lockCounters.Unlock()
	if c, ok = _counters[name]; ok && c != nil {
		return c
	}
	c = &counter{name: name, group: group}
	_counters[name] = c
	return c
}

func getGauge(name string, group string) Gauge {
	_lockGauges.RLock()
	g, ok := _gauges[name]
	_lockGauges.RUnlock()
	if ok && g != nil {
		return g
	}

	_lockGauges.Lock()
	defer _lockGauges.Unlock()
	if g, ok = _gauges[name]; ok && g != nil {
		return g
	}
	g = &gauge{name: name, group: group}
	_gauges[name] = g
	return g
}

func getMaxGauge(name string, group string) Gauge {
	_lockMaxGauges.RLock()
	g, ok := _maxGauges[name]
	_lockMaxGauges.RUnlock()
	if ok && g != nil {
		return g
	}

	_lockMaxGauges.Lock()
	defer _lockMaxGauges.Unlock()
	if g, ok = _maxGauges[name]; ok && g != nil {
		return g
	}
	g = &maxGauge{name: name, group: group}
	_maxGauges[name] = g
	return g
}

func getAvgGauge(name string, group string) Gauge {
	_lockAvgGauges.RLock()
	g, ok := _avgGauges[name]
	_lockAvgGauges.RUnlock()
	if ok && g != nil {
		return g
	}

	_lockAvgGauges.Lock()
	defer _lockAvgGauges.Unlock()
	if g, ok = _avgGauges[name]; ok && g != nil {
		return g
	}
	g = &avgGauge{name: name, group: group}
	_avgGauges[name] = g
	return g
}
