package metrics

import "fmt"

// Record represents a single metric measurement with its metadata: the
// metric definition, the measured value, a count (for averaging), and the
// dimensions that label it.
type Record struct {
	metrics    Metrics
	value      Value
	cnt        int
	dimensions Dimension
}

// Clone creates a deep copy of the Record.
func (r *Record) Clone() *Record {
	cp := &Record{
		metrics: r.metrics,
		value:   r.value,
		cnt:     r.cnt,
	}
	cp.dimensions = make(Dimension, len(r.dimensions))
	for k, v := range r.dimensions {
		cp.dimensions[k] = v
	}
	return cp
}

// Metrics returns the metric definition associated with this record.
func (r *Record) Metrics() Metrics {
	return r.metrics
}

// Value returns the processed value based on the metric's policy. For
// averaging policies it is value/count; otherwise the raw value.
func (r *Record) Value() Value {
	switch r.metrics.Policy() {
	case Policy_Avg, Policy_Stopwatch:
		if r.cnt != 0 {
			return r.value / Value(r.cnt)
		}
	}
	return r.value
}

// RawData returns the raw value and count without processing.
func (r *Record) RawData() (Value, int) {
	return r.value, r.cnt
}

// Dimensions returns the labels attached to this record.
func (r *Record) Dimensions() map[string]string {
	return r.dimensions
}

// Merge combines another Record into this one according to the metric's
// policy. Both records must describe the same metric and carry identical
// dimensions.
func (r *Record) Merge(other Record) error {
	if r.metrics.Name() != other.metrics.Name() {
		return fmt.Errorf("metrics name(%s,%s) not equal", r.metrics.Name(), other.metrics.Name())
	}
	if r.metrics.Group() != other.metrics.Group() {
		return fmt.Errorf("metrics group(%s,%s) not equal", r.metrics.Group(), other.metrics.Group())
	}
	if r.metrics.Policy() != other.metrics.Policy() {
		return fmt.Errorf("metrics policy(%v,%v) not equal", r.metrics.Policy(), other.metrics.Policy())
	}
	if len(r.dimensions) != len(other.dimensions) {
		return fmt.Errorf("metrics dimensions(%d,%d) not equal", len(r.dimensions), len(other.dimensions))
	}
	for k, v := range r.dimensions {
		v2, exist := other.dimensions[k]
		if !exist || v != v2 {
			return fmt.Errorf("metrics dimension(%s) mismatch", k)
		}
	}

	switch r.metrics.Policy() {
	case Policy_Set:
		r.value = other.value
	case Policy_Sum:
		r.value += other.value
	case Policy_Max:
		if other.value > r.value {
			r.value = other.value
		}
	case Policy_Min:
		if other.value < r.value {
			r.value = other.value
		}
	case Policy_Stopwatch, Policy_Avg:
		r.value += other.value
		r.cnt += other.cnt
	default:
		return fmt.Errorf("metrics policy(%v) not mergeable", r.metrics.Policy())
	}
	return nil
}
