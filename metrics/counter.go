package metrics

// Counter accumulates values over time: dispatch totals, frame counts,
// connection counts.
type Counter interface {
	Metrics
	// IncrWithDim increments the counter by delta with the given dimensions.
	IncrWithDim(delta Value, dimensions Dimension)
	// Incr increments the counter by delta without dimensions.
	Incr(delta Value)
}

// counter implements Counter with a sum aggregation policy.
type counter struct {
	name  string
	group string
}

func (c *counter) Name() string   { return c.name }
func (c *counter) Group() string  { return c.group }
func (c *counter) Policy() Policy { return Policy_Sum }

func (c *counter) Incr(v Value) {
	c.IncrWithDim(v, nil)
}

func (c *counter) IncrWithDim(v Value, dimensions Dimension) {
	r := Record{
		metrics:    c,
		value:      v,
		dimensions: dimensions,
	}
	for _, reporter := range _Reporters {
		reporter.Report(r)
	}
}
