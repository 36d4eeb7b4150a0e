package metrics

// Gauge tracks a point-in-time value that can go up or down, such as the
// current connection count or active task count.
type Gauge interface {
	Metrics
	// UpdateWithDim sets/observes the gauge value with the given dimensions.
	UpdateWithDim(v Value, dimensions Dimension)
	// Update sets/observes the gauge value without dimensions.
	Update(v Value)
}

// gauge implements Gauge with a last-value-wins policy.
type gauge struct {
	name  string
	group string
}

func (g *gauge) Name() string   { return g.name }
func (g *gauge) Group() string  { return g.group }
func (g *gauge) Policy() Policy { return Policy_Set }

func (g *gauge) Update(v Value) {
	g.UpdateWithDim(v, nil)
}

func (g *gauge) UpdateWithDim(v Value, dimensions Dimension) {
	report(g, v, 0, dimensions)
}

// maxGauge retains the maximum observed value; used for peak concurrency.
type maxGauge struct {
	name  string
	group string
}

func (g *maxGauge) Name() string   { return g.name }
func (g *maxGauge) Group() string  { return g.group }
func (g *maxGauge) Policy() Policy { return Policy_Max }

func (g *maxGauge) Update(v Value) {
	g.UpdateWithDim(v, nil)
}

func (g *maxGauge) UpdateWithDim(v Value, dimensions Dimension) {
	report(g, v, 0, dimensions)
}

// avgGauge reports the mean of observed values; used for task durations.
type avgGauge struct {
	name  string
	group string
}

func (g *avgGauge) Name() string   { return g.name }
func (g *avgGauge) Group() string  { return g.group }
func (g *avgGauge) Policy() Policy { return Policy_Avg }

func (g *avgGauge) Update(v Value) {
	g.UpdateWithDim(v, nil)
}

func (g *avgGauge) UpdateWithDim(v Value, dimensions Dimension) {
	report(g, v, 1, dimensions)
}

func report(m Metrics, v Value, cnt int, dimensions Dimension) {
	r := Record{
		metrics:    m,
		value:      v,
		cnt:        cnt,
		dimensions: dimensions,
	}
	for _, reporter := range _Reporters {
		reporter.Report(r)
	}
}
