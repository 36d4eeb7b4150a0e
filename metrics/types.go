// Package metrics defines the types and registries used for metric
// collection and reporting across the uvbus stack.
package metrics

// Policy defines the aggregation policy for metric values. It determines how
// multiple values for the same metric combine over a reporting window.
type Policy int

const (
	Policy_None      Policy = iota // no specific policy; reporter default
	Policy_Set                     // instantaneous value, last one wins
	Policy_Sum                     // cumulative value
	Policy_Avg                     // mean of reported values
	Policy_Max                     // maximum of reported values
	Policy_Min                     // minimum of reported values
	Policy_Stopwatch               // duration measurement
)

// Value represents a metric value as a float64.
type Value float64

// Dimension represents metric dimensions as key-value pairs, providing
// context such as transport scheme or endpoint role.
type Dimension map[string]string

// Metrics is the base interface for all metric types.
type Metrics interface {
	// Name returns the metric name.
	Name() string
	// Group returns the metric group for categorization.
	Group() string
	// Policy returns the aggregation policy for this metric.
	Policy() Policy
}

// Metric groups used by the framework.
const (
	GroupNet   = "net"   // transport layer
	GroupBus   = "bus"   // message bus routing
	GroupAsync = "async" // async primitives and scheduler
)

// Dimension keys used by the framework.
const (
	DimTransport = "transport" // transport scheme: tcp/udp/ipc/inproc
	DimRole      = "role"      // endpoint role: server/client
	DimSurface   = "surface"   // bus routing surface
	DimPoolName  = "pool"      // instrumented object pool
)
