// Package pool provides a wrapper around sync.Pool with added metrics.
package pool

import (
	"sync"

	"github.com/linchenxuan/uvbus/metrics"
)

// Pool is a wrapper around sync.Pool that counts object creation, so a
// pool that never hits can be spotted from the metrics alone.
type Pool struct {
	Name string
	Pool *sync.Pool
}

// NewPool creates an instrumented pool. name becomes the metric dimension;
// newFunc builds a fresh item on a pool miss.
func NewPool(name string, newFunc func() any) *Pool {
	p := &Pool{Name: name}
	p.Pool = &sync.Pool{
		New: func() any {
			metrics.IncrCounterWithDimGroup("pool_create_total", metrics.GroupNet, 1, metrics.Dimension{
				metrics.DimPoolName: name,
			})
			return newFunc()
		},
	}
	return p
}

// Put adds x back to the pool for reuse.
func (p *Pool) Put(x any) {
	p.Pool.Put(x)
}

// Get retrieves an item, creating one on a miss.
func (p *Pool) Get() any {
	return p.Pool.Get()
}
