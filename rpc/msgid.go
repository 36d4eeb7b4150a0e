package rpc

import "sync/atomic"

// MsgIDGenerator issues monotonically increasing message ids. Zero is
// reserved and never returned; the counter simply skips it on wrap.
// Clients sharing a server can partition the 64-bit space with SetStart.
type MsgIDGenerator struct {
	ctr atomic.Uint64
}

// Next returns a fresh non-zero message id.
func (g *MsgIDGenerator) Next() uint64 {
	for {
		id := g.ctr.Add(1)
		if id != 0 {
			return id
		}
	}
}

// SetStart positions the counter so the next id is start+1. Used to give
// each client of a shared endpoint a disjoint id range.
func (g *MsgIDGenerator) SetStart(start uint64) {
	g.ctr.Store(start)
}

// Current returns the last issued id, zero if none yet.
func (g *MsgIDGenerator) Current() uint64 {
	return g.ctr.Load()
}
