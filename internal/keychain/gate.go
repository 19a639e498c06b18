package keychain

import (
	"sync"
	"sync/atomic"
)

// GateState is Idle or Busy.
type GateState int32

const (
	GateIdle GateState = iota
	GateBusy
)

func (s GateState) String() string {
	if s == GateBusy {
		return "busy"
	}
	return "idle"
}

// QueryRecord is the last query issued through a gate and the status the
// backend returned for it.
type QueryRecord struct {
	Query  Query
	Status Status
}

// Gate admits one holder at a time. Waiters block in Enter; there is no
// ordering guarantee among them. A Gate is not reentrant: entering it again
// while holding it blocks forever.
type Gate struct {
	slot   chan struct{}
	state  atomic.Int32
	record atomic.Pointer[QueryRecord]
}

// NewGate returns an idle gate.
func NewGate() *Gate {
	g := &Gate{slot: make(chan struct{}, 1)}
	g.record.Store(&QueryRecord{Status: StatusUnset})
	return g
}

// Enter blocks until the gate is idle and returns the guard holding it.
// The caller must Release the guard, normally with defer.
func (g *Gate) Enter() *Guard {
	g.slot <- struct{}{}
	g.state.Store(int32(GateBusy))
	return &Guard{gate: g}
}

// State reports whether the gate is currently held.
func (g *Gate) State() GateState {
	return GateState(g.state.Load())
}

// LastRecord returns a snapshot of the most recent query and status.
// Read outside the gate it may already be stale.
func (g *Gate) LastRecord() QueryRecord {
	r := g.record.Load()
	return QueryRecord{Query: r.Query.Clone(), Status: r.Status}
}

// Guard is proof of holding a Gate.
type Guard struct {
	gate *Gate
	once sync.Once
}

// Begin records q as the gate's last query before it is sent to the
// backend. The query is copied, so later changes by the caller are not
// observed. The status reads StatusUnset until Finish.
func (gd *Guard) Begin(q Query) {
	gd.gate.record.Store(&QueryRecord{Query: q.Clone(), Status: StatusUnset})
}

// Finish records the backend's result for the query passed to Begin.
func (gd *Guard) Finish(st Status) {
	prev := gd.gate.record.Load()
	gd.gate.record.Store(&QueryRecord{Query: prev.Query, Status: st})
}

// Release returns the gate to Idle. Extra calls do nothing.
func (gd *Guard) Release() {
	gd.once.Do(func() {
		gd.gate.state.Store(int32(GateIdle))
		<-gd.gate.slot
	})
}
