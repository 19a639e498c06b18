package keychain

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGateStates(t *testing.T) {
	g := NewGate()
	assert.Equal(t, GateIdle, g.State())

	guard := g.Enter()
	assert.Equal(t, GateBusy, g.State())

	guard.Release()
	assert.Equal(t, GateIdle, g.State())
}

func TestGateReleaseIsIdempotent(t *testing.T) {
	g := NewGate()
	guard := g.Enter()
	guard.Release()
	guard.Release()

	other := g.Enter()
	guard.Release() // stale guard must not free the new holder
	assert.Equal(t, GateBusy, g.State())

	entered := make(chan struct{})
	go func() {
		g.Enter().Release()
		close(entered)
	}()
	select {
	case <-entered:
		t.Fatal("gate admitted a second holder")
	case <-time.After(50 * time.Millisecond):
	}

	other.Release()
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("waiter never entered after release")
	}
}

func TestGateReleasedOnPanic(t *testing.T) {
	g := NewGate()
	func() {
		defer func() { _ = recover() }()
		guard := g.Enter()
		defer guard.Release()
		panic("backend blew up")
	}()
	assert.Equal(t, GateIdle, g.State())
}

func TestGateSerializes(t *testing.T) {
	g := NewGate()
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			guard := g.Enter()
			defer guard.Release()
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
}

func TestGateRecord(t *testing.T) {
	g := NewGate()
	assert.Equal(t, StatusUnset, g.LastRecord().Status)
	assert.Nil(t, g.LastRecord().Query)

	q := Query{AttrAccount: "a"}
	guard := g.Enter()
	guard.Begin(q)
	assert.Equal(t, StatusUnset, g.LastRecord().Status)
	assert.Equal(t, "a", g.LastRecord().Query.Account())

	guard.Finish(StatusItemNotFound)
	guard.Release()

	q[AttrAccount] = "mutated"
	rec := g.LastRecord()
	assert.Equal(t, StatusItemNotFound, rec.Status)
	assert.Equal(t, "a", rec.Query.Account())
}
