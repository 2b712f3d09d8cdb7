package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxstore/internal/ir"
)

// counter tallies RxFunc runs by name.
type counter map[string]int

func (c counter) reset() { clear(c) }

func TestPropagate_Chain(t *testing.T) {
	rt := newTestRuntime(t)
	runs := counter{}

	a := NewAtom(rt, key("a"), func() int { return 1 })
	r1 := NewReaction(rt, key("r1"), func() int {
		runs["r1"]++
		return a.Observe() * 2
	})
	r2 := NewReaction(rt, key("r2"), func() int {
		runs["r2"]++
		return r1.Observe() + 1
	})
	runs.reset()

	a.Set(5)

	assert.Equal(t, counter{"r1": 1, "r2": 1}, runs)
	assert.Equal(t, 10, r1.Get())
	assert.Equal(t, 11, r2.Get())
}

func TestPropagate_InertIsolation(t *testing.T) {
	rt := newTestRuntime(t)
	runs := counter{}

	a := NewAtom(rt, key("a"), func() int { return 1 })
	r := NewReaction(rt, key("r"), func() int {
		runs["r"]++
		return a.Observe()
	})
	runs.reset()

	a.SetInert(9)
	assert.Empty(t, runs)
	assert.Equal(t, 1, r.Get())

	r.Trigger()
	assert.Equal(t, 9, r.Get(), "explicit trigger picks up the inert value")
}

func newDiamond(t *testing.T, rt *Runtime, runs counter) (Atom[int], Reaction[int]) {
	t.Helper()
	a := NewAtom(rt, key("a"), func() int { return 1 })
	left := NewReaction(rt, key("left"), func() int {
		runs["left"]++
		return a.Observe() + 1
	})
	right := NewReaction(rt, key("right"), func() int {
		runs["right"]++
		return a.Observe() * 10
	})
	join := NewReaction(rt, key("join"), func() int {
		runs["join"]++
		return left.Observe() + right.Observe()
	})
	runs.reset()
	return a, join
}

func TestPropagate_DiamondRevisits(t *testing.T) {
	rt := newTestRuntime(t)
	runs := counter{}
	a, join := newDiamond(t, rt, runs)

	a.Set(2)

	assert.Equal(t, counter{"left": 1, "right": 1, "join": 2}, runs)
	assert.Equal(t, 3+20, join.Get())
}

func TestPropagate_DiamondDedup(t *testing.T) {
	rt := newTestRuntime(t, WithDedupPerPass(true))
	runs := counter{}
	a, join := newDiamond(t, rt, runs)

	a.Set(2)

	assert.Equal(t, counter{"left": 1, "right": 1, "join": 1}, runs)
	assert.Equal(t, 3+20, join.Get(), "join runs after both producers")
}

func TestPropagate_DedupChainOrder(t *testing.T) {
	rt := newTestRuntime(t, WithDedupPerPass(true))
	var order []string

	a := NewAtom(rt, key("a"), func() int { return 0 })
	var prev Observable[int] = a
	for i := range 4 {
		p := prev
		name := fmt.Sprintf("r%d", i)
		prev = NewReaction(rt, key(name), func() int {
			order = append(order, name)
			return p.Observe() + 1
		})
	}
	order = nil

	a.Set(10)

	assert.Equal(t, []string{"r0", "r1", "r2", "r3"}, order)
	assert.Equal(t, 14, prev.Get())
}

func TestPropagate_WriteInsideReactionRecomputesAgain(t *testing.T) {
	tests := []struct {
		name  string
		dedup bool
	}{
		{"per path", false},
		{"dedup", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newTestRuntime(t, WithDedupPerPass(tt.dedup))
			a := NewAtom(rt, key("a"), func() int { return 0 })
			x := NewAtom(rt, key("x"), func() int { return 0 })
			NewReaction(rt, key("scale"), func() int {
				v := a.Observe() * 10
				x.Set(v)
				return v
			})
			// Registered after scale, so ordered propagation runs it first.
			sum := NewReaction(rt, key("sum"), func() int { return a.Observe() + x.Observe() })

			a.Set(1)

			assert.Equal(t, 10, x.Get())
			assert.Equal(t, 11, sum.Get(), "sum sees the value scale wrote")
		})
	}
}

func TestPropagate_DeadLinkPruning(t *testing.T) {
	m := newRecordingMetrics()
	rt := newTestRuntime(t, WithMetrics(m))
	runs := counter{}

	useB := NewAtom(rt, key("use_b"), func() bool { return true })
	b := NewAtom(rt, key("b"), func() int { return 5 })
	r := NewReaction(rt, key("r"), func() int {
		runs["r"]++
		if useB.Observe() {
			return b.Observe()
		}
		return -1
	})
	require.Contains(t, rt.Producers(r.Key()), b.Key())

	useB.Set(false)
	assert.Equal(t, -1, r.Get())
	assert.NotContains(t, rt.Producers(r.Key()), b.Key())
	assert.Empty(t, rt.Dependents(b.Key()))
	assert.Equal(t, 1, m.removed)

	runs.reset()
	b.Set(6)
	assert.Empty(t, runs, "pruned producer no longer triggers the reaction")

	useB.Set(true)
	assert.Equal(t, 6, r.Get())
	assert.Contains(t, rt.Producers(r.Key()), b.Key(), "edge returns once read again")
}

func TestPropagate_PruneAfterAbortedRun(t *testing.T) {
	rt := newTestRuntime(t)
	runs := counter{}

	a := NewAtom(rt, key("a"), func() int { return 0 })
	b := NewAtom(rt, key("b"), func() int { return 0 })
	gone := NewAtom(rt, key("gone"), func() int { return 0 })
	gone.Delete()

	r := NewReaction(rt, key("r"), func() int {
		runs["r"]++
		v := a.Observe()
		if v == 1 {
			b.Observe()
			gone.Observe()
		}
		return v
	})

	err := Catch(func() { a.Set(1) })
	require.Error(t, err)
	require.True(t, IsAbsentKey(err))
	assert.Contains(t, rt.Producers(r.Key()), b.Key(), "edges read before the failure stay until the next run")

	a.Set(2)
	assert.Equal(t, 2, r.Get())
	assert.Equal(t, []ir.Key{a.Key()}, rt.Producers(r.Key()))
	assert.Empty(t, rt.Dependents(b.Key()))
	assert.Empty(t, rt.Dependents(gone.Key()))

	b.Set(5)
	assert.Equal(t, 3, runs["r"], "b is no longer a producer")
}

func TestPropagate_RepeatedObserveSingleEdge(t *testing.T) {
	m := newRecordingMetrics()
	rt := newTestRuntime(t, WithMetrics(m))
	a := NewAtom(rt, key("a"), func() int { return 2 })
	r := NewReaction(rt, key("r"), func() int { return a.Observe() + a.Observe() })

	assert.Equal(t, 4, r.Get())
	assert.Len(t, rt.Edges(), 1)
	assert.Equal(t, 1, m.added)

	a.Set(3)
	assert.Equal(t, 6, r.Get())
	assert.Equal(t, 1, m.added, "re-observing an existing producer adds nothing")
}

func TestPropagate_WriteInsideReaction(t *testing.T) {
	rt := newTestRuntime(t)
	a := NewAtom(rt, key("a"), func() int { return 1 })
	mirror := NewAtom(rt, key("mirror"), func() int { return 0 })
	NewReaction(rt, key("copy"), func() int {
		v := a.Observe()
		mirror.Set(v)
		return v
	})
	seen := NewReaction(rt, key("seen"), func() int { return mirror.Observe() * 100 })

	a.Set(4)

	assert.Equal(t, 4, mirror.Get())
	assert.Equal(t, 400, seen.Get())
}

func TestPropagate_Metrics(t *testing.T) {
	m := newRecordingMetrics()
	rt := newTestRuntime(t, WithMetrics(m))
	a := NewAtom(rt, key("a"), func() int { return 1 })
	r1 := NewReaction(rt, key("r1"), func() int { return a.Observe() })
	NewReaction(rt, key("r2"), func() int { return r1.Observe() })
	clear(m.recomputes)

	a.Set(2)

	assert.Equal(t, map[string]int{"reaction": 2}, m.recomputes)
	require.Len(t, m.passes, 1)
	assert.Equal(t, [2]int{2, 2}, m.passes[0], "two recomputes, peak depth two")
}

// =============================================================================
// Cycles and depth
// =============================================================================

func TestPropagate_CycleDetected(t *testing.T) {
	rt := newTestRuntime(t)
	a := NewAtom(rt, key("a"), func() int { return 0 })

	err := Catch(func() {
		NewReaction(rt, key("feedback"), func() int {
			v := a.Observe()
			a.Set(v + 1)
			return v
		})
	})

	require.Error(t, err)
	assert.True(t, IsCycleError(err))

	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, key("feedback"), re.Key)
}

func TestPropagate_RecoversAfterAbort(t *testing.T) {
	rt := newTestRuntime(t)
	a := NewAtom(rt, key("a"), func() int { return 0 })
	_ = Catch(func() {
		NewReaction(rt, key("feedback"), func() int {
			v := a.Observe()
			a.Set(v + 1)
			return v
		})
	})
	rt.Purge(key("feedback"))

	b := NewAtom(rt, key("b"), func() int { return 1 })
	r := NewReaction(rt, key("r"), func() int { return b.Observe() * 3 })
	b.Set(2)

	assert.Equal(t, 6, r.Get())
	_, ok := rt.CurrentContext()
	assert.False(t, ok, "no context left open")
	assert.Zero(t, rt.cycles.Depth())
	assert.Nil(t, rt.pass)
}

func TestPropagate_DepthLimit(t *testing.T) {
	tests := []struct {
		name     string
		maxDepth int
		chain    int
		wantErr  bool
	}{
		{"within limit", 5, 5, false},
		{"exceeds limit", 3, 5, true},
		{"unlimited", 0, 20, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newTestRuntime(t, WithMaxDepth(tt.maxDepth))
			a := NewAtom(rt, key("a"), func() int { return 0 })
			var prev Observable[int] = a
			for i := range tt.chain {
				p := prev
				prev = NewReaction(rt, key(fmt.Sprintf("r%d", i)), func() int { return p.Observe() + 1 })
			}

			err := Catch(func() { a.Set(1) })
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsDepthError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1+tt.chain, prev.Get())
		})
	}
}

func TestPropagate_CycleWithoutDetectionHitsDepth(t *testing.T) {
	rt := newTestRuntime(t, WithCycleDetection(false), WithMaxDepth(50))
	a := NewAtom(rt, key("a"), func() int { return 0 })

	err := Catch(func() {
		NewReaction(rt, key("feedback"), func() int {
			v := a.Observe()
			a.Set(v + 1)
			return v
		})
	})

	require.Error(t, err)
	assert.True(t, IsDepthError(err))
}

func TestPropagate_PanicInBodyAbortsWithoutRollback(t *testing.T) {
	rt := newTestRuntime(t)
	a := NewAtom(rt, key("a"), func() int { return 1 })
	first := NewReaction(rt, key("first"), func() int { return a.Observe() * 2 })
	NewReaction(rt, key("second"), func() int {
		v := a.Observe()
		if v > 1 {
			panic(NewAbsentKeyError(key("elsewhere")))
		}
		return v
	})

	err := Catch(func() { a.Set(5) })
	require.Error(t, err)
	assert.Equal(t, 10, first.Get(), "sibling that already ran keeps its value")
}

// =============================================================================
// Trigger and trace
// =============================================================================

func TestReaction_TriggerPropagates(t *testing.T) {
	rt := newTestRuntime(t)
	calls := 0
	a := NewAtom(rt, key("a"), func() int { return 1 })
	r := NewReaction(rt, key("r"), func() int {
		calls++
		return a.Observe() + calls
	})
	down := NewReaction(rt, key("down"), func() int { return r.Observe() * 10 })

	r.Trigger()

	assert.Equal(t, 3, r.Get())
	assert.Equal(t, 30, down.Get())
}

func TestTrace_Events(t *testing.T) {
	var events []TraceEvent
	rt := newTestRuntime(t,
		WithTracer(TracerFunc(func(ev TraceEvent) { events = append(events, ev) })),
		WithPassGenerator(NewFixedGenerator("pass-1", "pass-2")),
	)

	a := NewAtom(rt, key("a"), func() int { return 1 })
	r := NewReaction(rt, key("r"), func() int { return a.Observe() })

	kinds := func() []EventKind {
		out := make([]EventKind, len(events))
		for i, ev := range events {
			out[i] = ev.Kind
		}
		return out
	}
	assert.Equal(t, []EventKind{EventRecompute, EventRecompute, EventEdgeAdded}, kinds())
	assert.Equal(t, a.Key(), events[2].Key)
	assert.Equal(t, r.Key(), events[2].Consumer)

	events = nil
	a.Set(2)
	require.Equal(t, []EventKind{EventWrite, EventRecompute}, kinds())
	assert.Empty(t, events[0].PassID, "write happens before the pass starts")
	assert.Equal(t, "pass-1", events[1].PassID)
	assert.Equal(t, 1, events[1].Depth)
	assert.Less(t, events[0].Seq, events[1].Seq)

	events = nil
	a.SetInert(3)
	assert.Equal(t, []EventKind{EventInertWrite}, kinds())
}

func TestTrace_NoPassIDWithoutTracer(t *testing.T) {
	gen := NewFixedGenerator()
	rt := newTestRuntime(t, WithPassGenerator(gen))
	a := NewAtom(rt, key("a"), func() int { return 1 })
	NewReaction(rt, key("r"), func() int { return a.Observe() })

	assert.NotPanics(t, func() { a.Set(2) }, "pass ids are only drawn when tracing")
}

func TestCurrentContext(t *testing.T) {
	rt := newTestRuntime(t)
	a := NewAtom(rt, key("a"), func() int { return 1 })

	var gotKey ir.Key
	var observed []ir.Key
	NewReaction(rt, key("r"), func() int {
		v := a.Observe()
		ctx, ok := rt.CurrentContext()
		require.True(t, ok)
		gotKey = ctx.Key()
		observed = ctx.Observed()
		return v
	})

	assert.Equal(t, key("r"), gotKey)
	assert.Equal(t, []ir.Key{a.Key()}, observed)
}
