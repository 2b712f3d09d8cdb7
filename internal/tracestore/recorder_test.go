package tracestore

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxstore/internal/engine"
)

func TestRecorder_RecordsRuntime(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec, err := NewRecorder(ctx, s, testRun("run-1"))
	require.NoError(t, err)

	rt := engine.New(
		engine.WithLogger(slog.New(slog.DiscardHandler)),
		engine.WithTracer(rec),
		engine.WithPassGenerator(engine.NewFixedGenerator("pass-1")),
	)
	a := engine.NewAtom(rt, testKey("a"), func() int { return 1 })
	r := engine.NewReaction(rt, testKey("r"), func() int { return a.Observe() * 2 })
	a.Set(5)
	require.Equal(t, 10, r.Get())

	assert.Equal(t, 5, rec.Pending())
	require.NoError(t, rec.Flush(ctx))
	assert.Zero(t, rec.Pending())
	assert.Equal(t, 5, rec.Written())

	events, err := s.ReadEvents(ctx, "run-1")
	require.NoError(t, err)
	kinds := make([]engine.EventKind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
	}
	assert.Equal(t, []engine.EventKind{
		engine.EventRecompute, // a initialised
		engine.EventRecompute, // r first evaluation
		engine.EventEdgeAdded,
		engine.EventWrite,
		engine.EventRecompute, // r after a.Set
	}, kinds)

	pass, err := s.ReadPass(ctx, "run-1", "pass-1")
	require.NoError(t, err)
	require.Len(t, pass, 1)
	assert.Equal(t, r.Key(), pass[0].Key)
}

func TestRecorder_FlushEmpty(t *testing.T) {
	s := createTestStore(t)
	rec, err := NewRecorder(context.Background(), s, testRun("run-1"))
	require.NoError(t, err)

	assert.NoError(t, rec.Flush(context.Background()))
	assert.Equal(t, "run-1", rec.Run().ID)
}

func TestNewRecorder_RequiresID(t *testing.T) {
	s := createTestStore(t)
	_, err := NewRecorder(context.Background(), s, Run{})
	assert.Error(t, err)
}
