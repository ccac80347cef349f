package orchestrator

import (
	"testing"

	"github.com/equihome/heloc-simfund/internal/cancel"
	"github.com/equihome/heloc-simfund/internal/events"
	"github.com/equihome/heloc-simfund/internal/simerr"
	"github.com/equihome/heloc-simfund/internal/simtypes"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopStage(name string, upstream ...string) Stage {
	return Stage{
		Name:     name,
		Upstream: upstream,
		Run: func(ctx *simtypes.SimulationContext, token *cancel.Token, progress ProgressFunc) error {
			progress(1, "done")
			return nil
		},
	}
}

func TestNew_RejectsCyclicStageGraph(t *testing.T) {
	stages := []Stage{
		noopStage("a", "b"),
		noopStage("b", "a"),
	}
	_, err := New(stages, zerolog.Nop())
	assert.Error(t, err)
}

func TestNew_RejectsUpstreamReferencingUnregisteredStage(t *testing.T) {
	stages := []Stage{noopStage("a", "missing")}
	_, err := New(stages, zerolog.Nop())
	assert.Error(t, err)
}

func TestRun_ExecutesStagesInDependencyOrder(t *testing.T) {
	var order []string
	record := func(name string) Operation {
		return func(ctx *simtypes.SimulationContext, token *cancel.Token, progress ProgressFunc) error {
			order = append(order, name)
			return nil
		}
	}
	stages := []Stage{
		{Name: "c", Upstream: []string{"b"}, Run: record("c")},
		{Name: "a", Run: record("a")},
		{Name: "b", Upstream: []string{"a"}, Run: record("b")},
	}
	o, err := New(stages, zerolog.Nop())
	require.NoError(t, err)

	ctx := &simtypes.SimulationContext{}
	err = o.Run(ctx, cancel.NewToken(), events.NewManager(events.NewSink(16), "run", zerolog.Nop()))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestRun_StableTieBreakRunsLowerRegisteredIndexFirst(t *testing.T) {
	var order []string
	record := func(name string) Operation {
		return func(ctx *simtypes.SimulationContext, token *cancel.Token, progress ProgressFunc) error {
			order = append(order, name)
			return nil
		}
	}
	// Both "x" and "y" are immediately ready (no upstream); "x" is
	// registered first and must run first.
	stages := []Stage{
		{Name: "x", Run: record("x")},
		{Name: "y", Run: record("y")},
	}
	o, err := New(stages, zerolog.Nop())
	require.NoError(t, err)

	ctx := &simtypes.SimulationContext{}
	require.NoError(t, o.Run(ctx, cancel.NewToken(), events.NewManager(events.NewSink(16), "run", zerolog.Nop())))
	assert.Equal(t, []string{"x", "y"}, order)
}

func TestRun_StopsAtFirstFailingStageAndRecordsFailedAt(t *testing.T) {
	stages := []Stage{
		noopStage("a"),
		{Name: "b", Upstream: []string{"a"}, Run: func(ctx *simtypes.SimulationContext, token *cancel.Token, progress ProgressFunc) error {
			return simerr.New(simerr.Internal, "b", "boom")
		}},
		noopStage("c", "b"),
	}
	o, err := New(stages, zerolog.Nop())
	require.NoError(t, err)

	ctx := &simtypes.SimulationContext{}
	err = o.Run(ctx, cancel.NewToken(), events.NewManager(events.NewSink(16), "run", zerolog.Nop()))
	require.Error(t, err)
	assert.Equal(t, "b", ctx.FailedAt)
	assert.Len(t, ctx.Timings, 2) // a completed, b failed; c never ran
}

func TestRun_CancelledTokenStopsBeforeNextStage(t *testing.T) {
	token := cancel.NewToken()
	stages := []Stage{
		{Name: "a", Run: func(ctx *simtypes.SimulationContext, tok *cancel.Token, progress ProgressFunc) error {
			token.Cancel() // cancel mid-flight, after "a" has already started
			return nil
		}},
		noopStage("b", "a"),
	}
	o, err := New(stages, zerolog.Nop())
	require.NoError(t, err)

	ctx := &simtypes.SimulationContext{}
	err = o.Run(ctx, token, events.NewManager(events.NewSink(16), "run", zerolog.Nop()))
	require.Error(t, err)
	assert.True(t, ctx.Cancelled)
	assert.Equal(t, "b", ctx.FailedAt)
}

func TestRun_RecordsPerStageTimingOnSuccess(t *testing.T) {
	stages := []Stage{noopStage("a")}
	o, err := New(stages, zerolog.Nop())
	require.NoError(t, err)

	ctx := &simtypes.SimulationContext{}
	require.NoError(t, o.Run(ctx, cancel.NewToken(), events.NewManager(events.NewSink(16), "run", zerolog.Nop())))
	require.Len(t, ctx.Timings, 1)
	assert.Equal(t, "a", ctx.Timings[0].Module)
	assert.True(t, ctx.Timings[0].Completed)
}

func TestRun_ProgressNeverRegressesBelowItsOwnPriorFraction(t *testing.T) {
	stages := []Stage{{Name: "a", Run: func(ctx *simtypes.SimulationContext, token *cancel.Token, progress ProgressFunc) error {
		progress(0.5, "half")
		progress(0.2, "regressed") // should be clamped back up to 0.5
		return nil
	}}}
	o, err := New(stages, zerolog.Nop())
	require.NoError(t, err)

	sink := events.NewSink(16)
	mgr := events.NewManager(sink, "run", zerolog.Nop())
	ctx := &simtypes.SimulationContext{}
	require.NoError(t, o.Run(ctx, cancel.NewToken(), mgr))

	var fractions []float64
	for _, ev := range sink.Drain() {
		if ev.Kind == events.Progress {
			fractions = append(fractions, ev.Payload.(events.ProgressPayload).Fraction)
		}
	}
	require.Len(t, fractions, 2)
	assert.Equal(t, 0.5, fractions[0])
	assert.Equal(t, 0.5, fractions[1])
}
