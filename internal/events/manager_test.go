package events

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainOne(t *testing.T, s *Sink) Event {
	t.Helper()
	evs := s.Drain()
	require.Len(t, evs, 1)
	return evs[0]
}

func TestManager_ProgressEmitsFractionModuleMessage(t *testing.T) {
	sink := NewSink(8)
	mgr := NewManager(sink, "run-1", zerolog.Nop())

	mgr.Progress("allocation", 0.25, "halfway")
	ev := drainOne(t, sink)
	assert.Equal(t, Progress, ev.Kind)
	assert.Equal(t, "run-1", ev.RunID)
	payload := ev.Payload.(ProgressPayload)
	assert.Equal(t, 0.25, payload.Fraction)
	assert.Equal(t, "allocation", payload.Module)
	assert.Equal(t, "halfway", payload.Message)
}

func TestManager_ModuleStartedCarriesModuleName(t *testing.T) {
	sink := NewSink(8)
	mgr := NewManager(sink, "run-1", zerolog.Nop())

	mgr.ModuleStarted("risk")
	ev := drainOne(t, sink)
	assert.Equal(t, ModuleStarted, ev.Kind)
	assert.Equal(t, "risk", ev.Payload.(ModuleStartedPayload).Module)
}

func TestManager_ModuleCompletedCarriesExecutionTime(t *testing.T) {
	sink := NewSink(8)
	mgr := NewManager(sink, "run-1", zerolog.Nop())

	mgr.ModuleCompleted("risk", 1.5)
	ev := drainOne(t, sink)
	payload := ev.Payload.(ModuleCompletedPayload)
	assert.Equal(t, "risk", payload.Module)
	assert.Equal(t, 1.5, payload.ExecutionTimeSeconds)
}

func TestManager_IntermediateResultCarriesArbitraryData(t *testing.T) {
	sink := NewSink(8)
	mgr := NewManager(sink, "run-1", zerolog.Nop())

	mgr.IntermediateResult("cashflow_aggregation", map[string]int{"rows": 12})
	ev := drainOne(t, sink)
	payload := ev.Payload.(IntermediateResultPayload)
	assert.Equal(t, "cashflow_aggregation", payload.Module)
	assert.Equal(t, map[string]int{"rows": 12}, payload.Data)
}

func TestManager_FinalResultIsTerminalAndSurvivesOverflow(t *testing.T) {
	sink := NewSink(1)
	mgr := NewManager(sink, "run-1", zerolog.Nop())

	mgr.Progress("a", 0.1, "")
	mgr.FinalResult(map[string]float64{"irr": 0.12}, 9.9)

	ev := drainOne(t, sink)
	assert.Equal(t, Result, ev.Kind)
	payload := ev.Payload.(ResultPayload)
	assert.Equal(t, 9.9, payload.ExecutionTimeSeconds)
}

func TestManager_EmitErrorCarriesModuleAndErrorString(t *testing.T) {
	sink := NewSink(8)
	mgr := NewManager(sink, "run-1", zerolog.Nop())

	mgr.EmitError("waterfall", errors.New("negative NAV"))
	ev := drainOne(t, sink)
	assert.Equal(t, Error, ev.Kind)
	payload := ev.Payload.(ErrorPayload)
	assert.Equal(t, "waterfall", payload.Module)
	assert.Equal(t, "negative NAV", payload.Error)
}

func TestManager_GuardrailViolationCarriesRuleSeverityAndDetails(t *testing.T) {
	sink := NewSink(8)
	mgr := NewManager(sink, "run-1", zerolog.Nop())

	mgr.GuardrailViolation("max_ltv", SeverityWarning, "LTV exceeds threshold", map[string]interface{}{"ltv": 0.85})
	ev := drainOne(t, sink)
	assert.Equal(t, GuardrailViolation, ev.Kind)
	payload := ev.Payload.(GuardrailViolationPayload)
	assert.Equal(t, "max_ltv", payload.Rule)
	assert.Equal(t, SeverityWarning, payload.Severity)
	assert.Equal(t, 0.85, payload.Details["ltv"])
}
