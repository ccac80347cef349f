package events

import "github.com/rs/zerolog"

// Manager emits typed events to a Sink and logs them, mirroring the
// teacher's events.Manager (bus + structured log line per event).
type Manager struct {
	sink  *Sink
	runID string
	log   zerolog.Logger
}

// NewManager builds a Manager bound to one run_id, logging through log.
func NewManager(sink *Sink, runID string, log zerolog.Logger) *Manager {
	return &Manager{
		sink:  sink,
		runID: runID,
		log:   log.With().Str("component", "events").Str("run_id", runID).Logger(),
	}
}

func (m *Manager) emit(kind Kind, payload interface{}) {
	m.sink.Emit(Event{Kind: kind, RunID: m.runID, Payload: payload})
	m.log.Debug().Str("kind", string(kind)).Interface("payload", payload).Msg("event emitted")
}

// Progress emits a {fraction, module, message?} progress event.
func (m *Manager) Progress(module string, fraction float64, message string) {
	m.emit(Progress, ProgressPayload{Fraction: fraction, Module: module, Message: message})
}

// ModuleStarted emits {module}.
func (m *Manager) ModuleStarted(module string) {
	m.emit(ModuleStarted, ModuleStartedPayload{Module: module})
}

// ModuleCompleted emits {module, execution_time_seconds}.
func (m *Manager) ModuleCompleted(module string, seconds float64) {
	m.emit(ModuleCompleted, ModuleCompletedPayload{Module: module, ExecutionTimeSeconds: seconds})
}

// IntermediateResult emits {module, data}.
func (m *Manager) IntermediateResult(module string, data interface{}) {
	m.emit(IntermediateResult, IntermediateResultPayload{Module: module, Data: data})
}

// FinalResult emits the terminal {result, execution_time_seconds} event.
func (m *Manager) FinalResult(result interface{}, seconds float64) {
	m.emit(Result, ResultPayload{Result: result, ExecutionTimeSeconds: seconds})
}

// EmitError emits the terminal {error, module?} event.
func (m *Manager) EmitError(module string, err error) {
	m.emit(Error, ErrorPayload{Error: err.Error(), Module: module})
	m.log.Error().Str("module", module).Err(err).Msg("stage failed")
}

// GuardrailViolation emits {rule, severity, message, details?}.
func (m *Manager) GuardrailViolation(rule string, severity Severity, message string, details map[string]interface{}) {
	m.emit(GuardrailViolation, GuardrailViolationPayload{
		Rule: rule, Severity: severity, Message: message, Details: details,
	})
}
