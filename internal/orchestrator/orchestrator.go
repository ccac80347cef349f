// Package orchestrator runs a registered set of stages in dependency
// order for a single path: topological ordering computed once at
// registration, sequential execution, progress/cancellation plumbing,
// and per-stage timing — spec section 4.1.
package orchestrator

import (
	"time"

	"github.com/equihome/heloc-simfund/internal/cancel"
	"github.com/equihome/heloc-simfund/internal/events"
	"github.com/equihome/heloc-simfund/internal/simerr"
	"github.com/equihome/heloc-simfund/internal/simtypes"
	"github.com/rs/zerolog"
)

// ProgressFunc is how a stage reports its own, monotonically
// increasing-per-name progress fraction back to the orchestrator.
type ProgressFunc func(fraction float64, message string)

// Operation is the unit of work a Stage performs. It must write only
// to the sub-structure it owns in ctx, and must check token at least
// between inner loops.
type Operation func(ctx *simtypes.SimulationContext, token *cancel.Token, progress ProgressFunc) error

// Stage is one node of the dependency graph.
type Stage struct {
	Name     string
	Upstream []string
	Run      Operation
}

// Orchestrator holds a registered stage set and its computed order.
type Orchestrator struct {
	stages []Stage
	order  []int // indexes into stages, topologically sorted
	log    zerolog.Logger
}

// New registers stages in the given slice order (used as the stable
// tie-break for topological sort) and computes the execution order
// once, up front.
func New(stages []Stage, log zerolog.Logger) (*Orchestrator, error) {
	order, err := topoSort(stages)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{stages: stages, order: order, log: log.With().Str("component", "orchestrator").Logger()}, nil
}

// topoSort performs a stable Kahn's-algorithm topological sort: among
// stages with satisfied dependencies, the one registered first runs
// first.
func topoSort(stages []Stage) ([]int, error) {
	nameToIdx := make(map[string]int, len(stages))
	for i, s := range stages {
		nameToIdx[s.Name] = i
	}

	indegree := make([]int, len(stages))
	dependents := make([][]int, len(stages))
	for i, s := range stages {
		for _, up := range s.Upstream {
			upIdx, ok := nameToIdx[up]
			if !ok {
				return nil, simerr.New(simerr.Internal, "orchestrator", "stage "+s.Name+" depends on unregistered stage "+up)
			}
			indegree[i]++
			dependents[upIdx] = append(dependents[upIdx], i)
		}
	}

	var ready []int
	for i := range stages {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	var order []int
	for len(ready) > 0 {
		// Stable tie-break: always take the lowest registration index.
		minPos := 0
		for i := 1; i < len(ready); i++ {
			if ready[i] < ready[minPos] {
				minPos = i
			}
		}
		next := ready[minPos]
		ready = append(ready[:minPos], ready[minPos+1:]...)
		order = append(order, next)

		for _, dep := range dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) != len(stages) {
		return nil, simerr.New(simerr.Internal, "orchestrator", "stage graph contains a cycle")
	}
	return order, nil
}

// Run executes every stage in topological order against ctx, emitting
// module_started/module_completed/progress events via mgr. A failed
// stage aborts the remaining stages; the partial context is returned
// alongside the error so the caller can still report what completed.
func (o *Orchestrator) Run(ctx *simtypes.SimulationContext, token *cancel.Token, mgr *events.Manager) error {
	for _, idx := range o.order {
		stage := o.stages[idx]

		if token.Cancelled() {
			ctx.Cancelled = true
			ctx.FailedAt = stage.Name
			return simerr.New(simerr.Cancelled, stage.Name, "cancelled before stage started")
		}

		mgr.ModuleStarted(stage.Name)
		start := time.Now()

		lastFraction := 0.0
		progress := func(fraction float64, message string) {
			if fraction < lastFraction {
				fraction = lastFraction
			}
			lastFraction = fraction
			mgr.Progress(stage.Name, fraction, message)
		}

		err := stage.Run(ctx, token, progress)
		elapsed := time.Since(start).Seconds()

		ctx.Timings = append(ctx.Timings, simtypes.StageTiming{
			Module:           stage.Name,
			ExecutionSeconds: elapsed,
			Completed:        err == nil,
		})

		if err != nil {
			if simerr.IsCancelled(err) {
				ctx.Cancelled = true
				ctx.FailedAt = stage.Name
				return err
			}
			ctx.FailedAt = stage.Name
			mgr.EmitError(stage.Name, err)
			return err
		}

		mgr.ModuleCompleted(stage.Name, elapsed)
	}
	return nil
}
