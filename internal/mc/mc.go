// Package mc is the outer Monte Carlo driver (spec section 4.15): it
// derives one deterministic seed per inner path, runs simcore.Run
// across a bounded worker pool modeled on the teacher's indexed
// job/result channel pattern, and aggregates the per-path results into
// distributions, a hurdle-clearance rate, a guardrail fail-rate, and a
// set of efficient-frontier candidates.
package mc

import (
	"sort"
	"sync"

	"github.com/equihome/heloc-simfund/internal/cancel"
	"github.com/equihome/heloc-simfund/internal/config"
	"github.com/equihome/heloc-simfund/internal/events"
	"github.com/equihome/heloc-simfund/internal/rngfactory"
	"github.com/equihome/heloc-simfund/internal/simcore"
	"github.com/equihome/heloc-simfund/internal/simtypes"
	"github.com/equihome/heloc-simfund/internal/zone"
	"github.com/rs/zerolog"
)

// Distribution is the standard summary statistics reported for one
// output metric across every completed path.
type Distribution struct {
	Mean   float64
	Median float64
	P5     float64
	P25    float64
	P75    float64
	P95    float64
	Min    float64
	Max    float64
	N      int
}

// FrontierPoint is one non-dominated (volatility, return) candidate on
// the realised risk/return efficient frontier across paths.
type FrontierPoint struct {
	PathID     int
	Volatility float64
	IRR        float64
}

// Result is the outer driver's full output.
type Result struct {
	RunID                 string
	PathsRequested         int
	PathsCompleted         int
	PathsFailed            int
	IRR                    Distribution
	MOIC                   Distribution
	TVPI                   Distribution
	MaxDrawdown            Distribution
	HurdleClearProbability float64
	GuardrailFailRate      float64
	EfficientFrontier      []FrontierPoint
	Contexts               []*simtypes.SimulationContext
}

type job struct {
	index int
	seed  int64
}

type result struct {
	index int
	ctx   *simtypes.SimulationContext
	err   error
}

// Run executes nPaths independent inner simulations across workers
// goroutines and aggregates them. Every path's seed is derived from
// baseSeed via rngfactory.DerivePathSeed, so the same (config, seed,
// nPaths) triple always reproduces the same ensemble regardless of
// worker count or completion order.
func Run(cfg *config.Config, cat *zone.Catalogue, runID string, baseSeed int64, nPaths, workers int, token *cancel.Token, sink *events.Sink, log zerolog.Logger) Result {
	if nPaths <= 0 {
		return Result{RunID: runID}
	}
	if workers <= 0 || workers > nPaths {
		workers = nPaths
	}

	jobs := make(chan job, nPaths)
	results := make(chan result, nPaths)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if token.Cancelled() {
					results <- result{index: j.index, err: nil, ctx: &simtypes.SimulationContext{RunID: runID, PathID: j.index, Seed: j.seed, Cancelled: true}}
					continue
				}
				ctx, err := simcore.Run(cfg, cat, runID, j.seed, j.index, token, sink, log)
				results <- result{index: j.index, ctx: ctx, err: err}
			}
		}()
	}

	for p := 0; p < nPaths; p++ {
		jobs <- job{index: p, seed: rngfactory.DerivePathSeed(baseSeed, p)}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	contexts := make([]*simtypes.SimulationContext, nPaths)
	for r := range results {
		contexts[r.index] = r.ctx
	}

	return aggregate(cfg, runID, nPaths, contexts)
}

func aggregate(cfg *config.Config, runID string, requested int, contexts []*simtypes.SimulationContext) Result {
	res := Result{RunID: runID, PathsRequested: requested, Contexts: contexts}

	var irrs, moics, tvpis, drawdowns, vols []float64
	hurdleClears := 0
	guardrailFails := 0
	completed := 0

	for _, ctx := range contexts {
		if ctx == nil || ctx.Cancelled || ctx.FailedAt != "" {
			res.PathsFailed++
			continue
		}
		completed++

		if ctx.Cashflows.IRR != nil {
			irrs = append(irrs, *ctx.Cashflows.IRR)
			if *ctx.Cashflows.IRR >= cfg.HurdleRate {
				hurdleClears++
			}
		}
		moics = append(moics, ctx.Cashflows.MOIC)
		tvpis = append(tvpis, ctx.Cashflows.TVPI)
		drawdowns = append(drawdowns, ctx.RiskMetrics.MaxDrawdown)
		vols = append(vols, ctx.RiskMetrics.Volatility)

		if ctx.GuardrailReport.WorstLevel == simtypes.SeverityFail {
			guardrailFails++
		}
	}
	res.PathsCompleted = completed

	res.IRR = summarize(irrs)
	res.MOIC = summarize(moics)
	res.TVPI = summarize(tvpis)
	res.MaxDrawdown = summarize(drawdowns)

	if completed > 0 {
		res.HurdleClearProbability = float64(hurdleClears) / float64(completed)
		res.GuardrailFailRate = float64(guardrailFails) / float64(completed)
	}

	res.EfficientFrontier = efficientFrontier(contexts)
	return res
}

func summarize(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	return Distribution{
		Mean:   sum / float64(len(sorted)),
		Median: percentile(sorted, 0.50),
		P5:     percentile(sorted, 0.05),
		P25:    percentile(sorted, 0.25),
		P75:    percentile(sorted, 0.75),
		P95:    percentile(sorted, 0.95),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		N:      len(sorted),
	}
}

// percentile uses linear interpolation between closest ranks on an
// already-sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(pos)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// efficientFrontier returns the subset of completed paths not
// dominated by any other path in the (lower volatility, higher IRR)
// sense, sorted by ascending volatility.
func efficientFrontier(contexts []*simtypes.SimulationContext) []FrontierPoint {
	var points []FrontierPoint
	for _, ctx := range contexts {
		if ctx == nil || ctx.Cancelled || ctx.FailedAt != "" || ctx.Cashflows.IRR == nil {
			continue
		}
		points = append(points, FrontierPoint{PathID: ctx.PathID, Volatility: ctx.RiskMetrics.Volatility, IRR: *ctx.Cashflows.IRR})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Volatility < points[j].Volatility })

	var frontier []FrontierPoint
	bestIRR := negInf
	for _, p := range points {
		if p.IRR > bestIRR {
			frontier = append(frontier, p)
			bestIRR = p.IRR
		}
	}
	return frontier
}

const negInf = -1e308
