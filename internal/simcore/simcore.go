// Package simcore wires every stage into the orchestrator and exposes
// the single-path entry point described in spec section 6: Run(config,
// seed, cancellation token, event sink) -> completed SimulationContext.
// Every stage here is a thin adapter between the orchestrator's
// Operation signature and one internal engine package; none of them
// contain domain logic of their own.
package simcore

import (
	"fmt"

	"github.com/equihome/heloc-simfund/internal/allocator"
	"github.com/equihome/heloc-simfund/internal/cancel"
	"github.com/equihome/heloc-simfund/internal/cashflow"
	"github.com/equihome/heloc-simfund/internal/config"
	"github.com/equihome/heloc-simfund/internal/events"
	"github.com/equihome/heloc-simfund/internal/exitsim"
	"github.com/equihome/heloc-simfund/internal/fees"
	"github.com/equihome/heloc-simfund/internal/guardrail"
	"github.com/equihome/heloc-simfund/internal/leverage"
	"github.com/equihome/heloc-simfund/internal/loangen"
	"github.com/equihome/heloc-simfund/internal/orchestrator"
	"github.com/equihome/heloc-simfund/internal/pricepath"
	"github.com/equihome/heloc-simfund/internal/reinvest"
	"github.com/equihome/heloc-simfund/internal/risk"
	"github.com/equihome/heloc-simfund/internal/rngfactory"
	"github.com/equihome/heloc-simfund/internal/simtypes"
	"github.com/equihome/heloc-simfund/internal/waterfall"
	"github.com/equihome/heloc-simfund/internal/zone"
	"github.com/rs/zerolog"
)

// Run executes one full simulation path to completion (or cancellation
// or failure) and returns its context. The returned context is always
// non-nil, even on failure, so the caller can inspect ctx.FailedAt and
// the partial Timings.
func Run(cfg *config.Config, cat *zone.Catalogue, runID string, seed int64, pathID int, token *cancel.Token, sink *events.Sink, log zerolog.Logger) (*simtypes.SimulationContext, error) {
	factory := rngfactory.New(seed)
	mgr := events.NewManager(sink, runID, log)

	ctx := &simtypes.SimulationContext{
		RunID:  runID,
		PathID: pathID,
		Seed:   seed,
	}

	stages := buildStages(cfg, cat, factory)
	o, err := orchestrator.New(stages, log)
	if err != nil {
		return ctx, err
	}
	if err := o.Run(ctx, token, mgr); err != nil {
		return ctx, err
	}
	return ctx, nil
}

func buildStages(cfg *config.Config, cat *zone.Catalogue, factory *rngfactory.Factory) []orchestrator.Stage {
	// allocationDollars bridges the allocation stage's dollar split to
	// the loan-generation stage; it is not part of SimulationContext
	// because ctx.Allocation reports the target *fraction* (for display
	// alongside ActualAllocation), not dollars.
	var allocationDollars map[zone.Zone]float64

	return []orchestrator.Stage{
		{
			Name: "allocation",
			Run: func(ctx *simtypes.SimulationContext, token *cancel.Token, progress orchestrator.ProgressFunc) error {
				progress(0, "splitting committed capital across zones")
				dollars, err := allocator.Allocate(cfg.FundSize, cfg)
				if err != nil {
					return err
				}
				target := make(map[zone.Zone]float64, len(cfg.ZoneParams))
				for z, p := range cfg.ZoneParams {
					target[z] = p.TargetAllocation
				}
				ctx.Allocation = target
				allocationDollars = dollars
				progress(1, "allocation complete")
				return nil
			},
		},
		{
			Name:     "price_path",
			Upstream: []string{"allocation"},
			Run: func(ctx *simtypes.SimulationContext, token *cancel.Token, progress orchestrator.ProgressFunc) error {
				progress(0, "simulating zone and property price paths")
				ids := make([]string, 0)
				for _, p := range cat.AllProperties() {
					ids = append(ids, p.ID)
				}
				paths, err := pricepath.Simulate(cfg, factory, ids)
				if err != nil {
					return err
				}
				ctx.PricePaths = paths
				progress(1, "price paths complete")
				return nil
			},
		},
		{
			Name:     "loan_generation",
			Upstream: []string{"allocation"},
			Run: func(ctx *simtypes.SimulationContext, token *cancel.Token, progress orchestrator.ProgressFunc) error {
				progress(0, "generating initial loan portfolio")
				loans, err := loangen.GenerateInitialPortfolio(cfg, cat, allocationDollars, factory)
				if err != nil {
					return err
				}
				ctx.Loans = loans
				progress(1, "initial portfolio complete")
				return nil
			},
		},
		{
			Name:     "exit_simulation",
			Upstream: []string{"loan_generation", "price_path"},
			Run: func(ctx *simtypes.SimulationContext, token *cancel.Token, progress orchestrator.ProgressFunc) error {
				progress(0, "simulating loan exits")
				ctx.Exits = exitsim.Simulate(cfg, ctx.Loans, ctx.PricePaths, factory)
				progress(1, "exit simulation complete")
				return nil
			},
		},
		{
			Name:     "reinvestment",
			Upstream: []string{"exit_simulation"},
			Run: func(ctx *simtypes.SimulationContext, token *cancel.Token, progress orchestrator.ProgressFunc) error {
				if !cfg.Flags.EnableReinvestment {
					progress(1, "reinvestment disabled")
					return nil
				}
				progress(0, "reinvesting exit proceeds")
				newLoans := reinvest.Simulate(cfg, cat, ctx.Loans, ctx.Exits, ctx.Allocation, factory)
				if len(newLoans) > 0 {
					ctx.Loans = append(ctx.Loans, newLoans...)
					// Re-run exit simulation over the full book: loans that
					// already have an exit recorded re-derive the identical
					// outcome (their RNG stream is keyed by loan id), and the
					// newly reinvested loans get their exit simulated for the
					// first time.
					ctx.Exits = exitsim.Simulate(cfg, ctx.Loans, ctx.PricePaths, factory)
				}
				progress(1, fmt.Sprintf("reinvested into %d new loans", len(newLoans)))
				return nil
			},
		},
		{
			Name:     "cashflow_aggregation",
			Upstream: []string{"reinvestment"},
			Run: func(ctx *simtypes.SimulationContext, token *cancel.Token, progress orchestrator.ProgressFunc) error {
				progress(0, "building cashflow ledger")
				ledger := cashflow.Aggregate(cfg, ctx.Loans)
				ctx.Cashflows = ledger
				if cfg.Flags.EnableLeverage && len(cfg.Facilities) > 0 {
					applyLeverage(cfg, ctx, factory)
				}

				principalByZone := make(map[zone.Zone]float64)
				for _, l := range ctx.Loans {
					principalByZone[l.Zone] += l.Principal
				}
				ctx.ActualAllocation = allocator.ActualAllocation(principalByZone)
				progress(1, "cashflow aggregation complete")
				return nil
			},
		},
		{
			Name:     "waterfall",
			Upstream: []string{"cashflow_aggregation"},
			Run: func(ctx *simtypes.SimulationContext, token *cancel.Token, progress orchestrator.ProgressFunc) error {
				progress(0, "distributing cash through the waterfall")
				ctx.Waterfall = waterfall.Run(cfg, &ctx.Cashflows, ctx.Loans)
				progress(1, "waterfall complete")
				return nil
			},
		},
		{
			Name:     "risk",
			Upstream: []string{"waterfall"},
			Run: func(ctx *simtypes.SimulationContext, token *cancel.Token, progress orchestrator.ProgressFunc) error {
				progress(0, "computing risk metrics")
				ctx.RiskMetrics = risk.Compute(cfg, ctx)
				progress(1, "risk metrics complete")
				return nil
			},
		},
		{
			Name:     "guardrails",
			Upstream: []string{"risk"},
			Run: func(ctx *simtypes.SimulationContext, token *cancel.Token, progress orchestrator.ProgressFunc) error {
				progress(0, "evaluating guardrails")
				ctx.GuardrailReport = guardrail.Evaluate(cfg, ctx)
				progress(1, "guardrail evaluation complete")
				return nil
			},
		},
	}
}

// applyLeverage steps every facility month by month across the fund
// term, feeding draws/repayments/interest back into the cashflow ledger
// and recording every event for the report stage's tranche table.
func applyLeverage(cfg *config.Config, ctx *simtypes.SimulationContext, factory *rngfactory.Factory) {
	horizon := cfg.FundTermMonths()
	engine := leverage.New(cfg, factory, horizon)

	calledSoFar := 0.0
	for m := 0; m <= horizon; m++ {
		r := &ctx.Cashflows.Rows[m]
		calledSoFar += r.CapitalCall
		uncalled := cfg.FundSize - calledSoFar

		nav := 0.0
		for _, l := range ctx.Loans {
			if l.OriginationMonth <= m && l.ExitMonth > m {
				nav += l.Principal
			}
		}

		shortfall := 0.0
		availableForRepay := 0.0
		if r.Net < 0 {
			shortfall = -r.Net
		} else {
			availableForRepay = r.Net
		}

		stepEvents := engine.Step(m, nav, uncalled, shortfall, availableForRepay)
		draw, repay, interest := 0.0, 0.0, 0.0
		for _, e := range stepEvents {
			ctx.LeverageEvents = append(ctx.LeverageEvents, e)
			draw += e.Draw
			repay += e.Repayment
			interest += e.Interest
		}
		if draw != 0 || repay != 0 || interest != 0 {
			cashflow.ApplyLeverage(&ctx.Cashflows, m, draw, repay, interest)
		}
	}
}
