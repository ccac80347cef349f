// Package guardrail evaluates a fixed set of non-blocking portfolio
// rules against a completed simulation context (spec section 4.13).
// Guardrails never abort the pipeline: every breach is captured as
// severity-tagged data in the GuardrailReport, and the orchestrator
// continues regardless of outcome.
package guardrail

import (
	"fmt"

	"github.com/equihome/heloc-simfund/internal/config"
	"github.com/equihome/heloc-simfund/internal/simtypes"
)

// Evaluate runs every rule against ctx and returns the accumulated
// report. Rules are grouped by layer: loan, zone, portfolio, model.
func Evaluate(cfg *config.Config, ctx *simtypes.SimulationContext) simtypes.GuardrailReport {
	var report simtypes.GuardrailReport

	evaluateLoanRules(cfg, ctx, &report)
	evaluateZoneRules(cfg, ctx, &report)
	evaluatePortfolioRules(cfg, ctx, &report)
	evaluateModelRules(cfg, ctx, &report)

	if report.WorstLevel == "" {
		report.WorstLevel = simtypes.SeverityInfo
	}
	return report
}

// evaluateLoanRules flags any individual loan whose LTV exceeds the
// configured ceiling, which should never occur given loangen's own
// clamping but is worth confirming independently.
func evaluateLoanRules(cfg *config.Config, ctx *simtypes.SimulationContext, report *simtypes.GuardrailReport) {
	for _, l := range ctx.Loans {
		if l.LTV > cfg.MaxLTV {
			report.AddBreach(simtypes.Breach{
				Code:      "loan_ltv_ceiling",
				Severity:  simtypes.SeverityFail,
				Value:     l.LTV,
				Threshold: cfg.MaxLTV,
				Layer:     "loan",
				Message:   fmt.Sprintf("loan %s LTV %.4f exceeds ceiling %.4f", l.ID, l.LTV, cfg.MaxLTV),
			})
		}
	}
}

// evaluateZoneRules flags any zone whose realised allocation has
// drifted past its configured cap.
func evaluateZoneRules(cfg *config.Config, ctx *simtypes.SimulationContext, report *simtypes.GuardrailReport) {
	for z, actual := range ctx.ActualAllocation {
		params, ok := cfg.ZoneParams[z]
		if !ok || params.AllocationCap <= 0 {
			continue
		}
		if actual > params.AllocationCap+1e-6 {
			report.AddBreach(simtypes.Breach{
				Code:      "zone_allocation_cap",
				Severity:  simtypes.SeverityWarn,
				Value:     actual,
				Threshold: params.AllocationCap,
				Layer:     "zone",
				Message:   fmt.Sprintf("zone %s realised allocation %.4f exceeds cap %.4f", z, actual, params.AllocationCap),
			})
		}
	}
}

const (
	defaultRateWarnThreshold = 0.15
	defaultRateFailThreshold = 0.30
	minIRRWarnThreshold      = 0.0
)

// evaluatePortfolioRules checks fund-wide outcomes: realised default
// rate and whether the fund IRR cleared a sanity floor.
func evaluatePortfolioRules(cfg *config.Config, ctx *simtypes.SimulationContext, report *simtypes.GuardrailReport) {
	if len(ctx.Loans) == 0 {
		return
	}
	defaults := 0
	for _, l := range ctx.Loans {
		if l.ExitKind == simtypes.ExitDefault {
			defaults++
		}
	}
	defaultRate := float64(defaults) / float64(len(ctx.Loans))
	switch {
	case defaultRate > defaultRateFailThreshold:
		report.AddBreach(simtypes.Breach{
			Code: "portfolio_default_rate", Severity: simtypes.SeverityFail,
			Value: defaultRate, Threshold: defaultRateFailThreshold, Layer: "portfolio",
			Message: fmt.Sprintf("realised default rate %.4f exceeds fail threshold %.4f", defaultRate, defaultRateFailThreshold),
		})
	case defaultRate > defaultRateWarnThreshold:
		report.AddBreach(simtypes.Breach{
			Code: "portfolio_default_rate", Severity: simtypes.SeverityWarn,
			Value: defaultRate, Threshold: defaultRateWarnThreshold, Layer: "portfolio",
			Message: fmt.Sprintf("realised default rate %.4f exceeds warn threshold %.4f", defaultRate, defaultRateWarnThreshold),
		})
	}

	if ctx.Cashflows.IRR != nil && *ctx.Cashflows.IRR < minIRRWarnThreshold {
		report.AddBreach(simtypes.Breach{
			Code: "portfolio_negative_irr", Severity: simtypes.SeverityWarn,
			Value: *ctx.Cashflows.IRR, Threshold: minIRRWarnThreshold, Layer: "portfolio",
			Message: fmt.Sprintf("fund IRR %.4f is negative", *ctx.Cashflows.IRR),
		})
	}
}

// evaluateModelRules checks for numeric pathologies that indicate the
// upstream stochastic engines produced a degenerate path (e.g. a price
// path that went non-positive), which would otherwise silently corrupt
// every downstream metric.
func evaluateModelRules(cfg *config.Config, ctx *simtypes.SimulationContext, report *simtypes.GuardrailReport) {
	for z, series := range ctx.PricePaths.Zone {
		for _, p := range series {
			if p <= 0 {
				report.AddBreach(simtypes.Breach{
					Code: "model_nonpositive_price", Severity: simtypes.SeverityFail,
					Value: p, Threshold: 0, Layer: "model",
					Message: fmt.Sprintf("zone %s price path produced a non-positive index value", z),
				})
				break
			}
		}
	}
}
