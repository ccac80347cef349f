// Package waterfall distributes each month's available cash between LP
// and GP through the configured tier structure (spec section 4.11):
// European (whole-fund, cumulative) or American (deal-by-deal, settled
// at each loan's own exit). It is the sole writer of the cashflow
// ledger's Distribution column.
package waterfall

import (
	"math"

	"github.com/equihome/heloc-simfund/internal/cashflow"
	"github.com/equihome/heloc-simfund/internal/config"
	"github.com/equihome/heloc-simfund/internal/simtypes"
)

// Run distributes the fund's cash per the configured waterfall
// structure, writes ledger.Rows[*].Distribution, and recomputes the
// ledger's Net/Cumulative/summary metrics to reflect it.
func Run(cfg *config.Config, ledger *simtypes.CashflowLedger, loans []simtypes.Loan) simtypes.WaterfallResult {
	if cfg.WaterfallKind == config.WaterfallAmerican {
		return runAmerican(cfg, ledger, loans)
	}
	return runEuropean(cfg, ledger)
}

// runEuropean applies tiers to the whole fund's cash on a cumulative
// basis: return of capital, then preferred return (accrued monthly on
// unreturned capital), then an optional GP catch-up, then the
// carry-rate split of everything after.
func runEuropean(cfg *config.Config, ledger *simtypes.CashflowLedger) simtypes.WaterfallResult {
	var result simtypes.WaterfallResult
	monthlyHurdle := cfg.HurdleRate / 12.0

	capitalContributed := 0.0
	capitalReturned := 0.0
	prefAccrued := 0.0
	prefPaid := 0.0
	catchUpPaid := 0.0
	carryPaid := 0.0

	for i := range ledger.Rows {
		r := &ledger.Rows[i]
		capitalContributed += r.CapitalCall
		outstanding := math.Max(0, capitalContributed-capitalReturned)
		prefAccrued += outstanding * monthlyHurdle

		available := math.Max(0, r.Net)
		lpMonth, gpMonth := 0.0, 0.0

		if available > 0 && capitalReturned < capitalContributed {
			pay := math.Min(available, capitalContributed-capitalReturned)
			capitalReturned += pay
			lpMonth += pay
			available -= pay
			result.Distributions = append(result.Distributions, simtypes.TierDistribution{Tier: simtypes.TierReturnOfCapital, Month: r.Month, LP: pay})
		}

		if available > 0 && prefPaid < prefAccrued {
			pay := math.Min(available, prefAccrued-prefPaid)
			prefPaid += pay
			lpMonth += pay
			available -= pay
			result.Distributions = append(result.Distributions, simtypes.TierDistribution{Tier: simtypes.TierPreferredReturn, Month: r.Month, LP: pay})
		}

		if cfg.CatchUpEnabled && available > 0 && cfg.CarryRate < 1 {
			target := cfg.CarryRate / (1 - cfg.CarryRate) * prefPaid
			if catchUpPaid < target {
				pay := math.Min(available, target-catchUpPaid)
				catchUpPaid += pay
				gpMonth += pay
				available -= pay
				result.Distributions = append(result.Distributions, simtypes.TierDistribution{Tier: simtypes.TierCatchUp, Month: r.Month, GP: pay})
			}
		}

		if available > 0 {
			gpShare := available * cfg.CarryRate
			lpShare := available - gpShare
			carryPaid += gpShare
			lpMonth += lpShare
			gpMonth += gpShare
			result.Distributions = append(result.Distributions, simtypes.TierDistribution{Tier: simtypes.TierCarry, Month: r.Month, LP: lpShare, GP: gpShare})
		}

		r.Distribution = lpMonth + gpMonth
		result.LPTotal += lpMonth
		result.GPTotal += gpMonth
	}

	applyClawback(cfg, &result, capitalContributed, catchUpPaid+carryPaid)
	cashflow.RecomputeAfterDistribution(ledger)
	return result
}

// runAmerican settles each loan's own capital, profit, catch-up, and
// carry independently at its own exit month, then folds every deal's
// LP/GP split into the ledger's Distribution column for that month.
func runAmerican(cfg *config.Config, ledger *simtypes.CashflowLedger, loans []simtypes.Loan) simtypes.WaterfallResult {
	var result simtypes.WaterfallResult
	monthlyHurdle := cfg.HurdleRate / 12.0

	lpByMonth := make(map[int]float64)
	gpByMonth := make(map[int]float64)
	totalCapital := 0.0

	for i := range loans {
		l := &loans[i]
		totalCapital += l.Principal

		capital := l.Principal
		available := l.ExitValue
		holding := l.ExitMonth - l.OriginationMonth
		if holding < 0 {
			holding = 0
		}
		prefTarget := capital * monthlyHurdle * float64(holding)

		lp, gp := 0.0, 0.0

		payRoC := math.Min(available, capital)
		lp += payRoC
		available -= payRoC
		result.Distributions = append(result.Distributions, simtypes.TierDistribution{Tier: simtypes.TierReturnOfCapital, Month: l.ExitMonth, LP: payRoC})

		payPref := math.Min(available, prefTarget)
		lp += payPref
		available -= payPref
		result.Distributions = append(result.Distributions, simtypes.TierDistribution{Tier: simtypes.TierPreferredReturn, Month: l.ExitMonth, LP: payPref})

		if cfg.CatchUpEnabled && cfg.CarryRate < 1 {
			catchTarget := cfg.CarryRate / (1 - cfg.CarryRate) * payPref
			payCatch := math.Min(available, catchTarget)
			if payCatch > 0 {
				gp += payCatch
				available -= payCatch
				result.Distributions = append(result.Distributions, simtypes.TierDistribution{Tier: simtypes.TierCatchUp, Month: l.ExitMonth, GP: payCatch})
			}
		}

		if available > 0 {
			gpShare := available * cfg.CarryRate
			lpShare := available - gpShare
			lp += lpShare
			gp += gpShare
			result.Distributions = append(result.Distributions, simtypes.TierDistribution{Tier: simtypes.TierCarry, Month: l.ExitMonth, LP: lpShare, GP: gpShare})
		}

		lpByMonth[l.ExitMonth] += lp
		gpByMonth[l.ExitMonth] += gp
		result.LPTotal += lp
		result.GPTotal += gp
	}

	for month, lp := range lpByMonth {
		if month >= 0 && month < len(ledger.Rows) {
			ledger.Rows[month].Distribution += lp + gpByMonth[month]
		}
	}

	// The GP only ever receives catch-up and carry-tier cash, so
	// result.GPTotal already is the carry-like total for the clawback
	// check.
	applyClawback(cfg, &result, totalCapital, result.GPTotal)
	cashflow.RecomputeAfterDistribution(ledger)
	return result
}

// applyClawback enforces the end-of-life guarantee that the GP never
// keeps more than carry_rate of total realised profit: any excess is
// clawed back to the LP (spec section 4.11).
func applyClawback(cfg *config.Config, result *simtypes.WaterfallResult, capitalContributed, gpCarryLike float64) {
	totalProfit := math.Max(0, result.LPTotal+result.GPTotal-capitalContributed)
	entitled := cfg.CarryRate * totalProfit
	if gpCarryLike > entitled {
		clawback := gpCarryLike - entitled
		result.Clawback = clawback
		result.GPTotal -= clawback
		result.LPTotal += clawback
	}
}
