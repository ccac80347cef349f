// Package risk derives the risk and concentration metrics reported
// alongside one simulated path (spec section 4.12): volatility,
// alpha/beta, VaR/CVaR, Sharpe/Sortino/Calmar, max drawdown, zone and
// suburb concentration (HHI), and a set of deterministic stress
// scenarios. Metrics that only become meaningful across many paths
// (notably beta against a constant single-path benchmark) are reported
// nil with RequiresMC set rather than a misleading number.
package risk

import (
	"math"
	"sort"

	"github.com/equihome/heloc-simfund/internal/config"
	"github.com/equihome/heloc-simfund/internal/simtypes"
	"github.com/equihome/heloc-simfund/pkg/formulas"
	"github.com/markcheno/go-talib"
)

const monthsPerYear = 12.0

// Compute derives the full RiskMetrics for one completed simulation
// context's ledger, loan book, and allocation.
func Compute(cfg *config.Config, ctx *simtypes.SimulationContext) simtypes.RiskMetrics {
	nav := make([]float64, len(ctx.Cashflows.Rows))
	for i, r := range ctx.Cashflows.Rows {
		nav[i] = r.Cumulative
	}
	monthlyReturns := navReturns(nav)

	metrics := simtypes.RiskMetrics{
		RequiresMC: make(map[string]bool),
	}

	vol := formulas.StdDev(monthlyReturns) * math.Sqrt(monthsPerYear)
	metrics.Volatility = vol

	meanMonthly := formulas.Mean(monthlyReturns)
	annualReturn := meanMonthly * monthsPerYear
	// A volatility this small is floating-point noise, not risk.
	if vol > 1e-12 {
		metrics.Sharpe = (annualReturn - cfg.Risk.RiskFreeRate) / vol
	}

	downside := downsideDeviation(monthlyReturns, meanMonthly) * math.Sqrt(monthsPerYear)
	if downside > 0 {
		metrics.Sortino = (annualReturn - cfg.Risk.RiskFreeRate) / downside
	}

	metrics.MaxDrawdown = maxDrawdown(nav)
	if metrics.MaxDrawdown < 0 {
		metrics.Calmar = annualReturn / math.Abs(metrics.MaxDrawdown)
	}

	metrics.VaR = valueAtRisk(monthlyReturns, cfg.Risk.VaRConfidence)
	metrics.CVaR = formulas.CalculateCVaR(monthlyReturns, cfg.Risk.VaRConfidence)
	metrics.CAGR = formulas.CalculateCAGRFromPrices(positiveNAV(nav), len(nav))

	// A single path's benchmark series is a constant monthly return, so
	// it carries zero variance: beta (and therefore a meaningful alpha)
	// only becomes estimable once returns vary across an ensemble of
	// benchmark draws, i.e. in Monte Carlo mode.
	metrics.RequiresMC["beta"] = true
	metrics.RequiresMC["alpha"] = true

	metrics.ZoneHHI = hhi(zoneWeights(ctx))
	metrics.SuburbHHI = hhi(suburbWeights(ctx))

	metrics.StressResults = stressScenarios(cfg, ctx)

	return metrics
}

// navReturns converts a cumulative-NAV series into period returns,
// skipping non-positive bases to avoid dividing by zero at the fund's
// unfunded start.
func navReturns(nav []float64) []float64 {
	var returns []float64
	for i := 1; i < len(nav); i++ {
		base := nav[i-1]
		if base <= 0 {
			continue
		}
		returns = append(returns, (nav[i]-base)/base)
	}
	return returns
}

// positiveNAV drops the leading stretch of the NAV series before
// capital has been called (cumulative <= 0), so formulas.CAGR's
// start-price positivity check has a real starting value to anchor on
// instead of always failing against an initial zero balance.
func positiveNAV(nav []float64) []float64 {
	for i, v := range nav {
		if v > 0 {
			return nav[i:]
		}
	}
	return nil
}

func downsideDeviation(returns []float64, mean float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sum := 0.0
	n := 0
	for _, r := range returns {
		if r < mean {
			d := r - mean
			sum += d * d
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

// maxDrawdown computes the worst peak-to-trough decline of the NAV
// series by building the running-drawdown series directly, then taking
// go-talib's rolling minimum over its full length to read off the
// single worst value.
func maxDrawdown(nav []float64) float64 {
	if len(nav) == 0 {
		return 0
	}
	drawdown := make([]float64, len(nav))
	peak := nav[0]
	for i, v := range nav {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			drawdown[i] = v/peak - 1.0
		}
	}
	mins := talib.Min(drawdown, len(drawdown))
	if len(mins) == 0 {
		return 0
	}
	worst := mins[len(mins)-1]
	if math.IsNaN(worst) {
		return 0
	}
	return worst
}

// valueAtRisk reports the threshold return at the given confidence
// level (e.g. the 5th percentile return for 95% confidence), using the
// same tail-count convention as formulas.CalculateCVaR so the two stay
// consistent with one another.
func valueAtRisk(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	tailProbability := 1.0 - confidence
	tailCount := int(math.Ceil(float64(len(sorted)) * tailProbability))
	if tailCount < 1 {
		tailCount = 1
	}
	if tailCount > len(sorted) {
		tailCount = len(sorted)
	}
	return sorted[tailCount-1]
}

func zoneWeights(ctx *simtypes.SimulationContext) []float64 {
	weights := make([]float64, 0, len(ctx.ActualAllocation))
	for _, w := range ctx.ActualAllocation {
		weights = append(weights, w)
	}
	return weights
}

func suburbWeights(ctx *simtypes.SimulationContext) []float64 {
	bySuburb := make(map[string]float64)
	total := 0.0
	for _, l := range ctx.Loans {
		bySuburb[l.SuburbID] += l.Principal
		total += l.Principal
	}
	if total <= 0 {
		return nil
	}
	weights := make([]float64, 0, len(bySuburb))
	for _, principal := range bySuburb {
		weights = append(weights, principal/total)
	}
	return weights
}

// hhi is the Herfindahl-Hirschman concentration index: sum of squared
// fractional weights, in [0, 1].
func hhi(weights []float64) float64 {
	sum := 0.0
	for _, w := range weights {
		sum += w * w
	}
	return sum
}

// stressScenarios re-prices the realised loan book under three
// deterministic shocks without re-running the stochastic engines: a
// parallel price shock applied to each exit's appreciation component, a
// parallel rate shock applied to simple interest accrual, and a
// probability-of-default multiplier applied to default-loss severity.
// This is a lightweight re-evaluation of the same path's outcomes, not
// a fresh Monte Carlo draw, consistent with "deterministic" scenario
// analysis in spec section 4.12.
func stressScenarios(cfg *config.Config, ctx *simtypes.SimulationContext) map[string]simtypes.StressOutcome {
	results := make(map[string]simtypes.StressOutcome, 3)

	if !cfg.Flags.EnableStressTests {
		return results
	}

	results["price_shock"] = reprice(cfg, ctx, func(l simtypes.Loan) float64 {
		if l.ExitKind == simtypes.ExitDefault {
			return l.ExitValue
		}
		appreciation := l.ExitValue - l.Principal - simpleInterest(l)
		return l.Principal + simpleInterest(l) + appreciation*(1+cfg.Risk.StressPriceShock)
	}, "price_shock")

	results["rate_shock"] = reprice(cfg, ctx, func(l simtypes.Loan) float64 {
		if l.ExitKind == simtypes.ExitDefault {
			return l.ExitValue
		}
		shockedRate := l.Rate + cfg.Risk.StressRateShockBps/10000.0
		holding := float64(l.ExitMonth-l.OriginationMonth) / monthsPerYear
		shockedInterest := l.Principal * shockedRate * holding
		appreciation := l.ExitValue - l.Principal - simpleInterest(l)
		return l.Principal + shockedInterest + appreciation
	}, "rate_shock")

	results["pd_multiplier"] = reprice(cfg, ctx, func(l simtypes.Loan) float64 {
		if l.ExitKind != simtypes.ExitDefault {
			return l.ExitValue
		}
		if cfg.Risk.StressPDMultiplier <= 0 {
			return l.ExitValue
		}
		return l.ExitValue / cfg.Risk.StressPDMultiplier
	}, "pd_multiplier")

	return results
}

func simpleInterest(l simtypes.Loan) float64 {
	return l.Principal * l.Rate * float64(l.ExitMonth-l.OriginationMonth) / monthsPerYear
}

func reprice(cfg *config.Config, ctx *simtypes.SimulationContext, proceedsFn func(simtypes.Loan) float64, scenario string) simtypes.StressOutcome {
	totalCapital := 0.0
	totalProceeds := 0.0
	cashflows := make([]float64, len(ctx.Cashflows.Rows))

	for _, l := range ctx.Loans {
		totalCapital += l.Principal
		proceeds := proceedsFn(l)
		totalProceeds += proceeds
		if l.OriginationMonth >= 0 && l.OriginationMonth < len(cashflows) {
			cashflows[l.OriginationMonth] -= l.Principal
		}
		if l.ExitMonth >= 0 && l.ExitMonth < len(cashflows) {
			cashflows[l.ExitMonth] += proceeds
		}
	}

	multiple := 0.0
	if totalCapital > 0 {
		multiple = totalProceeds / totalCapital
	}

	irr, _ := solveStressIRR(cashflows)
	return simtypes.StressOutcome{Scenario: scenario, IRR: irr, EquityMultiple: multiple}
}

// solveStressIRR is a narrow bisection solver mirroring
// internal/cashflow's SolveIRR, kept local to avoid a risk->cashflow
// import for a single-purpose recomputation on synthetic cashflows.
func solveStressIRR(monthly []float64) (*float64, string) {
	npv := func(rate float64) float64 {
		sum := 0.0
		for t, cf := range monthly {
			sum += cf * math.Pow(1+rate, -float64(t)/monthsPerYear)
		}
		return sum
	}
	lo, hi := -0.99, 10.0
	npvLo, npvHi := npv(lo), npv(hi)
	if npvLo*npvHi > 0 {
		return nil, "no root found in stress bracket"
	}
	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		npvMid := npv(mid)
		if math.Abs(npvMid) < 1e-8 {
			return &mid, ""
		}
		if npvLo*npvMid < 0 {
			hi = mid
		} else {
			lo = mid
			npvLo = npvMid
		}
	}
	root := (lo + hi) / 2
	return &root, ""
}
