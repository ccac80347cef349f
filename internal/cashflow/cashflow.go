// Package cashflow builds loan-level monthly flows from the loan, its
// price path, and its exit event, rolls them up to the fund-level
// ledger, and derives the standard summary metrics (spec section 4.10).
// The waterfall stage, which runs after this one, is the sole writer of
// each row's Distribution field and recomputes Net/Cumulative once it
// has decided how much of each month's distributable cash to pay out.
package cashflow

import (
	"math"

	"github.com/equihome/heloc-simfund/internal/config"
	"github.com/equihome/heloc-simfund/internal/fees"
	"github.com/equihome/heloc-simfund/internal/simtypes"
)

// Aggregate builds the monthly ledger (everything except Distribution,
// which the waterfall stage owns) and computes cumulative sums up to
// that point so downstream NAV-basis fee calculations have a figure to
// read.
func Aggregate(cfg *config.Config, loans []simtypes.Loan) simtypes.CashflowLedger {
	horizon := cfg.FundTermMonths()
	rows := make([]simtypes.CashflowRow, horizon+1)
	for m := range rows {
		rows[m].Month = m
	}

	for i := range loans {
		l := &loans[i]
		om := l.OriginationMonth
		if om >= 0 && om <= horizon {
			rows[om].LoanInvestment += l.Principal
			rows[om].OriginationFee += l.OriginationFee
			if !l.Reinvestment {
				rows[om].CapitalCall += l.Principal
			}
		}

		em := l.ExitMonth
		if em < 0 {
			em = 0
		}
		if em > horizon {
			em = horizon
		}
		switch l.ExitKind {
		case simtypes.ExitDefault:
			rows[em].PrincipalRepayment += l.RecoveryValue
		default:
			simpleInterest := l.Principal * l.Rate * float64(em-om) / 12.0
			appreciation := l.ExitValue - l.Principal - simpleInterest
			rows[em].PrincipalRepayment += l.Principal
			rows[em].InterestIncome += simpleInterest
			rows[em].AppreciationShare += appreciation
		}
	}

	nav := func(m int) float64 {
		outstanding := 0.0
		for i := range loans {
			l := &loans[i]
			if l.OriginationMonth <= m && l.ExitMonth > m {
				outstanding += l.Principal
			}
		}
		return outstanding
	}

	cumulative := 0.0
	for m := range rows {
		rows[m].ManagementFee = fees.ManagementFee(cfg, m, cfg.FundSize, nav(m))
		rows[m].FundExpense = fees.FundExpense(cfg, m, nav(m))

		r := &rows[m]
		r.Net = r.CapitalCall + r.OriginationFee + r.PrincipalRepayment + r.InterestIncome + r.AppreciationShare +
			r.LeverageDraw - r.LoanInvestment - r.ManagementFee - r.FundExpense - r.LeverageRepayment - r.LeverageInterest - r.Distribution
		cumulative += r.Net
		r.Cumulative = cumulative
	}

	ledger := simtypes.CashflowLedger{Rows: rows}
	summarize(&ledger)
	return ledger
}

// ApplyLeverage folds a month's facility draw/repay/interest events
// into the ledger in place and recomputes Net/Cumulative from that
// month forward.
func ApplyLeverage(ledger *simtypes.CashflowLedger, month int, draw, repayment, interest float64) {
	if month < 0 || month >= len(ledger.Rows) {
		return
	}
	r := &ledger.Rows[month]
	r.LeverageDraw += draw
	r.LeverageRepayment += repayment
	r.LeverageInterest += interest
	recomputeFrom(ledger, month)
}

func recomputeFrom(ledger *simtypes.CashflowLedger, from int) {
	cumulative := 0.0
	if from > 0 {
		cumulative = ledger.Rows[from-1].Cumulative
	}
	for m := from; m < len(ledger.Rows); m++ {
		r := &ledger.Rows[m]
		r.Net = r.CapitalCall + r.OriginationFee + r.PrincipalRepayment + r.InterestIncome + r.AppreciationShare +
			r.LeverageDraw - r.LoanInvestment - r.ManagementFee - r.FundExpense - r.LeverageRepayment - r.LeverageInterest - r.Distribution
		cumulative += r.Net
		r.Cumulative = cumulative
	}
	summarize(ledger)
}

// RecomputeAfterDistribution is called by the waterfall stage after it
// sets Distribution on one or more rows.
func RecomputeAfterDistribution(ledger *simtypes.CashflowLedger) {
	recomputeFrom(ledger, 0)
}

// summarize derives IRR/MOIC/TVPI/DPI/RVPI from the completed ledger.
func summarize(ledger *simtypes.CashflowLedger) {
	contributions := 0.0
	distributions := 0.0
	for _, r := range ledger.Rows {
		contributions += r.CapitalCall
		distributions += r.Distribution
	}
	// NAV approximation: remaining undistributed cumulative cash.
	nav := 0.0
	if len(ledger.Rows) > 0 {
		nav = math.Max(0, ledger.Rows[len(ledger.Rows)-1].Cumulative)
	}

	if contributions > 0 {
		ledger.MOIC = distributions / contributions
		ledger.TVPI = (distributions + nav) / contributions
		ledger.DPI = distributions / contributions
		ledger.RVPI = nav / contributions
	}

	irr, note := SolveIRR(investorCashflows(ledger.Rows))
	ledger.IRR = irr
	ledger.IRRNote = note
}

// investorCashflows converts the ledger into the investor's sign
// convention: capital calls are outflows (negative), distributions are
// inflows (positive), one point per month.
func investorCashflows(rows []simtypes.CashflowRow) []float64 {
	cfs := make([]float64, len(rows))
	for i, r := range rows {
		cfs[i] = r.Distribution - r.CapitalCall
	}
	return cfs
}

// SolveIRR finds the monthly-cashflow IRR (annualised) by bracketing
// plus bisection over [-99%, 1000%], per spec section 4.10. When the
// bracket shows no sign change it falls back to the secant method seeded
// at 0 and 0.1, whose root may lie outside the bracket. Returns nil with
// a diagnostic note when NPV is NaN at either bracket end, or when there
// is no sign change and the secant fallback does not converge.
func SolveIRR(monthlyCashflows []float64) (*float64, string) {
	npv := func(annualRate float64) float64 {
		sum := 0.0
		for t, cf := range monthlyCashflows {
			sum += cf * math.Pow(1+annualRate, -float64(t)/12.0)
		}
		return sum
	}

	lo, hi := -0.99, 10.0
	npvLo, npvHi := npv(lo), npv(hi)
	if math.IsNaN(npvLo) || math.IsNaN(npvHi) {
		return nil, "NaN encountered while evaluating NPV"
	}
	if npvLo*npvHi > 0 {
		// No sign change in the bracket: try the secant method from two
		// seed points before giving up.
		if root, ok := secant(npv, 0.0, 0.1); ok {
			return &root, ""
		}
		return nil, "no root found in [-99%, 1000%] and secant fallback did not converge"
	}

	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		npvMid := npv(mid)
		if math.Abs(npvMid) < 1e-8 {
			return &mid, ""
		}
		if npvLo*npvMid < 0 {
			hi = mid
			npvHi = npvMid
		} else {
			lo = mid
			npvLo = npvMid
		}
	}
	root := (lo + hi) / 2
	return &root, ""
}

func secant(f func(float64) float64, x0, x1 float64) (float64, bool) {
	for i := 0; i < 100; i++ {
		f0, f1 := f(x0), f(x1)
		if f1 == f0 {
			return 0, false
		}
		x2 := x1 - f1*(x1-x0)/(f1-f0)
		if math.IsNaN(x2) || math.IsInf(x2, 0) {
			return 0, false
		}
		if math.Abs(x2-x1) < 1e-8 {
			return x2, true
		}
		x0, x1 = x1, x2
	}
	return 0, false
}
