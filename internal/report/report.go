// Package report formats a completed simulation context into the
// presentation-ready tables and series a caller renders to a user
// (spec section 4.14). It performs no new computation: everything here
// is bucketing, sorting, and shaping data other stages already derived.
package report

import (
	"sort"

	"github.com/equihome/heloc-simfund/internal/simtypes"
	"github.com/equihome/heloc-simfund/internal/zone"
)

// KPIRow is one labeled headline figure.
type KPIRow struct {
	Label string
	Value float64
}

// ZoneAllocationRow compares target vs realised allocation for one
// zone.
type ZoneAllocationRow struct {
	Zone   zone.Zone
	Target float64
	Actual float64
}

// TrancheRow summarises one leverage facility's final state.
type TrancheRow struct {
	Facility       string
	TotalDrawn     float64
	TotalRepaid    float64
	TotalInterest  float64
	EndingBalance  float64
}

// HistogramBucket is one bucket of a value distribution.
type HistogramBucket struct {
	LowerBound float64
	UpperBound float64
	Count      int
}

// Report is the fully-assembled, render-ready output for one
// simulation context.
type Report struct {
	KPIs             []KPIRow
	ZoneAllocation   []ZoneAllocationRow
	CashflowSeries   []simtypes.CashflowRow
	RiskTable        []KPIRow
	Tranches         []TrancheRow
	Loans            []simtypes.Loan
	GuardrailReport  simtypes.GuardrailReport
}

// Build assembles the full report from a completed context.
func Build(ctx *simtypes.SimulationContext) Report {
	return Report{
		KPIs:            kpis(ctx),
		ZoneAllocation:  zoneAllocation(ctx),
		CashflowSeries:  ctx.Cashflows.Rows,
		RiskTable:       riskTable(ctx.RiskMetrics),
		Tranches:        tranches(ctx),
		Loans:           ctx.Loans,
		GuardrailReport: ctx.GuardrailReport,
	}
}

func tranches(ctx *simtypes.SimulationContext) []TrancheRow {
	byFacility := make(map[string]*TrancheRow)
	var order []string
	for _, e := range ctx.LeverageEvents {
		row, ok := byFacility[e.Facility]
		if !ok {
			row = &TrancheRow{Facility: e.Facility}
			byFacility[e.Facility] = row
			order = append(order, e.Facility)
		}
		row.TotalDrawn += e.Draw
		row.TotalRepaid += e.Repayment
		row.TotalInterest += e.Interest
		row.EndingBalance += e.Draw - e.Repayment
	}
	rows := make([]TrancheRow, 0, len(order))
	for _, name := range order {
		rows = append(rows, *byFacility[name])
	}
	return rows
}

func kpis(ctx *simtypes.SimulationContext) []KPIRow {
	rows := []KPIRow{
		{Label: "moic", Value: ctx.Cashflows.MOIC},
		{Label: "tvpi", Value: ctx.Cashflows.TVPI},
		{Label: "dpi", Value: ctx.Cashflows.DPI},
		{Label: "rvpi", Value: ctx.Cashflows.RVPI},
		{Label: "lp_total", Value: ctx.Waterfall.LPTotal},
		{Label: "gp_total", Value: ctx.Waterfall.GPTotal},
		{Label: "clawback", Value: ctx.Waterfall.Clawback},
	}
	if ctx.Cashflows.IRR != nil {
		rows = append(rows, KPIRow{Label: "irr", Value: *ctx.Cashflows.IRR})
	}
	return rows
}

func zoneAllocation(ctx *simtypes.SimulationContext) []ZoneAllocationRow {
	rows := make([]ZoneAllocationRow, 0, len(ctx.Allocation))
	for z, target := range ctx.Allocation {
		rows = append(rows, ZoneAllocationRow{Zone: z, Target: target, Actual: ctx.ActualAllocation[z]})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Zone < rows[j].Zone })
	return rows
}

func riskTable(m simtypes.RiskMetrics) []KPIRow {
	rows := []KPIRow{
		{Label: "volatility", Value: m.Volatility},
		{Label: "var", Value: m.VaR},
		{Label: "cvar", Value: m.CVaR},
		{Label: "sharpe", Value: m.Sharpe},
		{Label: "sortino", Value: m.Sortino},
		{Label: "calmar", Value: m.Calmar},
		{Label: "max_drawdown", Value: m.MaxDrawdown},
		{Label: "zone_hhi", Value: m.ZoneHHI},
		{Label: "suburb_hhi", Value: m.SuburbHHI},
	}
	if m.CAGR != nil {
		rows = append(rows, KPIRow{Label: "cagr", Value: *m.CAGR})
	}
	return rows
}

// Histogram buckets values into n equal-width buckets spanning
// [min(values), max(values)].
func Histogram(values []float64, buckets int) []HistogramBucket {
	if len(values) == 0 || buckets <= 0 {
		return nil
	}
	lo, hi := values[0], values[0]
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		hi = lo + 1
	}
	width := (hi - lo) / float64(buckets)

	out := make([]HistogramBucket, buckets)
	for i := range out {
		out[i] = HistogramBucket{LowerBound: lo + float64(i)*width, UpperBound: lo + float64(i+1)*width}
	}
	for _, v := range values {
		idx := int((v - lo) / width)
		if idx >= buckets {
			idx = buckets - 1
		}
		if idx < 0 {
			idx = 0
		}
		out[idx].Count++
	}
	return out
}
