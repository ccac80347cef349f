// Package reinvest reinvests exit proceeds during the reinvestment
// window (spec section 4.7): each month, proceeds from that month's
// exits are collected, a liquidity reserve withheld, and the rest fed
// back into loan generation using the current (or dynamically
// re-weighted) target allocation.
package reinvest

import (
	"fmt"
	"sort"

	"github.com/equihome/heloc-simfund/internal/config"
	"github.com/equihome/heloc-simfund/internal/loangen"
	"github.com/equihome/heloc-simfund/internal/rngfactory"
	"github.com/equihome/heloc-simfund/internal/simtypes"
	"github.com/equihome/heloc-simfund/internal/zone"
)

// Simulate runs the reinvestment engine across the whole horizon and
// returns the newly-originated loans (to be appended to, never
// replacing, the existing portfolio). New loans never carry a term
// extending beyond the fund's term, since GenerateBatch itself clamps
// term to the remaining fund horizon from each loan's origination
// month. loans is the full book generated so far (initial portfolio
// plus any prior reinvestment rounds), used to look up each exit's
// zone and principal for the dynamic-reweight performance signal.
func Simulate(
	cfg *config.Config,
	cat *zone.Catalogue,
	loans []simtypes.Loan,
	exits []simtypes.ExitEvent,
	target map[zone.Zone]float64,
	factory *rngfactory.Factory,
) []simtypes.Loan {
	if !cfg.Reinvestment.Enabled {
		return nil
	}

	horizon := cfg.Reinvestment.HorizonMonths
	if horizon <= 0 {
		return nil
	}

	loanByID := make(map[string]*simtypes.Loan, len(loans))
	for i := range loans {
		loanByID[loans[i].ID] = &loans[i]
	}

	proceedsByMonth := make(map[int]float64)
	for _, e := range exits {
		if e.Month >= 1 && e.Month <= horizon {
			proceedsByMonth[e.Month] += e.FundProceeds
		}
	}
	zoneMonthlyReturn := monthlyZoneReturns(target, loanByID, exits, horizon)

	var allNew []simtypes.Loan
	for m := 1; m <= horizon; m++ {
		proceeds, ok := proceedsByMonth[m]
		if !ok || proceeds <= 0 {
			continue
		}
		reserve := proceeds * cfg.Reinvestment.LiquidityReserve
		investable := proceeds - reserve
		if investable <= 0 {
			continue
		}

		weights := target
		if cfg.Reinvestment.DynamicReweight {
			weights = reweight(cfg, target, zoneMonthlyReturn, m)
		}

		zones := make([]zone.Zone, 0, len(weights))
		for z := range weights {
			zones = append(zones, z)
		}
		sort.Slice(zones, func(i, j int) bool { return zones[i] < zones[j] })
		for _, z := range zones {
			dollars := investable * weights[z]
			if dollars <= 0 {
				continue
			}
			batch, err := loangen.GenerateBatch(cfg, cat, z, dollars, m, true,
				factory.Stream(fmt.Sprintf("loan_gen/reinvest/%s/%d", z, m)))
			if err != nil {
				continue
			}
			allNew = append(allNew, batch...)
		}
	}
	return allNew
}

// monthlyZoneReturns builds, per zone, a month-by-month series (index 1
// is month 1, ...) of the average realised return (fund proceeds vs.
// principal) across that zone's exits that month. A month with no
// exits in a zone carries 0, since there is no performance signal to
// report and 0 is the tilt-neutral value.
func monthlyZoneReturns(target map[zone.Zone]float64, loanByID map[string]*simtypes.Loan, exits []simtypes.ExitEvent, horizon int) map[zone.Zone][]float64 {
	sum := make(map[zone.Zone][]float64, len(target))
	count := make(map[zone.Zone][]int, len(target))
	for z := range target {
		sum[z] = make([]float64, horizon+1)
		count[z] = make([]int, horizon+1)
	}

	for _, e := range exits {
		if e.Month < 1 || e.Month > horizon {
			continue
		}
		loan, ok := loanByID[e.LoanID]
		if !ok || loan.Principal <= 0 {
			continue
		}
		if _, tracked := sum[loan.Zone]; !tracked {
			continue
		}
		sum[loan.Zone][e.Month] += e.FundProceeds/loan.Principal - 1.0
		count[loan.Zone][e.Month]++
	}

	out := make(map[zone.Zone][]float64, len(target))
	for z, series := range sum {
		avg := make([]float64, horizon+1)
		for m := 1; m <= horizon; m++ {
			if count[z][m] > 0 {
				avg[m] = series[m] / float64(count[z][m])
			}
		}
		out[z] = avg
	}
	return out
}

// reweight adjusts target allocation by each zone's own trailing
// realised return over the configured lookback window ending the
// month before month (a zone's month-m performance is not yet known
// when deciding month m's reinvestment). Zones outperforming the
// cross-zone average over that window are tilted up, underperforming
// zones tilted down. The interaction between dynamic re-weighting and
// per-zone allocation caps is explicitly flagged as under-specified in
// spec section 9; this implementation resolves it conservatively:
// re-weighted fractions are clamped to each zone's cap and the result
// is renormalised to sum to 1.
func reweight(cfg *config.Config, target map[zone.Zone]float64, zoneMonthlyReturn map[zone.Zone][]float64, month int) map[zone.Zone]float64 {
	lookback := cfg.Reinvestment.LookbackMonths
	if lookback <= 0 || month-1 < lookback {
		return target
	}
	windowStart := month - lookback // inclusive, 1-indexed
	windowEnd := month - 1          // inclusive

	zoneAvg := make(map[zone.Zone]float64, len(target))
	overall := 0.0
	for z := range target {
		series := zoneMonthlyReturn[z]
		sum := 0.0
		for m := windowStart; m <= windowEnd; m++ {
			sum += series[m]
		}
		avg := sum / float64(lookback)
		zoneAvg[z] = avg
		overall += avg
	}
	overall /= float64(len(target))

	// Tilt every zone's weight by how its own trailing performance
	// compares to the cross-zone average, then clamp to caps and
	// renormalise.
	raw := make(map[zone.Zone]float64, len(target))
	for z, frac := range target {
		tilt := clampTilt(1.0 + (zoneAvg[z] - overall))
		raw[z] = frac * tilt
	}

	capped := make(map[zone.Zone]float64, len(raw))
	sum := 0.0
	for z, frac := range raw {
		cap := cfg.ZoneParams[z].AllocationCap
		if cap > 0 && frac > cap {
			frac = cap
		}
		capped[z] = frac
		sum += frac
	}
	if sum <= 0 {
		return target
	}
	out := make(map[zone.Zone]float64, len(capped))
	for z, frac := range capped {
		out[z] = frac / sum
	}
	return out
}

func clampTilt(v float64) float64 {
	if v < 0.5 {
		return 0.5
	}
	if v > 1.5 {
		return 1.5
	}
	return v
}
