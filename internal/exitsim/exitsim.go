// Package exitsim determines, per loan, the exit month and exit kind
// given the zone/property price paths and behavioural factors (spec
// section 4.6).
package exitsim

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/equihome/heloc-simfund/internal/config"
	"github.com/equihome/heloc-simfund/internal/rngfactory"
	"github.com/equihome/heloc-simfund/internal/simtypes"
)

// hazard computes the instantaneous exit hazard for loan at month m as
// a weighted sum of a time factor, a price factor, and an economic
// factor, each in [0, 1].
func hazard(ageMonths, minHold int, timeFactorCap float64, zonePrice, propPrice, econFactor float64) float64 {
	// Time factor: rises with age beyond min hold, capped.
	timeFactor := 0.0
	if ageMonths > minHold {
		timeFactor = math.Min(float64(ageMonths-minHold)/24.0, timeFactorCap)
	}

	// Price factor: rises with appreciation since origination.
	totalAppreciation := zonePrice*propPrice - 1.0
	priceFactor := clamp01(0.5 + totalAppreciation)

	// Economic factor: macro state in [-1, 1] remapped to [0, 1];
	// a strong expansion accelerates exits, a contraction slows them.
	econ := clamp01(0.5 + econFactor/2)

	h := 0.35*timeFactor + 0.40*priceFactor + 0.25*econ
	return clamp01(h)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// tieredAppreciationShare resolves the appreciation share for a tiered
// schedule keyed on total realised appreciation (see spec section 9's
// open question: this implementation follows the "total appreciation"
// reading, matching the thresholds' own field name).
func tieredAppreciationShare(tiers []config.TieredAppreciation, totalReturn float64, fallback float64) float64 {
	if len(tiers) == 0 {
		return fallback
	}
	share := tiers[0].Share
	for _, t := range tiers {
		if totalReturn >= t.ThresholdReturn {
			share = t.Share
		}
	}
	return share
}

// Simulate determines the exit month/kind/proceeds for every loan.
func Simulate(cfg *config.Config, loans []simtypes.Loan, paths simtypes.PricePath, factory *rngfactory.Factory) []simtypes.ExitEvent {
	events := make([]simtypes.ExitEvent, len(loans))
	for i := range loans {
		loan := &loans[i]
		rng := factory.Stream(fmt.Sprintf("exit/loan/%s", loan.ID))
		events[i] = simulateLoan(cfg, loan, paths, rng)
	}
	return events
}

func simulateLoan(cfg *config.Config, loan *simtypes.Loan, paths simtypes.PricePath, rng *rand.Rand) simtypes.ExitEvent {
	zonePrices := paths.Zone[loan.Zone]
	propPrices := paths.Property[loan.PropertyID]

	termEnd := loan.OriginationMonth + loan.TermMonths
	if termEnd >= len(zonePrices) {
		termEnd = len(zonePrices) - 1
	}

	exitMonth := termEnd
	fired := false
	for m := loan.OriginationMonth + 1; m <= termEnd; m++ {
		age := m - loan.OriginationMonth
		econ := 0.0
		if m < len(paths.EconFactor) {
			econ = paths.EconFactor[m]
		}
		h := hazard(age, cfg.MinHoldMonths, cfg.TimeFactorCap, zonePrices[m], propValueAt(propPrices, m), econ)
		if rng.Float64() < h {
			exitMonth = m
			fired = true
			break
		}
	}
	if !fired {
		exitMonth = termEnd
	}

	loan.ExitMonth = exitMonth

	// Combine the zone index with the property's own idiosyncratic
	// multiplier (the same combination hazard() uses) so two loans in
	// the same zone with different idiosyncratic paths realise
	// different appreciation.
	valueAtOrigination := zonePrices[loan.OriginationMonth] * propValueAt(propPrices, loan.OriginationMonth)
	valueAtExit := zonePrices[exitMonth] * propValueAt(propPrices, exitMonth)
	totalReturn := valueAtExit/valueAtOrigination - 1.0
	econAtExit := 0.0
	if exitMonth < len(paths.EconFactor) {
		econAtExit = paths.EconFactor[exitMonth]
	}

	fAppr := clamp01(0.5 + totalReturn)
	fRate := 1.0 - clamp01(float64(exitMonth-loan.OriginationMonth)/float64(maxInt(loan.TermMonths, 1)))
	fEcon := clamp01(0.5 - econAtExit/2) // contraction raises default propensity

	saleScore := cfg.SaleWeight * fAppr
	refiScore := cfg.RefinanceWeight * fRate
	defaultScore := cfg.DefaultWeight * fEcon
	total := saleScore + refiScore + defaultScore
	if total <= 0 {
		total = 1
	}

	kind := simtypes.ExitTerm
	if !fired {
		kind = simtypes.ExitTerm
	} else {
		draw := rng.Float64() * total
		switch {
		case draw < saleScore:
			kind = simtypes.ExitSale
		case draw < saleScore+refiScore:
			kind = simtypes.ExitRefinance
		default:
			kind = simtypes.ExitDefault
		}
	}
	loan.ExitKind = kind

	simpleInterest := loan.Principal * loan.Rate * float64(exitMonth-loan.OriginationMonth) / 12.0
	// appreciation_share * max(0, property_value[m] - property_value[0]) * ltv,
	// with property_value[0] = principal/ltv (the implied home value at
	// origination): the /ltv folded into property_value[0] and the
	// spec's trailing *ltv cancel, leaving principal * totalReturn.
	appreciationDollars := math.Max(0, totalReturn) * loan.Principal

	shareFrac := loan.AppreciationShare
	if cfg.AppreciationShareMode == config.AppreciationTiered {
		shareFrac = tieredAppreciationShare(cfg.TieredAppreciation, totalReturn, loan.AppreciationShare)
	}

	var grossProceeds, fundProceeds float64
	switch kind {
	case simtypes.ExitSale, simtypes.ExitTerm, simtypes.ExitRefinance:
		appreciationShareAmount := shareFrac * appreciationDollars
		fundProceeds = loan.Principal + simpleInterest + appreciationShareAmount
		grossProceeds = fundProceeds
		loan.ExitValue = fundProceeds
	case simtypes.ExitDefault:
		propertyValueDollars := loan.Principal / clampMin(loan.LTV, 0.01) * (1.0 + totalReturn)
		recovery := cfg.ZoneParams[loan.Zone].RecoveryRate * propertyValueDollars
		foreclosureCost := cfg.ForeclosureCostRate * propertyValueDollars
		fundProceeds = math.Max(0, recovery-foreclosureCost)
		grossProceeds = propertyValueDollars
		loan.RecoveryValue = fundProceeds
		loan.ExitValue = fundProceeds
	}

	return simtypes.ExitEvent{
		LoanID:        loan.ID,
		Month:         exitMonth,
		Kind:          kind,
		GrossProceeds: grossProceeds,
		FundProceeds:  fundProceeds,
	}
}

func propValueAt(series []float64, m int) float64 {
	if series == nil {
		return 1.0
	}
	if m >= len(series) {
		m = len(series) - 1
	}
	if m < 0 {
		return 1.0
	}
	return series[m]
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clampMin(v, min float64) float64 {
	if v < min {
		return min
	}
	return v
}
