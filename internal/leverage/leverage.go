// Package leverage models up to two credit facilities (a NAV line and
// a subscription/ramp line) feeding draws/repayments/interest into the
// cashflow ledger (spec section 4.8).
package leverage

import (
	"math"

	"github.com/equihome/heloc-simfund/internal/config"
	"github.com/equihome/heloc-simfund/internal/rngfactory"
	"github.com/equihome/heloc-simfund/internal/simtypes"
	"gonum.org/v1/gonum/stat/distuv"
)

// Engine tracks facility balances across months.
type Engine struct {
	cfg        *config.Config
	balances   map[string]float64
	baseRates  map[string][]float64 // pre-generated monthly base-rate path
}

// New builds an Engine and pre-generates each facility's base-rate path
// via a mean-reverting (OU) process, deterministic per seed.
func New(cfg *config.Config, factory *rngfactory.Factory, horizon int) *Engine {
	e := &Engine{
		cfg:       cfg,
		balances:  make(map[string]float64, len(cfg.Facilities)),
		baseRates: make(map[string][]float64, len(cfg.Facilities)),
	}
	for _, f := range cfg.Facilities {
		rng := factory.Stream("leverage/base_rate/" + f.Name)
		normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}
		path := make([]float64, horizon+1)
		path[0] = f.BaseRateMean
		for m := 1; m <= horizon; m++ {
			dt := 1.0 / 12.0
			prev := path[m-1]
			path[m] = prev + f.BaseRateK*(f.BaseRateMean-prev)*dt + f.BaseRateVol*math.Sqrt(dt)*normal.Rand()
			if path[m] < 0 {
				path[m] = 0
			}
		}
		e.baseRates[f.Name] = path
	}
	return e
}

// capacity returns facility f's drawable limit at month m given nav and
// uncalledCommitment, per its kind (nav line vs subscription line).
func capacity(f config.LeverageFacility, month int, nav, uncalledCommitment float64) float64 {
	if f.TermMonths > 0 && month > f.TermMonths && f.Kind == "subscription" {
		return 0
	}
	switch f.Kind {
	case "subscription":
		return f.UncalledFraction * uncalledCommitment
	default: // "nav"
		return f.AdvanceRate * nav
	}
}

// Step advances every facility by one month: draws to cover
// shortfall (in registration order, NAV line first if so configured),
// accrues interest on the outstanding balance, pays a commitment fee on
// undrawn capacity, and repays from availableCash after distributions.
func (e *Engine) Step(month int, nav, uncalledCommitment, shortfall, availableCashForRepay float64) []simtypes.LeverageEvent {
	var out []simtypes.LeverageEvent
	remainingShortfall := shortfall
	remainingCash := availableCashForRepay

	for _, f := range e.cfg.Facilities {
		bal := e.balances[f.Name]
		limit := capacity(f, month, nav, uncalledCommitment)
		headroom := math.Max(0, limit-bal)

		draw := math.Min(headroom, math.Max(0, remainingShortfall))
		bal += draw
		remainingShortfall -= draw

		baseRatePath := e.baseRates[f.Name]
		baseRate := f.BaseRateMean
		if month < len(baseRatePath) {
			baseRate = baseRatePath[month]
		}
		monthlyRate := (baseRate + f.Spread) / 12.0
		interest := bal * monthlyRate

		commitmentFee := math.Max(0, limit-bal) * f.CommitmentFeeRate / 12.0

		repay := math.Min(bal, math.Max(0, remainingCash))
		bal -= repay
		remainingCash -= repay

		e.balances[f.Name] = bal
		out = append(out, simtypes.LeverageEvent{
			Facility:   f.Name,
			Month:      month,
			Draw:       draw,
			Repayment:  repay,
			Interest:   interest + commitmentFee,
			Commitment: limit,
		})
	}
	return out
}

// Outstanding returns facility f's current outstanding balance.
func (e *Engine) Outstanding(name string) float64 { return e.balances[name] }
