// Package fees computes management, origination, transaction, and
// fund-expense fees (spec section 4.9), allocating each between LP and
// GP per the configured allocation map.
package fees

import (
	"math"

	"github.com/equihome/heloc-simfund/internal/config"
)

// ManagementFee accrues monthly: rate x basis, with an optional
// step-down applied from the configured month onward.
func ManagementFee(cfg *config.Config, month int, committedCapital, nav float64) float64 {
	rate := cfg.Fees.ManagementFeeRate
	if cfg.Fees.ManagementFeeStepMonth > 0 && month >= cfg.Fees.ManagementFeeStepMonth {
		rate -= cfg.Fees.ManagementFeeStepDown
		if rate < 0 {
			rate = 0
		}
	}
	basis := committedCapital
	if cfg.Fees.ManagementFeeBasis == "nav" {
		basis = nav
	}
	return basis * rate / 12.0
}

// OriginationFee is credited at origination: rate x principal.
func OriginationFee(cfg *config.Config, principal float64) float64 {
	return principal * cfg.Fees.OriginationFeeRate
}

// TransactionFee is charged at exit: rate x gross exit proceeds.
func TransactionFee(cfg *config.Config, grossProceeds float64) float64 {
	return grossProceeds * cfg.Fees.TransactionFeeRate
}

// FundExpense is a fixed annual amount plus a percentage of NAV, grown
// at the configured annual rate, plus a one-off setup cost in month 1.
func FundExpense(cfg *config.Config, month int, nav float64) float64 {
	years := float64(month) / 12.0
	growth := math.Pow(1+cfg.Fees.ExpenseGrowthRate, years)
	monthly := (cfg.Fees.AnnualExpenseFixed*growth + cfg.Fees.AnnualExpensePctNAV*nav) / 12.0
	if month == 1 {
		monthly += cfg.Fees.SetupExpenseOneOff
	}
	return monthly
}

// Split divides a fee amount between LP and GP per the configured
// allocation fraction (the GP share).
func Split(cfg *config.Config, amount float64) (lp, gp float64) {
	gp = amount * cfg.Fees.GPFeeAllocation
	lp = amount - gp
	return lp, gp
}
