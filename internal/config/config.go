// Package config defines the simulation Config: a validated, immutable
// set of parameters covering fund terms, loan shape, zone policy, the
// stochastic model selections, and every downstream engine's knobs.
// There are no hidden defaults here — Validate never substitutes a
// default: a field the caller leaves out keeps its Go zero value and is
// subject only to the checks Validate makes, per spec section 6.
package config

import (
	"encoding/json"
	"math"

	"github.com/equihome/heloc-simfund/internal/simerr"
	"github.com/equihome/heloc-simfund/internal/zone"
)

// PricePathModel selects the stochastic model for zone price paths.
type PricePathModel string

const (
	ModelGBM             PricePathModel = "gbm"
	ModelMeanReversion   PricePathModel = "mean_reversion"
	ModelRegimeSwitching PricePathModel = "regime_switching"
)

// WaterfallStructure selects the distribution rule.
type WaterfallStructure string

const (
	WaterfallEuropean WaterfallStructure = "european"
	WaterfallAmerican WaterfallStructure = "american"
)

// AppreciationShareMode selects how a loan's appreciation share is
// computed at exit.
type AppreciationShareMode string

const (
	AppreciationProRataLTV AppreciationShareMode = "pro_rata_ltv"
	AppreciationTiered     AppreciationShareMode = "tiered"
)

// ZoneParams holds per-zone appreciation/default/recovery assumptions.
type ZoneParams struct {
	TargetAllocation float64 `json:"target_allocation"`
	AllocationCap    float64 `json:"allocation_cap"`
	AppreciationMean float64 `json:"appreciation_mean"`
	AppreciationVol  float64 `json:"appreciation_vol"`
	DefaultRate      float64 `json:"default_rate"`
	RecoveryRate     float64 `json:"recovery_rate"`
	MeanReversionK   float64 `json:"mean_reversion_speed"`
	MeanReversionTh  float64 `json:"mean_reversion_theta"`
	RegimeBullMean   float64 `json:"regime_bull_mean"`
	RegimeBullVol    float64 `json:"regime_bull_vol"`
	RegimeBearMean   float64 `json:"regime_bear_mean"`
	RegimeBearVol    float64 `json:"regime_bear_vol"`
	BullToBearProb   float64 `json:"bull_to_bear_prob"`
	BearToBullProb   float64 `json:"bear_to_bull_prob"`
}

// TieredAppreciation is one threshold/share pair of the tiered
// appreciation-share schedule.
type TieredAppreciation struct {
	ThresholdReturn float64 `json:"threshold_return"`
	Share           float64 `json:"share"`
}

// LeverageFacility models one of up to two credit facilities.
type LeverageFacility struct {
	Name              string  `json:"name"`
	Kind              string  `json:"kind"` // "nav" or "subscription"
	AdvanceRate       float64 `json:"advance_rate"`
	UncalledFraction  float64 `json:"uncalled_fraction"`
	Spread            float64 `json:"spread"`
	CommitmentFeeRate float64 `json:"commitment_fee_rate"`
	TermMonths        int     `json:"term_months"`
	MaxLTVCovenant    float64 `json:"max_ltv_covenant"`
	MinDSCRCovenant   float64 `json:"min_dscr_covenant"`
	BaseRateMean      float64 `json:"base_rate_mean"`
	BaseRateVol       float64 `json:"base_rate_vol"`
	BaseRateK         float64 `json:"base_rate_mean_reversion_speed"`
}

// FeeSchedule holds every fee engine parameter.
type FeeSchedule struct {
	ManagementFeeRate      float64 `json:"management_fee_rate"`
	ManagementFeeBasis     string  `json:"management_fee_basis"` // "committed" or "nav"
	ManagementFeeStepDown  float64 `json:"management_fee_step_down"`
	ManagementFeeStepMonth int     `json:"management_fee_step_month"`
	OriginationFeeRate     float64 `json:"origination_fee_rate"`
	TransactionFeeRate     float64 `json:"transaction_fee_rate"`
	AnnualExpenseFixed     float64 `json:"annual_expense_fixed"`
	AnnualExpensePctNAV    float64 `json:"annual_expense_pct_nav"`
	SetupExpenseOneOff     float64 `json:"setup_expense_one_off"`
	ExpenseGrowthRate      float64 `json:"expense_growth_rate"`
	GPFeeAllocation        float64 `json:"gp_fee_allocation"`
}

// ReinvestmentPolicy configures the reinvestment window and rules.
type ReinvestmentPolicy struct {
	Enabled          bool    `json:"enabled"`
	HorizonMonths    int     `json:"horizon_months"`
	LiquidityReserve float64 `json:"liquidity_reserve"`
	DynamicReweight  bool    `json:"dynamic_reweight"`
	LookbackMonths   int     `json:"lookback_months"`
}

// RiskSettings configures the risk module.
type RiskSettings struct {
	VaRConfidence      float64   `json:"var_confidence"`
	BenchmarkReturn    float64   `json:"benchmark_monthly_return"`
	StressPriceShock   float64   `json:"stress_price_shock"`
	StressRateShockBps float64   `json:"stress_rate_shock_bps"`
	StressPDMultiplier float64   `json:"stress_pd_multiplier"`
	RiskFreeRate       float64   `json:"risk_free_rate_annual"`
}

// FeatureFlags toggles optional engine behaviour.
type FeatureFlags struct {
	EnableLeverage     bool `json:"enable_leverage"`
	EnableReinvestment bool `json:"enable_reinvestment"`
	EnableStressTests  bool `json:"enable_stress_tests"`
}

// Config is the complete, validated simulation input.
type Config struct {
	// Fund terms
	FundSize          float64 `json:"fund_size"`
	FundTermYears     int     `json:"fund_term_years"`
	VintageYear       int     `json:"vintage_year"`
	HurdleRate        float64 `json:"hurdle_rate"`
	CarryRate         float64 `json:"carry_rate"`
	GPCommitmentPct   float64 `json:"gp_commitment_pct"`
	CatchUpEnabled    bool    `json:"catch_up_enabled"`
	WaterfallKind     WaterfallStructure `json:"waterfall_structure"`

	// Loan shape
	AvgLoanSize    float64 `json:"avg_loan_size"`
	LoanSizeStdDev float64 `json:"loan_size_stddev"`
	MinLoanSize    float64 `json:"min_loan_size"`
	MaxLoanSize    float64 `json:"max_loan_size"`
	AvgLTV         float64 `json:"avg_ltv"`
	LTVStdDev      float64 `json:"ltv_stddev"`
	MinLTV         float64 `json:"min_ltv"`
	MaxLTV         float64 `json:"max_ltv"`
	AvgTermMonths  float64 `json:"avg_term_months"`
	TermStdDev     float64 `json:"term_stddev"`
	AvgRate        float64 `json:"avg_rate"`
	RateStdDev     float64 `json:"rate_stddev"`

	// Zone policy
	ZoneParams map[zone.Zone]ZoneParams `json:"zone_params"`
	ZoneCorrelation map[zone.Zone]map[zone.Zone]float64 `json:"zone_correlation"`

	// Price-path model
	PriceModel PricePathModel `json:"price_path_model"`

	// Exit model
	MinHoldMonths        int     `json:"min_hold_months"`
	TimeFactorCap        float64 `json:"time_factor_cap"`
	SaleWeight           float64 `json:"sale_weight"`
	RefinanceWeight      float64 `json:"refinance_weight"`
	DefaultWeight        float64 `json:"default_weight"`
	ForeclosureCostRate  float64 `json:"foreclosure_cost_rate"`
	AppreciationShareMode AppreciationShareMode `json:"appreciation_share_mode"`
	TieredAppreciation   []TieredAppreciation  `json:"tiered_appreciation"`

	// Reinvestment
	Reinvestment ReinvestmentPolicy `json:"reinvestment"`

	// Leverage
	Facilities []LeverageFacility `json:"leverage_facilities"`

	// Fees
	Fees FeeSchedule `json:"fees"`

	// Risk
	Risk RiskSettings `json:"risk"`

	// Feature flags
	Flags FeatureFlags `json:"flags"`

	// RNG
	Seed int64 `json:"seed"`
}

// FundTermMonths is the fund term expressed in months.
func (c *Config) FundTermMonths() int { return c.FundTermYears * 12 }

// FromJSON parses and validates a Config from JSON bytes.
func FromJSON(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, simerr.Wrap(simerr.ConfigInvalid, "config", "malformed config JSON", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

const allocationEpsilon = 1e-9

// Validate checks every constraint spec.md names explicitly: zone
// allocations summing to 1 within epsilon, per-zone caps, loan-shape
// ordering, and internally-consistent waterfall/fee settings. It never
// silently substitutes a default for a value the caller must supply.
func (c *Config) Validate() error {
	mod := "config"
	if c.FundSize <= 0 {
		return simerr.New(simerr.ConfigInvalid, mod, "fund_size must be > 0")
	}
	if c.FundTermYears <= 0 {
		return simerr.New(simerr.ConfigInvalid, mod, "fund_term_years must be > 0")
	}
	if c.MinLoanSize <= 0 || c.MinLoanSize > c.MaxLoanSize {
		return simerr.New(simerr.ConfigInvalid, mod, "min_loan_size must be > 0 and <= max_loan_size")
	}
	if c.AvgLoanSize < c.MinLoanSize || c.AvgLoanSize > c.MaxLoanSize {
		return simerr.New(simerr.ConfigInvalid, mod, "avg_loan_size must fall within [min_loan_size, max_loan_size]")
	}
	if c.MinLTV <= 0 || c.MinLTV > c.MaxLTV || c.MaxLTV > 1 {
		return simerr.New(simerr.ConfigInvalid, mod, "ltv bounds must satisfy 0 < min_ltv <= max_ltv <= 1")
	}
	if c.CarryRate < 0 || c.CarryRate >= 1 {
		return simerr.New(simerr.ConfigInvalid, mod, "carry_rate must be in [0, 1)")
	}
	if c.WaterfallKind != WaterfallEuropean && c.WaterfallKind != WaterfallAmerican {
		return simerr.New(simerr.ConfigInvalid, mod, "waterfall_structure must be european or american")
	}
	switch c.PriceModel {
	case ModelGBM, ModelMeanReversion, ModelRegimeSwitching:
	default:
		return simerr.New(simerr.ConfigInvalid, mod, "price_path_model must be gbm, mean_reversion, or regime_switching")
	}

	if len(c.ZoneParams) == 0 {
		return simerr.New(simerr.ConfigInvalid, mod, "zone_params must classify at least one zone")
	}
	sum := 0.0
	for z, p := range c.ZoneParams {
		if p.TargetAllocation < 0 {
			return simerr.New(simerr.ConfigInvalid, mod, "zone "+string(z)+" allocation cannot be negative")
		}
		if p.AllocationCap > 0 && p.TargetAllocation > p.AllocationCap+allocationEpsilon {
			return simerr.New(simerr.ConfigInvalid, mod, "zone "+string(z)+" allocation exceeds its configured cap")
		}
		sum += p.TargetAllocation
	}
	if math.Abs(sum-1.0) > allocationEpsilon {
		return simerr.New(simerr.ConfigInvalid, mod, "zone allocations must sum to 1 within 1e-9")
	}

	weightSum := c.SaleWeight + c.RefinanceWeight + c.DefaultWeight
	if weightSum <= 0 {
		return simerr.New(simerr.ConfigInvalid, mod, "exit kind weights must sum to a positive value")
	}
	if c.Risk.VaRConfidence <= 0 || c.Risk.VaRConfidence >= 1 {
		return simerr.New(simerr.ConfigInvalid, mod, "risk.var_confidence must be in (0, 1)")
	}
	return nil
}
