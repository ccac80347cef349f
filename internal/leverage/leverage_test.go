package leverage

import (
	"testing"

	"github.com/equihome/heloc-simfund/internal/config"
	"github.com/equihome/heloc-simfund/internal/rngfactory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Facilities: []config.LeverageFacility{
			{Name: "nav_line", Kind: "nav", AdvanceRate: 0.5, Spread: 0.02, CommitmentFeeRate: 0.01, BaseRateMean: 0.04, BaseRateVol: 0.01, BaseRateK: 0.5},
			{Name: "sub_line", Kind: "subscription", UncalledFraction: 0.8, TermMonths: 12, Spread: 0.015, BaseRateMean: 0.04},
		},
	}
}

func TestNew_SeedsBaseRatePathAtConfiguredMean(t *testing.T) {
	cfg := testConfig()
	engine := New(cfg, rngfactory.New(1), 24)
	assert.Equal(t, 0.04, engine.baseRates["nav_line"][0])
}

func TestNew_BaseRatePathNeverGoesNegative(t *testing.T) {
	cfg := testConfig()
	cfg.Facilities[0].BaseRateVol = 5.0 // deliberately large vol to probe the floor
	engine := New(cfg, rngfactory.New(1), 36)
	for _, v := range engine.baseRates["nav_line"] {
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func TestStep_DrawsUpToCapacityToCoverShortfall(t *testing.T) {
	cfg := testConfig()
	engine := New(cfg, rngfactory.New(1), 12)

	events := engine.Step(1, 1_000_000, 0, 100_000, 0)
	require.Len(t, events, 2)

	for _, e := range events {
		if e.Facility == "nav_line" {
			assert.Equal(t, 100_000.0, e.Draw) // headroom 500k covers the full shortfall
		}
	}
}

func TestStep_DrawCappedAtFacilityCapacity(t *testing.T) {
	cfg := testConfig()
	engine := New(cfg, rngfactory.New(1), 12)

	// NAV of 10k caps the nav_line at 5k of capacity, well under the
	// requested shortfall.
	events := engine.Step(1, 10_000, 0, 1_000_000, 0)
	for _, e := range events {
		if e.Facility == "nav_line" {
			assert.Equal(t, 5_000.0, e.Draw)
		}
	}
}

func TestStep_RepaysFromAvailableCashUpToOutstandingBalance(t *testing.T) {
	cfg := testConfig()
	engine := New(cfg, rngfactory.New(1), 12)

	engine.Step(1, 1_000_000, 0, 100_000, 0) // draw 100k onto nav_line
	events := engine.Step(2, 1_000_000, 0, 0, 200_000)

	for _, e := range events {
		if e.Facility == "nav_line" {
			assert.Equal(t, 100_000.0, e.Repayment)
		}
	}
	assert.Equal(t, 0.0, engine.Outstanding("nav_line"))
}

func TestStep_SubscriptionLineGoesDeadAfterItsTerm(t *testing.T) {
	cfg := testConfig()
	engine := New(cfg, rngfactory.New(1), 24)

	events := engine.Step(13, 0, 1_000_000, 500_000, 0) // past the 12-month term
	for _, e := range events {
		if e.Facility == "sub_line" {
			assert.Zero(t, e.Draw)
		}
	}
}

func TestOutstanding_ZeroBeforeAnyDraw(t *testing.T) {
	cfg := testConfig()
	engine := New(cfg, rngfactory.New(1), 12)
	assert.Zero(t, engine.Outstanding("nav_line"))
}

func TestCapacity_NavLineScalesWithAdvanceRateAndNAV(t *testing.T) {
	f := config.LeverageFacility{Kind: "nav", AdvanceRate: 0.5}
	assert.Equal(t, 500_000.0, capacity(f, 1, 1_000_000, 0))
}

func TestCapacity_SubscriptionLineScalesWithUncalledFraction(t *testing.T) {
	f := config.LeverageFacility{Kind: "subscription", UncalledFraction: 0.8, TermMonths: 24}
	assert.Equal(t, 800_000.0, capacity(f, 1, 0, 1_000_000))
}
