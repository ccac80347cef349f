package pricepath

import (
	"testing"

	"github.com/equihome/heloc-simfund/internal/config"
	"github.com/equihome/heloc-simfund/internal/rngfactory"
	"github.com/equihome/heloc-simfund/internal/zone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(model config.PricePathModel) *config.Config {
	return &config.Config{
		FundTermYears: 2,
		PriceModel:    model,
		ZoneParams: map[zone.Zone]config.ZoneParams{
			zone.Green:  {TargetAllocation: 0.6, AppreciationMean: 0.05, AppreciationVol: 0.10, MeanReversionK: 0.3, MeanReversionTh: 0.0, RegimeBullMean: 0.08, RegimeBullVol: 0.08, RegimeBearMean: -0.05, RegimeBearVol: 0.15, BullToBearProb: 0.05, BearToBullProb: 0.1},
			zone.Orange: {TargetAllocation: 0.4, AppreciationMean: 0.03, AppreciationVol: 0.12, MeanReversionK: 0.3, MeanReversionTh: 0.0, RegimeBullMean: 0.06, RegimeBullVol: 0.09, RegimeBearMean: -0.04, RegimeBearVol: 0.14, BullToBearProb: 0.05, BearToBullProb: 0.1},
		},
	}
}

func TestOrderedZones_IsAlphabeticallyStable(t *testing.T) {
	cfg := testConfig(config.ModelGBM)
	zones := OrderedZones(cfg)
	require.Len(t, zones, 2)
	assert.Equal(t, zone.Green, zones[0])
	assert.Equal(t, zone.Orange, zones[1])
}

func TestSimulate_RejectsEmptyZoneConfiguration(t *testing.T) {
	cfg := &config.Config{FundTermYears: 1}
	_, err := Simulate(cfg, rngfactory.New(1), nil)
	assert.Error(t, err)
}

func TestSimulate_EveryZoneStartsAtOne(t *testing.T) {
	cfg := testConfig(config.ModelGBM)
	factory := rngfactory.New(1)
	paths, err := Simulate(cfg, factory, nil)
	require.NoError(t, err)

	for _, z := range OrderedZones(cfg) {
		require.NotEmpty(t, paths.Zone[z])
		assert.Equal(t, 1.0, paths.Zone[z][0])
	}
}

func TestSimulate_SeriesLengthMatchesFundTermPlusOne(t *testing.T) {
	cfg := testConfig(config.ModelGBM)
	factory := rngfactory.New(1)
	paths, err := Simulate(cfg, factory, nil)
	require.NoError(t, err)

	for _, z := range OrderedZones(cfg) {
		assert.Len(t, paths.Zone[z], cfg.FundTermMonths()+1)
	}
	assert.Len(t, paths.EconFactor, cfg.FundTermMonths()+1)
}

func TestSimulate_PricesStayPositive(t *testing.T) {
	cfg := testConfig(config.ModelGBM)
	factory := rngfactory.New(1)
	paths, err := Simulate(cfg, factory, nil)
	require.NoError(t, err)

	for _, series := range paths.Zone {
		for _, v := range series {
			assert.Greater(t, v, 0.0)
		}
	}
}

func TestSimulate_IsDeterministicForSameSeed(t *testing.T) {
	cfg := testConfig(config.ModelGBM)
	paths1, err := Simulate(cfg, rngfactory.New(5), nil)
	require.NoError(t, err)
	paths2, err := Simulate(cfg, rngfactory.New(5), nil)
	require.NoError(t, err)

	assert.Equal(t, paths1.Zone[zone.Green], paths2.Zone[zone.Green])
}

func TestSimulate_MeanReversionModelProducesPositivePrices(t *testing.T) {
	cfg := testConfig(config.ModelMeanReversion)
	factory := rngfactory.New(3)
	paths, err := Simulate(cfg, factory, nil)
	require.NoError(t, err)
	for _, v := range paths.Zone[zone.Green] {
		assert.Greater(t, v, 0.0)
	}
}

func TestSimulate_RegimeSwitchingModelProducesPositivePrices(t *testing.T) {
	cfg := testConfig(config.ModelRegimeSwitching)
	factory := rngfactory.New(3)
	paths, err := Simulate(cfg, factory, nil)
	require.NoError(t, err)
	for _, v := range paths.Zone[zone.Orange] {
		assert.Greater(t, v, 0.0)
	}
}

func TestSimulate_BuildsOneIdiosyncraticSeriesPerProperty(t *testing.T) {
	cfg := testConfig(config.ModelGBM)
	factory := rngfactory.New(1)
	paths, err := Simulate(cfg, factory, []string{"p1", "p2"})
	require.NoError(t, err)
	require.Contains(t, paths.Property, "p1")
	require.Contains(t, paths.Property, "p2")
	assert.Equal(t, 1.0, paths.Property["p1"][0])
	assert.Len(t, paths.Property["p1"], cfg.FundTermMonths()+1)
}

func TestSimulate_EconFactorStaysWithinTanhRange(t *testing.T) {
	cfg := testConfig(config.ModelGBM)
	factory := rngfactory.New(1)
	paths, err := Simulate(cfg, factory, nil)
	require.NoError(t, err)
	for _, e := range paths.EconFactor {
		assert.GreaterOrEqual(t, e, -1.0)
		assert.LessOrEqual(t, e, 1.0)
	}
}
