// Package pricepath simulates per-zone and per-property stochastic
// home-price trajectories (spec section 4.5). The model selected by
// config.PricePathModel is a closed tagged variant: gbm, mean
// reversion (Ornstein-Uhlenbeck on log-price), or two-state
// regime-switching, each exposing the same per-month step.
package pricepath

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/equihome/heloc-simfund/internal/config"
	"github.com/equihome/heloc-simfund/internal/rngfactory"
	"github.com/equihome/heloc-simfund/internal/simerr"
	"github.com/equihome/heloc-simfund/internal/simtypes"
	"github.com/equihome/heloc-simfund/internal/zone"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

const dt = 1.0 / 12.0 // one simulation step = one month

// OrderedZones returns the zones present in cfg.ZoneParams in a
// stable, deterministic order (alphabetical by zone string).
func OrderedZones(cfg *config.Config) []zone.Zone {
	zones := make([]zone.Zone, 0, len(cfg.ZoneParams))
	for z := range cfg.ZoneParams {
		zones = append(zones, z)
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i] < zones[j] })
	return zones
}

// choleskyFactor builds the lower-triangular Cholesky factor of the
// zone correlation matrix, defaulting to independence when a pair is
// unspecified and falling back to the identity if the configured
// matrix is not positive-definite (a NumericFailure-class condition
// the caller may choose to log, not fail the run over).
func choleskyFactor(cfg *config.Config, zones []zone.Zone) *mat.Dense {
	n := len(zones)
	corr := mat.NewSymDense(n, nil)
	for i := range zones {
		corr.SetSym(i, i, 1.0)
	}
	for i, zi := range zones {
		for j, zj := range zones {
			if i >= j {
				continue
			}
			c := 0.0
			if row, ok := cfg.ZoneCorrelation[zi]; ok {
				c = row[zj]
			}
			corr.SetSym(i, j, c)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(corr); !ok {
		identity := mat.NewDense(n, n, nil)
		for i := 0; i < n; i++ {
			identity.Set(i, i, 1.0)
		}
		return identity
	}
	var L mat.TriDense
	chol.LTo(&L)
	dense := mat.NewDense(n, n, nil)
	dense.Copy(&L)
	return dense
}

// regimeState tracks the two-state Markov chain used by the
// regime-switching model, per zone.
type regimeState struct {
	bull bool
}

func (r *regimeState) step(rng *rand.Rand, p config.ZoneParams) {
	draw := rng.Float64()
	if r.bull {
		if draw < p.BullToBearProb {
			r.bull = false
		}
	} else {
		if draw < p.BearToBullProb {
			r.bull = true
		}
	}
}

// stepZonePrice advances one zone's price index by one month given a
// correlated standard-normal shock z.
func stepZonePrice(model config.PricePathModel, prev float64, logPrev float64, p config.ZoneParams, z float64, rs *regimeState, regimeRng *rand.Rand) (next float64, nextLog float64) {
	switch model {
	case config.ModelMeanReversion:
		nextLog = logPrev + p.MeanReversionK*(p.MeanReversionTh-logPrev)*dt + p.AppreciationVol*math.Sqrt(dt)*z
		return math.Exp(nextLog), nextLog
	case config.ModelRegimeSwitching:
		rs.step(regimeRng, p)
		mu, sigma := p.RegimeBearMean, p.RegimeBearVol
		if rs.bull {
			mu, sigma = p.RegimeBullMean, p.RegimeBullVol
		}
		nextLog = logPrev + (mu-sigma*sigma/2)*dt + sigma*math.Sqrt(dt)*z
		return math.Exp(nextLog), nextLog
	default: // ModelGBM
		mu, sigma := p.AppreciationMean, p.AppreciationVol
		nextLog = logPrev + (mu-sigma*sigma/2)*dt + sigma*math.Sqrt(dt)*z
		return math.Exp(nextLog), nextLog
	}
}

// Simulate produces, for every zone in cfg.ZoneParams and every month
// in [0, horizon], a correlated price index (P[0] == 1.0 for every
// zone), plus a per-property idiosyncratic multiplier series and a
// shared macro/economic factor series the exit simulator consumes.
func Simulate(cfg *config.Config, factory *rngfactory.Factory, propertyIDs []string) (simtypes.PricePath, error) {
	horizon := cfg.FundTermMonths()
	zones := OrderedZones(cfg)
	if len(zones) == 0 {
		return simtypes.PricePath{}, simerr.New(simerr.ConfigInvalid, "pricepath", "no zones configured")
	}
	n := len(zones)
	L := choleskyFactor(cfg, zones)

	shockRng := factory.Stream("price_path/shocks")
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: shockRng}

	regimes := make([]*regimeState, n)
	regimeRngs := make([]*rand.Rand, n)
	for i, z := range zones {
		regimes[i] = &regimeState{bull: true}
		regimeRngs[i] = factory.Stream(fmt.Sprintf("price_path/regime/%s", z))
	}

	indices := make(map[zone.Zone][]float64, n)
	logPrices := make([]float64, n)
	for i, z := range zones {
		indices[z] = make([]float64, horizon+1)
		indices[z][0] = 1.0
		logPrices[i] = 0.0
	}

	iid := make([]float64, n)
	correlated := make([]float64, n)
	for m := 1; m <= horizon; m++ {
		for i := range iid {
			iid[i] = normal.Rand()
		}
		for i := 0; i < n; i++ {
			sum := 0.0
			for j := 0; j <= i; j++ {
				sum += L.At(i, j) * iid[j]
			}
			correlated[i] = sum
		}
		for i, z := range zones {
			p := cfg.ZoneParams[z]
			next, nextLog := stepZonePrice(cfg.PriceModel, indices[z][m-1], logPrices[i], p, correlated[i], regimes[i], regimeRngs[i])
			indices[z][m] = next
			logPrices[i] = nextLog
		}
	}

	// Shared macro/economic factor: the average cross-zone log-return
	// each month, smoothed into [-1, 1] via tanh for use as the exit
	// simulator's economic hazard factor.
	econ := make([]float64, horizon+1)
	for m := 1; m <= horizon; m++ {
		avg := 0.0
		for _, z := range zones {
			avg += math.Log(indices[z][m] / indices[z][m-1])
		}
		avg /= float64(n)
		econ[m] = math.Tanh(avg * 10)
	}

	propRng := factory.Stream("price_path/property_idio")
	propSeries := make(map[string][]float64, len(propertyIDs))
	for _, id := range propertyIDs {
		series := make([]float64, horizon+1)
		series[0] = 1.0
		vol := 0.05 // idiosyncratic vol, the same for every property; Property.IdioVolMult is not applied
		for m := 1; m <= horizon; m++ {
			noise := distuv.LogNormal{Mu: -vol * vol / 2 * dt, Sigma: vol * math.Sqrt(dt), Src: propRng}.Rand()
			series[m] = series[m-1] * noise
		}
		propSeries[id] = series
	}

	return simtypes.PricePath{Zone: indices, Property: propSeries, EconFactor: econ}, nil
}
