// Package loangen produces the synthetic loan portfolio: the initial
// book and, later, reinvestment batches (spec section 4.4).
package loangen

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/equihome/heloc-simfund/internal/config"
	"github.com/equihome/heloc-simfund/internal/rngfactory"
	"github.com/equihome/heloc-simfund/internal/simtypes"
	"github.com/equihome/heloc-simfund/internal/zone"
	"gonum.org/v1/gonum/stat/distuv"
)

// truncatedNormal draws from N(mean, std) and clamps into [lo, hi],
// matching spec section 4.4's "truncated normal ... clamped" language.
func truncatedNormal(rng *rand.Rand, mean, std, lo, hi float64) float64 {
	if std <= 0 {
		return clamp(mean, lo, hi)
	}
	n := distuv.Normal{Mu: mean, Sigma: std, Src: rng}
	return clamp(n.Rand(), lo, hi)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// GenerateInitialPortfolio creates the vintage-0 loan book, spending
// allocation[z] dollars per zone until each zone's budget is exhausted.
// Zones are visited in sorted order so the loan order is reproducible.
func GenerateInitialPortfolio(cfg *config.Config, cat *zone.Catalogue, allocation map[zone.Zone]float64, factory *rngfactory.Factory) ([]simtypes.Loan, error) {
	var loans []simtypes.Loan
	zones := make([]zone.Zone, 0, len(allocation))
	for z := range allocation {
		zones = append(zones, z)
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i] < zones[j] })
	for _, z := range zones {
		dollars := allocation[z]
		batch, err := GenerateBatch(cfg, cat, z, dollars, 0, false, factory.Stream(fmt.Sprintf("loan_gen/%s", z)))
		if err != nil {
			return nil, err
		}
		loans = append(loans, batch...)
	}
	return loans, nil
}

// GenerateBatch draws loans for one zone until dollars is exhausted,
// stamping originationMonth and the reinvestment flag on each.
func GenerateBatch(cfg *config.Config, cat *zone.Catalogue, z zone.Zone, dollars float64, originationMonth int, reinvestment bool, rng *rand.Rand) ([]simtypes.Loan, error) {
	if dollars <= 0 {
		return nil, nil
	}

	props, err := cat.PropertiesIn(z)
	if err != nil {
		return nil, err
	}
	sampler, err := cat.NewSampler(z, rng)
	if err != nil {
		return nil, err
	}

	fundTermMonths := cfg.FundTermMonths()
	maxTermForLoan := fundTermMonths - originationMonth
	if maxTermForLoan < 1 {
		maxTermForLoan = 1
	}

	var loans []simtypes.Loan
	spent := 0.0
	guard := 0
	for spent < dollars {
		guard++
		if guard > 1_000_000 {
			break // safety valve against a pathological config
		}

		principal := truncatedNormal(rng, cfg.AvgLoanSize, cfg.LoanSizeStdDev, cfg.MinLoanSize, cfg.MaxLoanSize)
		if spent+principal > dollars {
			remaining := dollars - spent
			if remaining < cfg.MinLoanSize*0.5 {
				break
			}
			principal = clamp(remaining, cfg.MinLoanSize, cfg.MaxLoanSize)
		}

		ltv := truncatedNormal(rng, cfg.AvgLTV, cfg.LTVStdDev, cfg.MinLTV, cfg.MaxLTV)
		term := int(truncatedNormal(rng, cfg.AvgTermMonths, cfg.TermStdDev, 1, float64(maxTermForLoan)))
		if term < 1 {
			term = 1
		}
		rate := truncatedNormal(rng, cfg.AvgRate, cfg.RateStdDev, 0, 1)

		prop := sampler.Next(props)
		suburb, err := cat.Suburb(prop.SuburbID)
		if err != nil {
			return nil, err
		}

		appreciationShare := ltv
		if cfg.AppreciationShareMode == config.AppreciationTiered {
			appreciationShare = ltv // tier resolution happens at exit time against realised return
		}

		loan := simtypes.Loan{
			ID:                fmt.Sprintf("%s-%s-%d-%d", z, prop.ID, originationMonth, len(loans)),
			Zone:              suburb.Zone,
			SuburbID:          suburb.ID,
			PropertyID:        prop.ID,
			OriginationMonth:  originationMonth,
			Principal:         principal,
			LTV:               ltv,
			TermMonths:        term,
			Rate:              rate,
			OriginationFee:    principal * cfg.Fees.OriginationFeeRate,
			Reinvestment:      reinvestment,
			AppreciationShare: appreciationShare,
			ExitMonth:         originationMonth + term,
			ExitKind:          simtypes.ExitTerm,
		}
		loans = append(loans, loan)
		spent += principal
	}
	return loans, nil
}
