// Package allocator splits committed capital across zones per target
// policy (spec section 4.3) and later reconciles target vs realised
// allocation once loans exist.
package allocator

import (
	"math"

	"github.com/equihome/heloc-simfund/internal/config"
	"github.com/equihome/heloc-simfund/internal/simerr"
	"github.com/equihome/heloc-simfund/internal/zone"
)

const allocationEpsilon = 1e-9

// Allocate splits committedCapital across zones per cfg.ZoneParams,
// enforcing that fractions sum to 1 (within epsilon) and that no zone
// exceeds its configured cap.
func Allocate(committedCapital float64, cfg *config.Config) (map[zone.Zone]float64, error) {
	sum := 0.0
	for z, p := range cfg.ZoneParams {
		if p.TargetAllocation < 0 {
			return nil, simerr.New(simerr.ConfigInvalid, "allocator", "negative allocation fraction for zone "+string(z))
		}
		if p.AllocationCap > 0 && p.TargetAllocation > p.AllocationCap+allocationEpsilon {
			return nil, simerr.New(simerr.ConfigInvalid, "allocator", "zone "+string(z)+" allocation exceeds its cap")
		}
		sum += p.TargetAllocation
	}
	if math.Abs(sum-1.0) > allocationEpsilon {
		return nil, simerr.New(simerr.ConfigInvalid, "allocator", "zone allocations must sum to 1 +/- 1e-9")
	}

	out := make(map[zone.Zone]float64, len(cfg.ZoneParams))
	for z, p := range cfg.ZoneParams {
		out[z] = committedCapital * p.TargetAllocation
	}
	return out, nil
}

// ActualAllocation computes realised per-zone dollar fractions from a
// set of loan principals already originated.
func ActualAllocation(principalByZone map[zone.Zone]float64) map[zone.Zone]float64 {
	total := 0.0
	for _, v := range principalByZone {
		total += v
	}
	out := make(map[zone.Zone]float64, len(principalByZone))
	if total <= 0 {
		return out
	}
	for z, v := range principalByZone {
		out[z] = v / total
	}
	return out
}

// RebalanceAdjustment returns, per zone, the dollar amount by which the
// next reinvestment batch should over/under-allocate to walk the
// realised allocation back toward target. Positive => allocate more.
func RebalanceAdjustment(target map[zone.Zone]float64, actual map[zone.Zone]float64, availableCapital float64) map[zone.Zone]float64 {
	out := make(map[zone.Zone]float64, len(target))
	for z, t := range target {
		a := actual[z]
		out[z] = (t - a) * availableCapital
	}
	return out
}
