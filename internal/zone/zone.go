// Package zone is the read-only suburb/property catalogue (the "TLS"
// data service of spec section 2): a classification of geography into
// green/orange/red risk tiers with per-zone and per-suburb scores.
// The catalogue is loaded once and shared immutably across every
// Monte Carlo path.
package zone

import (
	"fmt"
	"math/rand"

	"github.com/equihome/heloc-simfund/internal/simerr"
)

// Zone is a geographic risk tier.
type Zone string

const (
	Green  Zone = "green"
	Orange Zone = "orange"
	Red    Zone = "red"
)

// Zones lists every supported tier in a stable order.
var Zones = []Zone{Green, Orange, Red}

// Suburb is a scored geography within a Zone.
type Suburb struct {
	ID    string
	Name  string
	Zone  Zone
	Score float64 // 0..1 composite TLS score
}

// Property is a single addressable asset within a Suburb, carrying the
// attributes the loan generator stamps onto a Loan at origination.
type Property struct {
	ID          string
	SuburbID    string
	Zone        Zone
	Value       float64 // current market value used as LTV basis
	IdioVolMult float64 // idiosyncratic price-path volatility multiplier
}

// Catalogue is the immutable, read-only data service. Zero value is not
// usable; build with New or NewSynthetic.
type Catalogue struct {
	suburbs    map[string]Suburb
	properties map[string]Property
	byZone     map[Zone][]Property
}

// New builds a Catalogue from explicit suburb/property lists, validating
// every property references a known suburb.
func New(suburbs []Suburb, properties []Property) (*Catalogue, error) {
	c := &Catalogue{
		suburbs:    make(map[string]Suburb, len(suburbs)),
		properties: make(map[string]Property, len(properties)),
		byZone:     make(map[Zone][]Property),
	}
	for _, s := range suburbs {
		c.suburbs[s.ID] = s
	}
	for _, p := range properties {
		if _, ok := c.suburbs[p.SuburbID]; !ok {
			return nil, simerr.New(simerr.DataUnavailable, "zone", "property "+p.ID+" references unknown suburb "+p.SuburbID)
		}
		c.properties[p.ID] = p
		c.byZone[p.Zone] = append(c.byZone[p.Zone], p)
	}
	return c, nil
}

// PropertiesIn returns every property classified under z, in catalogue
// load order (stable, for deterministic sampling-without-replacement).
func (c *Catalogue) PropertiesIn(z Zone) ([]Property, error) {
	props, ok := c.byZone[z]
	if !ok || len(props) == 0 {
		return nil, simerr.New(simerr.DataUnavailable, "zone", "no properties classified in zone "+string(z))
	}
	out := make([]Property, len(props))
	copy(out, props)
	return out, nil
}

// NewSynthetic builds a Catalogue of synthetic suburbs/properties when
// no real TLS data feed is configured: suburbsPerZone suburbs, each
// with propertiesPerSuburb properties, spread evenly in score and
// value. Useful for CLI demos and tests; a production deployment would
// source the catalogue from the real data service instead.
func NewSynthetic(seed int64, suburbsPerZone, propertiesPerSuburb int) (*Catalogue, error) {
	rng := rand.New(rand.NewSource(seed))
	var suburbs []Suburb
	var properties []Property
	for _, z := range Zones {
		for s := 0; s < suburbsPerZone; s++ {
			suburbID := fmt.Sprintf("%s-suburb-%d", z, s)
			suburbs = append(suburbs, Suburb{
				ID:    suburbID,
				Name:  suburbID,
				Zone:  z,
				Score: rng.Float64(),
			})
			for p := 0; p < propertiesPerSuburb; p++ {
				properties = append(properties, Property{
					ID:          fmt.Sprintf("%s-prop-%d", suburbID, p),
					SuburbID:    suburbID,
					Zone:        z,
					Value:       500_000 + rng.Float64()*1_500_000,
					IdioVolMult: 0.7 + rng.Float64()*0.6,
				})
			}
		}
	}
	return New(suburbs, properties)
}

// AllProperties returns every property in the catalogue, in load order,
// regardless of zone. Used to size per-property price paths up front so
// later reinvestment can draw on any property without re-deriving
// price history.
func (c *Catalogue) AllProperties() []Property {
	out := make([]Property, 0, len(c.properties))
	for _, z := range Zones {
		out = append(out, c.byZone[z]...)
	}
	return out
}

// Property looks up a single property by id.
func (c *Catalogue) Property(id string) (Property, error) {
	p, ok := c.properties[id]
	if !ok {
		return Property{}, simerr.New(simerr.DataUnavailable, "zone", "unknown property id "+id)
	}
	return p, nil
}

// Suburb looks up a single suburb by id.
func (c *Catalogue) Suburb(id string) (Suburb, error) {
	s, ok := c.suburbs[id]
	if !ok {
		return Suburb{}, simerr.New(simerr.DataUnavailable, "zone", "unknown suburb id "+id)
	}
	return s, nil
}

// Sampler draws properties from one zone without replacement, backed by
// a dedicated RNG stream so loan generation is reproducible per seed.
type Sampler struct {
	remaining []Property
	rng       *rand.Rand
}

// NewSampler builds a Sampler over every property in zone z.
func (c *Catalogue) NewSampler(z Zone, rng *rand.Rand) (*Sampler, error) {
	props, err := c.PropertiesIn(z)
	if err != nil {
		return nil, err
	}
	return &Sampler{remaining: props, rng: rng}, nil
}

// Next draws one property without replacement. When the zone's
// property set is exhausted, it is replenished (loans can outnumber
// distinct properties across a long simulation) with the whole zone,
// including the property drawn just before, so that property can be
// drawn twice in a row.
func (s *Sampler) Next(all []Property) Property {
	if len(s.remaining) == 0 {
		s.remaining = append(s.remaining, all...)
	}
	idx := s.rng.Intn(len(s.remaining))
	p := s.remaining[idx]
	s.remaining = append(s.remaining[:idx], s.remaining[idx+1:]...)
	return p
}
