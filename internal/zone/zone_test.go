package zone

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureCatalogue(t *testing.T) *Catalogue {
	t.Helper()
	suburbs := []Suburb{
		{ID: "s1", Name: "s1", Zone: Green, Score: 0.8},
		{ID: "s2", Name: "s2", Zone: Orange, Score: 0.5},
	}
	properties := []Property{
		{ID: "p1", SuburbID: "s1", Zone: Green, Value: 1_000_000, IdioVolMult: 1.0},
		{ID: "p2", SuburbID: "s1", Zone: Green, Value: 900_000, IdioVolMult: 1.1},
		{ID: "p3", SuburbID: "s2", Zone: Orange, Value: 600_000, IdioVolMult: 0.9},
	}
	cat, err := New(suburbs, properties)
	require.NoError(t, err)
	return cat
}

func TestNew_RejectsPropertyReferencingUnknownSuburb(t *testing.T) {
	_, err := New(nil, []Property{{ID: "p1", SuburbID: "missing"}})
	assert.Error(t, err)
}

func TestPropertiesIn_ReturnsOnlyThatZonesProperties(t *testing.T) {
	cat := fixtureCatalogue(t)
	props, err := cat.PropertiesIn(Green)
	require.NoError(t, err)
	assert.Len(t, props, 2)
}

func TestPropertiesIn_UnknownZoneErrors(t *testing.T) {
	cat := fixtureCatalogue(t)
	_, err := cat.PropertiesIn(Red)
	assert.Error(t, err)
}

func TestAllProperties_ReturnsEveryPropertyAcrossZones(t *testing.T) {
	cat := fixtureCatalogue(t)
	assert.Len(t, cat.AllProperties(), 3)
}

func TestProperty_LooksUpByID(t *testing.T) {
	cat := fixtureCatalogue(t)
	p, err := cat.Property("p1")
	require.NoError(t, err)
	assert.Equal(t, 1_000_000.0, p.Value)
}

func TestProperty_UnknownIDErrors(t *testing.T) {
	cat := fixtureCatalogue(t)
	_, err := cat.Property("missing")
	assert.Error(t, err)
}

func TestSuburb_LooksUpByID(t *testing.T) {
	cat := fixtureCatalogue(t)
	s, err := cat.Suburb("s2")
	require.NoError(t, err)
	assert.Equal(t, Orange, s.Zone)
}

func TestNewSampler_DrawsWithoutReplacementUntilExhausted(t *testing.T) {
	cat := fixtureCatalogue(t)
	rng := rand.New(rand.NewSource(1))
	sampler, err := cat.NewSampler(Green, rng)
	require.NoError(t, err)

	all, err := cat.PropertiesIn(Green)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := 0; i < len(all); i++ {
		p := sampler.Next(all)
		seen[p.ID] = true
	}
	assert.Len(t, seen, len(all))
}

func TestNewSampler_ReplenishesAfterExhaustion(t *testing.T) {
	cat := fixtureCatalogue(t)
	rng := rand.New(rand.NewSource(1))
	sampler, err := cat.NewSampler(Green, rng)
	require.NoError(t, err)

	all, err := cat.PropertiesIn(Green)
	require.NoError(t, err)

	for i := 0; i < len(all)+3; i++ {
		_ = sampler.Next(all)
	}
	// Drawing more times than there are distinct properties must not
	// panic on an empty remaining slice.
	assert.NotPanics(t, func() { sampler.Next(all) })
}

func TestNewSynthetic_BuildsEveryZoneWithRequestedCounts(t *testing.T) {
	cat, err := NewSynthetic(1, 2, 5)
	require.NoError(t, err)

	for _, z := range Zones {
		props, err := cat.PropertiesIn(z)
		require.NoError(t, err)
		assert.Len(t, props, 10) // 2 suburbs * 5 properties
	}
}

func TestNewSynthetic_IsDeterministicForSameSeed(t *testing.T) {
	cat1, err := NewSynthetic(5, 1, 3)
	require.NoError(t, err)
	cat2, err := NewSynthetic(5, 1, 3)
	require.NoError(t, err)

	p1, err := cat1.Property("green-suburb-0-prop-0")
	require.NoError(t, err)
	p2, err := cat2.Property("green-suburb-0-prop-0")
	require.NoError(t, err)
	assert.Equal(t, p1.Value, p2.Value)
}
