package indices

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup(t *testing.T) {
	d, ok := Lookup("ndvi")
	assert.True(t, ok, "expected ndvi to be known")
	assert.Equal(t, "NDVI", d.Name)

	d, ok = Lookup("SAVI")
	assert.True(t, ok, "lookup should accept the band name")
	assert.Equal(t, SoilAdjusted, d.Formula)
	assert.Equal(t, 0.5, d.SoilFactor)

	_, ok = Lookup("evi")
	assert.False(t, ok, "evi is not served")
}

func TestDefinitionsAreComplete(t *testing.T) {
	assert.Equal(t, []string{"ndvi", "savi", "nbr"}, Names())

	for _, d := range Definitions {
		assert.NotEmpty(t, d.BandA, "%s: missing band A", d.Name)
		assert.NotEmpty(t, d.BandB, "%s: missing band B", d.Name)
		assert.NotEmpty(t, d.Palette, "%s: missing palette", d.Name)
		assert.NotEmpty(t, d.DiffPalette, "%s: missing diff palette", d.Name)
		assert.Less(t, d.DisplayMin, d.DisplayMax, "%s: display range inverted", d.Name)
		assert.Positive(t, d.DefaultThreshold, "%s: threshold must be positive", d.Name)
		assert.LessOrEqual(t, d.DefaultThreshold, d.MaxChange(), "%s: threshold unreachable", d.Name)
	}
}

func TestMaxChange(t *testing.T) {
	assert.InDelta(t, 1.0, NDVI.MaxChange(), 1e-9)
	assert.InDelta(t, 2.0, NBR.MaxChange(), 1e-9)
}
