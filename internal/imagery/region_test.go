package imagery

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegionFromBBox(t *testing.T) {
	r, err := RegionFromBBox(-75, -10, -74, -9)
	require.NoError(t, err)

	b := r.Bound()
	assert.Equal(t, orb.Point{-75, -10}, b.Min)
	assert.Equal(t, orb.Point{-74, -9}, b.Max)

	// one degree square near the equator is roughly 12,200 km²
	area := r.AreaSquareMeters()
	assert.InDelta(t, 1.22e10, area, 0.05e10)
}

func TestRegionFromBBoxRejectsBadBoxes(t *testing.T) {
	cases := map[string][4]float64{
		"inverted x":   {-74, -10, -75, -9},
		"empty":        {-75, -10, -75, -9},
		"out of range": {-190, -10, -74, -9},
		"lat too high": {-75, 80, -74, 95},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := RegionFromBBox(c[0], c[1], c[2], c[3])
			assert.ErrorIs(t, err, ErrInvalidRegion)
		})
	}
}

func TestRegionFromGeoJSON(t *testing.T) {
	polygon := `{"type":"Polygon","coordinates":[[[-75,-10],[-74,-10],[-74,-9],[-75,-9],[-75,-10]]]}`

	t.Run("geometry", func(t *testing.T) {
		r, err := RegionFromGeoJSON([]byte(polygon))
		require.NoError(t, err)
		_, ok := r.Geometry().(orb.Polygon)
		assert.True(t, ok, "expected a polygon")
	})

	t.Run("feature", func(t *testing.T) {
		r, err := RegionFromGeoJSON([]byte(`{"type":"Feature","properties":{},"geometry":` + polygon + `}`))
		require.NoError(t, err)
		_, ok := r.Geometry().(orb.Polygon)
		assert.True(t, ok, "expected a polygon")
	})

	t.Run("feature collection", func(t *testing.T) {
		other := `{"type":"Polygon","coordinates":[[[-73,-10],[-72,-10],[-72,-9],[-73,-9],[-73,-10]]]}`
		raw := `{"type":"FeatureCollection","features":[` +
			`{"type":"Feature","properties":{},"geometry":` + polygon + `},` +
			`{"type":"Feature","properties":{},"geometry":` + other + `}]}`
		r, err := RegionFromGeoJSON([]byte(raw))
		require.NoError(t, err)
		mp, ok := r.Geometry().(orb.MultiPolygon)
		require.True(t, ok, "expected a multipolygon")
		assert.Len(t, mp, 2)
	})

	t.Run("point has no area", func(t *testing.T) {
		_, err := RegionFromGeoJSON([]byte(`{"type":"Point","coordinates":[-75,-10]}`))
		assert.ErrorIs(t, err, ErrInvalidRegion)
	})

	t.Run("empty feature collection", func(t *testing.T) {
		_, err := RegionFromGeoJSON([]byte(`{"type":"FeatureCollection","features":[]}`))
		assert.ErrorIs(t, err, ErrInvalidRegion)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := RegionFromGeoJSON([]byte(`polygon please`))
		assert.ErrorIs(t, err, ErrInvalidRegion)
	})

	t.Run("missing type", func(t *testing.T) {
		_, err := RegionFromGeoJSON([]byte(`{"coordinates":[]}`))
		assert.ErrorIs(t, err, ErrInvalidRegion)
	})
}

func TestPeriods(t *testing.T) {
	d := time.Date(2020, time.June, 15, 0, 0, 0, 0, time.UTC)

	annual := AnnualPeriod(d)
	assert.Equal(t, "2020-01-01", annual.Start.Format(DateLayout))
	assert.Equal(t, "2021-01-01", annual.End.Format(DateLayout))
	assert.Equal(t, "2020-12-31", annual.LastDay().Format(DateLayout))

	window := WindowPeriod(d, 10)
	assert.Equal(t, "2020-06-05", window.Start.Format(DateLayout))
	assert.Equal(t, "2020-06-25", window.LastDay().Format(DateLayout))
}
