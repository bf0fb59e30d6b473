package imagery

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
)

// ErrInvalidRegion is returned for geometries the remote service cannot reduce over.
var ErrInvalidRegion = errors.New("invalid region")

// Region is a polygonal area of interest in WGS84 lon/lat.
type Region struct {
	geometry orb.Geometry
}

// RegionFromBBox builds a rectangular region.
func RegionFromBBox(minX, minY, maxX, maxY float64) (*Region, error) {
	if minX >= maxX || minY >= maxY {
		return nil, fmt.Errorf("%w: bounding box is empty or inverted", ErrInvalidRegion)
	}
	b := orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}
	if err := checkBound(b); err != nil {
		return nil, err
	}
	return &Region{geometry: b.ToPolygon()}, nil
}

// RegionFromGeoJSON accepts a GeoJSON Geometry, Feature or FeatureCollection.
// Polygons found in a FeatureCollection are merged into one MultiPolygon.
func RegionFromGeoJSON(raw []byte) (*Region, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegion, err)
	}

	var g orb.Geometry
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRegion, err)
		}
		var mp orb.MultiPolygon
		for _, f := range fc.Features {
			mp = appendPolygons(mp, f.Geometry)
		}
		g = mp
	case "Feature":
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRegion, err)
		}
		g = f.Geometry
	case "":
		return nil, fmt.Errorf("%w: missing GeoJSON type", ErrInvalidRegion)
	default:
		geom, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRegion, err)
		}
		g = geom.Geometry()
	}

	return NewRegion(g)
}

// NewRegion validates g and wraps it. Only Polygon and MultiPolygon are accepted.
func NewRegion(g orb.Geometry) (*Region, error) {
	switch v := g.(type) {
	case orb.Polygon:
		if err := checkPolygon(v); err != nil {
			return nil, err
		}
	case orb.MultiPolygon:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: no polygons found", ErrInvalidRegion)
		}
		for _, p := range v {
			if err := checkPolygon(p); err != nil {
				return nil, err
			}
		}
		if len(v) == 1 {
			g = v[0]
		}
	case nil:
		return nil, fmt.Errorf("%w: geometry is empty", ErrInvalidRegion)
	default:
		return nil, fmt.Errorf("%w: %s geometry has no area", ErrInvalidRegion, g.GeoJSONType())
	}

	if err := checkBound(g.Bound()); err != nil {
		return nil, err
	}
	return &Region{geometry: g}, nil
}

// Geometry returns the underlying Polygon or MultiPolygon.
func (r *Region) Geometry() orb.Geometry {
	return r.geometry
}

// Bound returns the region's bounding box.
func (r *Region) Bound() orb.Bound {
	return r.geometry.Bound()
}

// AreaSquareMeters is the spherical area of the region.
func (r *Region) AreaSquareMeters() float64 {
	return geo.Area(r.geometry)
}

func appendPolygons(mp orb.MultiPolygon, g orb.Geometry) orb.MultiPolygon {
	switch v := g.(type) {
	case orb.Polygon:
		return append(mp, v)
	case orb.MultiPolygon:
		return append(mp, v...)
	case orb.Collection:
		for _, c := range v {
			mp = appendPolygons(mp, c)
		}
	}
	return mp
}

func checkPolygon(p orb.Polygon) error {
	if len(p) == 0 {
		return fmt.Errorf("%w: polygon has no rings", ErrInvalidRegion)
	}
	for _, ring := range p {
		if len(ring) < 4 {
			return fmt.Errorf("%w: polygon ring needs at least 4 positions", ErrInvalidRegion)
		}
	}
	return nil
}

func checkBound(b orb.Bound) error {
	if b.Min.Lon() < -180 || b.Max.Lon() > 180 || b.Min.Lat() < -90 || b.Max.Lat() > 90 {
		return fmt.Errorf("%w: coordinates outside lon/lat range", ErrInvalidRegion)
	}
	return nil
}
