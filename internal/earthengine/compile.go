package earthengine

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/sozercan/gee-gateway/internal/imagery"
	"github.com/sozercan/gee-gateway/internal/indices"
)

// Landsat Collection 2 Level-2 surface reflectance scaling and QA_PIXEL flags.
const (
	reflectanceScale  = 0.0000275
	reflectanceOffset = -0.2
	qaBand            = "QA_PIXEL"
	qaCloudBit        = 1 << 3
	qaShadowBit       = 1 << 4
	cloudCoverField   = "CLOUD_COVER"
	dateField         = "DATE_ACQUIRED"
	cloudyBand        = "CLOUDY"
)

// compiler turns imagery descriptors into expression nodes within one graph.
type compiler struct {
	g          *graph
	collection string
}

func newCompiler(collection string) *compiler {
	return &compiler{g: newGraph(), collection: collection}
}

func imageConstant(v float64) *ValueNode {
	return invoke("Image.constant", args{"value": constant(v)})
}

func binary(op string, image1, image2 *ValueNode) *ValueNode {
	return invoke("Image."+op, args{"image1": image1, "image2": image2})
}

func selectBands(image *ValueNode, bands ...string) *ValueNode {
	return invoke("Image.select", args{"input": image, "bandSelectors": constant(bands)})
}

func rename(image *ValueNode, name string) *ValueNode {
	return invoke("Image.rename", args{"input": image, "names": constant([]string{name})})
}

func clamp(image *ValueNode, r indices.Range) *ValueNode {
	return invoke("Image.clamp", args{"input": image, "low": constant(r.Low), "high": constant(r.High)})
}

// geometry encodes a Polygon or MultiPolygon as a geometry constructor call.
func geometry(r *imagery.Region) *ValueNode {
	switch g := r.Geometry().(type) {
	case orb.MultiPolygon:
		coords := make([][][][2]float64, len(g))
		for i, p := range g {
			coords[i] = polygonCoordinates(p)
		}
		return invoke("GeometryConstructors.MultiPolygon", args{
			"coordinates": constant(coords),
			"geodesic":    constant(false),
		})
	case orb.Polygon:
		return invoke("GeometryConstructors.Polygon", args{
			"coordinates": constant(polygonCoordinates(g)),
			"geodesic":    constant(false),
		})
	default:
		// NewRegion only admits polygons; fall back to the bounding box
		return invoke("GeometryConstructors.Polygon", args{
			"coordinates": constant(polygonCoordinates(g.Bound().ToPolygon())),
			"geodesic":    constant(false),
		})
	}
}

func polygonCoordinates(p orb.Polygon) [][][2]float64 {
	rings := make([][][2]float64, len(p))
	for i, ring := range p {
		rings[i] = make([][2]float64, len(ring))
		for j, pt := range ring {
			rings[i][j] = [2]float64{pt[0], pt[1]}
		}
	}
	return rings
}

func filter(collection, f *ValueNode) *ValueNode {
	return invoke("Collection.filter", args{"collection": collection, "filter": f})
}

func date(d string) *ValueNode {
	return invoke("Date", args{"value": constant(d)})
}

// scenes loads the collection filtered by date, cloud cover and region.
func (c *compiler) scenes(q imagery.SceneQuery) *ValueNode {
	coll := invoke("ImageCollection.load", args{"id": constant(c.collection)})
	coll = filter(coll, invoke("Filter.dateRangeContains", args{
		"leftValue": invoke("DateRange", args{
			"start": date(q.Period.Start.Format(imagery.DateLayout)),
			"end":   date(q.Period.End.Format(imagery.DateLayout)),
		}),
		"rightField": constant("system:time_start"),
	}))
	// CLOUD_COVER tops out at 100, so a limit of 100 or more admits every scene
	if q.MaxCloudCover < 100 {
		coll = filter(coll, invoke("Filter.lessThan", args{
			"leftField":  constant(cloudCoverField),
			"rightValue": constant(q.MaxCloudCover),
		}))
	}
	if q.Region != nil {
		coll = filter(coll, invoke("Filter.intersects", args{
			"leftField":  constant(".all"),
			"rightValue": geometry(q.Region),
		}))
	}
	return coll
}

func reflectance(image *ValueNode, band string) *ValueNode {
	scaled := binary("multiply", selectBands(image, band), imageConstant(reflectanceScale))
	return binary("add", scaled, imageConstant(reflectanceOffset))
}

// clearMask is 1 where neither the cloud nor the cloud-shadow bit is set.
func clearMask(image *ValueNode) *ValueNode {
	qa := selectBands(image, qaBand)
	noCloud := binary("eq", binary("bitwiseAnd", qa, imageConstant(qaCloudBit)), imageConstant(0))
	noShadow := binary("eq", binary("bitwiseAnd", qa, imageConstant(qaShadowBit)), imageConstant(0))
	return binary("and", noCloud, noShadow)
}

// sceneIndex is the per-scene body mapped over the collection.
func sceneIndex(def indices.Definition, image *ValueNode) *ValueNode {
	a := reflectance(image, def.BandA)
	b := reflectance(image, def.BandB)

	var idx *ValueNode
	switch def.Formula {
	case indices.SoilAdjusted:
		l := def.SoilFactor
		num := binary("multiply", binary("subtract", a, b), imageConstant(1+l))
		den := binary("add", binary("add", a, b), imageConstant(l))
		idx = binary("divide", num, den)
	default:
		idx = binary("divide", binary("subtract", a, b), binary("add", a, b))
	}

	idx = clamp(rename(idx, def.Name), def.SceneRange)
	return invoke("Image.updateMask", args{"image": idx, "mask": clearMask(image)})
}

func (c *compiler) composite(comp imagery.Composite) *ValueNode {
	mapped := invoke("Collection.map", args{
		"collection":    c.scenes(comp.Scenes),
		"baseAlgorithm": c.g.define(sceneIndex(comp.Index, argument("_MAPPING_VAR_0_0")), "_MAPPING_VAR_0_0"),
	})

	var img *ValueNode
	if comp.Mode == imagery.CompositeQuality {
		img = invoke("ImageCollection.qualityMosaic", args{
			"collection":  mapped,
			"qualityBand": constant(comp.Index.Name),
		})
		img = selectBands(img, comp.Index.Name)
	} else {
		img = invoke("reduce.mean", args{"collection": mapped})
	}
	return rename(clamp(img, comp.Index.CompositeRange), comp.Index.Name)
}

func (c *compiler) image(img imagery.Image) (*ValueNode, error) {
	switch v := img.(type) {
	case imagery.Composite:
		return c.composite(v), nil
	case imagery.Difference:
		diff := binary("subtract", c.composite(v.To), c.composite(v.From))
		return rename(diff, v.BandName()), nil
	default:
		return nil, fmt.Errorf("earthengine: unsupported image descriptor %T", img)
	}
}

func (c *compiler) visualize(img imagery.Image, vis imagery.Visualization) (*ValueNode, error) {
	image, err := c.image(img)
	if err != nil {
		return nil, err
	}
	return invoke("Image.visualize", args{
		"image":   image,
		"min":     constant(vis.Min),
		"max":     constant(vis.Max),
		"palette": constant(vis.Palette),
	}), nil
}

// changeMask is a self-masked 0/1 image of pixels whose change reaches the threshold.
func (c *compiler) changeMask(m imagery.ChangeMask) *ValueNode {
	from := c.composite(m.From)
	to := c.composite(m.To)

	change := binary("subtract", from, to)
	if m.Direction == imagery.DirectionGain {
		change = binary("subtract", to, from)
	}

	mask := binary("gte", change, imageConstant(m.Threshold))
	if m.MinBaseline != nil {
		mask = binary("and", mask, binary("gte", from, imageConstant(*m.MinBaseline)))
	}
	return invoke("Image.selfMask", args{"image": rename(mask, "change")})
}

// cloudFraction is the per-pixel mean of the cloud/shadow flag over the scenes.
func (c *compiler) cloudFraction(q imagery.SceneQuery) *ValueNode {
	image := argument("_MAPPING_VAR_0_0")
	qa := selectBands(image, qaBand)
	flagged := binary("neq", binary("bitwiseAnd", qa, imageConstant(qaCloudBit|qaShadowBit)), imageConstant(0))

	mapped := invoke("Collection.map", args{
		"collection":    c.scenes(q),
		"baseAlgorithm": c.g.define(rename(flagged, cloudyBand), "_MAPPING_VAR_0_0"),
	})
	return invoke("reduce.mean", args{"collection": mapped})
}

func reducer(name string, a args) *ValueNode {
	return invoke("Reducer."+name, a)
}

func combine(r1, r2 *ValueNode) *ValueNode {
	return reducer("combine", args{"reducer1": r1, "reducer2": r2, "sharedInputs": constant(true)})
}

// statsReducer yields <band>_mean, _min, _max, _stdDev and _count.
func statsReducer() *ValueNode {
	r := combine(reducer("mean", nil), reducer("minMax", nil))
	r = combine(r, reducer("stdDev", nil))
	return combine(r, reducer("count", nil))
}

func reduceRegion(image, red *ValueNode, region *imagery.Region, scale float64, maxPixels int64) *ValueNode {
	return invoke("Image.reduceRegion", args{
		"image":     image,
		"reducer":   red,
		"geometry":  geometry(region),
		"scale":     constant(scale),
		"maxPixels": constant(maxPixels),
	})
}

func aggregate(fn string, collection *ValueNode, property string) *ValueNode {
	return invoke("AggregateFeatureCollection."+fn, args{"collection": collection, "property": constant(property)})
}
