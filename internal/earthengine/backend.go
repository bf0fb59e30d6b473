package earthengine

import (
	"context"
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/sozercan/gee-gateway/internal/helpers"
	"github.com/sozercan/gee-gateway/internal/imagery"
)

// Backend evaluates imagery descriptors on Earth Engine.
type Backend struct {
	client *Client
}

var _ imagery.Backend = (*Backend)(nil)

func NewBackend(client *Client) *Backend {
	return &Backend{client: client}
}

func (b *Backend) compiler() *compiler {
	return newCompiler(b.client.cfg.Collection)
}

func (b *Backend) Summarize(ctx context.Context, q imagery.SceneQuery) (imagery.SceneSummary, error) {
	c := b.compiler()
	scenes := c.scenes(q)
	expr := c.g.expression(dictionary(map[string]*ValueNode{
		"count":      invoke("Collection.size", args{"collection": scenes}),
		"cloudCover": aggregate("mean", scenes, cloudCoverField),
	}))

	var out struct {
		Count      int      `json:"count"`
		CloudCover *float64 `json:"cloudCover"`
	}
	if err := b.client.ComputeValue(ctx, expr, &out); err != nil {
		return imagery.SceneSummary{}, err
	}

	summary := imagery.SceneSummary{Count: out.Count}
	if out.Count > 0 {
		summary.MeanCloudCover = out.CloudCover
	}
	return summary, nil
}

func (b *Backend) Scenes(ctx context.Context, q imagery.SceneQuery) ([]imagery.Scene, error) {
	c := b.compiler()
	scenes := c.scenes(q)
	expr := c.g.expression(dictionary(map[string]*ValueNode{
		"dates":      aggregate("array", scenes, dateField),
		"cloudCover": aggregate("array", scenes, cloudCoverField),
	}))

	var out struct {
		Dates      []string  `json:"dates"`
		CloudCover []float64 `json:"cloudCover"`
	}
	if err := b.client.ComputeValue(ctx, expr, &out); err != nil {
		return nil, err
	}
	if len(out.Dates) != len(out.CloudCover) {
		return nil, fmt.Errorf("scene listing is inconsistent: %d dates, %d cloud cover values", len(out.Dates), len(out.CloudCover))
	}

	result := make([]imagery.Scene, len(out.Dates))
	for i := range out.Dates {
		result[i] = imagery.Scene{Date: out.Dates[i], CloudCover: out.CloudCover[i]}
	}
	return result, nil
}

func (b *Backend) Tile(ctx context.Context, img imagery.Image, vis imagery.Visualization) (imagery.Tile, error) {
	c := b.compiler()
	visualized, err := c.visualize(img, vis)
	if err != nil {
		return imagery.Tile{}, err
	}
	expr := c.g.expression(visualized)

	name, err := b.client.CreateMap(ctx, expr)
	if err != nil {
		return imagery.Tile{}, err
	}
	return imagery.Tile{MapName: name, URLFormat: b.client.TileURL(name)}, nil
}

func (b *Backend) Stats(ctx context.Context, img imagery.Image, region *imagery.Region) (imagery.Stats, error) {
	c := b.compiler()
	cfg := b.client.cfg
	image, err := c.image(img)
	if err != nil {
		return imagery.Stats{}, err
	}
	expr := c.g.expression(reduceRegion(image, statsReducer(), region, cfg.StatsScale, cfg.MaxPixels))

	var out map[string]*float64
	if err := b.client.ComputeValue(ctx, expr, &out); err != nil {
		return imagery.Stats{}, err
	}

	band := img.BandName()
	stats := imagery.Stats{
		Mean:   out[band+"_mean"],
		Min:    out[band+"_min"],
		Max:    out[band+"_max"],
		StdDev: out[band+"_stdDev"],
	}
	if n := out[band+"_count"]; n != nil {
		stats.Count = int64(*n)
	}
	return stats, nil
}

type histogramResult struct {
	BucketMeans []float64 `json:"bucketMeans"`
	BucketMin   float64   `json:"bucketMin"`
	BucketWidth float64   `json:"bucketWidth"`
	Histogram   []float64 `json:"histogram"`
}

func (h *histogramResult) buckets() []imagery.Bucket {
	result := make([]imagery.Bucket, len(h.Histogram))
	for i, count := range h.Histogram {
		low := h.BucketMin + float64(i)*h.BucketWidth
		result[i] = imagery.Bucket{Min: low, Max: low + h.BucketWidth, Count: count}
	}
	return result
}

func (b *Backend) Histogram(ctx context.Context, img imagery.Image, region *imagery.Region, maxBuckets int) ([]imagery.Bucket, error) {
	c := b.compiler()
	cfg := b.client.cfg
	red := reducer("histogram", args{"maxBuckets": constant(maxBuckets)})
	image, err := c.image(img)
	if err != nil {
		return nil, err
	}
	expr := c.g.expression(reduceRegion(image, red, region, cfg.HistogramScale, cfg.MaxPixels))

	var out map[string]*histogramResult
	if err := b.client.ComputeValue(ctx, expr, &out); err != nil {
		return nil, err
	}

	h := out[img.BandName()]
	if h == nil || len(h.Histogram) == 0 {
		return nil, nil
	}
	return h.buckets(), nil
}

func (b *Backend) Vectorize(ctx context.Context, mask imagery.ChangeMask, region *imagery.Region, maxFeatures int) ([]*geojson.Feature, error) {
	c := b.compiler()
	cfg := b.client.cfg
	vectors := invoke("Image.reduceToVectors", args{
		"image":                      c.changeMask(mask),
		"reducer":                    reducer("countEvery", nil),
		"geometry":                   geometry(region),
		"scale":                      constant(cfg.VectorScale),
		"geometryType":               constant("polygon"),
		"maxPixels":                  constant(cfg.MaxPixels),
		"bestEffort":                 constant(true),
		"tileScale":                  constant(cfg.TileScale),
		"geometryInNativeProjection": constant(false),
	})
	expr := c.g.expression(invoke("Collection.limit", args{
		"collection": vectors,
		"limit":      constant(maxFeatures),
	}))

	raw, err := b.client.ComputeFeatures(ctx, expr, maxFeatures)
	if err != nil {
		return nil, err
	}

	features := make([]*geojson.Feature, 0, len(raw))
	for i, data := range raw {
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("decode feature %d: %w", i, err)
		}
		features = append(features, f)
	}
	return features, nil
}

func (b *Backend) CloudFraction(ctx context.Context, q imagery.SceneQuery, region *imagery.Region) (*float64, error) {
	c := b.compiler()
	cfg := b.client.cfg
	expr := c.g.expression(reduceRegion(c.cloudFraction(q), reducer("mean", nil), region, cfg.StatsScale, cfg.MaxPixels))

	var out map[string]*float64
	if err := b.client.ComputeValue(ctx, expr, &out); err != nil {
		return nil, err
	}

	fraction := out[cloudyBand]
	if fraction == nil {
		return nil, nil
	}
	return helpers.Ptr(*fraction * 100), nil
}
