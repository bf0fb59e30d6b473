// Package imagery describes analysis requests against a remote raster service
// without depending on how that service represents them.
//
// Handlers build descriptors (Composite, Difference, ChangeMask), hand them to a
// Backend and get typed results back. Nothing here is evaluated locally.
package imagery

import (
	"context"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/sozercan/gee-gateway/internal/indices"
)

// DateLayout is the canonical wire form of a date.
const DateLayout = "2006-01-02"

// Period is a half-open date range [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

// AnnualPeriod covers the calendar year of t.
func AnnualPeriod(t time.Time) Period {
	start := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(1, 0, 0)}
}

// WindowPeriod covers days before and after t, t's day included.
func WindowPeriod(t time.Time, days int) Period {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return Period{Start: day.AddDate(0, 0, -days), End: day.AddDate(0, 0, days+1)}
}

// LastDay returns the inclusive end of the period.
func (p Period) LastDay() time.Time {
	return p.End.AddDate(0, 0, -1)
}

// CompositeMode selects how masked scenes are merged into one image.
type CompositeMode string

const (
	// CompositeMean averages every clear observation per pixel.
	CompositeMean CompositeMode = "mean"
	// CompositeQuality keeps, per pixel, the observation with the highest index value.
	CompositeQuality CompositeMode = "quality"
)

// ChangeDirection selects which sign of change counts as detected.
type ChangeDirection string

const (
	// DirectionLoss detects index(date1) - index(date2) >= threshold.
	DirectionLoss ChangeDirection = "loss"
	// DirectionGain detects index(date2) - index(date1) >= threshold.
	DirectionGain ChangeDirection = "gain"
)

// SceneQuery selects source scenes.
type SceneQuery struct {
	Period        Period
	Region        *Region
	MaxCloudCover float64
}

// Image is a server-side raster expression. It is either a Composite or a Difference.
type Image interface {
	// BandName is the name of the single band the image carries.
	BandName() string
}

// Composite is a cloud-masked index composite over SceneQuery.
type Composite struct {
	Index  indices.Definition
	Scenes SceneQuery
	Mode   CompositeMode
}

func (c Composite) BandName() string {
	return c.Index.Name
}

// Difference is To - From, computed per pixel.
type Difference struct {
	From Composite
	To   Composite
}

func (d Difference) BandName() string {
	return d.To.Index.Name + "_DIFF"
}

// ChangeMask selects pixels whose change in the given direction reaches Threshold.
// When MinBaseline is set, only pixels whose From value reaches it qualify.
type ChangeMask struct {
	From        Composite
	To          Composite
	Threshold   float64
	Direction   ChangeDirection
	MinBaseline *float64
}

// Visualization maps a single band onto a color ramp.
type Visualization struct {
	Min     float64
	Max     float64
	Palette []string
}

// Tile is a slippy-map tile source issued by the remote service.
type Tile struct {
	MapName   string
	URLFormat string
}

// Stats is a region reduction. Nil pointers mean the reduction returned no value.
type Stats struct {
	Mean   *float64
	Min    *float64
	Max    *float64
	StdDev *float64
	Count  int64
}

// Bucket is one histogram bin, [Min, Max).
type Bucket struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count float64 `json:"count"`
}

// Scene is one acquisition that passed the scene filter.
type Scene struct {
	Date       string
	CloudCover float64
}

// SceneSummary describes what a SceneQuery matched.
type SceneSummary struct {
	Count          int
	MeanCloudCover *float64
}

// Backend is the remote service. Every call blocks until the service answers.
type Backend interface {
	Summarize(ctx context.Context, q SceneQuery) (SceneSummary, error)
	Scenes(ctx context.Context, q SceneQuery) ([]Scene, error)
	Tile(ctx context.Context, img Image, vis Visualization) (Tile, error)
	Stats(ctx context.Context, img Image, region *Region) (Stats, error)
	Histogram(ctx context.Context, img Image, region *Region, maxBuckets int) ([]Bucket, error)
	Vectorize(ctx context.Context, mask ChangeMask, region *Region, maxFeatures int) ([]*geojson.Feature, error)
	CloudFraction(ctx context.Context, q SceneQuery, region *Region) (*float64, error)
}
