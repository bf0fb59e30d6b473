package apimodels

import "github.com/goccy/go-json"

// BBox is a WGS84 bounding box. On GET endpoints it comes from the minx, miny,
// maxx and maxy query parameters.
type BBox struct {
	MinX float64 `json:"minx" validate:"gte=-180,lte=180"`
	MinY float64 `json:"miny" validate:"gte=-90,lte=90"`
	MaxX float64 `json:"maxx" validate:"gte=-180,lte=180,gtfield=MinX"`
	MaxY float64 `json:"maxy" validate:"gte=-90,lte=90,gtfield=MinY"`
}

// Area is the analysis region. Geometry takes precedence over BBox and may be
// a GeoJSON Geometry, Feature or FeatureCollection.
type Area struct {
	BBox     *BBox           `json:"bbox,omitempty" validate:"omitempty"`
	Geometry json.RawMessage `json:"geometry,omitempty"`
}

// CompositeOptions tune how scenes are selected and merged.
type CompositeOptions struct {
	// WindowDays searches this many days around the date instead of its calendar year
	WindowDays    *int     `json:"windowDays,omitempty" validate:"omitempty,min=1,max=366"`
	MaxCloudCover *float64 `json:"maxCloudCover,omitempty" validate:"omitempty,gte=0,lte=100"`
	Composite     string   `json:"composite,omitempty" validate:"omitempty,oneof=mean quality"`
}

// ChangeOptions control what counts as detected change between two dates.
type ChangeOptions struct {
	Threshold *float64 `json:"threshold,omitempty" validate:"omitempty,gte=0"`
	Direction string   `json:"direction,omitempty" validate:"omitempty,oneof=loss gain"`
}

type TileRequest struct {
	Date    string   `json:"date" validate:"required"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Palette []string `json:"palette,omitempty" validate:"omitempty,dive,required"`
	Area
	CompositeOptions
}

type StatsRequest struct {
	Date string `json:"date" validate:"required"`
	Area
	CompositeOptions
}

type DiffRequest struct {
	Date1 string `json:"date1" validate:"required"`
	Date2 string `json:"date2" validate:"required"`
	Area
	ChangeOptions
	CompositeOptions
}

type ZonesRequest struct {
	Date1 string `json:"date1" validate:"required"`
	Date2 string `json:"date2" validate:"required"`

	// MinBaseline restricts zones to pixels whose date1 index value reaches it
	MinBaseline *float64 `json:"minBaseline,omitempty" validate:"omitempty,gte=-1,lte=1"`
	Area
	ChangeOptions
	CompositeOptions
}

type HistogramRequest struct {
	Date1   string `json:"date1" validate:"required"`
	Date2   string `json:"date2" validate:"required"`
	Buckets *int   `json:"buckets,omitempty" validate:"omitempty,min=1,max=1000"`
	Area
	CompositeOptions
}

type DatesRequest struct {
	Year          int      `json:"year" validate:"required,min=1972,max=9999"`
	MaxCloudCover *float64 `json:"maxCloudCover,omitempty" validate:"omitempty,gte=0,lte=100"`
	Area
}

type BestImageRequest struct {
	TargetDate    string   `json:"targetDate" validate:"required"`
	WindowDays    *int     `json:"windowDays,omitempty" validate:"omitempty,min=1,max=366"`
	MaxCloudCover *float64 `json:"maxCloudCover,omitempty" validate:"omitempty,gte=0,lte=100"`
	Area
}

type CloudinessRequest struct {
	Date          string   `json:"date" validate:"required"`
	WindowDays    *int     `json:"windowDays,omitempty" validate:"omitempty,min=1,max=366"`
	MaxCloudCover *float64 `json:"maxCloudCover,omitempty" validate:"omitempty,gte=0,lte=100"`
	Area
}
