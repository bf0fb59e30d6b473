package apimodels

import (
	"strings"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb/geojson"
)

// DateRange is inclusive on both ends.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type TileResponse struct {
	Name           string    `json:"name"`
	TileURL        string    `json:"tileUrl"`
	Index          string    `json:"index"`
	MinValue       float64   `json:"minValue"`
	MaxValue       float64   `json:"maxValue"`
	PaletteUsed    []string  `json:"paletteUsed"`
	ProcessingDate string    `json:"processingDate"`
	DateRange      DateRange `json:"dateRange"`
	CloudCover     *float64  `json:"cloudCover"`
	ImageCount     int       `json:"imageCount"`
	Composite      string    `json:"composite"`
}

// StatsResponse always carries every numeric field; values the reduction could
// not produce are zero.
type StatsResponse struct {
	Year       int       `json:"year"`
	Index      string    `json:"index"`
	Mean       float64   `json:"mean"`
	Min        float64   `json:"min"`
	Max        float64   `json:"max"`
	StdDev     float64   `json:"stdDev"`
	Count      int64     `json:"count"`
	DateRange  DateRange `json:"dateRange"`
	CloudCover *float64  `json:"cloudCover"`
	ImageCount int       `json:"imageCount"`
}

type ChangeStats struct {
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"stdDev"`
	Count  int64   `json:"count"`
}

// PeriodSummary describes the scenes behind one side of a comparison.
type PeriodSummary struct {
	DateRange  DateRange `json:"dateRange"`
	CloudCover *float64  `json:"cloudCover"`
	ImageCount int       `json:"imageCount"`
}

// DiffResponse serializes ChangeStats under "<index>ChangeStats", e.g. ndviChangeStats.
type DiffResponse struct {
	Name                  string        `json:"name"`
	TileURL               string        `json:"tileUrl"`
	Index                 string        `json:"index"`
	MinValue              float64       `json:"minValue"`
	MaxValue              float64       `json:"maxValue"`
	PaletteUsed           []string      `json:"paletteUsed"`
	Date1                 string        `json:"date1"`
	Date2                 string        `json:"date2"`
	Threshold             float64       `json:"threshold"`
	Direction             string        `json:"direction"`
	ChangeLabel           string        `json:"changeLabel"`
	ChangeStats           *ChangeStats  `json:"-"`
	DeforestationDetected *bool         `json:"deforestationDetected,omitempty"`
	Range1                PeriodSummary `json:"range1"`
	Range2                PeriodSummary `json:"range2"`
}

// ChangeStatsKey is the JSON name of the change statistics field.
func (r DiffResponse) ChangeStatsKey() string {
	return strings.ToLower(r.Index) + "ChangeStats"
}

func (r DiffResponse) MarshalJSON() ([]byte, error) {
	type plain DiffResponse
	payload, err := json.Marshal(plain(r))
	if err != nil || r.ChangeStats == nil {
		return payload, err
	}

	key, err := json.Marshal(r.ChangeStatsKey())
	if err != nil {
		return nil, err
	}
	stats, err := json.Marshal(r.ChangeStats)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(payload)+len(key)+len(stats)+2)
	out = append(out, payload[:len(payload)-1]...)
	out = append(out, ',')
	out = append(out, key...)
	out = append(out, ':')
	out = append(out, stats...)
	return append(out, '}'), nil
}

type ZonesSummary struct {
	ZoneCount          int      `json:"zoneCount"`
	AffectedAreaHa     float64  `json:"affectedAreaHa"`
	RegionAreaHa       float64  `json:"regionAreaHa"`
	PercentageAffected float64  `json:"percentageAffected"`
	Threshold          float64  `json:"threshold"`
	MinBaseline        *float64 `json:"minBaseline"`
	Direction          string   `json:"direction"`
	ChangeLabel        string   `json:"changeLabel"`
	Date1              string   `json:"date1"`
	Date2              string   `json:"date2"`
	Index              string   `json:"index"`
}

// ZonesResponse is a GeoJSON FeatureCollection with a summary member.
type ZonesResponse struct {
	Type     string             `json:"type"`
	Features []*geojson.Feature `json:"features"`
	Summary  ZonesSummary       `json:"deforestationSummary"`
}

type HistogramBucket struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count float64 `json:"count"`
}

type DatesResponse struct {
	Dates []string `json:"dates"`
}

type CandidateImage struct {
	Date       string  `json:"date"`
	CloudCover float64 `json:"cloudCover"`
}

// BestImageResponse has a nil BestDate when no scene matched.
type BestImageResponse struct {
	BestDate        *string          `json:"bestDate"`
	CloudCover      *float64         `json:"cloudCover"`
	Message         string           `json:"message"`
	SearchRange     DateRange        `json:"searchRange"`
	CandidateImages []CandidateImage `json:"candidateImages"`
}

type CloudinessResponse struct {
	Cloudiness *float64  `json:"cloudiness"`
	Date       string    `json:"date"`
	DateRange  DateRange `json:"dateRange"`
	ImageCount int       `json:"imageCount"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
