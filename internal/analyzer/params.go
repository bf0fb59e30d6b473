package analyzer

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/sozercan/gee-gateway/apimodels"
	"github.com/sozercan/gee-gateway/internal/imagery"
)

var dateLayouts = []string{imagery.DateLayout, "20060102"}

// ParseDate accepts YYYY-MM-DD or YYYYMMDD. Calendar-invalid dates such as
// 2021-02-30 are rejected.
func ParseDate(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", ErrInvalidInput, field)
	}
	for _, layout := range dateLayouts {
		if len(value) != len(layout) {
			continue
		}
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s must be a valid date in YYYY-MM-DD or YYYYMMDD format, got %q", ErrInvalidInput, field, value)
}

func hasGeometry(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// resolveRegion builds the region from a GeoJSON geometry or, failing that, a
// bounding box. It returns nil when neither is given and the region is optional.
func resolveRegion(area apimodels.Area, required bool) (*imagery.Region, error) {
	switch {
	case hasGeometry(area.Geometry):
		return imagery.RegionFromGeoJSON(area.Geometry)
	case area.BBox != nil:
		b := area.BBox
		return imagery.RegionFromBBox(b.MinX, b.MinY, b.MaxX, b.MaxY)
	case required:
		return nil, fmt.Errorf("%w: a region is required, pass minx, miny, maxx and maxy or a GeoJSON geometry", ErrInvalidInput)
	default:
		return nil, nil
	}
}

func period(date time.Time, windowDays *int) imagery.Period {
	if windowDays != nil && *windowDays > 0 {
		return imagery.WindowPeriod(date, *windowDays)
	}
	return imagery.AnnualPeriod(date)
}

func orDefault(v *float64, def float64) float64 {
	if v != nil {
		return *v
	}
	return def
}

func compositeMode(opts apimodels.CompositeOptions) imagery.CompositeMode {
	if opts.Composite == string(imagery.CompositeQuality) {
		return imagery.CompositeQuality
	}
	return imagery.CompositeMean
}

func direction(opts apimodels.ChangeOptions) imagery.ChangeDirection {
	if opts.Direction == string(imagery.DirectionGain) {
		return imagery.DirectionGain
	}
	return imagery.DirectionLoss
}

func dateRange(p imagery.Period) apimodels.DateRange {
	return apimodels.DateRange{
		Start: p.Start.Format(imagery.DateLayout),
		End:   p.LastDay().Format(imagery.DateLayout),
	}
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
