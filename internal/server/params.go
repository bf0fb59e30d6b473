package server

import (
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/sozercan/gee-gateway/apimodels"
	"github.com/sozercan/gee-gateway/internal/analyzer"
)

// maxBodyBytes bounds GeoJSON request bodies.
const maxBodyBytes = 10 << 20

func badParam(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", analyzer.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func queryFloat(q url.Values, name string) (*float64, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, badParam("%s must be a finite number, got %q", name, raw)
	}
	return &v, nil
}

func queryInt(q url.Values, name string) (*int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, badParam("%s must be an integer, got %q", name, raw)
	}
	return &v, nil
}

// queryBBox returns nil when no coordinate is given. Partial boxes are an error.
func queryBBox(q url.Values) (*apimodels.BBox, error) {
	names := []string{"minx", "miny", "maxx", "maxy"}
	values := make([]float64, len(names))

	given := 0
	for i, name := range names {
		v, err := queryFloat(q, name)
		if err != nil {
			return nil, err
		}
		if v != nil {
			values[i] = *v
			given++
		}
	}
	switch given {
	case 0:
		return nil, nil
	case len(names):
		return &apimodels.BBox{MinX: values[0], MinY: values[1], MaxX: values[2], MaxY: values[3]}, nil
	default:
		return nil, badParam("minx, miny, maxx and maxy must be given together")
	}
}

func queryArea(q url.Values) (apimodels.Area, error) {
	bbox, err := queryBBox(q)
	return apimodels.Area{BBox: bbox}, err
}

func queryCompositeOptions(q url.Values) (apimodels.CompositeOptions, error) {
	var (
		opts apimodels.CompositeOptions
		err  error
	)
	if opts.WindowDays, err = queryInt(q, "windowDays"); err != nil {
		return opts, err
	}
	if opts.MaxCloudCover, err = queryFloat(q, "maxCloudCover"); err != nil {
		return opts, err
	}
	opts.Composite = q.Get("composite")
	return opts, nil
}

func queryChangeOptions(q url.Values) (apimodels.ChangeOptions, error) {
	var (
		opts apimodels.ChangeOptions
		err  error
	)
	if opts.Threshold, err = queryFloat(q, "threshold"); err != nil {
		return opts, err
	}
	opts.Direction = q.Get("direction")
	return opts, nil
}

// decodeBody reads a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return badParam("Invalid request: %v", err)
	}
	return nil
}

func tileRequestFromQuery(q url.Values) (apimodels.TileRequest, error) {
	req := apimodels.TileRequest{Date: q.Get("date"), Palette: q["palette"]}
	var err error
	if req.Min, err = queryFloat(q, "min"); err != nil {
		return req, err
	}
	if req.Max, err = queryFloat(q, "max"); err != nil {
		return req, err
	}
	if req.Area, err = queryArea(q); err != nil {
		return req, err
	}
	req.CompositeOptions, err = queryCompositeOptions(q)
	return req, err
}

func statsRequestFromQuery(q url.Values) (apimodels.StatsRequest, error) {
	req := apimodels.StatsRequest{Date: q.Get("date")}
	var err error
	if req.Area, err = queryArea(q); err != nil {
		return req, err
	}
	req.CompositeOptions, err = queryCompositeOptions(q)
	return req, err
}

func diffRequestFromQuery(q url.Values) (apimodels.DiffRequest, error) {
	req := apimodels.DiffRequest{Date1: q.Get("date1"), Date2: q.Get("date2")}
	var err error
	if req.Area, err = queryArea(q); err != nil {
		return req, err
	}
	if req.ChangeOptions, err = queryChangeOptions(q); err != nil {
		return req, err
	}
	req.CompositeOptions, err = queryCompositeOptions(q)
	return req, err
}

func zonesRequestFromQuery(q url.Values) (apimodels.ZonesRequest, error) {
	req := apimodels.ZonesRequest{Date1: q.Get("date1"), Date2: q.Get("date2")}
	var err error
	if req.MinBaseline, err = queryFloat(q, "minBaseline"); err != nil {
		return req, err
	}
	if req.Area, err = queryArea(q); err != nil {
		return req, err
	}
	if req.ChangeOptions, err = queryChangeOptions(q); err != nil {
		return req, err
	}
	req.CompositeOptions, err = queryCompositeOptions(q)
	return req, err
}

func datesRequestFromQuery(q url.Values) (apimodels.DatesRequest, error) {
	var req apimodels.DatesRequest
	year, err := queryInt(q, "year")
	if err != nil {
		return req, err
	}
	if year != nil {
		req.Year = *year
	}
	if req.MaxCloudCover, err = queryFloat(q, "maxCloudCover"); err != nil {
		return req, err
	}
	req.Area, err = queryArea(q)
	return req, err
}

func bestImageRequestFromQuery(q url.Values) (apimodels.BestImageRequest, error) {
	// the frontend sends date; targetDate matches the POST body
	req := apimodels.BestImageRequest{TargetDate: q.Get("targetDate")}
	if req.TargetDate == "" {
		req.TargetDate = q.Get("date")
	}
	var err error
	if req.WindowDays, err = queryInt(q, "windowDays"); err != nil {
		return req, err
	}
	if req.MaxCloudCover, err = queryFloat(q, "maxCloudCover"); err != nil {
		return req, err
	}
	req.Area, err = queryArea(q)
	return req, err
}

func cloudinessRequestFromQuery(q url.Values) (apimodels.CloudinessRequest, error) {
	req := apimodels.CloudinessRequest{Date: q.Get("date")}
	var err error
	if req.WindowDays, err = queryInt(q, "windowDays"); err != nil {
		return req, err
	}
	if req.MaxCloudCover, err = queryFloat(q, "maxCloudCover"); err != nil {
		return req, err
	}
	req.Area, err = queryArea(q)
	return req, err
}
