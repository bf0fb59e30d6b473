package server

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sozercan/gee-gateway/internal/analyzer"
	"github.com/sozercan/gee-gateway/internal/config"
	"github.com/sozercan/gee-gateway/internal/helpers"
	"github.com/sozercan/gee-gateway/internal/imagery"
	"github.com/sozercan/gee-gateway/internal/logging"
)

type stubBackend struct {
	summary  imagery.SceneSummary
	scenes   []imagery.Scene
	stats    imagery.Stats
	buckets  []imagery.Bucket
	features []*geojson.Feature
	err      error
}

func (b *stubBackend) Summarize(context.Context, imagery.SceneQuery) (imagery.SceneSummary, error) {
	return b.summary, b.err
}

func (b *stubBackend) Scenes(context.Context, imagery.SceneQuery) ([]imagery.Scene, error) {
	return b.scenes, b.err
}

func (b *stubBackend) Tile(context.Context, imagery.Image, imagery.Visualization) (imagery.Tile, error) {
	return imagery.Tile{MapName: "projects/p/maps/abc", URLFormat: "https://earthengine.googleapis.com/v1/projects/p/maps/abc/tiles/{z}/{x}/{y}"}, b.err
}

func (b *stubBackend) Stats(context.Context, imagery.Image, *imagery.Region) (imagery.Stats, error) {
	return b.stats, b.err
}

func (b *stubBackend) Histogram(context.Context, imagery.Image, *imagery.Region, int) ([]imagery.Bucket, error) {
	return b.buckets, b.err
}

func (b *stubBackend) Vectorize(context.Context, imagery.ChangeMask, *imagery.Region, int) ([]*geojson.Feature, error) {
	return b.features, b.err
}

func (b *stubBackend) CloudFraction(context.Context, imagery.SceneQuery, *imagery.Region) (*float64, error) {
	return helpers.Ptr(37.456), b.err
}

func healthyBackend() *stubBackend {
	return &stubBackend{
		summary: imagery.SceneSummary{Count: 6, MeanCloudCover: helpers.Ptr(9.5)},
		stats: imagery.Stats{
			Mean:   helpers.Ptr(0.58),
			Min:    helpers.Ptr(0.0),
			Max:    helpers.Ptr(0.91),
			StdDev: helpers.Ptr(0.1),
			Count:  12000,
		},
	}
}

func newTestServer(t *testing.T, backend imagery.Backend) *httptest.Server {
	t.Helper()
	cfg := config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: "0", CORSAllowedOrigins: []string{"*"}},
		Analysis: config.AnalysisConfig{
			MaxCloudCover:       50,
			BestImageWindowDays: 15,
			HistogramBuckets:    20,
			MaxFeatures:         100,
		},
	}
	srv := httptest.NewServer(New(cfg, analyzer.New(backend, cfg.Analysis)).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	return decodeResponse(t, resp)
}

func postJSON(t *testing.T, url, body string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return decodeResponse(t, resp)
}

func decodeResponse(t *testing.T, resp *http.Response) (int, map[string]interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &body), "body: %s", data)
	return resp.StatusCode, body
}

const exampleBBox = "minx=-75&miny=-10&maxx=-74&maxy=-9"

const examplePolygon = `{"type":"Polygon","coordinates":[[[-75,-10],[-74,-10],[-74,-9],[-75,-9],[-75,-10]]]}`

func TestStatsExampleRequest(t *testing.T) {
	srv := newTestServer(t, healthyBackend())

	status, body := getJSON(t, srv.URL+"/gee-ndvi-stats?date=2020-06-15&"+exampleBBox)
	require.Equal(t, http.StatusOK, status, body)

	assert.Equal(t, 2020.0, body["year"])
	for _, field := range []string{"mean", "min", "max", "stdDev", "count"} {
		v, ok := body[field]
		require.True(t, ok, "%s is present", field)
		assert.IsType(t, 0.0, v, "%s is numeric", field)
	}
	assert.Equal(t, 0.0, body["min"], "zero values are still present")
}

func TestStatsFromGeoJSON(t *testing.T) {
	srv := newTestServer(t, healthyBackend())

	status, body := postJSON(t, srv.URL+"/gee-savi-stats-from-geojson", `{"date":"2020-06-15","geometry":`+examplePolygon+`}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "SAVI", body["index"])
	assert.Equal(t, 0.58, body["mean"])
}

func TestMalformedDatesAreBadRequests(t *testing.T) {
	srv := newTestServer(t, healthyBackend())

	gets := []string{
		"/gee-tile-url?date=2020-13-01",
		"/gee-nbr-tile-url?date=yesterday",
		"/gee-ndvi-stats?date=2021-02-30&" + exampleBBox,
		"/gee-savi-stats?date=2020/06/15&" + exampleBBox,
		"/gee-ndvi-diff?date1=2015-06-01&date2=2020-06-1",
		"/gee-deforestation-zones?date1=20150601&date2=2020-02-31&" + exampleBBox,
		"/find-best-image-date?date=15-06-2020",
		"/gee-cloudiness-in-view?date=2020-00-10&" + exampleBBox,
	}
	for _, path := range gets {
		t.Run(path, func(t *testing.T) {
			status, body := getJSON(t, srv.URL+path)
			assert.Equal(t, http.StatusBadRequest, status, body)
			assert.Equal(t, CodeBadRequest, body["code"])
		})
	}

	status, body := postJSON(t, srv.URL+"/gee-ndvi-histogram", `{"date1":"2015-06-01","date2":"2020-6-1","geometry":`+examplePolygon+`}`)
	assert.Equal(t, http.StatusBadRequest, status, body)
}

func TestMissingParametersAreBadRequests(t *testing.T) {
	srv := newTestServer(t, healthyBackend())

	cases := map[string]string{
		"missing date":    "/gee-ndvi-stats?" + exampleBBox,
		"missing region":  "/gee-ndvi-stats?date=2020-06-15",
		"partial bbox":    "/gee-ndvi-stats?date=2020-06-15&minx=-75&miny=-10",
		"non-numeric box": "/gee-ndvi-stats?date=2020-06-15&minx=west&miny=-10&maxx=-74&maxy=-9",
		"inverted bbox":   "/gee-ndvi-stats?date=2020-06-15&minx=-74&miny=-10&maxx=-75&maxy=-9",
		"cloud cover":     "/gee-ndvi-stats?date=2020-06-15&maxCloudCover=150&" + exampleBBox,
		"composite":       "/gee-tile-url?date=2020-06-15&composite=median",
		"direction":       "/gee-ndvi-diff?date1=2015-06-01&date2=2020-06-01&direction=sideways",
	}
	for name, path := range cases {
		t.Run(name, func(t *testing.T) {
			status, body := getJSON(t, srv.URL+path)
			assert.Equal(t, http.StatusBadRequest, status, body)
			assert.Contains(t, []interface{}{CodeBadRequest, CodeValidationFailed}, body["code"])
		})
	}
}

func TestInvalidJSONBody(t *testing.T) {
	srv := newTestServer(t, healthyBackend())

	status, body := postJSON(t, srv.URL+"/gee-ndvi-stats-from-geojson", `{"date":`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "Invalid request")
}

func TestNoImageryIsDistinctFromBadInput(t *testing.T) {
	srv := newTestServer(t, &stubBackend{})

	status, body := getJSON(t, srv.URL+"/gee-ndvi-stats?date=2020-06-15&"+exampleBBox)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, CodeNoImagery, body["code"])
}

func TestEmptyReductionIsNoData(t *testing.T) {
	backend := healthyBackend()
	backend.stats = imagery.Stats{}
	srv := newTestServer(t, backend)

	status, body := getJSON(t, srv.URL+"/gee-ndvi-stats?date=2020-06-15&"+exampleBBox)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, CodeNoData, body["code"])
}

func TestUpstreamErrorsAreServerErrors(t *testing.T) {
	srv := newTestServer(t, &stubBackend{err: errors.New("earth engine: User memory limit exceeded. (400 INVALID_ARGUMENT)")})

	status, body := getJSON(t, srv.URL+"/gee-ndvi-stats?date=2020-06-15&"+exampleBBox)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, CodeUpstreamError, body["code"])
	assert.Contains(t, body["error"], "memory limit")
}

func TestUnknownIndexIsNotFound(t *testing.T) {
	srv := newTestServer(t, healthyBackend())

	status, body := getJSON(t, srv.URL+"/gee-evi-stats?date=2020-06-15&"+exampleBBox)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, CodeNotFound, body["code"])
	assert.Contains(t, body["error"], "ndvi, savi, nbr")
}

func TestTileURL(t *testing.T) {
	srv := newTestServer(t, healthyBackend())

	status, body := getJSON(t, srv.URL+"/gee-tile-url?date=20200615&min=0&max=0.6&palette=%23000000&palette=%2300ff00")
	require.Equal(t, http.StatusOK, status, body)

	assert.Equal(t, "NDVI", body["index"])
	assert.Contains(t, body["tileUrl"], "/tiles/{z}/{x}/{y}")
	assert.Equal(t, 0.6, body["maxValue"])
	assert.Equal(t, []interface{}{"#000000", "#00ff00"}, body["paletteUsed"])
	assert.Equal(t, "2020-06-15", body["processingDate"])
	assert.Equal(t, 6.0, body["imageCount"])
}

func TestDiffStatsAreKeyedByIndex(t *testing.T) {
	backend := healthyBackend()
	backend.stats = imagery.Stats{Mean: helpers.Ptr(-0.25), Count: 50}
	srv := newTestServer(t, backend)

	status, body := getJSON(t, srv.URL+"/gee-ndvi-diff?date1=2015-06-01&date2=2020-06-01&threshold=0.2&"+exampleBBox)
	require.Equal(t, http.StatusOK, status, body)
	assert.Contains(t, body, "ndviChangeStats")
	assert.Equal(t, true, body["deforestationDetected"])
	assert.Equal(t, 0.2, body["threshold"])

	status, body = postJSON(t, srv.URL+"/gee-nbr-diff-from-geojson", `{"date1":"2019-01-01","date2":"2020-01-01","threshold":0.3,"geometry":`+examplePolygon+`}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Contains(t, body, "nbrChangeStats")
	assert.Equal(t, false, body["deforestationDetected"])
}

func TestZonesAboveMaximumThreshold(t *testing.T) {
	backend := healthyBackend()
	backend.features = []*geojson.Feature{
		geojson.NewFeature(orb.Bound{Min: orb.Point{-75, -10}, Max: orb.Point{-74.9, -9.9}}.ToPolygon()),
	}
	srv := newTestServer(t, backend)

	status, body := getJSON(t, srv.URL+"/gee-deforestation-zones?date1=2015-06-01&date2=2020-06-01&threshold=5&"+exampleBBox)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "FeatureCollection", body["type"])
	assert.Empty(t, body["features"])

	summary, ok := body["deforestationSummary"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 0.0, summary["zoneCount"])
	assert.Equal(t, 0.0, summary["percentageAffected"])

	status, body = postJSON(t, srv.URL+"/gee-savi-change-zones-from-geojson", `{"date1":"2015-06-01","date2":"2020-06-01","geometry":`+examplePolygon+`}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Len(t, body["features"], 1)
}

func TestHistogramIsBareArray(t *testing.T) {
	backend := healthyBackend()
	backend.buckets = []imagery.Bucket{{Min: -0.1, Max: 0, Count: 5}}
	srv := newTestServer(t, backend)

	resp, err := http.Post(srv.URL+"/gee-ndvi-histogram", "application/json",
		strings.NewReader(`{"date1":"2015-06-01","date2":"2020-06-01","geometry":`+examplePolygon+`}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var buckets []map[string]float64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&buckets))
	assert.Equal(t, []map[string]float64{{"min": -0.1, "max": 0, "count": 5}}, buckets)
}

func TestLandsatDates(t *testing.T) {
	backend := healthyBackend()
	backend.scenes = []imagery.Scene{{Date: "2020-08-01", CloudCover: 3}, {Date: "2020-02-11", CloudCover: 9}}
	srv := newTestServer(t, backend)

	status, body := getJSON(t, srv.URL+"/gee-landsat-dates?year=2020&"+exampleBBox)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, []interface{}{"2020-02-11", "2020-08-01"}, body["dates"])

	status, _ = getJSON(t, srv.URL+"/gee-landsat-dates?"+exampleBBox)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestBestImageDate(t *testing.T) {
	backend := healthyBackend()
	backend.scenes = []imagery.Scene{{Date: "2020-06-10", CloudCover: 14}, {Date: "2020-06-26", CloudCover: 1.5}}
	srv := newTestServer(t, backend)

	status, body := getJSON(t, srv.URL+"/find-best-image-date?date=20200615")
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "2020-06-26", body["bestDate"])
	assert.Equal(t, 1.5, body["cloudCover"])

	status, body = postJSON(t, srv.URL+"/find-best-image-date", `{"targetDate":"2020-06-15","geometry":`+examplePolygon+`}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Len(t, body["candidateImages"], 2)
}

func TestBestImageNoneFoundIsNotAnError(t *testing.T) {
	srv := newTestServer(t, &stubBackend{})

	status, body := getJSON(t, srv.URL+"/find-best-image-date?date=2020-06-15")
	require.Equal(t, http.StatusOK, status)
	assert.Nil(t, body["bestDate"])
	assert.NotEmpty(t, body["message"])
}

func TestCloudinessInView(t *testing.T) {
	srv := newTestServer(t, healthyBackend())

	status, body := getJSON(t, srv.URL+"/gee-cloudiness-in-view?date=2020-06-15&"+exampleBBox)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, 37.46, body["cloudiness"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv := newTestServer(t, &stubBackend{})

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/gee-ndvi-stats?date=2020-06-15&"+exampleBBox, nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, "req-123")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, "req-123", resp.Header.Get(requestIDHeader))

	_, body := decodeResponse(t, resp)
	assert.Equal(t, "req-123", body["requestId"])
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, healthyBackend())

	status, body := getJSON(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "gateway_http_requests_total")
}

func TestWrongMethod(t *testing.T) {
	srv := newTestServer(t, healthyBackend())

	status, body := postJSON(t, srv.URL+"/gee-ndvi-stats", `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
	assert.Equal(t, CodeMethodNotAllowed, body["code"])
}

func TestNonFiniteNumbersAreBadRequests(t *testing.T) {
	srv := newTestServer(t, healthyBackend())

	paths := []string{
		"/gee-tile-url?date=2020-06-15&min=NaN",
		"/gee-savi-tile-url?date=2020-06-15&max=%2BInf",
		"/gee-ndvi-diff?date1=2015-06-01&date2=2020-06-01&threshold=Inf&" + exampleBBox,
		"/gee-deforestation-zones?date1=2015-06-01&date2=2020-06-01&threshold=Inf&" + exampleBBox,
		"/gee-ndvi-change-zones?date1=2015-06-01&date2=2020-06-01&minBaseline=nan&" + exampleBBox,
		"/gee-ndvi-stats?date=2020-06-15&maxCloudCover=-Inf&" + exampleBBox,
		"/gee-ndvi-stats?date=2020-06-15&minx=-Inf&miny=-10&maxx=-74&maxy=-9",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			status, body := getJSON(t, srv.URL+path)
			assert.Equal(t, http.StatusBadRequest, status, body)
			assert.Equal(t, CodeBadRequest, body["code"])
			assert.Contains(t, body["error"], "finite number")
		})
	}
}

func TestUnencodableResponseKeepsErrorBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/gee-tile-url", nil)
	req = req.WithContext(logging.ContextWithRequestID(req.Context(), "req-456"))
	rec := httptest.NewRecorder()

	writeJSON(rec, req, http.StatusOK, map[string]float64{"minValue": math.NaN()})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	assert.Equal(t, CodeUpstreamError, body["code"])
	assert.Equal(t, "req-456", body["requestId"])
	assert.Contains(t, body["error"], "encode response")
}
