package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sozercan/gee-gateway/apimodels"
	"github.com/sozercan/gee-gateway/internal/indices"
	"github.com/sozercan/gee-gateway/internal/logging"
	"github.com/sozercan/gee-gateway/internal/validation"
)

type indexHandler func(w http.ResponseWriter, r *http.Request, def indices.Definition)

// withIndex resolves the index from fixed or, when fixed is empty, from the
// {index} route parameter. Unknown indices are 404.
func withIndex(fixed string, h indexHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := fixed
		if name == "" {
			name = chi.URLParam(r, "index")
		}
		def, ok := indices.Lookup(name)
		if !ok {
			writeErrorCode(w, r, http.StatusNotFound, CodeNotFound,
				fmt.Sprintf("unknown index %q, expected one of: %s", name, strings.Join(indices.Names(), ", ")))
			return
		}
		h(w, r, def)
	}
}

// respond validates req, runs the operation and writes its result. A non-nil
// err short-circuits with the matching error response.
func respond[T any](w http.ResponseWriter, r *http.Request, req *T, err error, run func(ctx context.Context, req T) (interface{}, error)) {
	if err == nil {
		err = validation.ValidateStruct(req)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	logging.Ctx(r.Context()).Debug().Interface("request", req).Msg("Received analysis request")

	result, err := run(r.Context(), *req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func (s *Server) handleTile(w http.ResponseWriter, r *http.Request, def indices.Definition) {
	req, err := tileRequestFromQuery(r.URL.Query())
	respond(w, r, &req, err, func(ctx context.Context, req apimodels.TileRequest) (interface{}, error) {
		return s.analyzer.Tile(ctx, def, req)
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, def indices.Definition) {
	var (
		req apimodels.StatsRequest
		err error
	)
	if r.Method == http.MethodPost {
		err = decodeBody(w, r, &req)
	} else {
		req, err = statsRequestFromQuery(r.URL.Query())
	}
	respond(w, r, &req, err, func(ctx context.Context, req apimodels.StatsRequest) (interface{}, error) {
		return s.analyzer.Stats(ctx, def, req)
	})
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request, def indices.Definition) {
	var (
		req apimodels.DiffRequest
		err error
	)
	if r.Method == http.MethodPost {
		err = decodeBody(w, r, &req)
	} else {
		req, err = diffRequestFromQuery(r.URL.Query())
	}
	respond(w, r, &req, err, func(ctx context.Context, req apimodels.DiffRequest) (interface{}, error) {
		return s.analyzer.Diff(ctx, def, req)
	})
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request, def indices.Definition) {
	var (
		req apimodels.ZonesRequest
		err error
	)
	if r.Method == http.MethodPost {
		err = decodeBody(w, r, &req)
	} else {
		req, err = zonesRequestFromQuery(r.URL.Query())
	}
	respond(w, r, &req, err, func(ctx context.Context, req apimodels.ZonesRequest) (interface{}, error) {
		return s.analyzer.Zones(ctx, def, req)
	})
}

func (s *Server) handleHistogram(w http.ResponseWriter, r *http.Request, def indices.Definition) {
	var req apimodels.HistogramRequest
	err := decodeBody(w, r, &req)
	respond(w, r, &req, err, func(ctx context.Context, req apimodels.HistogramRequest) (interface{}, error) {
		return s.analyzer.Histogram(ctx, def, req)
	})
}

func (s *Server) handleDates(w http.ResponseWriter, r *http.Request) {
	req, err := datesRequestFromQuery(r.URL.Query())
	respond(w, r, &req, err, func(ctx context.Context, req apimodels.DatesRequest) (interface{}, error) {
		return s.analyzer.Dates(ctx, req)
	})
}

func (s *Server) handleBestImage(w http.ResponseWriter, r *http.Request) {
	var (
		req apimodels.BestImageRequest
		err error
	)
	if r.Method == http.MethodPost {
		err = decodeBody(w, r, &req)
	} else {
		req, err = bestImageRequestFromQuery(r.URL.Query())
	}
	respond(w, r, &req, err, func(ctx context.Context, req apimodels.BestImageRequest) (interface{}, error) {
		return s.analyzer.BestImage(ctx, req)
	})
}

func (s *Server) handleCloudiness(w http.ResponseWriter, r *http.Request) {
	req, err := cloudinessRequestFromQuery(r.URL.Query())
	respond(w, r, &req, err, func(ctx context.Context, req apimodels.CloudinessRequest) (interface{}, error) {
		return s.analyzer.Cloudiness(ctx, req)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, apimodels.HealthResponse{Status: "ok"})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeErrorCode(w, r, http.StatusNotFound, CodeNotFound, fmt.Sprintf("no route for %s", r.URL.Path))
}

func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeErrorCode(w, r, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed")
}
