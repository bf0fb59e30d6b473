package earthengine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/sozercan/gee-gateway/internal/config"
	"github.com/sozercan/gee-gateway/internal/logging"
	"github.com/sozercan/gee-gateway/internal/metrics"
)

// Scope is the OAuth2 scope required by the Earth Engine API.
const Scope = "https://www.googleapis.com/auth/earthengine"

const breakerName = "earthengine-api"

// APIError is the error envelope returned by the REST API.
type APIError struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("earth engine: %s (%d %s)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("earth engine: %s (%d)", e.Message, e.Code)
}

// clientError reports whether err is the caller's fault rather than the service's.
func clientError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500
}

// Client talks to the Earth Engine REST API on behalf of one cloud project.
type Client struct {
	httpClient *http.Client
	baseURL    string
	project    string
	cfg        config.EarthEngineConfig
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

type Option func(*Client)

// WithHTTPClient replaces the authenticated client. No credentials are looked up.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient builds an authenticated client. ctx must outlive the client. Credentials come from
// cfg.CredentialsFile when set, otherwise from Application Default Credentials.
// A token is fetched up front so a broken setup fails at startup.
func NewClient(ctx context.Context, cfg config.EarthEngineConfig, opts ...Option) (*Client, error) {
	logging.Info().Str("endpoint", cfg.Endpoint).Str("project", cfg.Project).Msg("Creating Earth Engine client")
	if cfg.Project == "" {
		return nil, errors.New("earth engine project cannot be empty")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("earth engine endpoint cannot be empty")
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.APIVersion,
		project: cfg.Project,
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		hc, err := authenticatedClient(ctx, cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		c.httpClient = hc
	}

	if cfg.BreakerEnabled {
		c.breaker = newBreaker(cfg)
	}
	return c, nil
}

func authenticatedClient(ctx context.Context, credentialsFile string) (*http.Client, error) {
	var (
		creds *google.Credentials
		err   error
	)
	if credentialsFile != "" {
		data, readErr := os.ReadFile(credentialsFile)
		if readErr != nil {
			return nil, fmt.Errorf("read credentials: %w", readErr)
		}
		creds, err = google.CredentialsFromJSON(ctx, data, Scope)
	} else {
		creds, err = google.FindDefaultCredentials(ctx, Scope)
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	if _, err := creds.TokenSource.Token(); err != nil {
		return nil, fmt.Errorf("fetch access token: %w", err)
	}
	return oauth2.NewClient(ctx, creds.TokenSource), nil
}

func newBreaker(cfg config.EarthEngineConfig) *gobreaker.CircuitBreaker[[]byte] {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= cfg.BreakerFailureRate {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", ratio).Msg("Opening Earth Engine circuit")
				return true
			}
			return false
		},
		IsSuccessful: func(err error) bool {
			return err == nil || clientError(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func (c *Client) projectPath(method string) string {
	return fmt.Sprintf("%s/projects/%s/%s", c.baseURL, c.project, method)
}

// TileURL expands a map name returned by CreateMap into an XYZ template.
func (c *Client) TileURL(mapName string) string {
	return fmt.Sprintf("%s/%s/tiles/{z}/{x}/{y}", c.baseURL, mapName)
}

// post sends body to url and decodes the response into out.
func (c *Client) post(ctx context.Context, method, url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	data, err := c.execute(func() ([]byte, error) {
		return c.send(ctx, url, payload)
	})
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordRemoteCall(method, "rejected", elapsed)
		logging.Ctx(ctx).Warn().Err(err).Str("method", method).Msg("Earth Engine call rejected")
		return fmt.Errorf("earth engine unavailable: %w", err)
	case err != nil:
		metrics.RecordRemoteCall(method, "failure", elapsed)
		logging.Ctx(ctx).Error().Err(err).Str("method", method).Dur("duration", elapsed).Msg("Earth Engine call failed")
		return err
	}

	metrics.RecordRemoteCall(method, "success", elapsed)
	logging.Ctx(ctx).Debug().Str("method", method).Dur("duration", elapsed).Msg("Earth Engine call completed")

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}

func (c *Client) execute(fn func() ([]byte, error)) ([]byte, error) {
	if c.breaker == nil {
		return fn()
	}
	return c.breaker.Execute(fn)
}

func (c *Client) send(ctx context.Context, url string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, decodeError(resp.StatusCode, data)
	}
	return data, nil
}

func decodeError(status int, data []byte) error {
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error == nil {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &APIError{Code: status, Message: msg}
	}
	if envelope.Error.Code == 0 {
		envelope.Error.Code = status
	}
	return envelope.Error
}

// ComputeValue evaluates expr and decodes its result into out.
func (c *Client) ComputeValue(ctx context.Context, expr *Expression, out interface{}) error {
	var resp struct {
		Result json.RawMessage `json:"result"`
	}
	if err := c.post(ctx, "value:compute", c.projectPath("value:compute"), map[string]interface{}{"expression": expr}, &resp); err != nil {
		return err
	}
	if len(resp.Result) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Result, out)
}

// CreateMap registers expr as a PNG map and returns the map name.
func (c *Client) CreateMap(ctx context.Context, expr *Expression) (string, error) {
	var resp struct {
		Name string `json:"name"`
	}
	body := map[string]interface{}{"expression": expr, "fileFormat": "PNG"}
	if err := c.post(ctx, "maps", c.projectPath("maps"), body, &resp); err != nil {
		return "", err
	}
	if resp.Name == "" {
		return "", errors.New("earth engine returned a map without a name")
	}
	return resp.Name, nil
}

// FeaturePage is one page of table:computeFeatures.
type FeaturePage struct {
	Type          string            `json:"type"`
	Features      []json.RawMessage `json:"features"`
	NextPageToken string            `json:"nextPageToken"`
}

// ComputeFeatures evaluates a FeatureCollection expression, following page
// tokens until limit features are collected or the service runs out. An empty
// page ends the listing even when it carries a token.
func (c *Client) ComputeFeatures(ctx context.Context, expr *Expression, limit int) ([]json.RawMessage, error) {
	var features []json.RawMessage
	token := ""
	for {
		body := map[string]interface{}{"expression": expr}
		if remaining := limit - len(features); remaining > 0 {
			body["pageSize"] = remaining
		}
		if token != "" {
			body["pageToken"] = token
		}

		var page FeaturePage
		if err := c.post(ctx, "table:computeFeatures", c.projectPath("table:computeFeatures"), body, &page); err != nil {
			return nil, err
		}
		features = append(features, page.Features...)

		if page.NextPageToken == "" || len(page.Features) == 0 || len(features) >= limit {
			break
		}
		token = page.NextPageToken
	}

	if len(features) > limit {
		features = features[:limit]
	}
	return features, nil
}
