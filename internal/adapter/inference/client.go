// Package inference calls a remote congestion model over HTTP.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/parking-recommender/internal/model"
	"github.com/couchcryptid/parking-recommender/internal/observability"
	"github.com/sony/gobreaker"
)

var _ model.Predictor = (*Client)(nil)

// tripAfter consecutive failures open the breaker.
const tripAfter = 3

var (
	// ErrCircuitOpen is returned without contacting the server while the
	// breaker is open or half-open and saturated.
	ErrCircuitOpen = errors.New("inference circuit open")

	errServerStatus = errors.New("inference server error")
)

// Client implements model.Predictor against a remote inference server.
// It POSTs the encoded vector to {baseURL}/v1/predict.
type Client struct {
	baseURL    string
	version    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates an inference client. The version is the bundle version
// sent with every request so the server can reject a mismatched model.
func NewClient(baseURL, version string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		version:    version,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    metrics,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "inference",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= tripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

type predictRequest struct {
	ModelVersion string    `json:"model_version"`
	Columns      []string  `json:"columns"`
	Values       []float64 `json:"values"`
}

type predictResponse struct {
	Congestion *float64 `json:"congestion"`
}

// Predict sends one vector for inference. Client-side 4xx responses are
// returned as errors but do not count against the breaker.
func (c *Client) Predict(ctx context.Context, v model.Vector) (float64, error) {
	start := time.Now()
	defer func() { c.metrics.InferenceDuration.Observe(time.Since(start).Seconds()) }()

	body, err := json.Marshal(predictRequest{ModelVersion: c.version, Columns: v.Columns, Values: v.Values})
	if err != nil {
		return 0, fmt.Errorf("encode vector: %w", err)
	}

	var clientErr error
	result, err := c.breaker.Execute(func() (interface{}, error) {
		y, err := c.do(ctx, body)
		var se *statusError
		if errors.As(err, &se) && se.code < http.StatusInternalServerError {
			clientErr = err
			return 0.0, nil
		}
		return y, err
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.metrics.InferenceRequests.WithLabelValues("rejected").Inc()
		return 0, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	case err != nil:
		c.metrics.InferenceRequests.WithLabelValues("error").Inc()
		return 0, err
	case clientErr != nil:
		c.metrics.InferenceRequests.WithLabelValues("error").Inc()
		return 0, clientErr
	}
	c.metrics.InferenceRequests.WithLabelValues("success").Inc()
	return result.(float64), nil
}

// State reports the breaker state for diagnostics.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("inference API error: status %d: %s", e.code, e.body)
}

func (e *statusError) Unwrap() error {
	if e.code >= http.StatusInternalServerError {
		return errServerStatus
	}
	return nil
}

func (c *Client) do(ctx context.Context, body []byte) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/predict", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	if out.Congestion == nil {
		return 0, errors.New("decode response: missing congestion")
	}
	return *out.Congestion, nil
}
