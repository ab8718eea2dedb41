// Package external is the HTTP client of the external sensor, farm and user registry.
//
// Readings and farms are passed through as raw JSON documents so that fields the
// gateway does not know about reach the caller unchanged.
package external

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/agrigate/core/logger"
)

// ErrNotFound matches every *StatusError with status 404
var ErrNotFound = errors.New("not found")

const maxResponseSize = 32 << 20

// endpoints of the external registry
const (
	pathReadings         = "/sensorReadings"
	pathReadingsBySensor = "/sensorReadings/sensor/"
	pathLatestReading    = "/sensorReadings/latest/"
	pathReadingsByPlant  = "/sensorReadings/plant/"
	pathAddSensorReading = "/SensorReadings/AddSensorReading"
	pathUsers            = "/Users/GetAllUsers"
	pathAddUser          = "/Users/AddUser"
	pathFarms            = "/Farms/GetAllFarms"
)

// StatusError is returned when the registry answers with a non 2xx status
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Is makes errors.Is(err, ErrNotFound) work for 404 answers
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Config configures the client
type Config struct {
	BaseURL            string
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// Client talks to the external registry
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client for cfg. Certificates are verified unless InsecureSkipVerify is set.
func New(cfg Config) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		logger.Default().Warnln("TLS certificate verification of the external API is disabled")
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS12} //nolint:gosec
	}
	return NewWithHTTPClient(cfg.BaseURL, &http.Client{Timeout: cfg.Timeout, Transport: transport})
}

// NewWithHTTPClient returns a client using httpClient
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// ListReadings returns every reading known to the registry
func (c *Client) ListReadings(ctx context.Context) ([]json.RawMessage, error) {
	var readings []json.RawMessage
	err := c.do(ctx, http.MethodGet, pathReadings, nil, &readings)
	return readings, err
}

// ReadingsBySensor returns the readings of one sensor. An unknown sensor yields an empty list.
func (c *Client) ReadingsBySensor(ctx context.Context, sensorID string) ([]json.RawMessage, error) {
	return c.listOrEmpty(ctx, pathReadingsBySensor+url.PathEscape(sensorID))
}

// ReadingsByPlant returns the readings of one plant. An unknown plant yields an empty list.
func (c *Client) ReadingsByPlant(ctx context.Context, plantID string) ([]json.RawMessage, error) {
	return c.listOrEmpty(ctx, pathReadingsByPlant+url.PathEscape(plantID))
}

// LatestReading returns the newest reading of a sensor, or nil if there is none
func (c *Client) LatestReading(ctx context.Context, sensorID string) (json.RawMessage, error) {
	var reading json.RawMessage
	err := c.do(ctx, http.MethodGet, pathLatestReading+url.PathEscape(sensorID), nil, &reading)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if isEmpty(reading) {
		return nil, nil
	}
	return reading, nil
}

// CreateReading creates a reading and returns the registry's answer
func (c *Client) CreateReading(ctx context.Context, reading json.RawMessage) (json.RawMessage, error) {
	var created json.RawMessage
	err := c.do(ctx, http.MethodPost, pathReadings, reading, &created)
	return created, err
}

// AddSensorReading forwards a manually entered reading
func (c *Client) AddSensorReading(ctx context.Context, reading json.RawMessage) error {
	return c.do(ctx, http.MethodPost, pathAddSensorReading, reading, nil)
}

// ListFarms returns the farms known to the registry
func (c *Client) ListFarms(ctx context.Context) ([]json.RawMessage, error) {
	var farms []json.RawMessage
	err := c.do(ctx, http.MethodGet, pathFarms, nil, &farms)
	return farms, err
}

func (c *Client) listOrEmpty(ctx context.Context, path string) ([]json.RawMessage, error) {
	var list []json.RawMessage
	err := c.do(ctx, http.MethodGet, path, nil, &list)
	if errors.Is(err, ErrNotFound) {
		return []json.RawMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []json.RawMessage{}
	}
	return list, nil
}

// do sends body (if any) and decodes the answer into result (if any). body may be
// a json.RawMessage which is sent verbatim.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	rlog := logger.FromContext(ctx)

	var reader io.Reader
	if body != nil {
		data, ok := body.(json.RawMessage)
		if !ok {
			var err error
			if data, err = json.Marshal(body); err != nil {
				return fmt.Errorf("cannot encode request for %s: %w", path, err)
			}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("cannot build request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID := logger.RequestIDFromContext(ctx); requestID != "" {
		req.Header.Set(logger.RequestIDHeader, requestID)
	}

	started := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%s %s: cannot read response: %w", method, path, err)
	}
	rlog.Debugf("external %s %s -> %d in %s", method, path, res.StatusCode, time.Since(started))

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &StatusError{Method: method, Path: path, StatusCode: res.StatusCode, Body: truncate(string(data), 512)}
	}
	if result == nil || isEmpty(data) {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("%s %s: cannot decode response: %w", method, path, err)
	}
	return nil
}

func isEmpty(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
