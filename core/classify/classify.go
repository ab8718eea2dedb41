// Package classify forwards plant images to the image classification server.
package classify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/agrigate/core/logger"
)

// Model is a prediction endpoint of the classification server
type Model string

// the supported models
const (
	Species Model = "species"
	Health  Model = "health"
)

const maxPredictionSize = 1 << 20

// Client talks to the classification server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client for the server at baseURL
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: &http.Client{Timeout: timeout}}
}

// Predict posts the base64 encoded image to the model and returns the server's JSON answer
func (c *Client) Predict(ctx context.Context, model Model, image string) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]string{"image": image})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict/"+string(model), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if requestID := logger.RequestIDFromContext(ctx); requestID != "" {
		req.Header.Set(logger.RequestIDHeader, requestID)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s prediction: %w", model, err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(io.LimitReader(res.Body, maxPredictionSize))
	if err != nil {
		return nil, fmt.Errorf("%s prediction: cannot read answer: %w", model, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("%s prediction: status %d: %s", model, res.StatusCode, data)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s prediction: answer is not JSON", model)
	}
	return json.RawMessage(data), nil
}
