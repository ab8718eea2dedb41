package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/agrigate/core/accounts"
	"github.com/relabs-tech/agrigate/core/config"
	"github.com/relabs-tech/agrigate/core/external"
	"github.com/relabs-tech/agrigate/core/notify"
	"github.com/relabs-tech/agrigate/core/schema"
)

func testGateway(t *testing.T, modify func(*config.Service)) *Gateway {
	t.Helper()
	validator, err := schema.Requests()
	require.NoError(t, err)
	cfg := &config.Service{
		ExternalAPIBaseURL: "http://registry.invalid",
		ExternalAPITimeout: time.Second,
		JWTSecret:          "secret",
		TokenValidity:      time.Hour,
		BcryptCost:         4,
		Accounts:           config.AccountBackendLocal,
		WeatherAPIURL:      "http://weather.invalid",
		WeatherTimezone:    "UTC",
		CORSAllowedOrigins: "*",
	}
	if modify != nil {
		modify(cfg)
	}
	return &Gateway{
		Config:    cfg,
		External:  external.New(external.Config{BaseURL: cfg.ExternalAPIBaseURL, Timeout: time.Second}),
		Notifier:  notify.Nop{},
		Validator: validator,
	}
}

func TestAccountStore(t *testing.T) {
	g := testGateway(t, nil)
	assert.IsType(t, &accounts.SQLStore{}, g.AccountStore())

	g = testGateway(t, func(cfg *config.Service) { cfg.Accounts = config.AccountBackendRemote })
	assert.IsType(t, &accounts.RemoteStore{}, g.AccountStore())
}

func TestHandler_ClassifierOptional(t *testing.T) {
	serve := func(h http.Handler, method, path string) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec.Code
	}

	h, err := testGateway(t, nil).Handler()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/version"))
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodPost, "/api/classify/species"))

	h, err = testGateway(t, func(cfg *config.Service) { cfg.ClassifierURL = "http://classifier.invalid" }).Handler()
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodPost, "/api/classify/species"))
}

func TestHandler_InvalidTimezone(t *testing.T) {
	g := testGateway(t, func(cfg *config.Service) { cfg.WeatherTimezone = "Nowhere/Special" })
	_, err := g.Handler()
	assert.Error(t, err)
}
