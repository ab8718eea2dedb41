// Package weather reads the hourly forecast of Open-Meteo and reduces it to the
// values of the current hour, formatted for display.
package weather

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // forecasts are requested for named zones

	"github.com/goccy/go-json"

	"github.com/relabs-tech/agrigate/core/logger"
)

// ErrNoHourlyData is returned when the forecast carries no hourly series
var ErrNoHourlyData = errors.New("no hourly data available from the forecast API")

const (
	notAvailable  = "N/A"
	hourlyFields  = "surface_pressure,uv_index,temperature_2m,relative_humidity_2m,precipitation_probability,wind_speed_10m"
	hourPrefixFmt = "2006-01-02T15"
	maxBodySize   = 8 << 20
)

// Config configures the client
type Config struct {
	URL      string
	Timezone string
	Timeout  time.Duration
}

// Snapshot is the weather of the current hour
type Snapshot struct {
	Temperature              string `json:"temperature"`
	Humidity                 string `json:"humidity"`
	Pressure                 string `json:"pressure"`
	UVIndex                  string `json:"uvIndex"`
	PrecipitationProbability string `json:"precipitationProbability"`
	WindSpeed                string `json:"windSpeed"`
	Time                     string `json:"time"`
}

type forecast struct {
	Hourly struct {
		Time                     []string   `json:"time"`
		Temperature              []*float64 `json:"temperature_2m"`
		Humidity                 []*float64 `json:"relative_humidity_2m"`
		Pressure                 []*float64 `json:"surface_pressure"`
		UVIndex                  []*float64 `json:"uv_index"`
		PrecipitationProbability []*float64 `json:"precipitation_probability"`
		WindSpeed                []*float64 `json:"wind_speed_10m"`
	} `json:"hourly"`
}

// Client reads forecasts
type Client struct {
	url        string
	timezone   string
	location   *time.Location
	httpClient *http.Client
	now        func() time.Time
}

// New returns a client. The timezone must be a valid IANA name.
func New(cfg Config) (*Client, error) {
	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid weather timezone %q: %w", cfg.Timezone, err)
	}
	return &Client{
		url:        cfg.URL,
		timezone:   cfg.Timezone,
		location:   location,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}, nil
}

// Current returns the snapshot of the current hour at lat/lon. When the current hour
// is not part of the series the first hour is used.
func (c *Client) Current(ctx context.Context, lat, lon float64) (*Snapshot, error) {
	rlog := logger.FromContext(ctx)

	f, err := c.fetch(ctx, lat, lon)
	if err != nil {
		return nil, err
	}
	hours := f.Hourly.Time
	if len(hours) == 0 {
		return nil, ErrNoHourlyData
	}

	prefix := c.now().In(c.location).Format(hourPrefixFmt)
	index := -1
	for i, h := range hours {
		if strings.HasPrefix(h, prefix) {
			index = i
			break
		}
	}
	if index < 0 {
		rlog.Warnf("hour %s not in forecast, using first hourly data point %s", prefix, hours[0])
		index = 0
	}

	h := f.Hourly
	return &Snapshot{
		Temperature:              format(h.Temperature, index, "°C"),
		Humidity:                 format(h.Humidity, index, "%"),
		Pressure:                 format(h.Pressure, index, " hPa"),
		UVIndex:                  format(h.UVIndex, index, ""),
		PrecipitationProbability: format(h.PrecipitationProbability, index, "%"),
		WindSpeed:                format(h.WindSpeed, index, " km/h"),
		Time:                     hours[index],
	}, nil
}

func (c *Client) fetch(ctx context.Context, lat, lon float64) (*forecast, error) {
	query := url.Values{}
	query.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	query.Set("hourly", hourlyFields)
	query.Set("timezone", c.timezone)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forecast request failed: %w", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("cannot read forecast: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("forecast API answered %d: %s", res.StatusCode, body)
	}
	var f forecast
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, fmt.Errorf("cannot decode forecast: %w", err)
	}
	return &f, nil
}

func format(series []*float64, index int, unit string) string {
	if index >= len(series) || series[index] == nil {
		return notAvailable
	}
	return strconv.FormatFloat(*series[index], 'f', -1, 64) + unit
}
