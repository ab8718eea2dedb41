package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("POSTGRES", "host=localhost port=5432 user=postgres dbname=postgres sslmode=disable")
	t.Setenv("EXTERNAL_API_BASE_URL", "https://sensors.example.com/api")
	t.Setenv("JWT_SECRET", "s3cret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5000, s.Port)
	assert.Equal(t, ":5000", s.Addr())
	assert.False(t, s.ExternalAPIInsecureSkipVerify)
	assert.Equal(t, 15*time.Second, s.ExternalAPITimeout)
	assert.Equal(t, time.Hour, s.TokenValidity)
	assert.Equal(t, 10, s.BcryptCost)
	assert.Equal(t, AccountBackendLocal, s.Accounts)
	assert.Equal(t, "https://api.open-meteo.com/v1/forecast", s.WeatherAPIURL)
	assert.Equal(t, "Asia/Singapore", s.WeatherTimezone)
	assert.InDelta(t, 1.3521, s.WeatherDefaultLat, 1e-9)
	assert.InDelta(t, 103.8198, s.WeatherDefaultLon, 1e-9)
	assert.Equal(t, 1, s.SyncWorkers)
	assert.Equal(t, []string{"*"}, s.AllowedOrigins())
	assert.Empty(t, s.Brokers())
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("POSTGRES", "")
	t.Setenv("EXTERNAL_API_BASE_URL", "https://sensors.example.com")
	t.Setenv("JWT_SECRET", "s3cret")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "8080")
	t.Setenv("ACCOUNT_BACKEND", "remote")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("EXTERNAL_API_INSECURE_SKIP_VERIFY", "true")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, s.Port)
	assert.Equal(t, AccountBackendRemote, s.Accounts)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, s.Brokers())
	assert.True(t, s.ExternalAPIInsecureSkipVerify)
}

func TestValidate(t *testing.T) {
	valid := func() Service {
		return Service{
			Port:               5000,
			ExternalAPIBaseURL: "https://sensors.example.com",
			WeatherAPIURL:      "https://api.open-meteo.com/v1/forecast",
			JWTSecret:          "x",
			TokenValidity:      time.Hour,
			ExternalAPITimeout: time.Second,
			BcryptCost:         10,
			Accounts:           AccountBackendLocal,
			SyncWorkers:        1,
		}
	}
	s := valid()
	assert.NoError(t, s.Validate())

	s = valid()
	s.BcryptCost = 2
	assert.Error(t, s.Validate())

	s = valid()
	s.Accounts = "ldap"
	assert.Error(t, s.Validate())

	s = valid()
	s.ArchiveDriver = "Local"
	assert.Error(t, s.Validate())
	s.ArchiveLocalPath = "/tmp/archive"
	assert.NoError(t, s.Validate())

	s = valid()
	s.SyncWorkers = 0
	assert.Error(t, s.Validate())
}

func TestString_MasksSecrets(t *testing.T) {
	s := Service{JWTSecret: "topsecret", PostgresPassword: "docker"}
	str := s.String()
	assert.NotContains(t, str, "topsecret")
	assert.NotContains(t, str, "docker")
	assert.Contains(t, str, "jwt=****")
}
