// Package config holds the environment driven configuration of the gateway.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"golang.org/x/crypto/bcrypt"
)

// AccountBackend selects where accounts are stored
type AccountBackend string

// all supported account backends
const (
	AccountBackendLocal  AccountBackend = "local"
	AccountBackendRemote AccountBackend = "remote"
)

// Service holds the configuration for the gateway
//
// use POSTGRES="host=localhost port=5432 user=postgres dbname=postgres sslmode=disable"
// and POSTGRES_PASSWORD="docker"
type Service struct {
	Port             int    `env:"PORT,default=5000" description:"the port the gateway listens on"`
	Postgres         string `env:"POSTGRES,required" description:"the connection string for the Postgres DB without password"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" description:"password to the Postgres DB"`
	PostgresSchema   string `env:"POSTGRES_SCHEMA,default=public" description:"schema holding the gateway's tables"`

	ExternalAPIBaseURL            string        `env:"EXTERNAL_API_BASE_URL,required" description:"base URL of the external sensor registry"`
	ExternalAPIInsecureSkipVerify bool          `env:"EXTERNAL_API_INSECURE_SKIP_VERIFY,default=false" description:"disable TLS certificate verification for the external API"`
	ExternalAPITimeout            time.Duration `env:"EXTERNAL_API_TIMEOUT,default=15s" description:"timeout of every external API call"`

	JWTSecret     string         `env:"JWT_SECRET,required" description:"secret used to sign access tokens"`
	TokenValidity time.Duration  `env:"TOKEN_VALIDITY,default=1h" description:"lifetime of an access token"`
	BcryptCost    int            `env:"BCRYPT_COST,default=10" description:"bcrypt work factor for password hashes"`
	Accounts      AccountBackend `env:"ACCOUNT_BACKEND,default=local" description:"local or remote"`

	WeatherAPIURL     string  `env:"WEATHER_API_URL,default=https://api.open-meteo.com/v1/forecast" description:"forecast endpoint"`
	WeatherTimezone   string  `env:"WEATHER_TIMEZONE,default=Asia/Singapore" description:"timezone of the hourly forecast"`
	WeatherDefaultLat float64 `env:"WEATHER_DEFAULT_LAT,default=1.3521" description:"latitude used when none is requested"`
	WeatherDefaultLon float64 `env:"WEATHER_DEFAULT_LON,default=103.8198" description:"longitude used when none is requested"`

	ClassifierURL string `env:"CLASSIFIER_URL" description:"image classification server, disabled when empty"`

	SyncWorkers int `env:"SYNC_WORKERS,default=1" description:"number of concurrent inserts during synchronization"`

	ArchiveDriver    string `env:"ARCHIVE_DRIVER" description:"Local, AWSS3 or empty"`
	ArchiveLocalPath string `env:"ARCHIVE_LOCAL_PATH" description:"base folder of the Local archive"`
	ArchiveS3Bucket  string `env:"ARCHIVE_S3_BUCKET" description:"bucket of the AWSS3 archive"`
	ArchiveS3Prefix  string `env:"ARCHIVE_S3_PREFIX" description:"key prefix of the AWSS3 archive"`
	AWSRegion        string `env:"AWS_REGION" description:"AWS region"`
	AWSAccessKeyID   string `env:"AWS_ACCESS_KEY_ID" description:"AWS access key id"`
	AWSSecretKey     string `env:"AWS_SECRET_ACCESS_KEY" description:"AWS secret access key"`

	KafkaBrokers string `env:"KAFKA_BROKERS" description:"comma separated Kafka brokers, disabled when empty"`
	KafkaTopic   string `env:"KAFKA_TOPIC,default=agrigate.sync" description:"topic for synchronization events"`

	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS,default=*" description:"comma separated allowed origins"`
	LogLevel           string `env:"LOG_LEVEL,default=info" description:"log level"`
}

// Load decodes the configuration from the environment and validates it
func Load() (*Service, error) {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		return nil, fmt.Errorf("cannot decode configuration: %w", err)
	}
	if err := service.Validate(); err != nil {
		return nil, err
	}
	return service, nil
}

// Validate checks values envdecode cannot check
func (s *Service) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", s.Port)
	}
	if _, err := url.ParseRequestURI(s.ExternalAPIBaseURL); err != nil {
		return fmt.Errorf("invalid EXTERNAL_API_BASE_URL: %w", err)
	}
	if _, err := url.ParseRequestURI(s.WeatherAPIURL); err != nil {
		return fmt.Errorf("invalid WEATHER_API_URL: %w", err)
	}
	if s.BcryptCost < bcrypt.MinCost || s.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if s.TokenValidity <= 0 {
		return fmt.Errorf("TOKEN_VALIDITY must be positive")
	}
	if s.ExternalAPITimeout <= 0 {
		return fmt.Errorf("EXTERNAL_API_TIMEOUT must be positive")
	}
	if s.SyncWorkers < 1 {
		return fmt.Errorf("SYNC_WORKERS must be at least 1")
	}
	switch s.Accounts {
	case AccountBackendLocal, AccountBackendRemote:
	default:
		return fmt.Errorf("unknown ACCOUNT_BACKEND %q", s.Accounts)
	}
	switch s.ArchiveDriver {
	case "":
	case "Local":
		if s.ArchiveLocalPath == "" {
			return fmt.Errorf("ARCHIVE_LOCAL_PATH is required for the Local archive")
		}
	case "AWSS3":
		if s.ArchiveS3Bucket == "" {
			return fmt.Errorf("ARCHIVE_S3_BUCKET is required for the AWSS3 archive")
		}
	default:
		return fmt.Errorf("unknown ARCHIVE_DRIVER %q", s.ArchiveDriver)
	}
	return nil
}

// Addr returns the listen address
func (s *Service) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// Brokers returns the configured Kafka brokers
func (s *Service) Brokers() []string {
	return splitList(s.KafkaBrokers)
}

// AllowedOrigins returns the configured CORS origins
func (s *Service) AllowedOrigins() []string {
	return splitList(s.CORSAllowedOrigins)
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// String returns the configuration with secrets masked
func (s Service) String() string {
	mask := func(v string) string {
		if v == "" {
			return ""
		}
		return "****"
	}
	return fmt.Sprintf("port=%d external=%s insecure=%t accounts=%s weather=%s classifier=%s workers=%d archive=%s kafka=%s jwt=%s postgres_password=%s aws_secret=%s",
		s.Port, s.ExternalAPIBaseURL, s.ExternalAPIInsecureSkipVerify, s.Accounts, s.WeatherAPIURL,
		s.ClassifierURL, s.SyncWorkers, s.ArchiveDriver, s.KafkaBrokers,
		mask(s.JWTSecret), mask(s.PostgresPassword), mask(s.AWSSecretKey))
}
