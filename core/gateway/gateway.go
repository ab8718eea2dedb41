// Package gateway wires the components of the gateway from its configuration.
// It is shared by the HTTP service and the scheduled synchronization.
package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/agrigate/core/access"
	"github.com/relabs-tech/agrigate/core/accounts"
	"github.com/relabs-tech/agrigate/core/api"
	"github.com/relabs-tech/agrigate/core/archive"
	"github.com/relabs-tech/agrigate/core/catalog"
	"github.com/relabs-tech/agrigate/core/classify"
	"github.com/relabs-tech/agrigate/core/config"
	"github.com/relabs-tech/agrigate/core/csql"
	"github.com/relabs-tech/agrigate/core/external"
	"github.com/relabs-tech/agrigate/core/logger"
	"github.com/relabs-tech/agrigate/core/notify"
	"github.com/relabs-tech/agrigate/core/readings"
	"github.com/relabs-tech/agrigate/core/registry"
	"github.com/relabs-tech/agrigate/core/schema"
	"github.com/relabs-tech/agrigate/core/weather"
)

// Gateway holds the wired components
type Gateway struct {
	Config    *config.Service
	DB        *csql.DB
	External  *external.Client
	Readings  *readings.Repository
	Syncer    *readings.Syncer
	Notifier  notify.Notifier
	Validator *schema.Validator
}

// Open connects to the database, applies the migrations and wires the synchronization.
// The caller must Close the gateway.
func Open(ctx context.Context, cfg *config.Service) (*Gateway, error) {
	validator, err := schema.Requests()
	if err != nil {
		return nil, fmt.Errorf("cannot load request schemas: %w", err)
	}

	db, err := csql.OpenWithSchema(ctx, cfg.Postgres, cfg.PostgresPassword, cfg.PostgresSchema)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	arch, err := archive.New(ctx, archive.Configuration{
		DriverType:         archive.DriverType(cfg.ArchiveDriver),
		LocalConfiguration: &archive.LocalConfiguration{BasePath: cfg.ArchiveLocalPath},
		S3Configuration: &archive.S3Configuration{
			AccessID:      cfg.AWSAccessKeyID,
			AccessKey:     cfg.AWSSecretKey,
			AWSBucketName: cfg.ArchiveS3Bucket,
			AWSRegion:     cfg.AWSRegion,
			KeyPrefix:     cfg.ArchiveS3Prefix,
		},
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot create archive: %w", err)
	}

	var notifier notify.Notifier = notify.Nop{}
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		notifier = notify.NewKafka(brokers, cfg.KafkaTopic)
	}

	ext := external.New(external.Config{
		BaseURL:            cfg.ExternalAPIBaseURL,
		InsecureSkipVerify: cfg.ExternalAPIInsecureSkipVerify,
		Timeout:            cfg.ExternalAPITimeout,
	})
	repository := readings.NewRepository(db)

	builder := readings.SyncerBuilder{
		Source:   ext,
		Store:    repository,
		Workers:  cfg.SyncWorkers,
		State:    registry.New(db).Accessor("sync"),
		Notifier: notifier,
	}
	if arch != nil {
		builder.Archive = arch
	}

	return &Gateway{
		Config:    cfg,
		DB:        db,
		External:  ext,
		Readings:  repository,
		Syncer:    readings.NewSyncer(builder),
		Notifier:  notifier,
		Validator: validator,
	}, nil
}

// Close releases the database and the notifier
func (g *Gateway) Close() error {
	if err := g.Notifier.Close(); err != nil {
		logger.Default().WithError(err).Warnln("cannot close notifier")
	}
	return g.DB.Close()
}

// AccountStore returns the store selected by ACCOUNT_BACKEND
func (g *Gateway) AccountStore() accounts.Store {
	if g.Config.Accounts == config.AccountBackendRemote {
		return accounts.NewRemoteStore(g.External)
	}
	return accounts.NewSQLStore(g.DB)
}

// Handler builds the HTTP surface
func (g *Gateway) Handler() (http.Handler, error) {
	cfg := g.Config
	issuer := access.NewIssuer(cfg.JWTSecret, cfg.TokenValidity)

	forecast, err := weather.New(weather.Config{
		URL:      cfg.WeatherAPIURL,
		Timezone: cfg.WeatherTimezone,
		Timeout:  cfg.ExternalAPITimeout,
	})
	if err != nil {
		return nil, err
	}

	b := &api.Builder{
		Router:         mux.NewRouter(),
		Issuer:         issuer,
		Validator:      g.Validator,
		Accounts:       accounts.NewService(g.AccountStore(), issuer, cfg.BcryptCost),
		Registry:       g.External,
		Catalog:        catalog.New(g.DB),
		LocalReadings:  g.Readings,
		Syncer:         g.Syncer,
		ManualEntry:    readings.NewForwarder(g.External, g.Validator),
		Weather:        forecast,
		Notifier:       g.Notifier,
		AllowedOrigins: cfg.AllowedOrigins(),
		DefaultLat:     cfg.WeatherDefaultLat,
		DefaultLon:     cfg.WeatherDefaultLon,
	}
	if g.DB != nil {
		b.DB = g.DB
	}
	if cfg.ClassifierURL != "" {
		b.Classifier = classify.New(cfg.ClassifierURL, cfg.ExternalAPITimeout)
	} else {
		logger.Default().Infoln("CLASSIFIER_URL not set, classify routes disabled")
	}
	return api.New(b).Handler(), nil
}
