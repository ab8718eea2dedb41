// Package api is the HTTP surface of the gateway.
//
// Public routes live directly under the router, data routes under /api/data and the
// protected auth routes behind the JWT middleware. Every route answers JSON.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/agrigate/core/access"
	"github.com/relabs-tech/agrigate/core/accounts"
	"github.com/relabs-tech/agrigate/core/catalog"
	"github.com/relabs-tech/agrigate/core/classify"
	"github.com/relabs-tech/agrigate/core/logger"
	"github.com/relabs-tech/agrigate/core/notify"
	"github.com/relabs-tech/agrigate/core/readings"
	"github.com/relabs-tech/agrigate/core/schema"
	"github.com/relabs-tech/agrigate/core/weather"
)

var (
	// Version is the version of the curent build
	Version = "unset"
)

// Accounts registers and authenticates users, see accounts.Service
type Accounts interface {
	Register(ctx context.Context, username, email, password string) (int64, error)
	Login(ctx context.Context, identifier, password string) (*accounts.LoginResult, error)
	ChangePassword(ctx context.Context, email, current, next string) error
}

// Registry is the external sensor registry, see external.Client
type Registry interface {
	ListReadings(ctx context.Context) ([]json.RawMessage, error)
	ReadingsBySensor(ctx context.Context, sensorID string) ([]json.RawMessage, error)
	ReadingsByPlant(ctx context.Context, plantID string) ([]json.RawMessage, error)
	LatestReading(ctx context.Context, sensorID string) (json.RawMessage, error)
	CreateReading(ctx context.Context, reading json.RawMessage) (json.RawMessage, error)
	ListFarms(ctx context.Context) ([]json.RawMessage, error)
}

// Catalog reads the local farms, plants and sensors, see catalog.Catalog
type Catalog interface {
	Farms(ctx context.Context) ([]catalog.Farm, error)
	Plants(ctx context.Context) ([]catalog.Plant, error)
	Sensors(ctx context.Context) ([]catalog.Sensor, error)
	Sensor(ctx context.Context, id int64) (*catalog.Sensor, error)
}

// LocalReadings lists synchronized readings, see readings.Repository
type LocalReadings interface {
	List(ctx context.Context, f readings.Filter) ([]readings.Reading, error)
}

// Synchronizer copies external readings into the local store, see readings.Syncer
type Synchronizer interface {
	Sync(ctx context.Context) (readings.Summary, error)
	LastRun(ctx context.Context) (*readings.Status, error)
	LastBatch(ctx context.Context) (json.RawMessage, error)
}

// ManualEntry forwards manually entered readings, see readings.Forwarder
type ManualEntry interface {
	Forward(ctx context.Context, body []byte) (int, error)
}

// Weather returns the weather of the current hour, see weather.Client
type Weather interface {
	Current(ctx context.Context, lat, lon float64) (*weather.Snapshot, error)
}

// Classifier predicts plant species and health from an image, see classify.Client
type Classifier interface {
	Predict(ctx context.Context, model classify.Model, image string) (json.RawMessage, error)
}

// Pinger checks the database connection
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Builder is a builder helper for the API
type Builder struct {
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// Issuer signs and verifies access tokens. This is mandatory.
	Issuer *access.Issuer
	// Validator knows the request schemas, see schema.Requests. This is mandatory.
	Validator *schema.Validator

	Accounts      Accounts
	Registry      Registry
	Catalog       Catalog
	LocalReadings LocalReadings
	Syncer        Synchronizer
	ManualEntry   ManualEntry
	Weather       Weather
	// Classifier is optional, the classify routes are not registered without it
	Classifier Classifier
	// Notifier receives an event for every reading created through the API. This is optional.
	Notifier notify.Notifier
	// DB is used by /health. This is optional.
	DB Pinger

	AllowedOrigins []string
	DefaultLat     float64
	DefaultLon     float64
}

// API serves the gateway's routes
type API struct {
	router        *mux.Router
	validator     *schema.Validator
	accounts      Accounts
	registry      Registry
	catalog       Catalog
	localReadings LocalReadings
	syncer        Synchronizer
	manualEntry   ManualEntry
	weather       Weather
	classifier    Classifier
	notifier      notify.Notifier
	db            Pinger
	defaultLat    float64
	defaultLon    float64
	handler       http.Handler
}

// New realizes the API and adds all routes to the router
func New(b *Builder) *API {
	if b.Router == nil {
		panic("Router is missing")
	}
	if b.Issuer == nil {
		panic("Issuer is missing")
	}
	if b.Validator == nil {
		panic("Validator is missing")
	}
	for _, id := range []string{schema.Register, schema.Login, schema.ChangePassword, schema.Reading, schema.Classify} {
		if !b.Validator.HasSchema(id) {
			panic("Validator lacks schema " + id)
		}
	}

	a := &API{
		router:        b.Router,
		validator:     b.Validator,
		accounts:      b.Accounts,
		registry:      b.Registry,
		catalog:       b.Catalog,
		localReadings: b.LocalReadings,
		syncer:        b.Syncer,
		manualEntry:   b.ManualEntry,
		weather:       b.Weather,
		classifier:    b.Classifier,
		notifier:      b.Notifier,
		db:            b.DB,
		defaultLat:    b.DefaultLat,
		defaultLon:    b.DefaultLon,
	}
	if a.notifier == nil {
		a.notifier = notify.Nop{}
	}

	logger.AddRequestID(a.router)
	a.handleRoutes(access.NewJwtMiddleware(b.Issuer))

	origins := b.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization"}),
		handlers.ExposedHeaders([]string{logger.RequestIDHeader}),
		handlers.MaxAge(86400),
	)
	a.handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(logger.Default()),
		handlers.PrintRecoveryStack(true),
	)(cors(handlers.CompressHandler(a.router)))
	return a
}

// Handler returns the router wrapped into recovery, CORS and compression
func (a *API) Handler() http.Handler {
	return a.handler
}

func (a *API) handleRoutes(jwt mux.MiddlewareFunc) {
	rlog := logger.Default()
	router := a.router

	rlog.Debugln("  handle route: / GET")
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("Gateway is running"))
	}).Methods(http.MethodGet)

	rlog.Debugln("  handle route: /health GET")
	router.HandleFunc("/health", a.health).Methods(http.MethodGet)

	rlog.Debugln("  handle route: /version GET")
	router.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, map[string]string{"version": Version})
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()

	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/register", a.register).Methods(http.MethodPost)
	auth.HandleFunc("/login", a.login).Methods(http.MethodPost)
	auth.Handle("/change-password", jwt(http.HandlerFunc(a.changePassword))).Methods(http.MethodPost)
	auth.Handle("/me", jwt(http.HandlerFunc(a.me))).Methods(http.MethodGet)
	rlog.Debugln("  handle routes: /api/auth")

	data := api.PathPrefix("/data").Subrouter()
	data.Use(jwt)
	data.HandleFunc("/farms", a.listFarms).Methods(http.MethodGet)
	data.HandleFunc("/farms/external", a.listExternalFarms).Methods(http.MethodGet)
	data.HandleFunc("/plants", a.listPlants).Methods(http.MethodGet)
	data.HandleFunc("/sensors", a.listSensors).Methods(http.MethodGet)
	data.HandleFunc("/sensors/{id}", a.getSensor).Methods(http.MethodGet)
	data.HandleFunc("/readings", a.listReadings).Methods(http.MethodGet)
	data.HandleFunc("/readings", a.createReading).Methods(http.MethodPost)
	data.HandleFunc("/readings/sensor/{id}", a.readingsBySensor).Methods(http.MethodGet)
	data.HandleFunc("/readings/latest/{id}", a.latestReading).Methods(http.MethodGet)
	data.HandleFunc("/readings/plant/{id}", a.readingsByPlant).Methods(http.MethodGet)
	data.HandleFunc("/readings/local", a.listLocalReadings).Methods(http.MethodGet)
	data.HandleFunc("/readings/fetch-and-save-external", a.fetchAndSaveExternal).Methods(http.MethodPost)
	data.HandleFunc("/readings/sync-status", a.syncStatus).Methods(http.MethodGet)
	data.HandleFunc("/readings/sync-status/batch", a.lastArchivedBatch).Methods(http.MethodGet)
	data.HandleFunc("/manual-entry", a.manualEntryHandler).Methods(http.MethodPost)
	rlog.Debugln("  handle routes: /api/data")

	api.HandleFunc("/weather", a.currentWeather).Methods(http.MethodGet)
	rlog.Debugln("  handle route: /api/weather GET")

	if a.classifier != nil {
		classifyRouter := api.PathPrefix("/classify").Subrouter()
		classifyRouter.Use(jwt)
		classifyRouter.HandleFunc("/species", a.classifyHandler(classify.Species)).Methods(http.MethodPost)
		classifyRouter.HandleFunc("/health", a.classifyHandler(classify.Health)).Methods(http.MethodPost)
		rlog.Debugln("  handle routes: /api/classify")
	}
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	if a.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.db.PingContext(ctx); err != nil {
			logger.FromContext(r.Context()).WithError(err).Errorln("health check failed")
			writeJSON(w, r, http.StatusInternalServerError, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
