//go:build integration

// Package test runs the gateway against real Postgres and Kafka containers and a
// fake external registry.
package test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"

	"github.com/relabs-tech/agrigate/core/client"
	"github.com/relabs-tech/agrigate/core/config"
	"github.com/relabs-tech/agrigate/core/gateway"
)

const eventsTopic = "agrigate.sync"

// fakeRegistry stands in for the external sensor registry
type fakeRegistry struct {
	mu       sync.Mutex
	readings []json.RawMessage
	added    []json.RawMessage
}

func (f *fakeRegistry) router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/sensorReadings", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(f.readings)
	}).Methods(http.MethodGet)
	router.HandleFunc("/SensorReadings/AddSensorReading", func(w http.ResponseWriter, r *http.Request) {
		var body json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.added = append(f.added, body)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}).Methods(http.MethodPost)
	router.HandleFunc("/Farms/GetAllFarms", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"FarmId":1,"Name":"North"}]`))
	}).Methods(http.MethodGet)
	return router
}

func (f *fakeRegistry) setReadings(list ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings = f.readings[:0]
	for _, item := range list {
		f.readings = append(f.readings, json.RawMessage(item))
	}
}

func (f *fakeRegistry) addedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.added)
}

type IntegrationTestSuite struct {
	suite.Suite

	gateway  *gateway.Gateway
	client   client.Client
	registry *fakeRegistry
	upstream *httptest.Server

	network           testcontainers.Network
	kafkaContainer    testcontainers.Container
	zookeeper         testcontainers.Container
	postgresContainer testcontainers.Container
	kafkaConn         *kafka.Conn
	kafkaAddr         string
}

func (s *IntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	networkName := "test-agrigate-network_" + fmt.Sprintf("%d", time.Now().Unix())
	network, err := testcontainers.GenericNetwork(ctx, testcontainers.GenericNetworkRequest{
		NetworkRequest: testcontainers.NetworkRequest{
			Name:           networkName,
			CheckDuplicate: true,
		},
	})
	s.Require().NoError(err)
	s.network = network

	postgresUser := "testuser"
	postgresPassword := "testpass"
	postgresDB := "testdb"

	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:15",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     postgresUser,
				"POSTGRES_PASSWORD": postgresPassword,
				"POSTGRES_DB":       postgresDB,
			},
			Networks:       []string{networkName},
			NetworkAliases: map[string][]string{networkName: {"postgres"}},
			WaitingFor:     wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		},
		Started: true,
	})
	s.Require().NoError(err)
	s.postgresContainer = pgC

	pgHost, err := pgC.Host(ctx)
	s.Require().NoError(err)
	pgPort, err := pgC.MappedPort(ctx, "5432")
	s.Require().NoError(err)

	zooC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "confluentinc/cp-zookeeper:7.5.0",
			ExposedPorts: []string{"2181/tcp"},
			Env: map[string]string{
				"ZOOKEEPER_CLIENT_PORT": "2181",
				"ZOOKEEPER_TICK_TIME":   "2000",
			},
			WaitingFor:     wait.ForListeningPort("2181/tcp"),
			Networks:       []string{networkName},
			NetworkAliases: map[string][]string{networkName: {"zookeeper"}},
		},
		Started: true,
	})
	s.Require().NoError(err)
	s.zookeeper = zooC

	kafkaC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "confluentinc/cp-kafka:7.5.0",
			ExposedPorts: []string{"9092:9092/tcp", "29092:29092/tcp"},
			Env: map[string]string{
				"KAFKA_BROKER_ID":                        "1",
				"KAFKA_ZOOKEEPER_CONNECT":                "zookeeper:2181",
				"KAFKA_LISTENERS":                        "PLAINTEXT://0.0.0.0:9092,PLAINTEXT_HOST://0.0.0.0:29092,EXTERNAL://0.0.0.0:9093",
				"KAFKA_ADVERTISED_LISTENERS":             "PLAINTEXT://localhost:9092,PLAINTEXT_HOST://localhost:29092,EXTERNAL://kafka:9093",
				"KAFKA_LISTENER_SECURITY_PROTOCOL_MAP":   "PLAINTEXT:PLAINTEXT,PLAINTEXT_HOST:PLAINTEXT,EXTERNAL:PLAINTEXT",
				"KAFKA_OFFSETS_TOPIC_REPLICATION_FACTOR": "1",
				"ALLOW_PLAINTEXT_LISTENER":               "yes",
			},
			WaitingFor:     wait.ForLog("started (kafka.server.KafkaServer)"),
			Networks:       []string{networkName},
			NetworkAliases: map[string][]string{networkName: {"kafka"}},
		},
		Started: true,
	})
	s.Require().NoError(err)
	s.kafkaContainer = kafkaC

	kafkaHost, err := kafkaC.Host(ctx)
	s.Require().NoError(err)
	kafkaPort, err := kafkaC.MappedPort(ctx, "9092")
	s.Require().NoError(err)
	s.kafkaAddr = fmt.Sprintf("%s:%s", kafkaHost, kafkaPort.Port())

	s.kafkaConn, err = kafka.Dial("tcp", s.kafkaAddr)
	s.Require().NoError(err)
	s.Require().NoError(s.kafkaConn.CreateTopics(kafka.TopicConfig{
		Topic:             eventsTopic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))

	s.registry = &fakeRegistry{}
	s.upstream = httptest.NewServer(s.registry.router())

	cfg := &config.Service{
		Port:               5000,
		Postgres:           fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable", pgHost, pgPort.Port(), postgresUser, postgresDB),
		PostgresPassword:   postgresPassword,
		PostgresSchema:     "integration",
		ExternalAPIBaseURL: s.upstream.URL,
		ExternalAPITimeout: 5 * time.Second,
		JWTSecret:          "integration-secret",
		TokenValidity:      time.Hour,
		BcryptCost:         bcrypt.MinCost,
		Accounts:           config.AccountBackendLocal,
		WeatherAPIURL:      s.upstream.URL + "/forecast",
		WeatherTimezone:    "UTC",
		SyncWorkers:        4,
		KafkaBrokers:       s.kafkaAddr,
		KafkaTopic:         eventsTopic,
		CORSAllowedOrigins: "*",
		LogLevel:           "debug",
	}
	s.Require().NoError(cfg.Validate())

	s.gateway, err = gateway.Open(ctx, cfg)
	s.Require().NoError(err)
	handler, err := s.gateway.Handler()
	s.Require().NoError(err)
	s.client = client.NewWithRouter(handler)
}

func (s *IntegrationTestSuite) TearDownSuite() {
	ctx := context.Background()
	if s.gateway != nil {
		s.NoError(s.gateway.DB.ClearSchema(ctx))
		s.NoError(s.gateway.Close())
	}
	if s.upstream != nil {
		s.upstream.Close()
	}
	if s.kafkaConn != nil {
		s.kafkaConn.Close()
	}
	for _, c := range []testcontainers.Container{s.kafkaContainer, s.zookeeper, s.postgresContainer} {
		if c != nil {
			s.NoError(c.Terminate(ctx))
		}
	}
	if s.network != nil {
		s.NoError(s.network.Remove(ctx))
	}
}

// login registers a fresh account and returns a client carrying its token
func (s *IntegrationTestSuite) login(email string) client.Client {
	status, err := s.client.RawPost("/api/auth/register", map[string]string{
		"username": email,
		"email":    email,
		"password": "secret",
	}, nil)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusCreated, status)

	var result struct {
		Token string `json:"token"`
	}
	status, err = s.client.RawPost("/api/auth/login", map[string]string{
		"identifier": email,
		"password":   "secret",
	}, &result)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusOK, status)
	s.Require().NotEmpty(result.Token)
	return s.client.WithToken(result.Token)
}
