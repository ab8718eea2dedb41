package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/agrigate/core/apierror"
	"github.com/relabs-tech/agrigate/core/catalog"
	"github.com/relabs-tech/agrigate/core/logger"
	"github.com/relabs-tech/agrigate/core/notify"
	"github.com/relabs-tech/agrigate/core/readings"
	"github.com/relabs-tech/agrigate/core/schema"
)

const readingsResource = "sensor_readings"

func (a *API) listFarms(w http.ResponseWriter, r *http.Request) {
	farms, err := a.catalog.Farms(r.Context())
	if err != nil {
		fail(w, r, apierror.Downstream("Server error fetching farms.", err), messageEnvelope)
		return
	}
	writeJSON(w, r, http.StatusOK, farms)
}

func (a *API) listExternalFarms(w http.ResponseWriter, r *http.Request) {
	farms, err := a.registry.ListFarms(r.Context())
	if err != nil {
		fail(w, r, apierror.Downstream("Server error fetching farms.", err), messageEnvelope)
		return
	}
	writeJSON(w, r, http.StatusOK, nonNil(farms))
}

func (a *API) listPlants(w http.ResponseWriter, r *http.Request) {
	plants, err := a.catalog.Plants(r.Context())
	if err != nil {
		fail(w, r, apierror.Downstream("Server error fetching plants.", err), messageEnvelope)
		return
	}
	writeJSON(w, r, http.StatusOK, plants)
}

func (a *API) listSensors(w http.ResponseWriter, r *http.Request) {
	sensors, err := a.catalog.Sensors(r.Context())
	if err != nil {
		fail(w, r, apierror.Downstream("Server error fetching sensors.", err), messageEnvelope)
		return
	}
	writeJSON(w, r, http.StatusOK, sensors)
}

func (a *API) getSensor(w http.ResponseWriter, r *http.Request) {
	param := mux.Vars(r)["id"]
	notFound := apierror.NotFound(fmt.Sprintf("Sensor with ID %s not found.", param))
	id, err := strconv.ParseInt(param, 10, 64)
	if err != nil {
		fail(w, r, notFound, messageEnvelope)
		return
	}
	sensor, err := a.catalog.Sensor(r.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		fail(w, r, notFound, messageEnvelope)
		return
	}
	if err != nil {
		fail(w, r, apierror.Downstream("Server error fetching sensor by ID.", err), messageEnvelope)
		return
	}
	writeJSON(w, r, http.StatusOK, sensor)
}

// listReadings passes the external collection through. ?sensorId= and ?plantId= answer like
// the by-sensor and by-plant routes, sensorId wins if both are given.
func (a *API) listReadings(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if sensorID := query.Get("sensorId"); sensorID != "" {
		a.sensorReadings(w, r, sensorID)
		return
	}
	if plantID := query.Get("plantId"); plantID != "" {
		a.plantReadings(w, r, plantID)
		return
	}
	list, err := a.registry.ListReadings(r.Context())
	if err != nil {
		fail(w, r, apierror.Downstream("Server error fetching sensor readings.", err), messageEnvelope)
		return
	}
	writeJSON(w, r, http.StatusOK, nonNil(list))
}

func (a *API) readingsBySensor(w http.ResponseWriter, r *http.Request) {
	a.sensorReadings(w, r, mux.Vars(r)["id"])
}

func (a *API) readingsByPlant(w http.ResponseWriter, r *http.Request) {
	a.plantReadings(w, r, mux.Vars(r)["id"])
}

// sensorReadings answers the readings of one sensor, an empty result is 404
func (a *API) sensorReadings(w http.ResponseWriter, r *http.Request, sensorID string) {
	list, err := a.registry.ReadingsBySensor(r.Context(), sensorID)
	if err != nil {
		fail(w, r, apierror.Downstream("Server error fetching sensor readings by sensor ID.", err), messageEnvelope)
		return
	}
	if len(list) == 0 {
		fail(w, r, apierror.NotFound(fmt.Sprintf("No readings found for sensor ID %s.", sensorID)), messageEnvelope)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (a *API) plantReadings(w http.ResponseWriter, r *http.Request, plantID string) {
	list, err := a.registry.ReadingsByPlant(r.Context(), plantID)
	if err != nil {
		fail(w, r, apierror.Downstream("Server error fetching sensor readings by plant ID.", err), messageEnvelope)
		return
	}
	if len(list) == 0 {
		fail(w, r, apierror.NotFound(fmt.Sprintf("No readings found for plant ID %s.", plantID)), messageEnvelope)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (a *API) latestReading(w http.ResponseWriter, r *http.Request) {
	sensorID := mux.Vars(r)["id"]
	reading, err := a.registry.LatestReading(r.Context(), sensorID)
	if err != nil {
		fail(w, r, apierror.Downstream("Server error fetching latest sensor reading.", err), messageEnvelope)
		return
	}
	if reading == nil {
		fail(w, r, apierror.NotFound(fmt.Sprintf("No latest reading found for sensor ID %s.", sensorID)), messageEnvelope)
		return
	}
	writeJSON(w, r, http.StatusOK, reading)
}

func (a *API) createReading(w http.ResponseWriter, r *http.Request) {
	required := apierror.Validation("SensorId, Value, and Unit are required for a new reading.")
	body, err := readBody(w, r)
	if err != nil {
		fail(w, r, required, messageEnvelope)
		return
	}
	if err := a.validator.ValidateBytes(body, schema.Reading); err != nil {
		fail(w, r, required, messageEnvelope)
		return
	}

	created, err := a.registry.CreateReading(r.Context(), json.RawMessage(body))
	if err != nil {
		fail(w, r, apierror.Downstream("Server error creating sensor reading.", err), messageEnvelope)
		return
	}
	if created == nil {
		created = json.RawMessage("null")
	}
	if err := a.notifier.Notify(r.Context(), readingsResource, notify.OperationCreate, created); err != nil {
		logger.FromContext(r.Context()).WithError(err).Warnln("cannot publish created reading")
	}
	writeJSON(w, r, http.StatusCreated, map[string]interface{}{
		"message": "Sensor reading created successfully!",
		"data":    created,
	})
}

func (a *API) listLocalReadings(w http.ResponseWriter, r *http.Request) {
	var (
		filter readings.Filter
		err    error
	)
	query := r.URL.Query()
	if filter.SensorID, err = optionalInt64(query.Get("sensorId")); err != nil {
		fail(w, r, apierror.Validation("sensorId must be a number."), messageEnvelope)
		return
	}
	if filter.PlantID, err = optionalInt64(query.Get("plantId")); err != nil {
		fail(w, r, apierror.Validation("plantId must be a number."), messageEnvelope)
		return
	}
	if limit := query.Get("limit"); limit != "" {
		if filter.Limit, err = strconv.Atoi(limit); err != nil || filter.Limit < 1 {
			fail(w, r, apierror.Validation("limit must be a positive number."), messageEnvelope)
			return
		}
	}

	list, err := a.localReadings.List(r.Context(), filter)
	if err != nil {
		fail(w, r, apierror.Downstream("Server error fetching local sensor readings.", err), messageEnvelope)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (a *API) fetchAndSaveExternal(w http.ResponseWriter, r *http.Request) {
	summary, err := a.syncer.Sync(r.Context())
	if err != nil {
		fail(w, r, apierror.Downstream("Server error during fetch and save operation.", err), messageEnvelope)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"message": "External sensor readings fetched and saved to local DB successfully!",
		"summary": summary,
	})
}

func (a *API) syncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.syncer.LastRun(r.Context())
	if errors.Is(err, readings.ErrNeverSynchronized) {
		fail(w, r, apierror.NotFound("No synchronization has run yet."), messageEnvelope)
		return
	}
	if err != nil {
		fail(w, r, apierror.Downstream("Server error fetching synchronization status.", err), messageEnvelope)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// lastArchivedBatch answers the raw external batch the last synchronization archived
func (a *API) lastArchivedBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := a.syncer.LastBatch(r.Context())
	if errors.Is(err, readings.ErrNeverSynchronized) || errors.Is(err, readings.ErrNoArchivedBatch) {
		fail(w, r, apierror.NotFound("No archived batch available."), messageEnvelope)
		return
	}
	if err != nil {
		fail(w, r, apierror.Downstream("Server error fetching archived batch.", err), messageEnvelope)
		return
	}
	writeJSON(w, r, http.StatusOK, batch)
}

func (a *API) manualEntryHandler(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		fail(w, r, apierror.Validation("No valid readings received."), errorEnvelope)
		return
	}
	count, err := a.manualEntry.Forward(r.Context(), body)
	switch {
	case errors.Is(err, readings.ErrNoValidReadings):
		fail(w, r, apierror.Validation("No valid readings received."), errorEnvelope)
	case err != nil:
		fail(w, r, apierror.Downstream("Failed to forward to external API", err), errorEnvelope)
	default:
		writeJSON(w, r, http.StatusOK, map[string]interface{}{
			"message": "Reading(s) forwarded",
			"count":   count,
		})
	}
}

func optionalInt64(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func nonNil(list []json.RawMessage) []json.RawMessage {
	if list == nil {
		return []json.RawMessage{}
	}
	return list
}
