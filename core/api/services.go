package api

import (
	"math"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/agrigate/core/apierror"
	"github.com/relabs-tech/agrigate/core/classify"
	"github.com/relabs-tech/agrigate/core/schema"
)

func (a *API) currentWeather(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	lat, errLat := coordinate(query.Get("lat"), a.defaultLat, 90)
	lon, errLon := coordinate(query.Get("lon"), a.defaultLon, 180)
	if errLat != nil || errLon != nil {
		fail(w, r, apierror.Validation("Invalid coordinates."), messageEnvelope)
		return
	}

	snapshot, err := a.weather.Current(r.Context(), lat, lon)
	if err != nil {
		fail(w, r, apierror.Downstream("Failed to retrieve weather data.", err), messageEnvelope)
		return
	}
	writeJSON(w, r, http.StatusOK, snapshot)
}

// coordinate parses s, or returns fallback for an empty s. The value must lie in [-limit, limit].
func coordinate(s string, fallback, limit float64) (float64, error) {
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.Abs(v) > limit {
		return 0, strconv.ErrRange
	}
	return v, nil
}

func (a *API) classifyHandler(model classify.Model) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(w, r)
		if err != nil {
			fail(w, r, apierror.Validation("Image is required."), errorEnvelope)
			return
		}
		var req struct {
			Image string `json:"image"`
		}
		if err := a.validator.ValidateBytes(body, schema.Classify); err != nil {
			fail(w, r, apierror.Validation("Image is required."), errorEnvelope)
			return
		}
		if err := json.Unmarshal(body, &req); err != nil {
			fail(w, r, apierror.Validation("Image is required."), errorEnvelope)
			return
		}

		prediction, err := a.classifier.Predict(r.Context(), model, req.Image)
		if err != nil {
			fail(w, r, apierror.Downstream("Could not get "+string(model)+" prediction", err), errorEnvelope)
			return
		}
		writeJSON(w, r, http.StatusOK, prediction)
	}
}
