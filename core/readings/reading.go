// Package readings synchronizes sensor readings from the external registry into the
// local store and forwards manually entered readings.
package readings

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Reading is a single sensor measurement
type Reading struct {
	ReadingID int64      `json:"ReadingId,omitempty"`
	SensorID  int64      `json:"SensorId"`
	Value     float64    `json:"Value"`
	Unit      string     `json:"Unit"`
	Timestamp *time.Time `json:"Timestamp"`
	PlantID   *int64     `json:"PlantId"`
}

// wire is a reading as the registry sends it. Numbers sometimes arrive as strings.
type wire struct {
	SensorID  json.RawMessage `json:"SensorId"`
	Value     json.RawMessage `json:"Value"`
	Unit      *string         `json:"Unit"`
	Timestamp json.RawMessage `json:"Timestamp"`
	PlantID   json.RawMessage `json:"PlantId"`
}

// Decode parses one reading of the registry. The timestamp is normalized with
// NormalizeTimestamp and never makes decoding fail.
func Decode(raw json.RawMessage) (Reading, error) {
	var w wire
	if err := json.Unmarshal(raw, &w); err != nil {
		return Reading{}, fmt.Errorf("malformed reading: %w", err)
	}
	var (
		r   Reading
		err error
	)
	if r.SensorID, err = parseInt(w.SensorID); err != nil {
		return Reading{}, fmt.Errorf("SensorId: %w", err)
	}
	if r.Value, err = parseFloat(w.Value); err != nil {
		return Reading{}, fmt.Errorf("Value: %w", err)
	}
	if w.Unit == nil || strings.TrimSpace(*w.Unit) == "" {
		return Reading{}, errors.New("Unit: missing")
	}
	r.Unit = *w.Unit
	r.Timestamp = NormalizeTimestamp(w.Timestamp)
	if !isNull(w.PlantID) {
		plantID, err := parseInt(w.PlantID)
		if err != nil {
			return Reading{}, fmt.Errorf("PlantId: %w", err)
		}
		r.PlantID = &plantID
	}
	return r, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02",
}

// maxUnixMilli is the largest distance from the epoch a timestamp number may have
const maxUnixMilli = 8.64e15

// timestamps outside this interval cannot be stored and are treated as absent
var (
	earliestTimestamp = time.Date(-4712, time.January, 1, 0, 0, 0, 0, time.UTC)
	latestTimestamp   = time.UnixMilli(maxUnixMilli).UTC()
)

// NormalizeTimestamp converts a JSON timestamp into UTC. Strings in RFC 3339 or
// "YYYY-MM-DD[ T]HH:MM:SS" form (UTC when no zone is given) and numbers as unix
// milliseconds are accepted. Anything else, including a missing value or an instant the
// store cannot hold, yields nil.
func NormalizeTimestamp(raw json.RawMessage) *time.Time {
	if isNull(raw) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		ms, err := strconv.ParseFloat(string(bytes.TrimSpace(raw)), 64)
		if err != nil || math.IsNaN(ms) || math.Abs(ms) > maxUnixMilli {
			return nil
		}
		return storable(time.UnixMilli(int64(ms)))
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return storable(t)
		}
	}
	return nil
}

func storable(t time.Time) *time.Time {
	t = t.UTC()
	if t.Before(earliestTimestamp) || t.After(latestTimestamp) {
		return nil
	}
	return &t
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func numberText(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", errors.New("missing")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	return string(bytes.TrimSpace(raw)), nil
}

func parseInt(raw json.RawMessage) (int64, error) {
	s, err := numberText(raw)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(s, 10, 64)
}

func parseFloat(raw json.RawMessage) (float64, error) {
	s, err := numberText(raw)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(s, 64)
}
