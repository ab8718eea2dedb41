package readings

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/agrigate/core/logger"
	"github.com/relabs-tech/agrigate/core/schema"
)

// errors of the manual entry
var (
	ErrNoValidReadings = errors.New("no valid readings")
	ErrForwardFailed   = errors.New("forwarding to the external registry failed")
)

// Target accepts manually entered readings
type Target interface {
	AddSensorReading(ctx context.Context, reading json.RawMessage) error
}

// Forwarder passes manually entered readings on to the external registry
type Forwarder struct {
	target    Target
	validator *schema.Validator
}

// NewForwarder returns a Forwarder. validator must know schema.ManualReading.
func NewForwarder(target Target, validator *schema.Validator) *Forwarder {
	return &Forwarder{target: target, validator: validator}
}

// Forward accepts a single reading or an array of readings. Readings without SensorId,
// Value, Unit and Timestamp are dropped. The rest is forwarded in order; the first
// failure stops the batch. It returns the number of forwarded readings.
func (f *Forwarder) Forward(ctx context.Context, body []byte) (int, error) {
	rlog := logger.FromContext(ctx)

	var candidates []json.RawMessage
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &candidates); err != nil {
			return 0, ErrNoValidReadings
		}
	} else if len(trimmed) > 0 && trimmed[0] == '{' {
		candidates = []json.RawMessage{json.RawMessage(trimmed)}
	}

	var valid []json.RawMessage
	for i, c := range candidates {
		if err := f.validator.ValidateBytes(c, schema.ManualReading); err != nil {
			rlog.WithError(err).Infof("manual reading %d dropped", i)
			continue
		}
		valid = append(valid, c)
	}
	if len(valid) == 0 {
		return 0, ErrNoValidReadings
	}

	for i, reading := range valid {
		if err := f.target.AddSensorReading(ctx, reading); err != nil {
			return i, fmt.Errorf("%w: reading %d: %v", ErrForwardFailed, i, err)
		}
	}
	rlog.Infof("forwarded %d manual reading(s)", len(valid))
	return len(valid), nil
}
