package readings

import (
	"context"
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/agrigate/core/schema"
)

type fakeTarget struct {
	forwarded []string
	failAt    int
}

func (f *fakeTarget) AddSensorReading(ctx context.Context, reading json.RawMessage) error {
	if f.failAt > 0 && len(f.forwarded)+1 == f.failAt {
		return errors.New("registry returned 500")
	}
	f.forwarded = append(f.forwarded, string(reading))
	return nil
}

func newForwarder(t *testing.T, target Target) *Forwarder {
	t.Helper()
	v, err := schema.Requests()
	require.NoError(t, err)
	return NewForwarder(target, v)
}

func TestForward_Array(t *testing.T) {
	target := &fakeTarget{}
	f := newForwarder(t, target)

	count, err := f.Forward(context.Background(), []byte(`[
		{"SensorId":1,"Value":20.5,"Unit":"C","Timestamp":"2024-05-01T10:00:00Z"},
		{"SensorId":2,"Value":61,"Unit":"%"},
		{"SensorId":3,"Value":7,"Unit":"pH","Timestamp":"2024-05-01T10:05:00Z"}
	]`))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.Len(t, target.forwarded, 2)
	assert.JSONEq(t, `{"SensorId":1,"Value":20.5,"Unit":"C","Timestamp":"2024-05-01T10:00:00Z"}`, target.forwarded[0])
}

func TestForward_Single(t *testing.T) {
	target := &fakeTarget{}
	count, err := newForwarder(t, target).Forward(context.Background(),
		[]byte(` {"SensorId":"4","Value":"1.5","Unit":"V","Timestamp":"2024-05-01 10:00:00"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestForward_NoValidReadings(t *testing.T) {
	f := newForwarder(t, &fakeTarget{})
	for _, body := range []string{``, `[]`, `42`, `[{"SensorId":1}]`, `{"Value":1}`, `[1,2`} {
		_, err := f.Forward(context.Background(), []byte(body))
		assert.ErrorIs(t, err, ErrNoValidReadings, body)
	}
}

func TestForward_StopsAtFirstFailure(t *testing.T) {
	target := &fakeTarget{failAt: 2}
	count, err := newForwarder(t, target).Forward(context.Background(), []byte(`[
		{"SensorId":1,"Value":1,"Unit":"C","Timestamp":"2024-05-01T10:00:00Z"},
		{"SensorId":2,"Value":2,"Unit":"C","Timestamp":"2024-05-01T10:00:00Z"},
		{"SensorId":3,"Value":3,"Unit":"C","Timestamp":"2024-05-01T10:00:00Z"}
	]`))
	assert.ErrorIs(t, err, ErrForwardFailed)
	assert.Equal(t, 1, count)
	assert.Len(t, target.forwarded, 1)
}
