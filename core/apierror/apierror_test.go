package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, Validation("x").Status())
	assert.Equal(t, http.StatusUnauthorized, Authentication("x").Status())
	assert.Equal(t, http.StatusForbidden, Authorization("x").Status())
	assert.Equal(t, http.StatusNotFound, NotFound("x").Status())
	assert.Equal(t, http.StatusConflict, Conflict("x").Status())
	assert.Equal(t, http.StatusInternalServerError, Downstream("x", nil).Status())
}

func TestFrom(t *testing.T) {
	cause := errors.New("connection refused")

	e := From(cause, "Server error fetching farms.")
	assert.Equal(t, KindDownstream, e.Kind)
	assert.Equal(t, "Server error fetching farms.", e.Message)
	assert.ErrorIs(t, e, cause)

	wrapped := fmt.Errorf("handler: %w", NotFound("Sensor with ID 7 not found."))
	e = From(wrapped, "ignored")
	assert.Equal(t, KindNotFound, e.Kind)
	assert.Equal(t, "Sensor with ID 7 not found.", e.Message)
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "conflict: duplicate", Conflict("duplicate").Error())
	assert.Equal(t, "downstream: failed: boom", Downstream("failed", errors.New("boom")).Error())
}
