package apierrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAs(t *testing.T) {
	t.Run("extracts a wrapped business error", func(t *testing.T) {
		inner := NewConflict("el numero de operacion ya fue registrado")
		wrapped := fmt.Errorf("register payment: %w", inner)

		apiErr, ok := As(wrapped)

		assert.True(t, ok)
		assert.Equal(t, CodeConflict, apiErr.Code)
	})

	t.Run("plain errors are not business errors", func(t *testing.T) {
		_, ok := As(errors.New("connection refused"))
		assert.False(t, ok)
	})
}

func TestIsCode(t *testing.T) {
	err := NewValidation("el monto debe ser positivo", map[string]interface{}{"monto": "0"})

	assert.True(t, IsCode(err, CodeValidation))
	assert.False(t, IsCode(err, CodeConflict))
	assert.False(t, IsCode(errors.New("otro"), CodeValidation))
}

func TestIsBusiness(t *testing.T) {
	assert.True(t, IsBusiness(NewForbidden("solo administradores")))
	assert.True(t, IsBusiness(NewAlreadyProcessed("movimiento", "MOV-1")))
	assert.False(t, IsBusiness(NewInternal(errors.New("timeout"))))
	assert.False(t, IsBusiness(errors.New("timeout")))
}

func TestNewInternal(t *testing.T) {
	cause := errors.New("mongo: no reachable servers")
	err := NewInternal(cause)

	// The generic message hides the cause from clients while Unwrap keeps it
	// for server-side logging.
	assert.Equal(t, "error interno del servidor", err.Message)
	assert.Contains(t, err.Error(), "no reachable servers")
	assert.ErrorIs(t, err, cause)
}

func TestConstructors(t *testing.T) {
	notFound := NewNotFound("subasta", "65f1")
	assert.Equal(t, CodeNotFound, notFound.Code)
	assert.Equal(t, "subasta no encontrado", notFound.Message)
	assert.Equal(t, "subasta", notFound.Details["entity"])

	processed := NewAlreadyProcessed("reembolso", "65f2")
	assert.Equal(t, CodeAlreadyProcessed, processed.Code)
	assert.Equal(t, "reembolso ya fue procesado", processed.Message)
}
