package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("quantity must be 1-99"), http.StatusBadRequest},
		{"not found", NotFound("table not found", nil), http.StatusNotFound},
		{"job not found", PrintJobNotFound(nil), http.StatusNotFound},
		{"lock conflict", LockConflict(map[string]any{"locked_by": "x"}), http.StatusConflict},
		{"invalid transition", InvalidTransition("order is completed", nil), http.StatusConflict},
		{"job not failed", PrintJobNotFailed(nil), http.StatusConflict},
		{"transient", Transient(errors.New("conn reset")), http.StatusServiceUnavailable},
		{"inconsistent", InconsistentState("table free with sent order", nil), http.StatusInternalServerError},
		{"untyped", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestCode_SurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("send order: %w", LockConflict(nil))
	assert.Equal(t, CodeLockConflict, Code(err))
	assert.True(t, Is(err, CodeLockConflict))
	assert.False(t, Is(nil, CodeLockConflict))
}

func TestState_CarriesSnapshot(t *testing.T) {
	err := InvalidTransition("cannot send a completed order", map[string]any{
		"order_status": "completed",
	})
	state := State(err)
	require.NotNil(t, state)
	assert.Equal(t, "completed", state["order_status"])
	assert.Equal(t, "cannot send a completed order", Message(err))
}

func TestConstructors_DoNotMutateBase(t *testing.T) {
	_ = InvalidTransition("custom", map[string]any{"a": 1})
	assert.Equal(t, "invalid transition", ErrInvalidTransition.Message)
	assert.Empty(t, ErrInvalidTransition.Metadata)
}

func TestMessage_Untyped(t *testing.T) {
	assert.Equal(t, "internal server error", Message(errors.New("secret detail")))
}
