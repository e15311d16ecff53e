package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_ErrorString(t *testing.T) {
	inner := fmt.Errorf("connection refused")
	withCause := &AppError{Code: "INTERNAL_ERROR", Message: "something broke", Err: inner}
	assert.Equal(t, "INTERNAL_ERROR: something broke: connection refused", withCause.Error())

	plain := &AppError{Code: "NOT_FOUND", Message: "document not found"}
	assert.Equal(t, "NOT_FOUND: document not found", plain.Error())
}

func TestNotFound(t *testing.T) {
	err := NotFound("product", "42")
	require.NotNil(t, err)
	assert.Equal(t, "NOT_FOUND", err.Code)
	assert.Contains(t, err.Message, "42")
	assert.Equal(t, http.StatusNotFound, err.Status)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestInvalidInput(t *testing.T) {
	err := InvalidInput("action is required")
	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestServiceUnavailable_WrapsCause(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")
	err := ServiceUnavailable("search index unavailable", cause)

	assert.Equal(t, "SERVICE_UNAVAILABLE", err.Code)
	assert.Equal(t, http.StatusServiceUnavailable, err.Status)
	assert.True(t, errors.Is(err, ErrServiceUnavail))
	assert.True(t, errors.Is(err, cause))

	bare := ServiceUnavailable("down", nil)
	assert.True(t, errors.Is(bare, ErrServiceUnavail))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error", Forbidden("no"), http.StatusForbidden},
		{"wrapped not found", fmt.Errorf("get: %w", ErrNotFound), http.StatusNotFound},
		{"wrapped invalid input", fmt.Errorf("parse: %w", ErrInvalidInput), http.StatusBadRequest},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"conflict", Conflict("reindex already running"), http.StatusConflict},
		{"wrapped conflict", fmt.Errorf("reindex: %w", ErrConflict), http.StatusConflict},
		{"unavailable", fmt.Errorf("es: %w", ErrServiceUnavail), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}
