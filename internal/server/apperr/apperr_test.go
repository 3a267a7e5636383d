package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusClass(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{name: "bad request is fail", err: BadRequest("nope"), want: "fail"},
		{name: "not found is fail", err: NotFound("gone"), want: "fail"},
		{name: "conflict is fail", err: Conflict("The Forest Hiker"), want: "fail"},
		{name: "internal is error", err: Internal(errors.New("boom")), want: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Status())
		})
	}
}

func TestConflictNamesValue(t *testing.T) {
	err := Conflict("The Forest Hiker")
	assert.Equal(t, http.StatusConflict, err.Code)
	assert.Contains(t, err.Message, "'The Forest Hiker'")
	assert.True(t, err.Operational)
}

func TestFrom(t *testing.T) {
	t.Run("passes through classified errors", func(t *testing.T) {
		orig := Unauthorized("no user logged in")
		got := From(fmt.Errorf("auth gate: %w", orig))
		assert.Same(t, orig, got)
	})

	t.Run("classifies unknown errors as non-operational", func(t *testing.T) {
		cause := errors.New("disk on fire")
		got := From(cause)
		require.False(t, got.Operational)
		assert.Equal(t, http.StatusInternalServerError, got.Code)
		assert.NotContains(t, got.Message, "disk")
		assert.ErrorIs(t, got, cause)
	})
}

func TestValidationAggregates(t *testing.T) {
	err := Validation(errors.New("Please tell us your name. | Please provide your email."))
	assert.Equal(t, http.StatusBadRequest, err.Code)
	assert.Contains(t, err.Message, "Invalid input data:")
	assert.Contains(t, err.Message, " | ")
}
