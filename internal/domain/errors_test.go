package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	err := NotFound("Reservation not found.")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrInvalidState))
	assert.Equal(t, "Reservation not found.", err.Error())

	wrapped := fmt.Errorf("cancel: %w", InvalidState("Can cancel/reschedule only future dates."))
	assert.True(t, errors.Is(wrapped, ErrInvalidState))
	assert.Equal(t, "Can cancel/reschedule only future dates.", Message(wrapped, "internal error"))

	assert.True(t, errors.Is(InvalidArgument("bad %d", 1), ErrInvalidArgument))
	assert.Equal(t, "internal error", Message(errors.New("boom"), "internal error"))
}
