package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := Validationf("reason too short (%d < %d)", 3, 10)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrAuthorization))
	assert.Equal(t, "validation: reason too short (3 < 10)", err.Error())

	wrapped := fmt.Errorf("decide: %w", err)
	assert.True(t, errors.Is(wrapped, ErrValidation))
	assert.Equal(t, KindValidation, KindOf(wrapped))
}

func TestInfrastructureUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := Infrastructure("scanner unavailable", cause)
	assert.True(t, errors.Is(err, ErrInfrastructure))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, ErrorKind(""), KindOf(cause))
}
