package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnavailableWrapsBoth(t *testing.T) {
	err := Unavailable("hset", context.DeadlineExceeded)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "hset")
}
