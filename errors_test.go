package uloop

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapError_NilCauseReturnsSentinel(t *testing.T) {
	assert.Equal(t, ErrBackendFailure, WrapError(ErrBackendFailure, nil))
}

func TestWrapError_MatchesSentinelViaErrorsIs(t *testing.T) {
	cause := errors.New("epoll_create1: too many open files")
	wrapped := WrapError(ErrBackendFailure, cause)
	assert.ErrorIs(t, wrapped, ErrBackendFailure)
	assert.Contains(t, wrapped.Error(), "too many open files")
}
