package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorKind
	}{
		{
			name:     "classified error",
			err:      Errf(KindNotOwner, "device %s not owned", "dev1"),
			expected: KindNotOwner,
		},
		{
			name:     "wrapped classified error",
			err:      fmt.Errorf("take control: %w", Errf(KindDeviceBusy, "queue full")),
			expected: KindDeviceBusy,
		},
		{
			name:     "context cancelled",
			err:      context.Canceled,
			expected: KindCancelled,
		},
		{
			name:     "context deadline",
			err:      fmt.Errorf("run block: %w", context.DeadlineExceeded),
			expected: KindTimeout,
		},
		{
			name:     "unclassified",
			err:      errors.New("boom"),
			expected: KindInternal,
		},
		{
			name:     "nil",
			err:      nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, KindOf(tt.err))
		})
	}
}

func TestWrapErr(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapErr(KindHostUnreachable, cause, "ping host %s", "lab-1")

	require.Error(t, err)
	assert.Equal(t, KindHostUnreachable, err.Kind)
	assert.Contains(t, err.Error(), "ping host lab-1")
	assert.Contains(t, err.Error(), "connection refused")
	assert.True(t, errors.Is(err, cause))
}

func TestErrorKindIsValid(t *testing.T) {
	for _, k := range []ErrorKind{
		KindInvalidInput, KindNotOwner, KindDeviceBusy, KindHostUnreachable,
		KindInfeasible, KindNeedsDisambiguation, KindNotFound, KindTimeout,
		KindCancelled, KindInternal,
	} {
		assert.True(t, k.IsValid(), "kind %s", k)
	}
	assert.False(t, ErrorKind("bogus").IsValid())
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", Errf(KindNotFound, "no such tree"))
	assert.True(t, IsKind(err, KindNotFound))
	assert.False(t, IsKind(err, KindInvalidInput))
}
