package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorKindOf(t *testing.T) {
	base := errors.New("boom")
	for _, tc := range []struct {
		err  error
		want ErrorKind
	}{
		{ErrContextInitFailed{Stage: "sws", Err: base}, ErrorKindContextInitFailed},
		{ErrAllocationFailed{Stage: "dst"}, ErrorKindAllocationFailed},
		{ErrGraphBuildFailed{Stage: "link"}, ErrorKindGraphBuildFailed},
		{ErrNoSuitableQueue{}, ErrorKindNoSuitableQueue},
		{ErrBlitSubmitFailed{Stage: "submit"}, ErrorKindBlitSubmitFailed},
		{ErrFenceWaitFailed{}, ErrorKindFenceWaitFailed},
		{ErrMemoryMapFailed{}, ErrorKindMemoryMapFailed},
		{ErrUnsupportedBackend{Backend: AcceleratorBackendNone}, ErrorKindUnsupportedBackend},
		{ErrUnknownFormat{PixelFormat: PixelFormatRGBA}, ErrorKindUnknownFormat},
		{ErrTimeout{Stage: "fence"}, ErrorKindTimeout},
		{fmt.Errorf("wrapped: %w", ErrTimeout{}), ErrorKindTimeout},
		{base, ErrorKindUndefined},
		{nil, ErrorKindUndefined},
	} {
		require.Equal(t, tc.want, ErrorKindOf(tc.err), "%v", tc.err)
	}
}

func TestErrorUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := ErrBlitSubmitFailed{Stage: "submit", Err: base}
	require.ErrorIs(t, err, base)
	require.Contains(t, err.Error(), "submit")
	require.Contains(t, err.Error(), "boom")
}

func TestErrorKindsAreNamed(t *testing.T) {
	seen := map[string]struct{}{}
	for _, k := range ErrorKinds() {
		s := k.String()
		require.NotContains(t, s, "unknown_error_kind")
		_, dup := seen[s]
		require.False(t, dup, s)
		seen[s] = struct{}{}
	}
}
