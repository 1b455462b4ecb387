package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolution(t *testing.T) {
	var r Resolution
	require.NoError(t, r.Parse("1280x720"))
	require.Equal(t, Resolution{Width: 1280, Height: 720}, r)
	require.Equal(t, "1280x720", r.String())
	require.NoError(t, r.Validate())

	require.Error(t, Resolution{Width: 31, Height: 32}.Validate())
	require.Error(t, Resolution{Width: 32, Height: 0}.Validate())
	require.Error(t, r.Parse("garbage"))

	require.True(t, ResolutionFromInts(0, 720).IsZero())
	require.True(t, ResolutionFromInts(-1, -1).IsZero())
	require.Equal(t, Resolution{Width: 64, Height: 48}, ResolutionFromInts(64, 48))
}

func TestBackendMapping(t *testing.T) {
	require.Equal(t, AcceleratorBackendDeclarative, HardwareDeviceTypeVAAPI.Backend())
	require.Equal(t, AcceleratorBackendBlit, HardwareDeviceTypeVulkan.Backend())
	require.Equal(t, AcceleratorBackendNone, HardwareDeviceTypeVDPAU.Backend())
	require.Equal(t, AcceleratorBackendNone, HardwareDeviceTypeNone.Backend())

	for _, b := range []AcceleratorBackend{AcceleratorBackendNone, AcceleratorBackendDeclarative, AcceleratorBackendBlit} {
		parsed, err := AcceleratorBackendFromString(b.String())
		require.NoError(t, err)
		require.Equal(t, b, parsed)
	}
	_, err := AcceleratorBackendFromString("metal")
	require.Error(t, err)
}

func TestPixelFormatResidency(t *testing.T) {
	require.Equal(t, ResidencyHost, PixelFormatYUV420P.Residency())
	require.Equal(t, ResidencyHost, PixelFormatRGBA.Residency())
	require.Equal(t, ResidencyAccelerator, PixelFormatVAAPI.Residency())
	require.Equal(t, ResidencyAccelerator, PixelFormatEmulated.Residency())
	require.True(t, PixelFormatNV12.IsPlanar420())
	require.False(t, PixelFormatRGBA.IsPlanar420())
}
