package decoder

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/hwscaler/accel/libav"
	"github.com/xaionaro-go/hwscaler/planar"
	"github.com/xaionaro-go/hwscaler/types"
	"github.com/xaionaro-go/secret"
)

func TestSelectHardwarePixelFormat(t *testing.T) {
	configs := []hardwareConfig{
		{PixelFormat: astiav.PixelFormatCuda, DeviceType: types.HardwareDeviceTypeCUDA, DeviceCtx: true},
		{PixelFormat: astiav.PixelFormatVaapi, DeviceType: types.HardwareDeviceTypeVAAPI, DeviceCtx: false},
		{PixelFormat: astiav.PixelFormatVaapi, DeviceType: types.HardwareDeviceTypeVAAPI, DeviceCtx: true},
	}

	pixFmt, err := selectHardwarePixelFormat(configs, types.HardwareDeviceTypeVAAPI)
	require.NoError(t, err)
	require.Equal(t, astiav.PixelFormatVaapi, pixFmt)

	pixFmt, err = selectHardwarePixelFormat(configs, types.HardwareDeviceTypeCUDA)
	require.NoError(t, err)
	require.Equal(t, astiav.PixelFormatCuda, pixFmt)

	_, err = selectHardwarePixelFormat(configs, types.HardwareDeviceTypeVulkan)
	require.Error(t, err)
}

func TestNewFromURLMissingInput(t *testing.T) {
	_, err := NewFromURL(context.Background(), filepath.Join(t.TempDir(), "missing.mkv"), secret.New(""), DefaultConfig())
	require.Error(t, err)
	require.Equal(t, types.ErrorKindContextInitFailed, types.ErrorKindOf(err))
}

func TestSurfaceFormatFollowsFramesPool(t *testing.T) {
	d := &Decoder{hardwarePixelFormat: astiav.PixelFormatVaapi}
	require.Equal(t, libav.SurfaceFormat{
		Hardware: types.PixelFormatVAAPI,
		Software: planar.LayoutYUV420P,
	}, d.surfaceFormat())
}
