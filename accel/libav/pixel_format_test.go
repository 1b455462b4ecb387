package libav

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/hwscaler/planar"
	"github.com/xaionaro-go/hwscaler/types"
)

func TestPixelFormatRoundTrip(t *testing.T) {
	for _, item := range pixelFormats {
		their, ok := PixelFormatToAstiav(item.Our)
		require.True(t, ok)
		require.Equal(t, item.Our, PixelFormatFromAstiav(their))
	}
	_, ok := PixelFormatToAstiav(types.PixelFormatEmulated)
	require.False(t, ok)
}

func TestTightPlanesNV12(t *testing.T) {
	const w, h = 4, 2
	buf := make([]byte, w*h*3/2)
	for i := range buf {
		buf[i] = byte(i)
	}
	out, err := planar.FromPlanes(w, h, types.PixelFormatNV12, tightPlanes(buf, planar.LayoutNV12, w, h))
	require.NoError(t, err)
	require.Equal(t, buf[:8], out.Y)
	require.Equal(t, []byte{8, 10}, out.U)
	require.Equal(t, []byte{9, 11}, out.V)
}
