package libav

import (
	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/hwscaler/planar"
	"github.com/xaionaro-go/hwscaler/types"
)

var pixelFormats = []struct {
	Our   types.PixelFormat
	Their astiav.PixelFormat
}{
	{types.PixelFormatYUV420P, astiav.PixelFormatYuv420P},
	{types.PixelFormatNV12, astiav.PixelFormatNv12},
	{types.PixelFormatRGBA, astiav.PixelFormatRgba},
	{types.PixelFormatBGRA, astiav.PixelFormatBgra},
	{types.PixelFormatVAAPI, astiav.PixelFormatVaapi},
	{types.PixelFormatVulkan, astiav.PixelFormatVulkan},
	{types.PixelFormatVDPAU, astiav.PixelFormatVdpau},
	{types.PixelFormatCUDA, astiav.PixelFormatCuda},
	{types.PixelFormatQSV, astiav.PixelFormatQsv},
}

func PixelFormatToAstiav(pixFmt types.PixelFormat) (astiav.PixelFormat, bool) {
	for _, item := range pixelFormats {
		if item.Our == pixFmt {
			return item.Their, true
		}
	}
	return astiav.PixelFormatNone, false
}

// PixelFormatFromAstiav returns PixelFormatUndefined for formats with no
// counterpart; such frames are rejected by the dispatcher as unknown.
func PixelFormatFromAstiav(pixFmt astiav.PixelFormat) types.PixelFormat {
	for _, item := range pixelFormats {
		if item.Their == pixFmt {
			return item.Our
		}
	}
	return types.PixelFormatUndefined
}

func layoutFromAstiav(pixFmt astiav.PixelFormat) (planar.Layout, bool) {
	return planar.LayoutFromPixelFormat(PixelFormatFromAstiav(pixFmt))
}

// tightPlanes splits a buffer produced with alignment 1 into planes.
func tightPlanes(buf []byte, layout planar.Layout, w, h int) []types.Plane {
	cw, ch := (w+1)/2, (h+1)/2
	switch layout {
	case planar.LayoutRGBA, planar.LayoutBGRA:
		return []types.Plane{{Data: buf, Stride: w * 4}}
	case planar.LayoutNV12:
		return []types.Plane{
			{Data: buf[:w*h], Stride: w},
			{Data: buf[w*h:], Stride: cw * 2},
		}
	case planar.LayoutYUV420P:
		return []types.Plane{
			{Data: buf[:w*h], Stride: w},
			{Data: buf[w*h : w*h+cw*ch], Stride: cw},
			{Data: buf[w*h+cw*ch:], Stride: cw},
		}
	}
	return nil
}
