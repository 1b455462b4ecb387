// pixel_format.go defines the PixelFormat enum used to tag decoded frames.

package types

import (
	"fmt"
	"strings"
)

type PixelFormat int

const (
	PixelFormatUndefined = PixelFormat(iota)

	// host-resident layouts
	PixelFormatYUV420P
	PixelFormatNV12
	PixelFormatRGBA
	PixelFormatBGRA

	// accelerator-resident opaque surfaces
	PixelFormatVAAPI
	PixelFormatVulkan
	PixelFormatVDPAU
	PixelFormatCUDA
	PixelFormatQSV
	PixelFormatEmulated

	endOfPixelFormat
)

type Residency int

const (
	ResidencyHost = Residency(iota)
	ResidencyAccelerator
)

func (r Residency) String() string {
	switch r {
	case ResidencyHost:
		return "host"
	case ResidencyAccelerator:
		return "accelerator"
	}
	return fmt.Sprintf("unknown_residency_%d", int(r))
}

func (f PixelFormat) String() string {
	switch f {
	case PixelFormatUndefined:
		return "undefined"
	case PixelFormatYUV420P:
		return "yuv420p"
	case PixelFormatNV12:
		return "nv12"
	case PixelFormatRGBA:
		return "rgba"
	case PixelFormatBGRA:
		return "bgra"
	case PixelFormatVAAPI:
		return "vaapi"
	case PixelFormatVulkan:
		return "vulkan"
	case PixelFormatVDPAU:
		return "vdpau"
	case PixelFormatCUDA:
		return "cuda"
	case PixelFormatQSV:
		return "qsv"
	case PixelFormatEmulated:
		return "emulated"
	}
	return fmt.Sprintf("unknown_pixel_format_%d", int(f))
}

func (f PixelFormat) Residency() Residency {
	if f.IsHardware() {
		return ResidencyAccelerator
	}
	return ResidencyHost
}

func (f PixelFormat) IsHardware() bool {
	switch f {
	case PixelFormatVAAPI, PixelFormatVulkan, PixelFormatVDPAU,
		PixelFormatCUDA, PixelFormatQSV, PixelFormatEmulated:
		return true
	}
	return false
}

// IsPlanar420 reports whether the format stores 4:2:0 luma and chroma
// directly in host memory.
func (f PixelFormat) IsPlanar420() bool {
	return f == PixelFormatYUV420P || f == PixelFormatNV12
}

func PixelFormatFromString(s string) (PixelFormat, error) {
	s = strings.Trim(strings.ToLower(s), " \"\n\r\t")
	for f := range endOfPixelFormat {
		if f.String() == s {
			return f, nil
		}
	}
	return PixelFormatUndefined, fmt.Errorf("unknown pixel format: '%s'", s)
}
