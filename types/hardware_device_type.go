// hardware_device_type.go defines the HardwareDeviceType enum and its methods.

// Package types provides the data model shared by the frame dispatch and scaling packages.
package types

import (
	"fmt"
	"strings"
)

type HardwareDeviceType int

const (
	// the constants are copied from libav's enum AVHWDeviceType:
	HardwareDeviceTypeNone   = HardwareDeviceType(0x0)
	HardwareDeviceTypeVDPAU  = HardwareDeviceType(0x1)
	HardwareDeviceTypeCUDA   = HardwareDeviceType(0x2)
	HardwareDeviceTypeVAAPI  = HardwareDeviceType(0x3)
	HardwareDeviceTypeQSV    = HardwareDeviceType(0x5)
	HardwareDeviceTypeVulkan = HardwareDeviceType(0xb)

	// HardwareDeviceTypeEmulated is not a libav device: it is the pure-Go
	// accelerator from package accel/emulated.
	HardwareDeviceTypeEmulated = HardwareDeviceType(0x100)
)

func HardwareDeviceTypes() []HardwareDeviceType {
	return []HardwareDeviceType{
		HardwareDeviceTypeNone,
		HardwareDeviceTypeVDPAU,
		HardwareDeviceTypeCUDA,
		HardwareDeviceTypeVAAPI,
		HardwareDeviceTypeQSV,
		HardwareDeviceTypeVulkan,
		HardwareDeviceTypeEmulated,
	}
}

func (t HardwareDeviceType) String() string {
	switch t {
	case HardwareDeviceTypeNone:
		return "none"
	case HardwareDeviceTypeVDPAU:
		return "vdpau"
	case HardwareDeviceTypeCUDA:
		return "cuda"
	case HardwareDeviceTypeVAAPI:
		return "vaapi"
	case HardwareDeviceTypeQSV:
		return "qsv"
	case HardwareDeviceTypeVulkan:
		return "vulkan"
	case HardwareDeviceTypeEmulated:
		return "emulated"
	}
	return fmt.Sprintf("unknown_%X", int64(t))
}

// Backend returns the capability profile the device family offers for resizing.
func (t HardwareDeviceType) Backend() AcceleratorBackend {
	switch t {
	case HardwareDeviceTypeVAAPI, HardwareDeviceTypeCUDA, HardwareDeviceTypeQSV:
		return AcceleratorBackendDeclarative
	case HardwareDeviceTypeVulkan, HardwareDeviceTypeEmulated:
		return AcceleratorBackendBlit
	default:
		return AcceleratorBackendNone
	}
}

// PixelFormat returns the opaque pixel format of surfaces produced by the device.
func (t HardwareDeviceType) PixelFormat() PixelFormat {
	switch t {
	case HardwareDeviceTypeVDPAU:
		return PixelFormatVDPAU
	case HardwareDeviceTypeCUDA:
		return PixelFormatCUDA
	case HardwareDeviceTypeVAAPI:
		return PixelFormatVAAPI
	case HardwareDeviceTypeQSV:
		return PixelFormatQSV
	case HardwareDeviceTypeVulkan:
		return PixelFormatVulkan
	case HardwareDeviceTypeEmulated:
		return PixelFormatEmulated
	}
	return PixelFormatUndefined
}

func HardwareDeviceTypeFromString(s string) (HardwareDeviceType, error) {
	s = strings.Trim(strings.ToLower(s), " \"\n\r\t")
	if s == "" {
		return HardwareDeviceTypeNone, nil
	}
	for _, candidate := range HardwareDeviceTypes() {
		if candidate.String() == s {
			return candidate, nil
		}
	}
	return HardwareDeviceTypeNone, fmt.Errorf("unknown hardware device type: '%s'", s)
}

func (t *HardwareDeviceType) UnmarshalText(b []byte) error {
	v, err := HardwareDeviceTypeFromString(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (t HardwareDeviceType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}
