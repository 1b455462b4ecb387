// Package accel describes an accelerator device at the level of explicit
// command submission: images, views, command pools and buffers, fences and
// host mappings.
package accel

import (
	"context"
	"fmt"
	"time"

	"github.com/xaionaro-go/hwscaler/planar"
	"github.com/xaionaro-go/hwscaler/types"
)

type (
	QueueHandle         uint64
	ImageHandle         uint64
	ViewHandle          uint64
	CommandPoolHandle   uint64
	CommandBufferHandle uint64
	FenceHandle         uint64
)

type QueueCapability uint

const (
	QueueCapabilityGraphics = QueueCapability(1 << iota)
	QueueCapabilityCompute
	QueueCapabilityTransfer
)

func (c QueueCapability) Has(other QueueCapability) bool {
	return c&other == other
}

func (c QueueCapability) String() string {
	var s string
	for _, item := range []struct {
		Flag QueueCapability
		Name string
	}{
		{QueueCapabilityGraphics, "graphics"},
		{QueueCapabilityCompute, "compute"},
		{QueueCapabilityTransfer, "transfer"},
	} {
		if !c.Has(item.Flag) {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += item.Name
	}
	if s == "" {
		return "none"
	}
	return s
}

// BlitQueueCapabilities is what a queue must support to execute a blit.
const BlitQueueCapabilities = QueueCapabilityGraphics | QueueCapabilityTransfer

type QueueFamily struct {
	Index        uint32
	Capabilities QueueCapability
	QueueCount   uint32
}

func (f QueueFamily) String() string {
	return fmt.Sprintf("family#%d(%s)", f.Index, f.Capabilities)
}

type Filter int

const (
	FilterNearest = Filter(iota)
	FilterLinear
)

func (f Filter) String() string {
	switch f {
	case FilterNearest:
		return "nearest"
	case FilterLinear:
		return "linear"
	}
	return fmt.Sprintf("unknown_filter_%d", int(f))
}

type ImageInfo struct {
	Width  int
	Height int
	Layout planar.Layout
}

func (i ImageInfo) String() string {
	return fmt.Sprintf("%dx%d:%s", i.Width, i.Height, i.Layout)
}

// Mapping is a host view of an image's memory. Plane strides are the row
// pitches reported by the device and may include padding.
type Mapping struct {
	Layout planar.Layout
	Width  int
	Height int
	Planes []types.Plane
}

// Device is an accelerator able to execute copy-with-scale commands.
//
// Every Create*/Allocate*/Import* call yields an object that must be
// released with the matching Destroy*/Free* call.
type Device interface {
	fmt.Stringer

	HardwareDeviceType() types.HardwareDeviceType
	QueueFamilies() []QueueFamily
	Queue(family uint32) (QueueHandle, error)

	// ImportSurface wraps an accelerator-resident decoded surface into an image.
	ImportSurface(ctx context.Context, s types.Surface) (ImageHandle, ImageInfo, error)
	CreateImage(ctx context.Context, info ImageInfo) (ImageHandle, error)
	DestroyImage(ctx context.Context, img ImageHandle)
	CreateImageView(ctx context.Context, img ImageHandle) (ViewHandle, error)
	DestroyImageView(ctx context.Context, view ViewHandle)

	CreateCommandPool(ctx context.Context, family uint32) (CommandPoolHandle, error)
	DestroyCommandPool(ctx context.Context, pool CommandPoolHandle)
	AllocateCommandBuffer(ctx context.Context, pool CommandPoolHandle) (CommandBufferHandle, error)
	FreeCommandBuffer(ctx context.Context, pool CommandPoolHandle, cmd CommandBufferHandle)

	// CmdBlitImage records a scale-copy from the full extent of src to the
	// full extent of dst.
	CmdBlitImage(ctx context.Context, cmd CommandBufferHandle, src, dst ViewHandle, filter Filter) error

	CreateFence(ctx context.Context) (FenceHandle, error)
	DestroyFence(ctx context.Context, fence FenceHandle)
	QueueSubmit(ctx context.Context, queue QueueHandle, cmd CommandBufferHandle, fence FenceHandle) error

	// WaitForFence blocks until the fence is signaled. A positive timeout
	// bounds the wait and yields types.ErrTimeout when exceeded.
	WaitForFence(ctx context.Context, fence FenceHandle, timeout time.Duration) error

	MapImage(ctx context.Context, img ImageHandle) (*Mapping, error)
	UnmapImage(ctx context.Context, img ImageHandle)

	Close(ctx context.Context) error
}
