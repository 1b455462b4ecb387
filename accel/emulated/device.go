// Package emulated implements an accelerator device entirely on the CPU.
//
// Images are RGBA with the row pitch padded to RowPitchAlign bytes, and
// submitted command buffers run asynchronously, so the device exercises the
// same synchronization and stride handling as a real one.
package emulated

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/anthonynsimon/bild/transform"
	"github.com/xaionaro-go/hwscaler/accel"
	"github.com/xaionaro-go/hwscaler/logger"
	"github.com/xaionaro-go/hwscaler/planar"
	"github.com/xaionaro-go/hwscaler/types"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/xsync"
	"golang.org/x/image/draw"
)

const RowPitchAlign = 64

type objectKind int

const (
	objectKindImage = objectKind(iota)
	objectKindView
	objectKindCommandPool
	objectKindCommandBuffer
	objectKindFence
)

type blitCommand struct {
	Src    accel.ViewHandle
	Dst    accel.ViewHandle
	Filter accel.Filter
}

type object struct {
	Kind objectKind

	// image
	Image  *image.RGBA
	Mapped bool

	// view
	ViewOf accel.ImageHandle

	// command buffer
	Pool     accel.CommandPoolHandle
	Commands []blitCommand

	// fence
	Signaled chan struct{}
	Err      error
}

type Config struct {
	QueueFamilies []accel.QueueFamily
}

func DefaultConfig() Config {
	return Config{
		QueueFamilies: []accel.QueueFamily{{
			Index:        0,
			Capabilities: accel.QueueCapabilityGraphics | accel.QueueCapabilityCompute | accel.QueueCapabilityTransfer,
			QueueCount:   1,
		}},
	}
}

type Device struct {
	Config Config

	locker     xsync.Mutex
	objects    map[uint64]*object
	nextHandle uint64
	closed     bool
}

var _ accel.Device = (*Device)(nil)

func NewDevice(cfg Config) *Device {
	return &Device{
		Config:  cfg,
		objects: map[uint64]*object{},
	}
}

func (d *Device) String() string {
	return "EmulatedDevice"
}

func (d *Device) HardwareDeviceType() types.HardwareDeviceType {
	return types.HardwareDeviceTypeEmulated
}

// LiveObjects returns the amount of objects created and not yet released.
func (d *Device) LiveObjects(ctx context.Context) int {
	return xsync.DoR1(ctx, &d.locker, func() int {
		return len(d.objects)
	})
}

func (d *Device) QueueFamilies() []accel.QueueFamily {
	return d.Config.QueueFamilies
}

func (d *Device) Queue(family uint32) (accel.QueueHandle, error) {
	for _, f := range d.Config.QueueFamilies {
		if f.Index == family {
			return accel.QueueHandle(family + 1), nil
		}
	}
	return 0, fmt.Errorf("no queue family #%d", family)
}

func (d *Device) addLocked(obj *object) (uint64, error) {
	if d.closed {
		return 0, fmt.Errorf("device is closed")
	}
	d.nextHandle++
	d.objects[d.nextHandle] = obj
	return d.nextHandle, nil
}

func (d *Device) getLocked(handle uint64, kind objectKind) (*object, error) {
	obj, ok := d.objects[handle]
	if !ok || obj.Kind != kind {
		return nil, fmt.Errorf("invalid handle %d", handle)
	}
	return obj, nil
}

func (d *Device) release(ctx context.Context, handle uint64, kind objectKind) {
	d.locker.Do(ctx, func() {
		if obj, ok := d.objects[handle]; ok && obj.Kind == kind {
			delete(d.objects, handle)
		}
	})
}

func newPaddedRGBA(w, h int) *image.RGBA {
	stride := (w*4 + RowPitchAlign - 1) / RowPitchAlign * RowPitchAlign
	return &image.RGBA{
		Pix:    make([]byte, stride*h),
		Stride: stride,
		Rect:   image.Rect(0, 0, w, h),
	}
}

func (d *Device) ImportSurface(
	ctx context.Context,
	s types.Surface,
) (accel.ImageHandle, accel.ImageInfo, error) {
	surface, ok := s.(*Surface)
	if !ok {
		return 0, accel.ImageInfo{}, fmt.Errorf("surface %s does not belong to %s", s, d)
	}
	if surface.IsReleased() {
		return 0, accel.ImageInfo{}, fmt.Errorf("surface %s is already released", s)
	}
	b := surface.Image.Bounds()
	img := newPaddedRGBA(b.Dx(), b.Dy())
	draw.Copy(img, image.Point{}, surface.Image, b, draw.Src, nil)

	info := accel.ImageInfo{Width: b.Dx(), Height: b.Dy(), Layout: planar.LayoutRGBA}
	handle, err := xsync.DoR2(ctx, &d.locker, func() (uint64, error) {
		return d.addLocked(&object{Kind: objectKindImage, Image: img})
	})
	return accel.ImageHandle(handle), info, err
}

func (d *Device) CreateImage(
	ctx context.Context,
	info accel.ImageInfo,
) (accel.ImageHandle, error) {
	if info.Layout != planar.LayoutRGBA {
		return 0, fmt.Errorf("layout %s is not supported", info.Layout)
	}
	if info.Width <= 0 || info.Height <= 0 {
		return 0, fmt.Errorf("invalid image size %dx%d", info.Width, info.Height)
	}
	img := newPaddedRGBA(info.Width, info.Height)
	handle, err := xsync.DoR2(ctx, &d.locker, func() (uint64, error) {
		return d.addLocked(&object{Kind: objectKindImage, Image: img})
	})
	return accel.ImageHandle(handle), err
}

func (d *Device) DestroyImage(ctx context.Context, img accel.ImageHandle) {
	d.release(ctx, uint64(img), objectKindImage)
}

func (d *Device) CreateImageView(
	ctx context.Context,
	img accel.ImageHandle,
) (accel.ViewHandle, error) {
	handle, err := xsync.DoR2(ctx, &d.locker, func() (uint64, error) {
		if _, err := d.getLocked(uint64(img), objectKindImage); err != nil {
			return 0, err
		}
		return d.addLocked(&object{Kind: objectKindView, ViewOf: img})
	})
	return accel.ViewHandle(handle), err
}

func (d *Device) DestroyImageView(ctx context.Context, view accel.ViewHandle) {
	d.release(ctx, uint64(view), objectKindView)
}

func (d *Device) CreateCommandPool(
	ctx context.Context,
	family uint32,
) (accel.CommandPoolHandle, error) {
	if _, err := d.Queue(family); err != nil {
		return 0, err
	}
	handle, err := xsync.DoR2(ctx, &d.locker, func() (uint64, error) {
		return d.addLocked(&object{Kind: objectKindCommandPool})
	})
	return accel.CommandPoolHandle(handle), err
}

func (d *Device) DestroyCommandPool(ctx context.Context, pool accel.CommandPoolHandle) {
	d.locker.Do(ctx, func() {
		if _, err := d.getLocked(uint64(pool), objectKindCommandPool); err != nil {
			return
		}
		for handle, obj := range d.objects {
			if obj.Kind == objectKindCommandBuffer && obj.Pool == pool {
				delete(d.objects, handle)
			}
		}
		delete(d.objects, uint64(pool))
	})
}

func (d *Device) AllocateCommandBuffer(
	ctx context.Context,
	pool accel.CommandPoolHandle,
) (accel.CommandBufferHandle, error) {
	handle, err := xsync.DoR2(ctx, &d.locker, func() (uint64, error) {
		if _, err := d.getLocked(uint64(pool), objectKindCommandPool); err != nil {
			return 0, err
		}
		return d.addLocked(&object{Kind: objectKindCommandBuffer, Pool: pool})
	})
	return accel.CommandBufferHandle(handle), err
}

func (d *Device) FreeCommandBuffer(
	ctx context.Context,
	pool accel.CommandPoolHandle,
	cmd accel.CommandBufferHandle,
) {
	d.locker.Do(ctx, func() {
		obj, err := d.getLocked(uint64(cmd), objectKindCommandBuffer)
		if err != nil || obj.Pool != pool {
			return
		}
		delete(d.objects, uint64(cmd))
	})
}

func (d *Device) CmdBlitImage(
	ctx context.Context,
	cmd accel.CommandBufferHandle,
	src, dst accel.ViewHandle,
	filter accel.Filter,
) error {
	return xsync.DoR1(ctx, &d.locker, func() error {
		obj, err := d.getLocked(uint64(cmd), objectKindCommandBuffer)
		if err != nil {
			return err
		}
		for _, view := range []accel.ViewHandle{src, dst} {
			if _, err := d.getLocked(uint64(view), objectKindView); err != nil {
				return err
			}
		}
		obj.Commands = append(obj.Commands, blitCommand{Src: src, Dst: dst, Filter: filter})
		return nil
	})
}

func (d *Device) CreateFence(ctx context.Context) (accel.FenceHandle, error) {
	handle, err := xsync.DoR2(ctx, &d.locker, func() (uint64, error) {
		return d.addLocked(&object{Kind: objectKindFence, Signaled: make(chan struct{})})
	})
	return accel.FenceHandle(handle), err
}

func (d *Device) DestroyFence(ctx context.Context, fence accel.FenceHandle) {
	d.release(ctx, uint64(fence), objectKindFence)
}

func (d *Device) QueueSubmit(
	ctx context.Context,
	queue accel.QueueHandle,
	cmd accel.CommandBufferHandle,
	fence accel.FenceHandle,
) error {
	var (
		commands []blitCommand
		signaled chan struct{}
	)
	err := xsync.DoR1(ctx, &d.locker, func() error {
		if d.closed {
			return fmt.Errorf("device is closed")
		}
		if queue == 0 || uint64(queue) > uint64(len(d.Config.QueueFamilies)) {
			return fmt.Errorf("invalid queue %d", queue)
		}
		cmdObj, err := d.getLocked(uint64(cmd), objectKindCommandBuffer)
		if err != nil {
			return err
		}
		fenceObj, err := d.getLocked(uint64(fence), objectKindFence)
		if err != nil {
			return err
		}
		commands = append(commands, cmdObj.Commands...)
		signaled = fenceObj.Signaled
		return nil
	})
	if err != nil {
		return err
	}

	observability.Go(ctx, func(ctx context.Context) {
		var execErr error
		for _, c := range commands {
			if execErr = d.execBlit(ctx, c); execErr != nil {
				break
			}
		}
		d.locker.Do(ctx, func() {
			if obj, ok := d.objects[uint64(fence)]; ok && obj.Kind == objectKindFence {
				obj.Err = execErr
			}
			close(signaled)
		})
	})
	return nil
}

func (d *Device) viewImage(view accel.ViewHandle) (*image.RGBA, error) {
	viewObj, err := d.getLocked(uint64(view), objectKindView)
	if err != nil {
		return nil, err
	}
	imgObj, err := d.getLocked(uint64(viewObj.ViewOf), objectKindImage)
	if err != nil {
		return nil, err
	}
	return imgObj.Image, nil
}

func (d *Device) execBlit(ctx context.Context, c blitCommand) error {
	var src, dst *image.RGBA
	err := xsync.DoR1(ctx, &d.locker, func() error {
		var err error
		if src, err = d.viewImage(c.Src); err != nil {
			return err
		}
		dst, err = d.viewImage(c.Dst)
		return err
	})
	if err != nil {
		return err
	}

	dstBounds := dst.Bounds()
	filter := transform.NearestNeighbor
	if c.Filter == accel.FilterLinear {
		filter = transform.Linear
	}
	scaled := transform.Resize(src, dstBounds.Dx(), dstBounds.Dy(), filter)
	d.locker.Do(ctx, func() {
		draw.Copy(dst, dstBounds.Min, scaled, scaled.Bounds(), draw.Src, nil)
	})
	logger.Tracef(ctx, "blit %s -> %s", src.Bounds(), dstBounds)
	return nil
}

func (d *Device) WaitForFence(
	ctx context.Context,
	fence accel.FenceHandle,
	timeout time.Duration,
) error {
	var signaled chan struct{}
	err := xsync.DoR1(ctx, &d.locker, func() error {
		obj, err := d.getLocked(uint64(fence), objectKindFence)
		if err != nil {
			return err
		}
		signaled = obj.Signaled
		return nil
	})
	if err != nil {
		return err
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timeoutCh:
		return types.ErrTimeout{Stage: "fence-wait", Err: fmt.Errorf("fence %d is not signaled after %v", fence, timeout)}
	case <-signaled:
	}

	return xsync.DoR1(ctx, &d.locker, func() error {
		if obj, ok := d.objects[uint64(fence)]; ok {
			return obj.Err
		}
		return nil
	})
}

func (d *Device) MapImage(
	ctx context.Context,
	img accel.ImageHandle,
) (*accel.Mapping, error) {
	return xsync.DoR2(ctx, &d.locker, func() (*accel.Mapping, error) {
		obj, err := d.getLocked(uint64(img), objectKindImage)
		if err != nil {
			return nil, err
		}
		if obj.Mapped {
			return nil, fmt.Errorf("image %d is already mapped", img)
		}
		obj.Mapped = true
		b := obj.Image.Bounds()
		return &accel.Mapping{
			Layout: planar.LayoutRGBA,
			Width:  b.Dx(),
			Height: b.Dy(),
			Planes: []types.Plane{{Data: obj.Image.Pix, Stride: obj.Image.Stride}},
		}, nil
	})
}

func (d *Device) UnmapImage(ctx context.Context, img accel.ImageHandle) {
	d.locker.Do(ctx, func() {
		if obj, err := d.getLocked(uint64(img), objectKindImage); err == nil {
			obj.Mapped = false
		}
	})
}

func (d *Device) Close(ctx context.Context) error {
	d.locker.Do(ctx, func() {
		d.closed = true
	})
	return nil
}

// NewContext creates a device with the given config and wraps it into an
// accelerator context.
func NewContext(ctx context.Context, cfg Config) (*accel.Context, *Device, error) {
	dev := NewDevice(cfg)
	actx, err := accel.NewContext(ctx, dev)
	if err != nil {
		return nil, nil, err
	}
	return actx, dev, nil
}
