// Package libav implements accel.Device on top of a libav hardware device:
// hardware frames are transferred to host memory and scaled by libswscale.
package libav

import (
	"context"
	"fmt"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/hwscaler/accel"
	"github.com/xaionaro-go/hwscaler/logger"
	"github.com/xaionaro-go/hwscaler/types"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/xsync"
)

const (
	queueFamilyIndex = 0
	imageBufferAlign = 64
)

type image struct {
	Frame  *astiav.Frame
	Info   accel.ImageInfo
	Mapped bool
}

type commandBuffer struct {
	Pool  accel.CommandPoolHandle
	Blits [][2]accel.ViewHandle
}

type fence struct {
	Signaled chan struct{}
	Err      error
}

type Device struct {
	DeviceType            types.HardwareDeviceType
	DeviceName            types.HardwareDeviceName
	HardwareDeviceContext *astiav.HardwareDeviceContext

	locker         xsync.Mutex
	nextHandle     uint64
	images         map[accel.ImageHandle]*image
	views          map[accel.ViewHandle]accel.ImageHandle
	pools          map[accel.CommandPoolHandle]struct{}
	commandBuffers map[accel.CommandBufferHandle]*commandBuffer
	fences         map[accel.FenceHandle]*fence
}

var _ accel.Device = (*Device)(nil)

func NewDevice(
	ctx context.Context,
	deviceType types.HardwareDeviceType,
	deviceName types.HardwareDeviceName,
) (_ret *Device, _err error) {
	logger.Tracef(ctx, "NewDevice(%s, '%s')", deviceType, deviceName)
	defer func() { logger.Tracef(ctx, "/NewDevice(%s, '%s'): %v", deviceType, deviceName, _err) }()

	if deviceType == types.HardwareDeviceTypeNone || deviceType == types.HardwareDeviceTypeEmulated {
		return nil, fmt.Errorf("'%s' is not a libav hardware device type", deviceType)
	}
	hwDevCtx, err := astiav.CreateHardwareDeviceContext(
		astiav.HardwareDeviceType(deviceType),
		string(deviceName),
		nil,
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create hardware (%s:%s) device context: %w", deviceType, deviceName, err)
	}
	return newDevice(deviceType, deviceName, hwDevCtx), nil
}

func newDevice(
	deviceType types.HardwareDeviceType,
	deviceName types.HardwareDeviceName,
	hwDevCtx *astiav.HardwareDeviceContext,
) *Device {
	return &Device{
		DeviceType:            deviceType,
		DeviceName:            deviceName,
		HardwareDeviceContext: hwDevCtx,
		images:                map[accel.ImageHandle]*image{},
		views:                 map[accel.ViewHandle]accel.ImageHandle{},
		pools:                 map[accel.CommandPoolHandle]struct{}{},
		commandBuffers:        map[accel.CommandBufferHandle]*commandBuffer{},
		fences:                map[accel.FenceHandle]*fence{},
	}
}

func (d *Device) String() string {
	return fmt.Sprintf("LibavDevice(%s:%s)", d.DeviceType, d.DeviceName)
}

func (d *Device) HardwareDeviceType() types.HardwareDeviceType {
	return d.DeviceType
}

func (d *Device) QueueFamilies() []accel.QueueFamily {
	return []accel.QueueFamily{{
		Index:        queueFamilyIndex,
		Capabilities: accel.QueueCapabilityGraphics | accel.QueueCapabilityTransfer,
		QueueCount:   1,
	}}
}

func (d *Device) Queue(family uint32) (accel.QueueHandle, error) {
	if family != queueFamilyIndex {
		return 0, fmt.Errorf("no queue family #%d", family)
	}
	return accel.QueueHandle(family + 1), nil
}

func (d *Device) newHandleLocked() uint64 {
	d.nextHandle++
	return d.nextHandle
}

func (d *Device) ImportSurface(
	ctx context.Context,
	s types.Surface,
) (accel.ImageHandle, accel.ImageInfo, error) {
	surface, ok := s.(*Surface)
	if !ok {
		return 0, accel.ImageInfo{}, fmt.Errorf("surface %s does not belong to %s", s, d)
	}
	ref := astiav.AllocFrame()
	if err := ref.Ref(surface.Frame); err != nil {
		ref.Free()
		return 0, accel.ImageInfo{}, fmt.Errorf("unable to reference the surface: %w", err)
	}
	info := accel.ImageInfo{Width: ref.Width(), Height: ref.Height(), Layout: surface.Format.Software}
	handle := xsync.DoR1(ctx, &d.locker, func() accel.ImageHandle {
		h := accel.ImageHandle(d.newHandleLocked())
		d.images[h] = &image{Frame: ref, Info: info}
		return h
	})
	return handle, info, nil
}

func (d *Device) CreateImage(
	ctx context.Context,
	info accel.ImageInfo,
) (accel.ImageHandle, error) {
	pixFmt, ok := PixelFormatToAstiav(info.Layout.PixelFormat())
	if !ok {
		return 0, fmt.Errorf("layout %s is not supported", info.Layout)
	}
	f := astiav.AllocFrame()
	f.SetWidth(info.Width)
	f.SetHeight(info.Height)
	f.SetPixelFormat(pixFmt)
	if err := f.AllocBuffer(imageBufferAlign); err != nil {
		f.Free()
		return 0, fmt.Errorf("unable to allocate a %s image: %w", info, err)
	}
	return xsync.DoR1(ctx, &d.locker, func() accel.ImageHandle {
		h := accel.ImageHandle(d.newHandleLocked())
		d.images[h] = &image{Frame: f, Info: info}
		return h
	}), nil
}

func (d *Device) DestroyImage(ctx context.Context, img accel.ImageHandle) {
	d.locker.Do(ctx, func() {
		if obj, ok := d.images[img]; ok {
			obj.Frame.Free()
			delete(d.images, img)
		}
	})
}

func (d *Device) CreateImageView(
	ctx context.Context,
	img accel.ImageHandle,
) (accel.ViewHandle, error) {
	return xsync.DoR2(ctx, &d.locker, func() (accel.ViewHandle, error) {
		if _, ok := d.images[img]; !ok {
			return 0, fmt.Errorf("invalid image %d", img)
		}
		h := accel.ViewHandle(d.newHandleLocked())
		d.views[h] = img
		return h, nil
	})
}

func (d *Device) DestroyImageView(ctx context.Context, view accel.ViewHandle) {
	d.locker.Do(ctx, func() {
		delete(d.views, view)
	})
}

func (d *Device) CreateCommandPool(
	ctx context.Context,
	family uint32,
) (accel.CommandPoolHandle, error) {
	if _, err := d.Queue(family); err != nil {
		return 0, err
	}
	return xsync.DoR1(ctx, &d.locker, func() accel.CommandPoolHandle {
		h := accel.CommandPoolHandle(d.newHandleLocked())
		d.pools[h] = struct{}{}
		return h
	}), nil
}

func (d *Device) DestroyCommandPool(ctx context.Context, pool accel.CommandPoolHandle) {
	d.locker.Do(ctx, func() {
		for h, cb := range d.commandBuffers {
			if cb.Pool == pool {
				delete(d.commandBuffers, h)
			}
		}
		delete(d.pools, pool)
	})
}

func (d *Device) AllocateCommandBuffer(
	ctx context.Context,
	pool accel.CommandPoolHandle,
) (accel.CommandBufferHandle, error) {
	return xsync.DoR2(ctx, &d.locker, func() (accel.CommandBufferHandle, error) {
		if _, ok := d.pools[pool]; !ok {
			return 0, fmt.Errorf("invalid command pool %d", pool)
		}
		h := accel.CommandBufferHandle(d.newHandleLocked())
		d.commandBuffers[h] = &commandBuffer{Pool: pool}
		return h, nil
	})
}

func (d *Device) FreeCommandBuffer(
	ctx context.Context,
	pool accel.CommandPoolHandle,
	cmd accel.CommandBufferHandle,
) {
	d.locker.Do(ctx, func() {
		if cb, ok := d.commandBuffers[cmd]; ok && cb.Pool == pool {
			delete(d.commandBuffers, cmd)
		}
	})
}

func (d *Device) CmdBlitImage(
	ctx context.Context,
	cmd accel.CommandBufferHandle,
	src, dst accel.ViewHandle,
	filter accel.Filter,
) error {
	if filter != accel.FilterLinear {
		return fmt.Errorf("filter %s is not supported", filter)
	}
	return xsync.DoR1(ctx, &d.locker, func() error {
		cb, ok := d.commandBuffers[cmd]
		if !ok {
			return fmt.Errorf("invalid command buffer %d", cmd)
		}
		cb.Blits = append(cb.Blits, [2]accel.ViewHandle{src, dst})
		return nil
	})
}

func (d *Device) CreateFence(ctx context.Context) (accel.FenceHandle, error) {
	return xsync.DoR1(ctx, &d.locker, func() accel.FenceHandle {
		h := accel.FenceHandle(d.newHandleLocked())
		d.fences[h] = &fence{Signaled: make(chan struct{})}
		return h
	}), nil
}

func (d *Device) DestroyFence(ctx context.Context, f accel.FenceHandle) {
	d.locker.Do(ctx, func() {
		delete(d.fences, f)
	})
}

func (d *Device) QueueSubmit(
	ctx context.Context,
	queue accel.QueueHandle,
	cmd accel.CommandBufferHandle,
	fenceHandle accel.FenceHandle,
) error {
	if queue != queueFamilyIndex+1 {
		return fmt.Errorf("invalid queue %d", queue)
	}
	type blitJob struct {
		Src, Dst *astiav.Frame
	}
	var (
		jobs []blitJob
		f    *fence
	)
	err := xsync.DoR1(ctx, &d.locker, func() error {
		cb, ok := d.commandBuffers[cmd]
		if !ok {
			return fmt.Errorf("invalid command buffer %d", cmd)
		}
		if f, ok = d.fences[fenceHandle]; !ok {
			return fmt.Errorf("invalid fence %d", fenceHandle)
		}
		for _, blit := range cb.Blits {
			src, dst := d.images[d.views[blit[0]]], d.images[d.views[blit[1]]]
			if src == nil || dst == nil {
				return fmt.Errorf("command buffer %d references a destroyed image", cmd)
			}
			job := blitJob{Src: astiav.AllocFrame(), Dst: astiav.AllocFrame()}
			jobs = append(jobs, job)
			if err := job.Src.Ref(src.Frame); err != nil {
				return fmt.Errorf("unable to reference the source image: %w", err)
			}
			if err := job.Dst.Ref(dst.Frame); err != nil {
				return fmt.Errorf("unable to reference the destination image: %w", err)
			}
		}
		return nil
	})
	// the jobs hold their own references, so the images may be destroyed
	// while the blit is still running
	freeJobs := func() {
		for _, job := range jobs {
			job.Src.Free()
			job.Dst.Free()
		}
	}
	if err != nil {
		freeJobs()
		return err
	}

	observability.Go(ctx, func(ctx context.Context) {
		defer freeJobs()
		var execErr error
		for _, job := range jobs {
			if execErr = scaleInto(job.Dst, job.Src); execErr != nil {
				break
			}
		}
		d.locker.Do(ctx, func() {
			f.Err = execErr
			close(f.Signaled)
		})
	})
	return nil
}

// scaleInto downloads src if it is a hardware frame and scales it into dst.
func scaleInto(dst, src *astiav.Frame) error {
	if PixelFormatFromAstiav(src.PixelFormat()).IsHardware() {
		sw := astiav.AllocFrame()
		defer sw.Free()
		if err := src.TransferHardwareData(sw); err != nil {
			return fmt.Errorf("unable to transfer the frame from the hardware: %w", err)
		}
		src = sw
	}
	sws, err := astiav.CreateSoftwareScaleContext(
		src.Width(), src.Height(), src.PixelFormat(),
		dst.Width(), dst.Height(), dst.PixelFormat(),
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
	)
	if err != nil {
		return fmt.Errorf("unable to create a scale context: %w", err)
	}
	defer sws.Free()
	if err := sws.ScaleFrame(src, dst); err != nil {
		return fmt.Errorf("unable to scale: %w", err)
	}
	return nil
}

func (d *Device) WaitForFence(
	ctx context.Context,
	fenceHandle accel.FenceHandle,
	timeout time.Duration,
) error {
	f, err := xsync.DoR2(ctx, &d.locker, func() (*fence, error) {
		f, ok := d.fences[fenceHandle]
		if !ok {
			return nil, fmt.Errorf("invalid fence %d", fenceHandle)
		}
		return f, nil
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
		return types.ErrTimeout{Stage: "fence-wait", Err: fmt.Errorf("fence %d is not signaled after %v", fenceHandle, timeout)}
	case <-f.Signaled:
	}
	return xsync.DoR1(ctx, &d.locker, func() error {
		return f.Err
	})
}

func (d *Device) MapImage(
	ctx context.Context,
	img accel.ImageHandle,
) (*accel.Mapping, error) {
	obj, err := xsync.DoR2(ctx, &d.locker, func() (*image, error) {
		obj, ok := d.images[img]
		if !ok {
			return nil, fmt.Errorf("invalid image %d", img)
		}
		if obj.Mapped {
			return nil, fmt.Errorf("image %d is already mapped", img)
		}
		obj.Mapped = true
		return obj, nil
	})
	if err != nil {
		return nil, err
	}

	m, err := mapFrame(obj.Frame)
	if err != nil {
		d.UnmapImage(ctx, img)
		return nil, err
	}
	return m, nil
}

func mapFrame(f *astiav.Frame) (*accel.Mapping, error) {
	if PixelFormatFromAstiav(f.PixelFormat()).IsHardware() {
		sw := astiav.AllocFrame()
		defer sw.Free()
		if err := f.TransferHardwareData(sw); err != nil {
			return nil, fmt.Errorf("unable to transfer the frame from the hardware: %w", err)
		}
		f = sw
	}
	layout, ok := layoutFromAstiav(f.PixelFormat())
	if !ok {
		return nil, types.ErrUnknownFormat{PixelFormat: PixelFormatFromAstiav(f.PixelFormat())}
	}
	size, err := f.ImageBufferSize(1)
	if err != nil {
		return nil, fmt.Errorf("unable to get the image size: %w", err)
	}
	buf := make([]byte, size)
	if _, err := f.ImageCopyToBuffer(buf, 1); err != nil {
		return nil, fmt.Errorf("unable to copy the image: %w", err)
	}
	return &accel.Mapping{
		Layout: layout,
		Width:  f.Width(),
		Height: f.Height(),
		Planes: tightPlanes(buf, layout, f.Width(), f.Height()),
	}, nil
}

func (d *Device) UnmapImage(ctx context.Context, img accel.ImageHandle) {
	d.locker.Do(ctx, func() {
		if obj, ok := d.images[img]; ok {
			obj.Mapped = false
		}
	})
}

func (d *Device) Close(ctx context.Context) error {
	d.locker.Do(ctx, func() {
		for h, obj := range d.images {
			obj.Frame.Free()
			delete(d.images, h)
		}
		if d.HardwareDeviceContext != nil {
			d.HardwareDeviceContext.Free()
			d.HardwareDeviceContext = nil
		}
	})
	return nil
}

// NewContext opens the hardware device and wraps it into an accelerator context.
func NewContext(
	ctx context.Context,
	deviceType types.HardwareDeviceType,
	deviceName types.HardwareDeviceName,
) (*accel.Context, *Device, error) {
	dev, err := NewDevice(ctx, deviceType, deviceName)
	if err != nil {
		return nil, nil, types.ErrContextInitFailed{Stage: "device", Err: err}
	}
	actx, err := accel.NewContext(ctx, dev)
	if err != nil {
		return nil, nil, err
	}
	return actx, dev, nil
}
