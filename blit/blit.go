// Package blit resizes accelerator-resident frames with an explicit
// copy-with-scale command and reads the result back into host memory.
package blit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/xaionaro-go/hwscaler/accel"
	"github.com/xaionaro-go/hwscaler/logger"
	"github.com/xaionaro-go/hwscaler/planar"
	"github.com/xaionaro-go/hwscaler/types"
)

type Config struct {
	// FenceTimeout bounds the wait for blit completion. Zero means the wait
	// is bounded only by the context.
	FenceTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		FenceTimeout: 10 * time.Second,
	}
}

type Pipeline struct {
	Config Config
}

func New(cfg Config) *Pipeline {
	return &Pipeline{Config: cfg}
}

func (p *Pipeline) String() string {
	return "BlitPipeline"
}

// BlitAndRead scales the frame's surface to dst on the accelerator of actx
// and returns the result in the canonical planar layout. Every object it
// creates is released before it returns, on success and on failure alike.
func (p *Pipeline) BlitAndRead(
	ctx context.Context,
	frame *types.Frame,
	dst types.Resolution,
	actx *accel.Context,
) (_ret *planar.Frame, _err error) {
	logger.Tracef(ctx, "BlitAndRead(%s -> %s)", frame, dst)
	defer func() { logger.Tracef(ctx, "/BlitAndRead(%s -> %s): %v", frame, dst, _err) }()

	if err := dst.Validate(); err != nil {
		return nil, types.ErrAllocationFailed{Stage: "validate-target", Err: err}
	}
	if frame.Surface == nil {
		return nil, types.ErrUnknownFormat{PixelFormat: frame.PixelFormat}
	}

	err := actx.Do(ctx, func() error {
		var err error
		_ret, err = p.blitAndRead(ctx, frame.Surface, dst, actx)
		return err
	})
	if errors.Is(err, accel.ErrClosed) {
		return nil, types.ErrUnsupportedBackend{Backend: types.AcceleratorBackendBlit, Err: err}
	}
	return _ret, err
}

func (p *Pipeline) blitAndRead(
	ctx context.Context,
	surface types.Surface,
	dst types.Resolution,
	actx *accel.Context,
) (*planar.Frame, error) {
	dev := actx.Device
	closer := astikit.NewCloser()
	defer closer.Close()

	// 1. surfaces
	srcImg, srcInfo, err := dev.ImportSurface(ctx, surface)
	if err != nil {
		return nil, types.ErrAllocationFailed{Stage: "import-source", Err: err}
	}
	closer.Add(func() { dev.DestroyImage(ctx, srcImg) })

	dstInfo := accel.ImageInfo{
		Width:  int(dst.Width),
		Height: int(dst.Height),
		Layout: planar.LayoutRGBA,
	}
	dstImg, err := dev.CreateImage(ctx, dstInfo)
	if err != nil {
		return nil, types.ErrAllocationFailed{Stage: "destination-image", Err: err}
	}
	closer.Add(func() { dev.DestroyImage(ctx, dstImg) })

	// 2. views
	srcView, err := dev.CreateImageView(ctx, srcImg)
	if err != nil {
		return nil, types.ErrAllocationFailed{Stage: "source-view", Err: err}
	}
	closer.Add(func() { dev.DestroyImageView(ctx, srcView) })

	dstView, err := dev.CreateImageView(ctx, dstImg)
	if err != nil {
		return nil, types.ErrAllocationFailed{Stage: "destination-view", Err: err}
	}
	closer.Add(func() { dev.DestroyImageView(ctx, dstView) })

	// 3. queue
	family, err := resolveQueueFamily(dev.QueueFamilies())
	if err != nil {
		return nil, err
	}
	queue, pool := actx.Queue, actx.CommandPool
	if family.Index != actx.QueueFamily {
		if queue, err = dev.Queue(family.Index); err != nil {
			return nil, types.ErrNoSuitableQueue{Err: err}
		}
		if pool, err = dev.CreateCommandPool(ctx, family.Index); err != nil {
			return nil, types.ErrBlitSubmitFailed{Stage: "command-pool", Err: err}
		}
		transientPool := pool
		closer.Add(func() { dev.DestroyCommandPool(ctx, transientPool) })
	}

	// 4. record
	cmd, err := dev.AllocateCommandBuffer(ctx, pool)
	if err != nil {
		return nil, types.ErrBlitSubmitFailed{Stage: "command-buffer", Err: err}
	}
	closer.Add(func() { dev.FreeCommandBuffer(ctx, pool, cmd) })

	if err := dev.CmdBlitImage(ctx, cmd, srcView, dstView, accel.FilterLinear); err != nil {
		return nil, types.ErrBlitSubmitFailed{Stage: "record", Err: err}
	}

	// 5. submit and wait
	fence, err := dev.CreateFence(ctx)
	if err != nil {
		return nil, types.ErrBlitSubmitFailed{Stage: "fence", Err: err}
	}
	closer.Add(func() { dev.DestroyFence(ctx, fence) })

	if err := dev.QueueSubmit(ctx, queue, cmd, fence); err != nil {
		return nil, types.ErrBlitSubmitFailed{Stage: "submit", Err: err}
	}
	if err := p.waitForFence(ctx, dev, fence); err != nil {
		return nil, err
	}

	logger.Tracef(ctx, "blitted %s to %s", srcInfo, dstInfo)

	// 6. readback
	return readImage(ctx, dev, dstImg, closer)
}

func resolveQueueFamily(families []accel.QueueFamily) (accel.QueueFamily, error) {
	for _, family := range families {
		if family.Capabilities.Has(accel.BlitQueueCapabilities) && family.QueueCount > 0 {
			return family, nil
		}
	}
	return accel.QueueFamily{}, types.ErrNoSuitableQueue{
		Err: fmt.Errorf("checked %d queue families", len(families)),
	}
}

func (p *Pipeline) waitForFence(
	ctx context.Context,
	dev accel.Device,
	fence accel.FenceHandle,
) error {
	err := dev.WaitForFence(ctx, fence, p.Config.FenceTimeout)
	switch {
	case err == nil:
		return nil
	case types.ErrorKindOf(err) == types.ErrorKindTimeout:
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return types.ErrTimeout{Stage: "fence-wait", Err: err}
	default:
		return types.ErrFenceWaitFailed{Err: err}
	}
}

// Readback converts the frame's surface to the canonical planar layout at
// its own resolution, without scaling.
func (p *Pipeline) Readback(
	ctx context.Context,
	frame *types.Frame,
	actx *accel.Context,
) (_ret *planar.Frame, _err error) {
	logger.Tracef(ctx, "Readback(%s)", frame)
	defer func() { logger.Tracef(ctx, "/Readback(%s): %v", frame, _err) }()

	if frame.Surface == nil {
		return nil, types.ErrUnknownFormat{PixelFormat: frame.PixelFormat}
	}

	err := actx.Do(ctx, func() error {
		dev := actx.Device
		closer := astikit.NewCloser()
		defer closer.Close()

		img, _, err := dev.ImportSurface(ctx, frame.Surface)
		if err != nil {
			return types.ErrAllocationFailed{Stage: "import-source", Err: err}
		}
		closer.Add(func() { dev.DestroyImage(ctx, img) })

		_ret, err = readImage(ctx, dev, img, closer)
		return err
	})
	if errors.Is(err, accel.ErrClosed) {
		return nil, types.ErrUnsupportedBackend{Backend: types.AcceleratorBackendBlit, Err: err}
	}
	return _ret, err
}

func readImage(
	ctx context.Context,
	dev accel.Device,
	img accel.ImageHandle,
	closer *astikit.Closer,
) (*planar.Frame, error) {
	m, err := dev.MapImage(ctx, img)
	if err != nil {
		return nil, types.ErrMemoryMapFailed{Err: err}
	}
	closer.Add(func() { dev.UnmapImage(ctx, img) })

	out, err := planar.FromPlanes(m.Width, m.Height, m.Layout.PixelFormat(), m.Planes)
	if err != nil {
		if types.ErrorKindOf(err) != types.ErrorKindUndefined {
			return nil, err
		}
		return nil, types.ErrMemoryMapFailed{Err: err}
	}
	return out, nil
}
