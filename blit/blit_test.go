package blit

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/hwscaler/accel"
	"github.com/xaionaro-go/hwscaler/accel/emulated"
	"github.com/xaionaro-go/hwscaler/planar"
	"github.com/xaionaro-go/hwscaler/types"
)

var errInjected = errors.New("injected fault")

// faultyDevice fails the named step of the blit sequence.
type faultyDevice struct {
	*emulated.Device
	FailAt    string
	viewCalls int
}

func (d *faultyDevice) ImportSurface(ctx context.Context, s types.Surface) (accel.ImageHandle, accel.ImageInfo, error) {
	if d.FailAt == "import" {
		return 0, accel.ImageInfo{}, errInjected
	}
	return d.Device.ImportSurface(ctx, s)
}

func (d *faultyDevice) CreateImage(ctx context.Context, info accel.ImageInfo) (accel.ImageHandle, error) {
	if d.FailAt == "image" {
		return 0, errInjected
	}
	return d.Device.CreateImage(ctx, info)
}

func (d *faultyDevice) CreateImageView(ctx context.Context, img accel.ImageHandle) (accel.ViewHandle, error) {
	d.viewCalls++
	if d.FailAt == fmt.Sprintf("view%d", d.viewCalls) {
		return 0, errInjected
	}
	return d.Device.CreateImageView(ctx, img)
}

func (d *faultyDevice) AllocateCommandBuffer(ctx context.Context, pool accel.CommandPoolHandle) (accel.CommandBufferHandle, error) {
	if d.FailAt == "command-buffer" {
		return 0, errInjected
	}
	return d.Device.AllocateCommandBuffer(ctx, pool)
}

func (d *faultyDevice) CmdBlitImage(ctx context.Context, cmd accel.CommandBufferHandle, src, dst accel.ViewHandle, filter accel.Filter) error {
	if d.FailAt == "record" {
		return errInjected
	}
	return d.Device.CmdBlitImage(ctx, cmd, src, dst, filter)
}

func (d *faultyDevice) CreateFence(ctx context.Context) (accel.FenceHandle, error) {
	if d.FailAt == "fence" {
		return 0, errInjected
	}
	return d.Device.CreateFence(ctx)
}

func (d *faultyDevice) QueueSubmit(ctx context.Context, queue accel.QueueHandle, cmd accel.CommandBufferHandle, fence accel.FenceHandle) error {
	switch d.FailAt {
	case "submit":
		return errInjected
	case "stall":
		return nil
	}
	return d.Device.QueueSubmit(ctx, queue, cmd, fence)
}

func (d *faultyDevice) WaitForFence(ctx context.Context, fence accel.FenceHandle, timeout time.Duration) error {
	if d.FailAt == "wait" {
		return errInjected
	}
	return d.Device.WaitForFence(ctx, fence, timeout)
}

func (d *faultyDevice) MapImage(ctx context.Context, img accel.ImageHandle) (*accel.Mapping, error) {
	if d.FailAt == "map" {
		return nil, errInjected
	}
	return d.Device.MapImage(ctx, img)
}

func solidFrame(w, h int, c color.RGBA) *types.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return &types.Frame{
		Width:       w,
		Height:      h,
		PixelFormat: types.PixelFormatEmulated,
		Surface:     emulated.NewSurface(img),
	}
}

func newTestContext(t *testing.T, dev accel.Device) *accel.Context {
	actx, err := accel.NewContext(context.Background(), dev)
	require.NoError(t, err)
	t.Cleanup(func() { _ = actx.Close(context.Background()) })
	return actx
}

func TestBlitAndRead(t *testing.T) {
	ctx := context.Background()
	dev := emulated.NewDevice(emulated.DefaultConfig())
	actx := newTestContext(t, dev)
	baseline := dev.LiveObjects(ctx)

	out, err := New(DefaultConfig()).BlitAndRead(
		ctx,
		solidFrame(64, 64, color.RGBA{A: 255}),
		types.Resolution{Width: 32, Height: 32},
		actx,
	)
	require.NoError(t, err)
	require.NoError(t, out.Validate())
	require.Len(t, out.Y, 1024)
	require.Len(t, out.U, 256)
	require.Len(t, out.V, 256)
	for i := range out.Y {
		require.Equal(t, byte(0), out.Y[i])
	}
	for i := range out.U {
		require.Equal(t, byte(128), out.U[i])
		require.Equal(t, byte(128), out.V[i])
	}
	require.Equal(t, baseline, dev.LiveObjects(ctx))
}

func TestBlitAndReadReleasesOnFailure(t *testing.T) {
	for _, tc := range []struct {
		failAt string
		kind   types.ErrorKind
	}{
		{"import", types.ErrorKindAllocationFailed},
		{"image", types.ErrorKindAllocationFailed},
		{"view1", types.ErrorKindAllocationFailed},
		{"view2", types.ErrorKindAllocationFailed},
		{"command-buffer", types.ErrorKindBlitSubmitFailed},
		{"record", types.ErrorKindBlitSubmitFailed},
		{"fence", types.ErrorKindBlitSubmitFailed},
		{"submit", types.ErrorKindBlitSubmitFailed},
		{"wait", types.ErrorKindFenceWaitFailed},
		{"stall", types.ErrorKindTimeout},
		{"map", types.ErrorKindMemoryMapFailed},
	} {
		tc := tc
		t.Run(tc.failAt, func(t *testing.T) {
			ctx := context.Background()
			dev := &faultyDevice{Device: emulated.NewDevice(emulated.DefaultConfig()), FailAt: tc.failAt}
			actx := newTestContext(t, dev)
			baseline := dev.LiveObjects(ctx)

			p := New(Config{FenceTimeout: 20 * time.Millisecond})
			out, err := p.BlitAndRead(ctx, solidFrame(16, 16, color.RGBA{R: 1, A: 255}), types.Resolution{Width: 8, Height: 8}, actx)
			require.Error(t, err)
			require.Nil(t, out)
			require.Equal(t, tc.kind, types.ErrorKindOf(err), "%v", err)
			require.Equal(t, baseline, dev.LiveObjects(ctx))
		})
	}
}

func TestBlitAndReadNoSuitableQueue(t *testing.T) {
	ctx := context.Background()
	dev := emulated.NewDevice(emulated.Config{
		QueueFamilies: []accel.QueueFamily{{Index: 0, Capabilities: accel.QueueCapabilityCompute, QueueCount: 1}},
	})
	actx := newTestContext(t, dev)
	baseline := dev.LiveObjects(ctx)

	_, err := New(DefaultConfig()).BlitAndRead(ctx, solidFrame(4, 4, color.RGBA{}), types.Resolution{Width: 2, Height: 2}, actx)
	require.Equal(t, types.ErrorKindNoSuitableQueue, types.ErrorKindOf(err))
	require.Equal(t, baseline, dev.LiveObjects(ctx))
}

func TestBlitAndReadTransientPool(t *testing.T) {
	ctx := context.Background()
	dev := emulated.NewDevice(emulated.Config{
		QueueFamilies: []accel.QueueFamily{
			{Index: 0, Capabilities: accel.QueueCapabilityCompute, QueueCount: 1},
			{Index: 1, Capabilities: accel.BlitQueueCapabilities, QueueCount: 1},
		},
	})
	queue, err := dev.Queue(0)
	require.NoError(t, err)
	pool, err := dev.CreateCommandPool(ctx, 0)
	require.NoError(t, err)
	defer dev.DestroyCommandPool(ctx, pool)
	actx := &accel.Context{Device: dev, QueueFamily: 0, Queue: queue, CommandPool: pool}
	baseline := dev.LiveObjects(ctx)

	out, err := New(DefaultConfig()).BlitAndRead(ctx, solidFrame(4, 4, color.RGBA{}), types.Resolution{Width: 2, Height: 2}, actx)
	require.NoError(t, err)
	require.Len(t, out.Y, 4)
	require.Equal(t, baseline, dev.LiveObjects(ctx))
}

func TestBlitAndReadClosedContext(t *testing.T) {
	ctx := context.Background()
	actx, _, err := emulated.NewContext(ctx, emulated.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, actx.Close(ctx))

	_, err = New(DefaultConfig()).BlitAndRead(ctx, solidFrame(4, 4, color.RGBA{}), types.Resolution{Width: 2, Height: 2}, actx)
	require.Equal(t, types.ErrorKindUnsupportedBackend, types.ErrorKindOf(err))

	_, err = New(DefaultConfig()).BlitAndRead(ctx, solidFrame(4, 4, color.RGBA{}), types.Resolution{Width: 2, Height: 2}, nil)
	require.Equal(t, types.ErrorKindUnsupportedBackend, types.ErrorKindOf(err))
}

func TestBlitAndReadOddTarget(t *testing.T) {
	ctx := context.Background()
	dev := emulated.NewDevice(emulated.DefaultConfig())
	actx := newTestContext(t, dev)
	baseline := dev.LiveObjects(ctx)

	_, err := New(DefaultConfig()).BlitAndRead(ctx, solidFrame(4, 4, color.RGBA{}), types.Resolution{Width: 3, Height: 2}, actx)
	require.Equal(t, types.ErrorKindAllocationFailed, types.ErrorKindOf(err))
	require.Equal(t, baseline, dev.LiveObjects(ctx))
}

func TestReadback(t *testing.T) {
	ctx := context.Background()
	dev := emulated.NewDevice(emulated.DefaultConfig())
	actx := newTestContext(t, dev)
	baseline := dev.LiveObjects(ctx)

	c := color.RGBA{R: 10, G: 20, B: 30, A: 255}
	out, err := New(DefaultConfig()).Readback(ctx, solidFrame(6, 4, c), actx)
	require.NoError(t, err)
	require.Equal(t, 6, out.Width)
	require.Equal(t, 4, out.Height)

	luma := planar.Luma(c.R, c.G, c.B)
	require.Equal(t, luma, out.Y[0])
	require.Equal(t, planar.ChromaU(c.B, luma), out.U[0])
	require.Equal(t, planar.ChromaV(c.R, luma), out.V[0])
	require.Equal(t, baseline, dev.LiveObjects(ctx))
}
