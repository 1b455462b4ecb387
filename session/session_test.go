package session

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/hwscaler/accel/emulated"
	"github.com/xaionaro-go/hwscaler/blit"
	"github.com/xaionaro-go/hwscaler/dispatcher"
	"github.com/xaionaro-go/hwscaler/scaler"
	"github.com/xaionaro-go/hwscaler/sink"
	"github.com/xaionaro-go/hwscaler/types"
)

// scriptedDecoder replays a fixed sequence of decode results.
type scriptedDecoder struct {
	Steps    []func() (*types.Frame, error)
	Buffered []*types.Frame
	Flushed  int
	flushing bool
}

func (d *scriptedDecoder) NextFrame(ctx context.Context) (*types.Frame, error) {
	if d.flushing {
		if len(d.Buffered) == 0 {
			return nil, io.EOF
		}
		f := d.Buffered[0]
		d.Buffered = d.Buffered[1:]
		return f, nil
	}
	if len(d.Steps) == 0 {
		return nil, io.EOF
	}
	step := d.Steps[0]
	d.Steps = d.Steps[1:]
	return step()
}

func (d *scriptedDecoder) Flush(ctx context.Context) error {
	d.Flushed++
	d.flushing = true
	return nil
}

func yield(f *types.Frame) func() (*types.Frame, error) {
	return func() (*types.Frame, error) { return f, nil }
}

func hostYUV420P(w, h int) *types.Frame {
	y := make([]byte, w*h)
	for i := range y {
		y[i] = byte(i)
	}
	u := make([]byte, (w/2)*(h/2))
	v := make([]byte, (w/2)*(h/2))
	return &types.Frame{
		Width:       w,
		Height:      h,
		PixelFormat: types.PixelFormatYUV420P,
		Planes: []types.Plane{
			{Data: y, Stride: w},
			{Data: u, Stride: w / 2},
			{Data: v, Stride: w / 2},
		},
	}
}

func emulatedFrame(w, h int) *types.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	return &types.Frame{
		Width:       w,
		Height:      h,
		PixelFormat: types.PixelFormatEmulated,
		Surface:     emulated.NewSurface(img),
	}
}

func TestServeEndToEnd(t *testing.T) {
	ctx := context.Background()

	actx, _, err := emulated.NewContext(ctx, emulated.DefaultConfig())
	require.NoError(t, err)

	mem := sink.NewMemory()
	d := dispatcher.New(
		types.AcceleratorBackendBlit,
		actx,
		scaler.NewNative(),
		nil,
		blit.New(blit.DefaultConfig()),
		mem,
	)

	dec := &scriptedDecoder{
		Steps: []func() (*types.Frame, error){
			yield(hostYUV420P(64, 64)),
			func() (*types.Frame, error) { return nil, types.ErrWouldBlock },
			yield(emulatedFrame(64, 64)),
			func() (*types.Frame, error) {
				require.NoError(t, actx.Close(ctx))
				return emulatedFrame(64, 64), nil
			},
		},
	}

	s := New(dec, d, types.Resolution{Width: 32, Height: 32})
	summary, err := s.Serve(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, dec.Flushed)
	require.Equal(t, uint64(3), summary.Frames)

	out := mem.Frames(ctx)
	require.Len(t, out, 2)
	for _, f := range out {
		require.Len(t, f.Y, 32*32)
		require.Len(t, f.U, 16*16)
		require.Len(t, f.V, 16*16)
	}

	// pure red through the blit path
	require.InDelta(t, 76, out[1].Y[0], 1)
	require.InDelta(t, 85, out[1].U[0], 1)
	require.InDelta(t, 255, out[1].V[0], 1)

	require.Len(t, summary.Failures, 1)
	require.Equal(t, uint64(3), summary.Failures[0].Seq)
	require.Equal(t, types.ErrorKindUnsupportedBackend, summary.Failures[0].Kind)

	require.Equal(t, uint64(3), summary.Stats.Received)
	require.Equal(t, uint64(1), summary.Stats.Emitted[types.DispatchPathSoftware].Count)
	require.Equal(t, uint64(1), summary.Stats.Emitted[types.DispatchPathBlit].Count)
	require.Equal(t, uint64(1), summary.Stats.Failures[types.ErrorKindUnsupportedBackend])
	require.NotEmpty(t, summary.String())
}

func TestServeDrainsAfterFlush(t *testing.T) {
	ctx := context.Background()
	mem := sink.NewMemory()
	d := dispatcher.New(types.AcceleratorBackendNone, nil, scaler.NewNative(), nil, nil, mem)

	dec := &scriptedDecoder{
		Steps:    []func() (*types.Frame, error){yield(hostYUV420P(16, 16))},
		Buffered: []*types.Frame{hostYUV420P(16, 16), hostYUV420P(16, 16)},
	}
	summary, err := New(dec, d, types.Resolution{Width: 8, Height: 8}).Serve(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), summary.Frames)
	require.Empty(t, summary.Failures)
	require.Len(t, mem.Frames(ctx), 3)
}

func TestServeDecoderFailure(t *testing.T) {
	ctx := context.Background()
	errDecode := errors.New("corrupted bitstream")
	d := dispatcher.New(types.AcceleratorBackendNone, nil, scaler.NewNative(), nil, nil, &sink.Discard{})

	dec := &scriptedDecoder{
		Steps: []func() (*types.Frame, error){
			yield(hostYUV420P(16, 16)),
			func() (*types.Frame, error) { return nil, errDecode },
			yield(hostYUV420P(16, 16)),
		},
	}
	summary, err := New(dec, d, types.Resolution{Width: 8, Height: 8}).Serve(ctx)
	require.ErrorIs(t, err, errDecode)
	require.Equal(t, uint64(1), summary.Frames)
	require.Equal(t, 0, dec.Flushed)
}

func TestServeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := dispatcher.New(types.AcceleratorBackendNone, nil, scaler.NewNative(), nil, nil, &sink.Discard{})

	dec := &scriptedDecoder{
		Steps: []func() (*types.Frame, error){
			func() (*types.Frame, error) {
				cancel()
				return hostYUV420P(16, 16), nil
			},
			yield(hostYUV420P(16, 16)),
		},
	}
	summary, err := New(dec, d, types.Resolution{Width: 8, Height: 8}).Serve(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, uint64(1), summary.Frames)
}
