// Package dispatcher routes each decoded frame to exactly one processing
// path according to its residency and the accelerator's capabilities.
package dispatcher

import (
	"context"
	"fmt"
	"iter"

	"github.com/xaionaro-go/hwscaler/accel"
	"github.com/xaionaro-go/hwscaler/logger"
	"github.com/xaionaro-go/hwscaler/planar"
	"github.com/xaionaro-go/hwscaler/types"
	"github.com/xaionaro-go/xsync"
)

type Resampler interface {
	Resample(ctx context.Context, src *types.Frame, dst types.Resolution) (*planar.Frame, error)
}

type GraphResizer interface {
	Resize(ctx context.Context, frame *types.Frame, dst types.Resolution) iter.Seq2[*planar.Frame, error]
}

type Blitter interface {
	BlitAndRead(ctx context.Context, frame *types.Frame, dst types.Resolution, actx *accel.Context) (*planar.Frame, error)
	Readback(ctx context.Context, frame *types.Frame, actx *accel.Context) (*planar.Frame, error)
}

// Sink receives the output. WritePlanarFrame may block to apply back-pressure.
type Sink interface {
	WritePlanarFrame(ctx context.Context, frame *planar.Frame) error
}

type Dispatcher struct {
	Backend      types.AcceleratorBackend
	AccelContext *accel.Context

	Resampler    Resampler
	GraphResizer GraphResizer
	Blitter      Blitter
	Sink         Sink

	Counters *types.Counters
	Metrics  *Metrics

	locker xsync.Mutex
}

func New(
	backend types.AcceleratorBackend,
	actx *accel.Context,
	resampler Resampler,
	graphResizer GraphResizer,
	blitter Blitter,
	sink Sink,
) *Dispatcher {
	return &Dispatcher{
		Backend:      backend,
		AccelContext: actx,
		Resampler:    resampler,
		GraphResizer: graphResizer,
		Blitter:      blitter,
		Sink:         sink,
		Counters:     types.NewCounters(),
	}
}

func (d *Dispatcher) String() string {
	return fmt.Sprintf("Dispatcher(%s)", d.Backend)
}

// Dispatch processes a single frame and releases it. Frames are processed
// one at a time; a concurrent call waits for the previous one to finish.
//
// A returned error concerns this frame only.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	frame *types.Frame,
	dst types.Resolution,
) (_err error) {
	logger.Tracef(ctx, "Dispatch(%s, %s)", frame, dst)
	defer func() { logger.Tracef(ctx, "/Dispatch(%s, %s): %v", frame, dst, _err) }()

	return xsync.DoR1(ctx, &d.locker, func() error {
		defer frame.Release()
		d.Counters.Received.Add(1)
		err := d.dispatch(ctx, frame, dst)
		if err != nil {
			kind := types.ErrorKindOf(err)
			d.Counters.IncrementFailures(kind)
			d.Metrics.observeFailure(kind)
		}
		return err
	})
}

func (d *Dispatcher) dispatch(
	ctx context.Context,
	frame *types.Frame,
	dst types.Resolution,
) error {
	if frame == nil {
		return types.ErrUnknownFormat{PixelFormat: types.PixelFormatUndefined}
	}

	if frame.PixelFormat.IsHardware() && d.AccelContext.IsClosed(ctx) {
		return types.ErrUnsupportedBackend{Backend: d.Backend, Err: accel.ErrClosed}
	}

	if dst.IsZero() {
		return d.passthrough(ctx, frame)
	}

	switch {
	case frame.PixelFormat.IsPlanar420():
		out, err := d.Resampler.Resample(ctx, frame, dst)
		if err != nil {
			return err
		}
		return d.emit(ctx, types.DispatchPathSoftware, out)

	case frame.PixelFormat.IsHardware():
		switch d.Backend {
		case types.AcceleratorBackendNone:
			return types.ErrUnsupportedBackend{Backend: d.Backend}
		case types.AcceleratorBackendDeclarative:
			for out, err := range d.GraphResizer.Resize(ctx, frame, dst) {
				if err != nil {
					return err
				}
				if err := d.emit(ctx, types.DispatchPathGraph, out); err != nil {
					return err
				}
			}
			return nil
		case types.AcceleratorBackendBlit:
			out, err := d.Blitter.BlitAndRead(ctx, frame, dst, d.AccelContext)
			if err != nil {
				return err
			}
			return d.emit(ctx, types.DispatchPathBlit, out)
		default:
			return types.ErrUnsupportedBackend{Backend: d.Backend}
		}
	}

	return types.ErrUnknownFormat{PixelFormat: frame.PixelFormat}
}

func (d *Dispatcher) passthrough(
	ctx context.Context,
	frame *types.Frame,
) error {
	switch {
	case frame.PixelFormat.IsPlanar420():
		out, err := planar.FromPlanes(frame.Width, frame.Height, frame.PixelFormat, frame.Planes)
		if err != nil {
			return err
		}
		return d.emit(ctx, types.DispatchPathPassthrough, out)
	case frame.PixelFormat.IsHardware():
		out, err := d.Blitter.Readback(ctx, frame, d.AccelContext)
		if err != nil {
			return err
		}
		return d.emit(ctx, types.DispatchPathReadback, out)
	}
	return types.ErrUnknownFormat{PixelFormat: frame.PixelFormat}
}

func (d *Dispatcher) emit(
	ctx context.Context,
	path types.DispatchPath,
	out *planar.Frame,
) error {
	if err := d.Sink.WritePlanarFrame(ctx, out); err != nil {
		return fmt.Errorf("unable to write the %s frame to the sink: %w", path, err)
	}
	d.Counters.IncrementEmitted(path, uint64(out.Size()))
	d.Metrics.observeFrame(path)
	return nil
}

// Stats returns a snapshot of the dispatcher's counters.
func (d *Dispatcher) Stats() types.Statistics {
	return d.Counters.ToStats()
}
