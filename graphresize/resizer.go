package graphresize

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/xaionaro-go/hwscaler/logger"
	"github.com/xaionaro-go/hwscaler/planar"
	"github.com/xaionaro-go/hwscaler/types"
)

// DefaultOperators maps an accelerator surface format to the name of the
// resize operator able to process it.
func DefaultOperators() map[types.PixelFormat]string {
	return map[types.PixelFormat]string{
		types.PixelFormatVAAPI: "scale_vaapi",
		types.PixelFormatCUDA:  "scale_cuda",
		types.PixelFormatQSV:   "scale_qsv",
	}
}

// OutputLayout is the fixed layout of the surfaces produced by the resize node.
const OutputLayout = planar.LayoutNV12

type Resizer struct {
	Factory   Factory
	Reader    Reader
	Operators map[types.PixelFormat]string
}

func NewResizer(factory Factory, reader Reader) *Resizer {
	return &Resizer{
		Factory:   factory,
		Reader:    reader,
		Operators: DefaultOperators(),
	}
}

func (r *Resizer) String() string {
	return "GraphResizer"
}

// Resize lazily yields the frames the graph emits for a single input frame.
//
// The graph is built on the first iteration and freed when the sequence is
// exhausted or abandoned. A failure is yielded once and ends the sequence.
func (r *Resizer) Resize(
	ctx context.Context,
	frame *types.Frame,
	dst types.Resolution,
) iter.Seq2[*planar.Frame, error] {
	return func(yield func(*planar.Frame, error) bool) {
		logger.Tracef(ctx, "Resize(%s -> %s)", frame, dst)
		defer logger.Tracef(ctx, "/Resize(%s -> %s)", frame, dst)

		if err := dst.Validate(); err != nil {
			yield(nil, types.ErrAllocationFailed{Stage: "validate-target", Err: err})
			return
		}

		g, err := r.build(ctx, frame, dst)
		if err != nil {
			yield(nil, err)
			return
		}
		defer g.Free()

		if err := g.Push(ctx, frame); err != nil {
			yield(nil, types.ErrGraphBuildFailed{Stage: "push", Err: err})
			return
		}

		for {
			out, err := g.Pull(ctx)
			if errors.Is(err, ErrNoMoreFrames) {
				return
			}
			if err != nil {
				yield(nil, types.ErrGraphBuildFailed{Stage: "pull", Err: err})
				return
			}

			converted, err := r.Reader.Readback(ctx, out)
			out.Release()
			if !yield(converted, err) || err != nil {
				return
			}
		}
	}
}

func (r *Resizer) build(
	ctx context.Context,
	frame *types.Frame,
	dst types.Resolution,
) (_ret Graph, _err error) {
	operator, ok := r.Operators[frame.PixelFormat]
	if !ok {
		return nil, types.ErrGraphBuildFailed{
			Stage: "operator",
			Err:   fmt.Errorf("no resize operator for %s", frame.PixelFormat),
		}
	}

	g, err := r.Factory.NewGraph(ctx)
	if err != nil {
		return nil, types.ErrGraphBuildFailed{Stage: "allocate", Err: err}
	}
	defer func() {
		if _err != nil {
			g.Free()
		}
	}()

	timeBase := frame.TimeBase
	if timeBase.IsZero() {
		timeBase = types.Rational{Num: 1, Den: 1}
	}

	if err := g.AddSource(ctx, SourceParams{
		Width:       frame.Width,
		Height:      frame.Height,
		PixelFormat: frame.PixelFormat,
		TimeBase:    timeBase,
		Surface:     frame.Surface,
	}); err != nil {
		return nil, types.ErrGraphBuildFailed{Stage: "source", Err: err}
	}

	if err := g.AddResize(ctx, ResizeParams{
		Operator:     operator,
		Width:        int(dst.Width),
		Height:       int(dst.Height),
		OutputLayout: OutputLayout,
	}); err != nil {
		return nil, types.ErrGraphBuildFailed{Stage: "resize", Err: err}
	}

	sinkPixFmt, err := NativeFormatOf(frame)
	if err != nil {
		return nil, types.ErrGraphBuildFailed{Stage: "sink", Err: err}
	}
	if err := g.AddSink(ctx, sinkPixFmt); err != nil {
		return nil, types.ErrGraphBuildFailed{Stage: "sink", Err: err}
	}

	if err := g.Link(ctx); err != nil {
		return nil, types.ErrGraphBuildFailed{Stage: "link", Err: err}
	}

	if err := g.Configure(ctx); err != nil {
		return nil, types.ErrGraphBuildFailed{Stage: "configure", Err: err}
	}

	return g, nil
}
