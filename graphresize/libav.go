// libav.go implements Graph on top of libavfilter.

package graphresize

import (
	"context"
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/xaionaro-go/hwscaler/accel/libav"
	"github.com/xaionaro-go/hwscaler/logger"
	"github.com/xaionaro-go/hwscaler/types"
)

// LibavFactory builds graphs with libavfilter.
type LibavFactory struct{}

var _ Factory = LibavFactory{}

func (LibavFactory) NewGraph(ctx context.Context) (Graph, error) {
	fg := astiav.AllocFilterGraph()
	if fg == nil {
		return nil, fmt.Errorf("unable to allocate a filter graph")
	}
	closer := astikit.NewCloser()
	closer.Add(fg.Free)
	return &libavGraph{
		closer: closer,
		graph:  fg,
	}, nil
}

type libavGraph struct {
	closer *astikit.Closer
	graph  *astiav.FilterGraph

	srcCtx      *astiav.BuffersrcFilterContext
	snkCtx      *astiav.BuffersinkFilterContext
	srcPixFmt   types.PixelFormat
	snkPixFmt   astiav.PixelFormat
	resizeParam ResizeParams
	timeBase    astiav.Rational
}

func (g *libavGraph) AddSource(ctx context.Context, params SourceParams) error {
	pixFmt, ok := libav.PixelFormatToAstiav(params.PixelFormat)
	if !ok {
		return types.ErrUnknownFormat{PixelFormat: params.PixelFormat}
	}
	surface, ok := params.Surface.(*libav.Surface)
	if !ok || surface.FramesContext == nil {
		return fmt.Errorf("the source requires a libav surface with a frames context")
	}

	filter := astiav.FindFilterByName("buffer")
	if filter == nil {
		return fmt.Errorf("unable to find the 'buffer' filter")
	}
	srcCtx, err := g.graph.NewBuffersrcFilterContext(filter, "in")
	if err != nil {
		return fmt.Errorf("unable to create the source: %w", err)
	}

	g.timeBase = astiav.NewRational(params.TimeBase.Num, params.TimeBase.Den)
	p := astiav.AllocBuffersrcFilterContextParameters()
	defer p.Free()
	p.SetWidth(params.Width)
	p.SetHeight(params.Height)
	p.SetPixelFormat(pixFmt)
	p.SetTimeBase(g.timeBase)
	p.SetSampleAspectRatio(astiav.NewRational(1, 1))
	p.SetHardwareFramesContext(surface.FramesContext)
	if err := srcCtx.SetParameters(p); err != nil {
		return fmt.Errorf("unable to set the source parameters: %w", err)
	}
	if err := srcCtx.Initialize(nil); err != nil {
		return fmt.Errorf("unable to initialize the source: %w", err)
	}

	g.srcCtx = srcCtx
	g.srcPixFmt = params.PixelFormat
	return nil
}

func (g *libavGraph) AddResize(ctx context.Context, params ResizeParams) error {
	if astiav.FindFilterByName(params.Operator) == nil {
		return fmt.Errorf("unable to find the '%s' filter", params.Operator)
	}
	g.resizeParam = params
	return nil
}

func (g *libavGraph) AddSink(ctx context.Context, pixFmt types.PixelFormat) error {
	if err := CheckSinkFormat(g.srcPixFmt, pixFmt); err != nil {
		return err
	}
	snkPixFmt, ok := libav.PixelFormatToAstiav(pixFmt)
	if !ok {
		return types.ErrUnknownFormat{PixelFormat: pixFmt}
	}
	filter := astiav.FindFilterByName("buffersink")
	if filter == nil {
		return fmt.Errorf("unable to find the 'buffersink' filter")
	}
	snkCtx, err := g.graph.NewBuffersinkFilterContext(filter, "out")
	if err != nil {
		return fmt.Errorf("unable to create the sink: %w", err)
	}
	g.snkCtx = snkCtx
	g.snkPixFmt = snkPixFmt
	return nil
}

func (g *libavGraph) Link(ctx context.Context) error {
	if g.srcCtx == nil || g.snkCtx == nil || g.resizeParam.Operator == "" {
		return fmt.Errorf("the graph is incomplete")
	}

	outputs := astiav.AllocFilterInOut()
	defer outputs.Free()
	outputs.SetName("in")
	outputs.SetFilterContext(g.srcCtx.FilterContext())
	outputs.SetPadIdx(0)
	outputs.SetNext(nil)

	inputs := astiav.AllocFilterInOut()
	defer inputs.Free()
	inputs.SetName("out")
	inputs.SetFilterContext(g.snkCtx.FilterContext())
	inputs.SetPadIdx(0)
	inputs.SetNext(nil)

	desc := fmt.Sprintf(
		"%s=w=%d:h=%d:format=%s,format=pix_fmts=%s",
		g.resizeParam.Operator,
		g.resizeParam.Width,
		g.resizeParam.Height,
		g.resizeParam.OutputLayout,
		g.snkPixFmt.Name(),
	)
	logger.Tracef(ctx, "graph: %s", desc)
	if err := g.graph.Parse(desc, inputs, outputs); err != nil {
		return fmt.Errorf("unable to parse '%s': %w", desc, err)
	}
	return nil
}

func (g *libavGraph) Configure(ctx context.Context) error {
	if err := g.graph.Configure(); err != nil {
		return fmt.Errorf("unable to configure the graph: %w", err)
	}
	return nil
}

func (g *libavGraph) Push(ctx context.Context, frame *types.Frame) error {
	surface, ok := frame.Surface.(*libav.Surface)
	if !ok {
		return fmt.Errorf("frame %s is not backed by a libav surface", frame)
	}
	return g.srcCtx.AddFrame(surface.Frame, astiav.NewBuffersrcFlags(astiav.BuffersrcFlagKeepRef))
}

func (g *libavGraph) Pull(ctx context.Context) (*types.Frame, error) {
	f := astiav.AllocFrame()
	defer f.Free()
	err := g.snkCtx.GetFrame(f, astiav.NewBuffersinkFlags())
	switch {
	case errors.Is(err, astiav.ErrEagain), errors.Is(err, astiav.ErrEof):
		return nil, ErrNoMoreFrames
	case err != nil:
		return nil, err
	}
	return libav.ToFrame(f, g.timeBase, nil, libav.SurfaceFormat{
		Hardware: libav.PixelFormatFromAstiav(g.snkPixFmt),
		Software: g.resizeParam.OutputLayout,
	})
}

func (g *libavGraph) Free() {
	_ = g.closer.Close()
}
