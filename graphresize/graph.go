// Package graphresize resizes accelerator-resident frames through a
// processing graph built around the accelerator's own resize operator.
package graphresize

import (
	"context"
	"errors"
	"fmt"

	"github.com/xaionaro-go/hwscaler/planar"
	"github.com/xaionaro-go/hwscaler/types"
)

// ErrNoMoreFrames is returned by Graph.Pull when the graph has nothing
// more to emit for the frames pushed so far.
var ErrNoMoreFrames = errors.New("no more frames available")

type SourceParams struct {
	Width       int
	Height      int
	PixelFormat types.PixelFormat
	TimeBase    types.Rational

	// Surface carries the accelerator surface pool of the frames to be pushed.
	Surface types.Surface
}

type ResizeParams struct {
	Operator     string
	Width        int
	Height       int
	OutputLayout planar.Layout
}

func (p ResizeParams) String() string {
	return fmt.Sprintf("%s=w=%d:h=%d:format=%s", p.Operator, p.Width, p.Height, p.OutputLayout)
}

// Graph is a single-use source -> resize -> sink processing graph.
type Graph interface {
	AddSource(ctx context.Context, params SourceParams) error
	AddResize(ctx context.Context, params ResizeParams) error

	// AddSink adds the sink node accepting only pixFmt, which must be the
	// format of the source.
	AddSink(ctx context.Context, pixFmt types.PixelFormat) error
	Link(ctx context.Context) error
	Configure(ctx context.Context) error

	Push(ctx context.Context, frame *types.Frame) error
	Pull(ctx context.Context) (*types.Frame, error)

	Free()
}

type Factory interface {
	NewGraph(ctx context.Context) (Graph, error)
}

// Reader converts a frame pulled from the graph into host memory.
type Reader interface {
	Readback(ctx context.Context, frame *types.Frame) (*planar.Frame, error)
}

type ReaderFunc func(ctx context.Context, frame *types.Frame) (*planar.Frame, error)

func (fn ReaderFunc) Readback(ctx context.Context, frame *types.Frame) (*planar.Frame, error) {
	return fn(ctx, frame)
}

// NativeSurface is a surface that knows the opaque format of the device pool
// it was allocated from.
type NativeSurface interface {
	types.Surface
	NativePixelFormat() types.PixelFormat
}

// NativeFormatOf returns the format the sink has to be limited to for frame.
func NativeFormatOf(frame *types.Frame) (types.PixelFormat, error) {
	s, ok := frame.Surface.(NativeSurface)
	if !ok {
		return types.PixelFormatUndefined, fmt.Errorf("surface %v does not report the format of its device", frame.Surface)
	}
	pixFmt := s.NativePixelFormat()
	if !pixFmt.IsHardware() {
		return types.PixelFormatUndefined, fmt.Errorf("surface %s reports a non-opaque device format %s", s, pixFmt)
	}
	return pixFmt, nil
}

// CheckSinkFormat rejects a sink that would silently convert the source format.
func CheckSinkFormat(src, sink types.PixelFormat) error {
	if src != sink {
		return fmt.Errorf("sink format %s does not match the source format %s", sink, src)
	}
	return nil
}
