package libav

import (
	"fmt"
	"sync"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/hwscaler/planar"
	"github.com/xaionaro-go/hwscaler/types"
)

// SurfaceFormat describes the pictures of a hardware frames pool: the opaque
// format native to the device and the layout of their content once
// transferred to the host.
type SurfaceFormat struct {
	Hardware types.PixelFormat
	Software planar.Layout
}

// Surface is a reference to a libav hardware frame.
type Surface struct {
	Frame         *astiav.Frame
	FramesContext *astiav.HardwareFramesContext
	Format        SurfaceFormat
	releaseOnce   sync.Once
}

var _ types.Surface = (*Surface)(nil)

// NewSurface takes a new reference to f; the caller keeps its own.
func NewSurface(
	f *astiav.Frame,
	framesCtx *astiav.HardwareFramesContext,
	format SurfaceFormat,
) (*Surface, error) {
	ref := astiav.AllocFrame()
	if err := ref.Ref(f); err != nil {
		ref.Free()
		return nil, fmt.Errorf("unable to reference the frame: %w", err)
	}
	return &Surface{Frame: ref, FramesContext: framesCtx, Format: format}, nil
}

func (s *Surface) String() string {
	return fmt.Sprintf("LibavSurface(%dx%d:%s)", s.Frame.Width(), s.Frame.Height(), s.Frame.PixelFormat())
}

// NativePixelFormat returns the opaque format of the frames pool the surface
// was allocated from.
func (s *Surface) NativePixelFormat() types.PixelFormat {
	return s.Format.Hardware
}

func (s *Surface) Release() {
	s.releaseOnce.Do(s.Frame.Free)
}

// ToFrame describes a decoded libav frame; hardware frames become surface-backed
// and are tagged with the format of their pool.
func ToFrame(
	f *astiav.Frame,
	timeBase astiav.Rational,
	framesCtx *astiav.HardwareFramesContext,
	format SurfaceFormat,
) (*types.Frame, error) {
	pixFmt := PixelFormatFromAstiav(f.PixelFormat())
	frame := &types.Frame{
		Width:       f.Width(),
		Height:      f.Height(),
		PixelFormat: pixFmt,
		PTS:         f.Pts(),
		TimeBase:    types.Rational{Num: timeBase.Num(), Den: timeBase.Den()},
	}
	if pixFmt.IsHardware() {
		s, err := NewSurface(f, framesCtx, format)
		if err != nil {
			return nil, err
		}
		frame.Surface = s
		return frame, nil
	}

	layout, ok := planar.LayoutFromPixelFormat(pixFmt)
	if !ok {
		// not convertible; keep the tag so that the dispatcher reports it
		frame.PixelFormat = types.PixelFormatUndefined
		return frame, nil
	}
	size, err := f.ImageBufferSize(1)
	if err != nil {
		return nil, fmt.Errorf("unable to get the image size: %w", err)
	}
	buf := make([]byte, size)
	if _, err := f.ImageCopyToBuffer(buf, 1); err != nil {
		return nil, fmt.Errorf("unable to copy the image: %w", err)
	}
	frame.Planes = tightPlanes(buf, layout, f.Width(), f.Height())
	return frame, nil
}
