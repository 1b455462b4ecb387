package types

import (
	"fmt"
)

// Plane is a single host-resident image plane. Stride may exceed the
// visible width of the plane.
type Plane struct {
	Data   []byte
	Stride int
}

// Surface is an accelerator-resident image handle. Its content cannot be
// read from the host without a transfer.
type Surface interface {
	fmt.Stringer
	Release()
}

// Frame is a decoded picture as produced by a decoder.
//
// Exactly one of Planes and Surface is set, depending on the residency of
// PixelFormat.
type Frame struct {
	Width       int
	Height      int
	PixelFormat PixelFormat
	Planes      []Plane
	Surface     Surface
	PTS         int64
	TimeBase    Rational
}

func (f *Frame) String() string {
	if f == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%dx%d:%s@%d", f.Width, f.Height, f.PixelFormat, f.PTS)
}

func (f *Frame) Residency() Residency {
	return f.PixelFormat.Residency()
}

// Release drops the frame's reference to its accelerator surface, if any.
func (f *Frame) Release() {
	if f == nil || f.Surface == nil {
		return
	}
	f.Surface.Release()
	f.Surface = nil
}
