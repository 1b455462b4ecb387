// Package planar implements the canonical planar YUV 4:2:0 output format
// and the conversions into it.
package planar

import (
	"fmt"
	"image"
	"io"

	"github.com/xaionaro-go/hwscaler/types"
)

// Frame is a picture in the canonical planar YUV 4:2:0 layout:
// Y is Width*Height bytes, U and V are (Width/2)*(Height/2) bytes each,
// all rows are tightly packed.
type Frame struct {
	Width  int
	Height int
	Y      []byte
	U      []byte
	V      []byte
}

func LumaSize(width, height int) int {
	return width * height
}

func ChromaSize(width, height int) int {
	return (width / 2) * (height / 2)
}

// Alloc returns a zeroed frame with correctly sized planes backed by a single buffer.
func Alloc(width, height int) *Frame {
	ySize, cSize := LumaSize(width, height), ChromaSize(width, height)
	buf := make([]byte, ySize+2*cSize)
	return &Frame{
		Width:  width,
		Height: height,
		Y:      buf[:ySize:ySize],
		U:      buf[ySize : ySize+cSize : ySize+cSize],
		V:      buf[ySize+cSize:],
	}
}

func (f *Frame) String() string {
	if f == nil {
		return "<nil>"
	}
	return fmt.Sprintf("planar420(%dx%d)", f.Width, f.Height)
}

// Validate checks the plane size invariant.
func (f *Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d", f.Width, f.Height)
	}
	if len(f.Y) != LumaSize(f.Width, f.Height) {
		return fmt.Errorf("Y plane is %d bytes, expected %d", len(f.Y), LumaSize(f.Width, f.Height))
	}
	cSize := ChromaSize(f.Width, f.Height)
	if len(f.U) != cSize {
		return fmt.Errorf("U plane is %d bytes, expected %d", len(f.U), cSize)
	}
	if len(f.V) != cSize {
		return fmt.Errorf("V plane is %d bytes, expected %d", len(f.V), cSize)
	}
	return nil
}

func (f *Frame) Size() int {
	return len(f.Y) + len(f.U) + len(f.V)
}

// Bytes returns the frame in the raw-video wire layout (Y, then U, then V).
func (f *Frame) Bytes() []byte {
	out := make([]byte, 0, f.Size())
	out = append(out, f.Y...)
	out = append(out, f.U...)
	out = append(out, f.V...)
	return out
}

func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, plane := range [][]byte{f.Y, f.U, f.V} {
		n, err := w.Write(plane)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ToYCbCr returns an image.YCbCr that shares the plane buffers with f.
func (f *Frame) ToYCbCr() *image.YCbCr {
	return &image.YCbCr{
		Y:              f.Y,
		Cb:             f.U,
		Cr:             f.V,
		YStride:        f.Width,
		CStride:        f.Width / 2,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, f.Width, f.Height),
	}
}

// FromYCbCr copies a 4:2:0 image into the canonical layout.
func FromYCbCr(img *image.YCbCr) (*Frame, error) {
	if img.SubsampleRatio != image.YCbCrSubsampleRatio420 {
		return nil, types.ErrUnknownFormat{PixelFormat: types.PixelFormatUndefined}
	}
	w, h := img.Rect.Dx(), img.Rect.Dy()
	return FromPlanes(w, h, types.PixelFormatYUV420P, []types.Plane{
		{Data: img.Y[img.YOffset(img.Rect.Min.X, img.Rect.Min.Y):], Stride: img.YStride},
		{Data: img.Cb[img.COffset(img.Rect.Min.X, img.Rect.Min.Y):], Stride: img.CStride},
		{Data: img.Cr[img.COffset(img.Rect.Min.X, img.Rect.Min.Y):], Stride: img.CStride},
	})
}
