package planar

import (
	"fmt"

	"github.com/xaionaro-go/hwscaler/types"
)

// Layout is the memory layout of a host-visible source image.
type Layout int

const (
	LayoutUndefined = Layout(iota)

	// LayoutRGBA is packed 4-channel R,G,B,A.
	LayoutRGBA

	// LayoutBGRA is packed 4-channel B,G,R,A.
	LayoutBGRA

	// LayoutNV12 is a luma plane followed by a plane of interleaved U,V pairs.
	LayoutNV12

	// LayoutYUV420P is a luma plane followed by the U and V planes.
	LayoutYUV420P
)

func (l Layout) String() string {
	switch l {
	case LayoutUndefined:
		return "undefined"
	case LayoutRGBA:
		return "rgba"
	case LayoutBGRA:
		return "bgra"
	case LayoutNV12:
		return "nv12"
	case LayoutYUV420P:
		return "yuv420p"
	}
	return fmt.Sprintf("unknown_layout_%d", int(l))
}

func (l Layout) PixelFormat() types.PixelFormat {
	switch l {
	case LayoutRGBA:
		return types.PixelFormatRGBA
	case LayoutBGRA:
		return types.PixelFormatBGRA
	case LayoutNV12:
		return types.PixelFormatNV12
	case LayoutYUV420P:
		return types.PixelFormatYUV420P
	}
	return types.PixelFormatUndefined
}

func LayoutFromPixelFormat(pixFmt types.PixelFormat) (Layout, bool) {
	switch pixFmt {
	case types.PixelFormatRGBA:
		return LayoutRGBA, true
	case types.PixelFormatBGRA:
		return LayoutBGRA, true
	case types.PixelFormatNV12:
		return LayoutNV12, true
	case types.PixelFormatYUV420P:
		return LayoutYUV420P, true
	}
	return LayoutUndefined, false
}

type ErrShortPlane struct {
	Plane int
	Have  int
	Need  int
}

func (e ErrShortPlane) Error() string {
	return fmt.Sprintf("plane #%d is %d bytes, but at least %d bytes are required", e.Plane, e.Have, e.Need)
}

// ToPlanar420 converts a single contiguous host buffer into the canonical
// planar layout. Rows of the source are rowStride bytes apart; for the
// multi-plane layouts the chroma planes directly follow the luma plane.
func ToPlanar420(
	src []byte,
	width, height int,
	rowStride int,
	layout Layout,
) (*Frame, error) {
	if width <= 0 || height <= 0 || width%2 != 0 || height%2 != 0 {
		return nil, types.ErrAllocationFailed{
			Stage: "validate-source",
			Err:   fmt.Errorf("%dx%d is not a valid 4:2:0 size", width, height),
		}
	}

	switch layout {
	case LayoutRGBA, LayoutBGRA:
		return FromPlanes(width, height, layout.PixelFormat(), []types.Plane{
			{Data: src, Stride: rowStride},
		})
	case LayoutNV12:
		ySize := rowStride * height
		if len(src) < ySize {
			return nil, ErrShortPlane{Plane: 0, Have: len(src), Need: ySize}
		}
		return FromPlanes(width, height, types.PixelFormatNV12, []types.Plane{
			{Data: src[:ySize], Stride: rowStride},
			{Data: src[ySize:], Stride: rowStride},
		})
	case LayoutYUV420P:
		ySize := rowStride * height
		cStride := rowStride / 2
		cSize := cStride * (height / 2)
		if len(src) < ySize+cSize {
			return nil, ErrShortPlane{Plane: 1, Have: len(src), Need: ySize + cSize}
		}
		return FromPlanes(width, height, types.PixelFormatYUV420P, []types.Plane{
			{Data: src[:ySize], Stride: rowStride},
			{Data: src[ySize : ySize+cSize], Stride: cStride},
			{Data: src[ySize+cSize:], Stride: cStride},
		})
	}
	return nil, types.ErrUnknownFormat{PixelFormat: layout.PixelFormat()}
}

// FromPlanes converts per-plane host buffers of the given pixel format into
// the canonical planar layout.
func FromPlanes(
	width, height int,
	pixFmt types.PixelFormat,
	planes []types.Plane,
) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, types.ErrAllocationFailed{
			Stage: "validate-source",
			Err:   fmt.Errorf("invalid dimensions %dx%d", width, height),
		}
	}

	var expectPlanes int
	switch pixFmt {
	case types.PixelFormatRGBA, types.PixelFormatBGRA:
		expectPlanes = 1
	case types.PixelFormatNV12:
		expectPlanes = 2
	case types.PixelFormatYUV420P:
		expectPlanes = 3
	default:
		return nil, types.ErrUnknownFormat{PixelFormat: pixFmt}
	}
	if len(planes) < expectPlanes {
		return nil, fmt.Errorf("%s requires %d planes, but got %d", pixFmt, expectPlanes, len(planes))
	}

	out := Alloc(width, height)
	cw, ch := width/2, height/2
	var err error
	switch pixFmt {
	case types.PixelFormatRGBA:
		err = packedToPlanar(out, planes[0], 0, 1, 2)
	case types.PixelFormatBGRA:
		err = packedToPlanar(out, planes[0], 2, 1, 0)
	case types.PixelFormatNV12:
		if err = copyPlane(out.Y, width, height, planes[0], 0); err != nil {
			break
		}
		err = deinterleave(out.U, out.V, cw, ch, planes[1], 1)
	case types.PixelFormatYUV420P:
		if err = copyPlane(out.Y, width, height, planes[0], 0); err != nil {
			break
		}
		if err = copyPlane(out.U, cw, ch, planes[1], 1); err != nil {
			break
		}
		err = copyPlane(out.V, cw, ch, planes[2], 2)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func checkPlane(p types.Plane, idx, rowLen, rows int) error {
	if rows == 0 || rowLen == 0 {
		return nil
	}
	if p.Stride < rowLen {
		return fmt.Errorf("plane #%d stride %d is less than the row length %d", idx, p.Stride, rowLen)
	}
	need := (rows-1)*p.Stride + rowLen
	if len(p.Data) < need {
		return ErrShortPlane{Plane: idx, Have: len(p.Data), Need: need}
	}
	return nil
}

func copyPlane(dst []byte, w, h int, src types.Plane, idx int) error {
	if err := checkPlane(src, idx, w, h); err != nil {
		return err
	}
	for y := 0; y < h; y++ {
		copy(dst[y*w:(y+1)*w], src.Data[y*src.Stride:])
	}
	return nil
}

func deinterleave(dstU, dstV []byte, cw, ch int, src types.Plane, idx int) error {
	if err := checkPlane(src, idx, cw*2, ch); err != nil {
		return err
	}
	for y := 0; y < ch; y++ {
		row := src.Data[y*src.Stride:]
		for x := 0; x < cw; x++ {
			dstU[y*cw+x] = row[2*x]
			dstV[y*cw+x] = row[2*x+1]
		}
	}
	return nil
}

// packedToPlanar converts a packed 4-byte-per-pixel plane. The chroma of
// each 2x2 block is taken from its top-left pixel.
func packedToPlanar(out *Frame, src types.Plane, rIdx, gIdx, bIdx int) error {
	w, h := out.Width, out.Height
	if err := checkPlane(src, 0, w*4, h); err != nil {
		return err
	}
	cw := w / 2
	for y := 0; y < h; y++ {
		row := src.Data[y*src.Stride:]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+4]
			r, g, b := px[rIdx], px[gIdx], px[bIdx]
			luma := Luma(r, g, b)
			out.Y[y*w+x] = luma
			if y%2 != 0 || x%2 != 0 || x/2 >= cw || y/2 >= out.Height/2 {
				continue
			}
			out.U[(y/2)*cw+x/2] = ChromaU(b, luma)
			out.V[(y/2)*cw+x/2] = ChromaV(r, luma)
		}
	}
	return nil
}

// Luma is Y = 0.299R + 0.587G + 0.114B, truncated to 8 bits.
func Luma(r, g, b uint8) uint8 {
	return clampTrunc(0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b))
}

// ChromaU is U = 0.565(B-Y) + 128 computed from the 8-bit luma.
func ChromaU(b, luma uint8) uint8 {
	return clampTrunc((float64(b)-float64(luma))*0.565 + 128)
}

// ChromaV is V = 0.713(R-Y) + 128 computed from the 8-bit luma.
func ChromaV(r, luma uint8) uint8 {
	return clampTrunc((float64(r)-float64(luma))*0.713 + 128)
}

func clampTrunc(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}
