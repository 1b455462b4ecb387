package planar

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/hwscaler/types"
)

func solidRGBA(w, h, stride int, r, g, b uint8) []byte {
	buf := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			copy(buf[y*stride+x*4:], []byte{r, g, b, 255})
		}
	}
	return buf
}

func TestToPlanar420Red(t *testing.T) {
	src := solidRGBA(2, 2, 8, 255, 0, 0)
	out, err := ToPlanar420(src, 2, 2, 8, LayoutRGBA)
	require.NoError(t, err)
	require.NoError(t, out.Validate())

	r := 255.0
	wantY := uint8(0.299 * r)
	wantU := uint8((0-float64(wantY))*0.565 + 128)
	vf := (255-float64(wantY))*0.713 + 128
	if vf > 255 {
		vf = 255
	}
	wantV := uint8(vf)

	require.Equal(t, []byte{wantY, wantY, wantY, wantY}, out.Y)
	require.Equal(t, []byte{wantU}, out.U)
	require.Equal(t, []byte{wantV}, out.V)
	require.Equal(t, uint8(76), wantY)
}

func TestToPlanar420BGRAMatchesRGBA(t *testing.T) {
	rgba := solidRGBA(4, 4, 16, 10, 200, 30)
	bgra := solidRGBA(4, 4, 16, 30, 200, 10)

	a, err := ToPlanar420(rgba, 4, 4, 16, LayoutRGBA)
	require.NoError(t, err)
	b, err := ToPlanar420(bgra, 4, 4, 16, LayoutBGRA)
	require.NoError(t, err)
	require.Equal(t, a.Bytes(), b.Bytes())
}

func TestToPlanar420ChromaIsPointSampled(t *testing.T) {
	const w, h, stride = 2, 2, 8
	src := make([]byte, stride*h)
	copy(src[0:], []byte{255, 0, 0, 255})      // (0,0) red
	copy(src[4:], []byte{0, 0, 255, 255})      // (1,0) blue
	copy(src[stride:], []byte{0, 255, 0, 255}) // (0,1) green
	copy(src[stride+4:], []byte{0, 0, 0, 255}) // (1,1) black

	out, err := ToPlanar420(src, w, h, stride, LayoutRGBA)
	require.NoError(t, err)

	redY := Luma(255, 0, 0)
	require.Equal(t, ChromaU(0, redY), out.U[0])
	require.Equal(t, ChromaV(255, redY), out.V[0])
}

func TestToPlanar420StrideIgnoresPadding(t *testing.T) {
	const w, h = 4, 2
	tight := solidRGBA(w, h, w*4, 12, 34, 56)
	padded := solidRGBA(w, h, 64, 12, 34, 56)
	for i := w * 4; i < 64; i++ {
		padded[i] = 0xff
	}

	a, err := ToPlanar420(tight, w, h, w*4, LayoutRGBA)
	require.NoError(t, err)
	b, err := ToPlanar420(padded, w, h, 64, LayoutRGBA)
	require.NoError(t, err)
	require.Equal(t, a.Bytes(), b.Bytes())
}

func TestToPlanar420NV12(t *testing.T) {
	const w, h, stride = 4, 2, 8
	src := make([]byte, stride*h+stride*(h/2))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src[y*stride+x] = byte(y*w + x)
		}
	}
	uv := src[stride*h:]
	copy(uv, []byte{100, 200, 101, 201, 0xee, 0xee, 0xee, 0xee})

	out, err := ToPlanar420(src, w, h, stride, LayoutNV12)
	require.NoError(t, err)
	require.NoError(t, out.Validate())
	require.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7}, out.Y)
	require.Equal(t, []byte{100, 101}, out.U)
	require.Equal(t, []byte{200, 201}, out.V)
}

func TestToPlanar420YUV420P(t *testing.T) {
	const w, h = 4, 4
	src := make([]byte, w*h*3/2)
	for i := range src {
		src[i] = byte(i)
	}
	out, err := ToPlanar420(src, w, h, w, LayoutYUV420P)
	require.NoError(t, err)
	require.Equal(t, src, out.Bytes())
}

func TestToPlanar420SizeInvariant(t *testing.T) {
	for _, size := range [][2]int{{2, 2}, {32, 32}, {64, 48}, {1280, 720}} {
		w, h := size[0], size[1]
		out, err := ToPlanar420(solidRGBA(w, h, w*4, 1, 2, 3), w, h, w*4, LayoutRGBA)
		require.NoError(t, err)
		require.Len(t, out.Y, w*h)
		require.Len(t, out.U, (w/2)*(h/2))
		require.Len(t, out.V, (w/2)*(h/2))
	}
}

func TestToPlanar420Errors(t *testing.T) {
	_, err := ToPlanar420(make([]byte, 64), 3, 2, 12, LayoutRGBA)
	require.Equal(t, types.ErrorKindAllocationFailed, types.ErrorKindOf(err))

	_, err = ToPlanar420(make([]byte, 4), 2, 2, 8, LayoutRGBA)
	require.ErrorAs(t, err, &ErrShortPlane{})

	_, err = ToPlanar420(make([]byte, 64), 2, 2, 8, LayoutUndefined)
	require.Equal(t, types.ErrorKindUnknownFormat, types.ErrorKindOf(err))
}

func TestFromPlanesOddPassthrough(t *testing.T) {
	out, err := FromPlanes(3, 3, types.PixelFormatYUV420P, []types.Plane{
		{Data: make([]byte, 9), Stride: 3},
		{Data: make([]byte, 4), Stride: 2},
		{Data: make([]byte, 4), Stride: 2},
	})
	require.NoError(t, err)
	require.Len(t, out.Y, 9)
	require.Len(t, out.U, 1)
	require.Len(t, out.V, 1)
}

func TestWriteTo(t *testing.T) {
	f := Alloc(4, 2)
	f.Y[0], f.U[0], f.V[1] = 1, 2, 3
	var buf bytes.Buffer
	n, err := f.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(12), n)
	require.Equal(t, f.Bytes(), buf.Bytes())

	back, err := FromYCbCr(f.ToYCbCr())
	require.NoError(t, err)
	require.Equal(t, f, back)
}
