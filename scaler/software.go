package scaler

import (
	"context"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/xaionaro-go/hwscaler/logger"
	"github.com/xaionaro-go/hwscaler/planar"
	"github.com/xaionaro-go/hwscaler/types"
)

const (
	// destination buffers are aligned for SIMD
	dstBufferAlign = 32
)

// Software resamples through libswscale. A scale context is created for
// every call and freed before the call returns.
type Software struct{}

var _ Scaler = (*Software)(nil)

func NewSoftware() *Software {
	return &Software{}
}

func (s *Software) String() string {
	return "SoftwareScaler(bilinear)"
}

func (s *Software) Resample(
	ctx context.Context,
	src *types.Frame,
	dst types.Resolution,
) (_ret *planar.Frame, _err error) {
	logger.Tracef(ctx, "Resample(%s -> %s)", src, dst)
	defer func() { logger.Tracef(ctx, "/Resample(%s -> %s): %v", src, dst, _err) }()

	in, err := sourcePlanar(src, dst)
	if err != nil {
		return nil, err
	}
	if isIdentity(in, dst) {
		return in, nil
	}

	closer := astikit.NewCloser()
	defer closer.Close()

	swsCtx, err := astiav.CreateSoftwareScaleContext(
		in.Width,
		in.Height,
		astiav.PixelFormatYuv420P,
		int(dst.Width),
		int(dst.Height),
		astiav.PixelFormatYuv420P,
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
	)
	if err != nil {
		return nil, types.ErrContextInitFailed{Stage: "sws", Err: err}
	}
	closer.Add(swsCtx.Free)

	srcFrame := astiav.AllocFrame()
	if srcFrame == nil {
		return nil, types.ErrAllocationFailed{Stage: "source-frame"}
	}
	closer.Add(srcFrame.Free)
	srcFrame.SetWidth(in.Width)
	srcFrame.SetHeight(in.Height)
	srcFrame.SetPixelFormat(astiav.PixelFormatYuv420P)
	if err := srcFrame.AllocBuffer(1); err != nil {
		return nil, types.ErrAllocationFailed{Stage: "source-buffer", Err: err}
	}
	if err := srcFrame.Data().SetBytes(in.Bytes(), 1); err != nil {
		return nil, types.ErrAllocationFailed{Stage: "source-fill", Err: err}
	}

	dstFrame := astiav.AllocFrame()
	if dstFrame == nil {
		return nil, types.ErrAllocationFailed{Stage: "destination-frame"}
	}
	closer.Add(dstFrame.Free)
	dstFrame.SetWidth(int(dst.Width))
	dstFrame.SetHeight(int(dst.Height))
	dstFrame.SetPixelFormat(astiav.PixelFormatYuv420P)
	if err := dstFrame.AllocBuffer(dstBufferAlign); err != nil {
		return nil, types.ErrAllocationFailed{Stage: "destination-buffer", Err: err}
	}

	if err := swsCtx.ScaleFrame(srcFrame, dstFrame); err != nil {
		return nil, types.ErrContextInitFailed{Stage: "scale", Err: err}
	}

	return readPlanarFrame(dstFrame)
}

// readPlanarFrame copies a host YUV420P frame into the canonical layout.
func readPlanarFrame(f *astiav.Frame) (*planar.Frame, error) {
	size, err := f.ImageBufferSize(1)
	if err != nil {
		return nil, types.ErrAllocationFailed{Stage: "readout-size", Err: err}
	}
	out := planar.Alloc(f.Width(), f.Height())
	if size != out.Size() {
		return nil, types.ErrAllocationFailed{
			Stage: "readout-size",
			Err:   fmt.Errorf("libav reports %d bytes, expected %d", size, out.Size()),
		}
	}
	buf := make([]byte, size)
	if _, err := f.ImageCopyToBuffer(buf, 1); err != nil {
		return nil, types.ErrAllocationFailed{Stage: "readout", Err: err}
	}
	ySize := planar.LumaSize(out.Width, out.Height)
	cSize := planar.ChromaSize(out.Width, out.Height)
	copy(out.Y, buf[:ySize])
	copy(out.U, buf[ySize:ySize+cSize])
	copy(out.V, buf[ySize+cSize:])
	return out, nil
}
