// native.go implements a pure-Go bilinear scaler.

package scaler

import (
	"context"

	"github.com/bamiaux/rez"
	"github.com/xaionaro-go/hwscaler/logger"
	"github.com/xaionaro-go/hwscaler/planar"
	"github.com/xaionaro-go/hwscaler/types"
)

// Native resamples in pure Go, so it works without libswscale.
type Native struct {
	Filter rez.Filter
}

var _ Scaler = (*Native)(nil)

func NewNative() *Native {
	return &Native{
		Filter: rez.NewBilinearFilter(),
	}
}

func (s *Native) String() string {
	return "NativeScaler(bilinear)"
}

func (s *Native) Resample(
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

	out := planar.Alloc(int(dst.Width), int(dst.Height))
	if err := rez.Convert(out.ToYCbCr(), in.ToYCbCr(), s.Filter); err != nil {
		return nil, types.ErrContextInitFailed{Stage: "rez", Err: err}
	}
	return out, nil
}
