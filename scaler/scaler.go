// Package scaler resizes host-resident planar frames on the CPU.
package scaler

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/hwscaler/planar"
	"github.com/xaionaro-go/hwscaler/types"
)

// Scaler resizes a host-resident 4:2:0 frame into the canonical planar layout
// using a fixed bilinear filter.
type Scaler interface {
	fmt.Stringer
	Resample(ctx context.Context, src *types.Frame, dst types.Resolution) (*planar.Frame, error)
}

// sourcePlanar validates the resample request and returns the source
// converted to the canonical layout.
func sourcePlanar(
	src *types.Frame,
	dst types.Resolution,
) (*planar.Frame, error) {
	if err := dst.Validate(); err != nil {
		return nil, types.ErrAllocationFailed{Stage: "validate-target", Err: err}
	}
	if !src.PixelFormat.IsPlanar420() {
		return nil, types.ErrUnknownFormat{PixelFormat: src.PixelFormat}
	}
	if src.Width <= 0 || src.Height <= 0 {
		return nil, types.ErrContextInitFailed{
			Stage: "validate-source",
			Err:   fmt.Errorf("invalid source dimensions %dx%d", src.Width, src.Height),
		}
	}
	if src.Width%2 != 0 || src.Height%2 != 0 {
		return nil, types.ErrContextInitFailed{
			Stage: "validate-source",
			Err:   fmt.Errorf("source dimensions %dx%d are not divisible by the 4:2:0 subsampling", src.Width, src.Height),
		}
	}
	in, err := planar.FromPlanes(src.Width, src.Height, src.PixelFormat, src.Planes)
	if err != nil {
		return nil, types.ErrContextInitFailed{Stage: "read-source", Err: err}
	}
	return in, nil
}

func isIdentity(in *planar.Frame, dst types.Resolution) bool {
	return in.Width == int(dst.Width) && in.Height == int(dst.Height)
}
