package emulated

import (
	"fmt"
	"image"

	"go.uber.org/atomic"
)

// Surface is an accelerator-resident picture of the emulated device.
type Surface struct {
	Image    *image.RGBA
	released atomic.Bool
}

func NewSurface(img *image.RGBA) *Surface {
	return &Surface{Image: img}
}

func (s *Surface) String() string {
	b := s.Image.Bounds()
	return fmt.Sprintf("EmulatedSurface(%dx%d)", b.Dx(), b.Dy())
}

func (s *Surface) Release() {
	s.released.Store(true)
}

func (s *Surface) IsReleased() bool {
	return s.released.Load()
}
