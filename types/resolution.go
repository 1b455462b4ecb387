package types

import (
	"fmt"
)

type Resolution struct {
	Width  uint32
	Height uint32
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// IsZero reports whether the resolution requests no resize at all.
func (r Resolution) IsZero() bool {
	return r.Width == 0 || r.Height == 0
}

// Validate checks that the resolution can hold a 4:2:0 image.
func (r Resolution) Validate() error {
	if r.Width == 0 || r.Height == 0 {
		return fmt.Errorf("resolution %s has a zero dimension", r)
	}
	if r.Width%2 != 0 || r.Height%2 != 0 {
		return fmt.Errorf("resolution %s is not even in both dimensions", r)
	}
	return nil
}

func (r *Resolution) Parse(in string) error {
	var w, h uint32
	if _, err := fmt.Sscanf(in, "%dx%d", &w, &h); err != nil {
		return fmt.Errorf("unable to parse resolution %q: %w", in, err)
	}
	r.Width, r.Height = w, h
	return nil
}

func (r *Resolution) UnmarshalText(text []byte) error {
	return r.Parse(string(text))
}

func (r Resolution) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// ResolutionFromInts converts signed dimensions; any non-positive value
// yields the zero Resolution, which means "pass through unchanged".
func ResolutionFromInts(w, h int) Resolution {
	if w <= 0 || h <= 0 {
		return Resolution{}
	}
	return Resolution{Width: uint32(w), Height: uint32(h)}
}
