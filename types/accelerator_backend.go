// accelerator_backend.go defines the AcceleratorBackend capability profile.

package types

import (
	"fmt"
	"strings"
)

// AcceleratorBackend is the resize capability profile of the accelerator
// chosen for a decode session. It is fixed for the lifetime of the session.
type AcceleratorBackend int

const (
	// AcceleratorBackendNone means accelerator-resident frames cannot be resized.
	AcceleratorBackendNone AcceleratorBackend = iota

	// AcceleratorBackendDeclarative means the accelerator exposes a resize
	// operator usable as a node of a processing graph.
	AcceleratorBackendDeclarative

	// AcceleratorBackendBlit means the accelerator can only resize through
	// an explicit copy-with-scale command.
	AcceleratorBackendBlit

	endOfAcceleratorBackend
)

func (b AcceleratorBackend) String() string {
	switch b {
	case AcceleratorBackendNone:
		return "none"
	case AcceleratorBackendDeclarative:
		return "declarative"
	case AcceleratorBackendBlit:
		return "blit"
	}
	return fmt.Sprintf("unknown_backend_%d", int(b))
}

func AcceleratorBackendFromString(s string) (AcceleratorBackend, error) {
	s = strings.Trim(strings.ToLower(s), " \"\n\r\t")
	for b := range endOfAcceleratorBackend {
		if b.String() == s {
			return b, nil
		}
	}
	return AcceleratorBackendNone, fmt.Errorf("unknown accelerator backend: '%s'", s)
}

func (b *AcceleratorBackend) UnmarshalText(text []byte) error {
	v, err := AcceleratorBackendFromString(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

func (b AcceleratorBackend) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}
