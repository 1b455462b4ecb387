package types

import (
	"errors"
	"fmt"
)

// ErrorKind is the classification of a per-frame failure.
type ErrorKind int

const (
	ErrorKindUndefined = ErrorKind(iota)
	ErrorKindContextInitFailed
	ErrorKindAllocationFailed
	ErrorKindGraphBuildFailed
	ErrorKindNoSuitableQueue
	ErrorKindBlitSubmitFailed
	ErrorKindFenceWaitFailed
	ErrorKindMemoryMapFailed
	ErrorKindUnsupportedBackend
	ErrorKindUnknownFormat
	ErrorKindTimeout
	endOfErrorKind
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindUndefined:
		return "undefined"
	case ErrorKindContextInitFailed:
		return "context_init_failed"
	case ErrorKindAllocationFailed:
		return "allocation_failed"
	case ErrorKindGraphBuildFailed:
		return "graph_build_failed"
	case ErrorKindNoSuitableQueue:
		return "no_suitable_queue"
	case ErrorKindBlitSubmitFailed:
		return "blit_submit_failed"
	case ErrorKindFenceWaitFailed:
		return "fence_wait_failed"
	case ErrorKindMemoryMapFailed:
		return "memory_map_failed"
	case ErrorKindUnsupportedBackend:
		return "unsupported_backend"
	case ErrorKindUnknownFormat:
		return "unknown_format"
	case ErrorKindTimeout:
		return "timeout"
	}
	return fmt.Sprintf("unknown_error_kind_%d", int(k))
}

func ErrorKinds() []ErrorKind {
	var result []ErrorKind
	for k := ErrorKindUndefined + 1; k < endOfErrorKind; k++ {
		result = append(result, k)
	}
	return result
}

type kinded interface {
	Kind() ErrorKind
}

// ErrorKindOf returns the kind of the first classified error in the chain
// of err, or ErrorKindUndefined.
func ErrorKindOf(err error) ErrorKind {
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return ErrorKindUndefined
}

func stageErrorString(what, stage string, err error) string {
	switch {
	case stage != "" && err != nil:
		return fmt.Sprintf("%s at stage '%s': %v", what, stage, err)
	case stage != "":
		return fmt.Sprintf("%s at stage '%s'", what, stage)
	case err != nil:
		return fmt.Sprintf("%s: %v", what, err)
	}
	return what
}

type ErrContextInitFailed struct {
	Stage string
	Err   error
}

func (e ErrContextInitFailed) Error() string {
	return stageErrorString("unable to initialize the scaling context", e.Stage, e.Err)
}
func (e ErrContextInitFailed) Unwrap() error { return e.Err }
func (ErrContextInitFailed) Kind() ErrorKind { return ErrorKindContextInitFailed }

type ErrAllocationFailed struct {
	Stage string
	Err   error
}

func (e ErrAllocationFailed) Error() string {
	return stageErrorString("unable to allocate", e.Stage, e.Err)
}
func (e ErrAllocationFailed) Unwrap() error { return e.Err }
func (ErrAllocationFailed) Kind() ErrorKind { return ErrorKindAllocationFailed }

type ErrGraphBuildFailed struct {
	Stage string
	Err   error
}

func (e ErrGraphBuildFailed) Error() string {
	return stageErrorString("unable to build the resize graph", e.Stage, e.Err)
}
func (e ErrGraphBuildFailed) Unwrap() error { return e.Err }
func (ErrGraphBuildFailed) Kind() ErrorKind { return ErrorKindGraphBuildFailed }

type ErrNoSuitableQueue struct {
	Err error
}

func (e ErrNoSuitableQueue) Error() string {
	return stageErrorString("no queue family supports both transfer and graphics", "", e.Err)
}
func (e ErrNoSuitableQueue) Unwrap() error { return e.Err }
func (ErrNoSuitableQueue) Kind() ErrorKind { return ErrorKindNoSuitableQueue }

type ErrBlitSubmitFailed struct {
	Stage string
	Err   error
}

func (e ErrBlitSubmitFailed) Error() string {
	return stageErrorString("unable to submit the blit", e.Stage, e.Err)
}
func (e ErrBlitSubmitFailed) Unwrap() error { return e.Err }
func (ErrBlitSubmitFailed) Kind() ErrorKind { return ErrorKindBlitSubmitFailed }

type ErrFenceWaitFailed struct {
	Err error
}

func (e ErrFenceWaitFailed) Error() string {
	return stageErrorString("unable to wait for the fence", "", e.Err)
}
func (e ErrFenceWaitFailed) Unwrap() error { return e.Err }
func (ErrFenceWaitFailed) Kind() ErrorKind { return ErrorKindFenceWaitFailed }

type ErrMemoryMapFailed struct {
	Err error
}

func (e ErrMemoryMapFailed) Error() string {
	return stageErrorString("unable to map the image memory", "", e.Err)
}
func (e ErrMemoryMapFailed) Unwrap() error { return e.Err }
func (ErrMemoryMapFailed) Kind() ErrorKind { return ErrorKindMemoryMapFailed }

type ErrUnsupportedBackend struct {
	Backend AcceleratorBackend
	Err     error
}

func (e ErrUnsupportedBackend) Error() string {
	return stageErrorString(fmt.Sprintf("backend '%s' cannot resize accelerator frames", e.Backend), "", e.Err)
}
func (e ErrUnsupportedBackend) Unwrap() error { return e.Err }
func (ErrUnsupportedBackend) Kind() ErrorKind { return ErrorKindUnsupportedBackend }

type ErrUnknownFormat struct {
	PixelFormat PixelFormat
}

func (e ErrUnknownFormat) Error() string {
	return fmt.Sprintf("unknown pixel format: %s", e.PixelFormat)
}
func (ErrUnknownFormat) Kind() ErrorKind { return ErrorKindUnknownFormat }

type ErrTimeout struct {
	Stage string
	Err   error
}

func (e ErrTimeout) Error() string {
	return stageErrorString("timed out", e.Stage, e.Err)
}
func (e ErrTimeout) Unwrap() error { return e.Err }
func (ErrTimeout) Kind() ErrorKind { return ErrorKindTimeout }

// ErrWouldBlock is returned by a decoder when no frame is ready yet.
var ErrWouldBlock = errors.New("would block")
