// Package sink provides the output sinks for planar frames.
package sink

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/xaionaro-go/hwscaler/logger"
	"github.com/xaionaro-go/hwscaler/planar"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"
)

// Writer writes frames in the raw planar layout (Y, then U, then V, no
// padding), compatible with raw-video tooling.
type Writer struct {
	locker xsync.Mutex
	output io.Writer
	closer io.Closer

	BytesWritten atomic.Uint64
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{output: w}
}

func NewFile(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create '%s': %w", path, err)
	}
	return &Writer{output: f, closer: f}, nil
}

func (w *Writer) String() string {
	return fmt.Sprintf("Writer(%s written)", humanize.Bytes(w.BytesWritten.Load()))
}

func (w *Writer) WritePlanarFrame(ctx context.Context, frame *planar.Frame) (_err error) {
	logger.Tracef(ctx, "WritePlanarFrame(%s)", frame)
	defer func() { logger.Tracef(ctx, "/WritePlanarFrame(%s): %v", frame, _err) }()
	if err := frame.Validate(); err != nil {
		return fmt.Errorf("invalid frame %s: %w", frame, err)
	}
	return xsync.DoR1(ctx, &w.locker, func() error {
		n, err := frame.WriteTo(w.output)
		w.BytesWritten.Add(uint64(n))
		return err
	})
}

func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

// Memory keeps every frame it receives.
type Memory struct {
	locker xsync.Mutex
	frames []*planar.Frame
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) WritePlanarFrame(ctx context.Context, frame *planar.Frame) error {
	if err := frame.Validate(); err != nil {
		return fmt.Errorf("invalid frame %s: %w", frame, err)
	}
	m.locker.Do(ctx, func() {
		m.frames = append(m.frames, frame)
	})
	return nil
}

func (m *Memory) Frames(ctx context.Context) []*planar.Frame {
	return xsync.DoR1(ctx, &m.locker, func() []*planar.Frame {
		return append([]*planar.Frame(nil), m.frames...)
	})
}

// Discard drops the frames, counting them only.
type Discard struct {
	Frames atomic.Uint64
	Bytes  atomic.Uint64
}

func (d *Discard) WritePlanarFrame(ctx context.Context, frame *planar.Frame) error {
	d.Frames.Inc()
	d.Bytes.Add(uint64(frame.Size()))
	return nil
}
