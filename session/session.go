// Package session drives a decoder and hands every decoded frame to the
// dispatcher until the end of the stream.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/xaionaro-go/hwscaler/logger"
	"github.com/xaionaro-go/hwscaler/types"
)

// Decoder yields decoded frames one at a time.
//
// NextFrame returns types.ErrWouldBlock when no frame is ready yet and
// io.EOF at the end of the input. After Flush it yields the frames still
// buffered inside the decoder and then io.EOF again.
type Decoder interface {
	NextFrame(ctx context.Context) (*types.Frame, error)
	Flush(ctx context.Context) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, frame *types.Frame, dst types.Resolution) error
	Stats() types.Statistics
}

type FrameFailure struct {
	Seq  uint64
	Kind types.ErrorKind
	Err  error
}

type Summary struct {
	SessionID string
	Elapsed   time.Duration
	Frames    uint64
	Failures  []FrameFailure
	Stats     types.Statistics
}

func (s Summary) String() string {
	return fmt.Sprintf(
		"session %s: %s frames in %v, %s emitted, %d failed",
		s.SessionID,
		humanize.Comma(int64(s.Frames)),
		s.Elapsed.Round(time.Millisecond),
		humanize.Bytes(s.Stats.Processed.Bytes),
		len(s.Failures),
	)
}

type Session struct {
	ID         string
	Decoder    Decoder
	Dispatcher Dispatcher
	Target     types.Resolution
}

func New(decoder Decoder, dispatcher Dispatcher, target types.Resolution) *Session {
	return &Session{
		ID:         uuid.New().String(),
		Decoder:    decoder,
		Dispatcher: dispatcher,
		Target:     target,
	}
}

// Serve runs the decode loop. Failures of individual frames are logged and
// recorded in the summary; only a decoder failure or a cancelled context
// ends the loop early.
func (s *Session) Serve(ctx context.Context) (_ret *Summary, _err error) {
	ctx = logger.CtxWithSessionID(ctx, s.ID)
	logger.Tracef(ctx, "Serve")
	defer func() { logger.Tracef(ctx, "/Serve: %v", _err) }()

	summary := &Summary{SessionID: s.ID}
	startedAt := time.Now()
	defer func() {
		summary.Elapsed = time.Since(startedAt)
		summary.Stats = s.Dispatcher.Stats()
		logger.Infof(ctx, "%s", summary)
	}()

	flushed := false
	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		frame, err := s.Decoder.NextFrame(ctx)
		switch {
		case errors.Is(err, types.ErrWouldBlock):
			continue
		case errors.Is(err, io.EOF):
			if flushed {
				return summary, nil
			}
			logger.Debugf(ctx, "end of input, flushing the decoder")
			if err := s.Decoder.Flush(ctx); err != nil {
				return summary, fmt.Errorf("unable to flush the decoder: %w", err)
			}
			flushed = true
			continue
		case err != nil:
			return summary, fmt.Errorf("unable to decode: %w", err)
		}

		summary.Frames++
		seq := summary.Frames
		frameCtx := logger.CtxWithFrame(ctx, seq)
		frameDesc := frame.String()
		if err := s.Dispatcher.Dispatch(frameCtx, frame, s.Target); err != nil {
			kind := types.ErrorKindOf(err)
			logger.Errorf(frameCtx, "unable to process frame %s (%s): %v", frameDesc, kind, err)
			summary.Failures = append(summary.Failures, FrameFailure{Seq: seq, Kind: kind, Err: err})
		}
	}
}
