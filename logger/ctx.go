package logger

import (
	"context"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
)

func FromCtx(ctx context.Context) Logger {
	return logger.FromCtx(ctx)
}

func CtxWithLogger(ctx context.Context, l Logger) context.Context {
	return logger.CtxWithLogger(ctx, l)
}

// CtxWithSessionID tags every message logged through ctx with the decode session.
func CtxWithSessionID(ctx context.Context, sessionID string) context.Context {
	return belt.WithField(ctx, "session_id", sessionID)
}

// CtxWithFrame tags every message logged through ctx with the frame sequence number.
func CtxWithFrame(ctx context.Context, seqNo uint64) context.Context {
	return belt.WithField(ctx, "frame_seq", seqNo)
}
