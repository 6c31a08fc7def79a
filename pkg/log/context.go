package log

import (
	"context"

	"github.com/rs/zerolog"
)

type loggerKey struct{}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Ctx returns the logger stored in ctx, or the global logger.
func Ctx(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
			return l
		}
	}
	return L()
}

// WithRoom tags the context logger with a room id.
func WithRoom(ctx context.Context, roomID string) context.Context {
	return with(ctx, FieldRoomID, roomID)
}

// WithUser tags the context logger with a user id.
func WithUser(ctx context.Context, userID string) context.Context {
	return with(ctx, FieldUserID, userID)
}

func with(ctx context.Context, key, value string) context.Context {
	l := Ctx(ctx)
	return WithLogger(ctx, l.With().Str(key, value).Logger())
}
