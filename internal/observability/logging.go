// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// GlobalLogger is the logger used for background work that has no request scope.
var GlobalLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// SetLogger replaces GlobalLogger, typically with the request logger so that
// background records share its handler and format.
func SetLogger(l *slog.Logger) {
	if l != nil {
		GlobalLogger = l
	}
}

// JobLog carries the attributes of one notification job run.
type JobLog struct {
	attrs []any
}

// NewJobLog tags records with the job kind, worker and, when set, the post.
func NewJobLog(kind string, worker int, postID uint) *JobLog {
	attrs := []any{slog.String("job", kind), slog.Int("worker", worker)}
	if postID != 0 {
		attrs = append(attrs, slog.Uint64("post_id", uint64(postID)))
	}
	return &JobLog{attrs: attrs}
}

func (l *JobLog) with(extra ...any) []any {
	return append(append([]any{}, l.attrs...), extra...)
}

// Started logs at debug so busy queues stay quiet.
func (l *JobLog) Started(ctx context.Context) {
	GlobalLogger.DebugContext(ctx, "notification job started", l.attrs...)
}

func (l *JobLog) Finished(ctx context.Context, elapsed time.Duration) {
	GlobalLogger.InfoContext(ctx, "notification job finished", l.with(slog.Duration("elapsed", elapsed))...)
}

// Failed logs err; stack is only attached for recovered panics.
func (l *JobLog) Failed(ctx context.Context, err error, stack []byte) {
	attrs := l.with(slog.String("error", err.Error()))
	if len(stack) > 0 {
		attrs = append(attrs, slog.String("stack", string(stack)))
	}
	GlobalLogger.ErrorContext(ctx, "notification job failed", attrs...)
}

// StreamOpened logs a new notification stream and the reader's open count.
func StreamOpened(userID uint, open int) {
	GlobalLogger.Info("notification stream opened",
		slog.Uint64("user_id", uint64(userID)),
		slog.Int("open_streams", open),
	)
}

func StreamClosed(userID uint, reason string) {
	GlobalLogger.Info("notification stream closed",
		slog.Uint64("user_id", uint64(userID)),
		slog.String("reason", reason),
	)
}

func StreamReadFailed(userID uint, err error) {
	GlobalLogger.Warn("notification stream read failed",
		slog.Uint64("user_id", uint64(userID)),
		slog.String("error", err.Error()),
	)
}
