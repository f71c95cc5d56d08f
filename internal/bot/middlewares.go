package bot

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	telebot "gopkg.in/telebot.v3"

	apperrors "github.com/gradewatch/gradewatch/internal/errors"
	"github.com/gradewatch/gradewatch/pkg/metrics"
)

// RecoveryMiddleware catches panics, reports them via the centralized handler,
// and keeps the update loop alive.
func RecoveryMiddleware(log *slog.Logger, errHandler *apperrors.Handler) Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next Handler) Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered in handler", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))

					userMsg := "服务器内部错误，请稍后再试"
					if errHandler != nil {
						appErr := apperrors.NewStateError("panic recovered in handler", userMsg)
						if msg, _ := errHandler.Handle(context.Background(), appErr); msg != "" {
							userMsg = msg
						}
					}

					if c != nil {
						if sendErr := c.Send(userMsg); sendErr != nil {
							log.Error("failed to notify user about panic", slog.Any("error", sendErr))
						}
					}

					err = nil
				}
			}()

			return next(c)
		}
	}
}

// LoggingMiddleware logs basic telemetry about incoming updates. The message
// text itself is never logged; it may be a password or cookie.
func LoggingMiddleware(log *slog.Logger) Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next Handler) Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			start := time.Now()
			chatID := int64(0)
			if c != nil && c.Chat() != nil {
				chatID = c.Chat().ID
			}

			err := next(c)
			log.Info("handled update",
				slog.Int64("chat_id", chatID),
				slog.Duration("duration", time.Since(start)),
				slog.Any("error", err),
			)

			return err
		}
	}
}

// MetricsMiddleware measures execution time and status for updates, reporting
// them to Prometheus.
func MetricsMiddleware(next Handler) Handler {
	if next == nil {
		return nil
	}

	return func(c telebot.Context) error {
		start := time.Now()
		err := next(c)

		status := "ok"
		if err != nil {
			status = "error"
		}

		metrics.RecordCommand(extractCommandName(c), status, time.Since(start))

		return err
	}
}

// extractCommandName maps the update to a metric label; free-form inputs
// (credentials, cookies) collapse into one bucket to keep both cardinality and
// secrets out of the metrics.
func extractCommandName(c telebot.Context) string {
	if c == nil {
		return "unknown"
	}

	switch text := c.Text(); text {
	case CommandOnce, CommandSubscribe, CommandUnsubscribe, CommandZjuam, CommandCookie:
		return text
	case "":
		return "unknown"
	default:
		return "input"
	}
}
