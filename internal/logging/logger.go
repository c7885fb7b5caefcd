package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithTurn returns a logger with chat turn context fields attached.
// Use this for all logging within a single conversation turn.
func WithTurn(conversationID, userID string) *slog.Logger {
	return slog.With(
		"conversation_id", conversationID,
		"user_id", userID,
	)
}

// WithTool returns a logger scoped to one tool execution within a turn.
func WithTool(logger *slog.Logger, toolName, callID string) *slog.Logger {
	return logger.With(
		"tool", toolName,
		"call_id", callID,
	)
}
