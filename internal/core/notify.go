package core

import (
	"context"
	"log/slog"

	"github.com/JonMunkholm/kitstash/internal/logging"
)

// LogNotifier writes import summaries to the structured log.
type LogNotifier struct{}

// ImportSucceeded logs a clean run at info level.
func (LogNotifier) ImportSucceeded(ctx context.Context, result *ImportResult) {
	summaryLogger(ctx, result).Info("import succeeded")
}

// ImportWarned logs a run with tag warnings or failed rows at warn level.
func (LogNotifier) ImportWarned(ctx context.Context, result *ImportResult) {
	logger := summaryLogger(ctx, result)
	for _, msg := range result.Stats.Errors {
		logger.Debug("row failed", "detail", msg)
	}
	for _, msg := range result.Stats.TagWarnings {
		logger.Debug("tag warning", "detail", msg)
	}
	logger.Warn("import finished with problems")
}

// ImportFailed logs a rejected file at error level.
func (LogNotifier) ImportFailed(ctx context.Context, fileName string, err error) {
	logging.FromContext(ctx).Error("import failed",
		"file", fileName,
		"error", err,
		"support_code", MapError(err).Code,
		"user_message", FormatUserError(err),
	)
}

func summaryLogger(ctx context.Context, result *ImportResult) *slog.Logger {
	return logging.WithFields(ctx,
		"import_id", result.ImportID,
		"file", result.FileName,
		"outcome", result.Outcome,
		"successful", result.Stats.Successful,
		"failed", result.Stats.Failed,
		"total", result.Stats.Total,
		"tag_warnings", len(result.Stats.TagWarnings),
		"cancelled", result.Cancelled,
	)
}
