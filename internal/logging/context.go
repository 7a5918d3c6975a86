package logging

import (
	"context"
	"log/slog"

	"podship/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldItemID is the standardized structured logging key for episode identifiers.
	FieldItemID = "episode_id"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldRunID is the standardized structured logging key for pipeline_run identifiers.
	FieldRunID = "run_id"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
	// FieldProgressStage is the standardized key for progress stage labels.
	FieldProgressStage = "progress_stage"
	// FieldProgressPercent is the standardized key for progress percent (0-100).
	FieldProgressPercent = "progress_percent"
	// FieldProgressMessage is the standardized key for progress messages.
	FieldProgressMessage = "progress_message"
	// FieldProgressETA is the standardized key for progress ETA.
	FieldProgressETA = "progress_eta"
	// FieldDecisionType categorizes decision logs for filtering.
	FieldDecisionType = "decision_type"
	// FieldEventType categorizes lifecycle events (stage_start, stage_complete, status, etc.).
	FieldEventType = "event_type"
	// FieldErrorKind captures the error taxonomy (validation/config/external/etc.).
	FieldErrorKind = "error_kind"
	// FieldErrorOperation captures the failing operation name.
	FieldErrorOperation = "error_operation"
	// FieldErrorDetailPath points to additional diagnostics for an error.
	FieldErrorDetailPath = "error_detail_path"
	// FieldErrorCode captures stable error codes.
	FieldErrorCode = "error_code"
	// FieldErrorHint provides a short hint for recovery.
	FieldErrorHint = "error_hint"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.EpisodeIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldItemID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if runID, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, runID))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
