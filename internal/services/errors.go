package services

import (
	"errors"
	"fmt"
	"strings"

	"podship/internal/store"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrGateConflict       = errors.New("gate conflict")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrExternalService    = errors.New("external service error")
	ErrCostCapExceeded    = errors.New("cost cap exceeded")
	ErrIO                 = errors.New("io error")
	ErrValidation         = errors.New("validation error")
)

// ErrorKind captures the taxonomy of pipeline errors.
type ErrorKind string

const (
	ErrorKindNotFound           ErrorKind = "not_found"
	ErrorKindInvalidTransition  ErrorKind = "invalid_transition"
	ErrorKindGateConflict       ErrorKind = "gate_conflict"
	ErrorKindPreconditionFailed ErrorKind = "precondition_failed"
	ErrorKindExternalService    ErrorKind = "external_service"
	ErrorKindCostCapExceeded    ErrorKind = "cost_cap_exceeded"
	ErrorKindIO                 ErrorKind = "io"
	ErrorKindValidation         ErrorKind = "validation"
)

// PipelineError provides structured error context for orchestrator and
// stage-adapter failures.
type PipelineError struct {
	Marker     error
	Kind       ErrorKind
	Stage      string
	Operation  string
	Message    string
	Code       string
	Hint       string
	DetailPath string
	Cause      error
}

func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	if detail == "" {
		detail = "pipeline failure"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", detail, e.Cause)
	}
	return detail
}

func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func (e *PipelineError) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	if e.Marker != nil && errors.Is(e.Marker, target) {
		return true
	}
	return errors.Is(e.Cause, target)
}

// ErrorDetails exposes a snapshot of a PipelineError for structured logging
// and for populating a pipeline_run's error_message.
type ErrorDetails struct {
	Kind       ErrorKind
	Stage      string
	Operation  string
	Message    string
	Code       string
	Hint       string
	DetailPath string
	Cause      error
}

// Details extracts structured error information when available.
func Details(err error) ErrorDetails {
	var pipeErr *PipelineError
	if errors.As(err, &pipeErr) && pipeErr != nil {
		return ErrorDetails{
			Kind:       pipeErr.Kind,
			Stage:      pipeErr.Stage,
			Operation:  pipeErr.Operation,
			Message:    strings.TrimSpace(pipeErr.Message),
			Code:       strings.TrimSpace(pipeErr.Code),
			Hint:       strings.TrimSpace(pipeErr.Hint),
			DetailPath: strings.TrimSpace(pipeErr.DetailPath),
			Cause:      pipeErr.Cause,
		}
	}
	return ErrorDetails{
		Kind:    ErrorKindExternalService,
		Message: strings.TrimSpace(errorMessage(err)),
		Cause:   err,
	}
}

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later status classification. The marker
// should be one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	return wrapWithOptions(marker, stage, operation, message, err)
}

// WrapDetail attaches a detail path to the resulting error.
func WrapDetail(marker error, stage, operation, message string, err error, detailPath string) error {
	return wrapWithOptions(marker, stage, operation, message, err, WithDetailPath(detailPath))
}

// WrapHint attaches a stable error code and hint to the resulting error.
func WrapHint(marker error, stage, operation, message, code, hint string, err error) error {
	return wrapWithOptions(marker, stage, operation, message, err, WithCode(code), WithHint(hint))
}

type wrapOption func(*PipelineError)

func WithDetailPath(path string) wrapOption {
	return func(err *PipelineError) {
		if err != nil {
			err.DetailPath = strings.TrimSpace(path)
		}
	}
}

func WithCode(code string) wrapOption {
	return func(err *PipelineError) {
		if err != nil {
			err.Code = strings.TrimSpace(code)
		}
	}
}

func WithHint(hint string) wrapOption {
	return func(err *PipelineError) {
		if err != nil {
			err.Hint = strings.TrimSpace(hint)
		}
	}
}

func wrapWithOptions(marker error, stage, operation, message string, err error, opts ...wrapOption) error {
	if marker == nil {
		marker = ErrExternalService
	}
	kind, code := classifyMarker(marker)
	pipeErr := &PipelineError{
		Marker:    marker,
		Kind:      kind,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Code:      code,
		Cause:     err,
	}
	if err != nil {
		var nested *PipelineError
		if errors.As(err, &nested) && nested != nil {
			if strings.TrimSpace(pipeErr.DetailPath) == "" {
				pipeErr.DetailPath = nested.DetailPath
			}
			if strings.TrimSpace(pipeErr.Code) == "" {
				pipeErr.Code = nested.Code
			}
			if strings.TrimSpace(pipeErr.Hint) == "" {
				pipeErr.Hint = nested.Hint
			}
		}
	}
	for _, opt := range opts {
		opt(pipeErr)
	}
	if pipeErr.Hint == "" && pipeErr.DetailPath != "" {
		pipeErr.Hint = "see error_detail_path for adapter output"
	}
	return pipeErr
}

// FailureStatus maps a stage error to the episode status the orchestrator
// should persist after a stage returns failed. Only cost-cap failures route
// to a distinct terminal status; every other failure is FAILED.
// NotFound/InvalidTransition/GateConflict surface directly to the caller
// rather than mutating episode state and are not handled here.
func FailureStatus(err error) store.EpisodeStatus {
	if errors.Is(err, ErrCostCapExceeded) {
		return store.StatusCostLimit
	}
	return store.StatusFailed
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}

func classifyMarker(marker error) (ErrorKind, string) {
	switch {
	case errors.Is(marker, ErrNotFound):
		return ErrorKindNotFound, "E_NOT_FOUND"
	case errors.Is(marker, ErrInvalidTransition):
		return ErrorKindInvalidTransition, "E_INVALID_TRANSITION"
	case errors.Is(marker, ErrGateConflict):
		return ErrorKindGateConflict, "E_GATE_CONFLICT"
	case errors.Is(marker, ErrPreconditionFailed):
		return ErrorKindPreconditionFailed, "E_PRECONDITION_FAILED"
	case errors.Is(marker, ErrCostCapExceeded):
		return ErrorKindCostCapExceeded, "E_COST_CAP_EXCEEDED"
	case errors.Is(marker, ErrIO):
		return ErrorKindIO, "E_IO"
	case errors.Is(marker, ErrValidation):
		return ErrorKindValidation, "E_VALIDATION"
	case errors.Is(marker, ErrExternalService):
		return ErrorKindExternalService, "E_EXTERNAL_SERVICE"
	default:
		return ErrorKindExternalService, "E_EXTERNAL_SERVICE"
	}
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
