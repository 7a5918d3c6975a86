package services_test

import (
	"errors"
	"strings"
	"testing"

	"podship/internal/services"
	"podship/internal/store"
)

func TestWrapAndUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalService, "render", "mux", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	pipeErr, ok := err.(*services.PipelineError)
	if !ok {
		t.Fatalf("expected PipelineError, got %T", err)
	}
	if pipeErr.Code != "E_EXTERNAL_SERVICE" {
		t.Fatalf("unexpected code %q", pipeErr.Code)
	}
	if services.FailureStatus(err) != store.StatusFailed {
		t.Fatalf("expected failed outcome, got %s", services.FailureStatus(err))
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected errors.Is to match wrapped error")
	}
	if got := err.Error(); !strings.Contains(got, "render: mux: failed") || !strings.Contains(got, "boom") {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestWrapCostCapExceededMapsToCostLimitStatus(t *testing.T) {
	err := services.Wrap(services.ErrCostCapExceeded, "tts", "enforce", "cap reached", nil)
	if services.FailureStatus(err) != store.StatusCostLimit {
		t.Fatalf("expected COST_LIMIT outcome, got %s", services.FailureStatus(err))
	}
}

func TestWrapHintAttachesCodeAndHint(t *testing.T) {
	err := services.WrapHint(services.ErrValidation, "prompts", "load_template", "bad frontmatter", "E_BAD_FRONTMATTER", "check yaml syntax", nil)
	details := services.Details(err)
	if details.Code != "E_BAD_FRONTMATTER" {
		t.Fatalf("expected explicit code to win, got %q", details.Code)
	}
	if details.Hint != "check yaml syntax" {
		t.Fatalf("expected hint to be set, got %q", details.Hint)
	}
}

func TestWrapDetailAttachesDetailPath(t *testing.T) {
	err := services.WrapDetail(services.ErrExternalService, "imagegen", "generate", "request failed", nil, "/tmp/imagegen-error.json")
	details := services.Details(err)
	if details.DetailPath != "/tmp/imagegen-error.json" {
		t.Fatalf("expected detail path to be set, got %q", details.DetailPath)
	}
	if details.Hint == "" {
		t.Fatalf("expected a default hint pointing at the detail path")
	}
}

func TestDetailsFallsBackForPlainErrors(t *testing.T) {
	plain := errors.New("unstructured failure")
	details := services.Details(plain)
	if details.Kind != services.ErrorKindExternalService {
		t.Fatalf("expected external_service fallback kind, got %s", details.Kind)
	}
	if details.Message != "unstructured failure" {
		t.Fatalf("unexpected message: %s", details.Message)
	}
}
