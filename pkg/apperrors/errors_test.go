package apperrors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_MessageIncludesStage(t *testing.T) {
	err := WithStage(StageFailed, "acquire", "handler resolution failed", errors.New("boom"))
	msg := err.Error()
	if !strings.Contains(msg, "acquire") || !strings.Contains(msg, "boom") {
		t.Errorf("expected stage and cause in message, got %q", msg)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(ConnectionFailed, "dial failed", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestIs_MatchesKind(t *testing.T) {
	err := New(CostExceeded, "projected cost exceeds ceiling")
	if !Is(err, CostExceeded) {
		t.Error("expected Is to match CostExceeded")
	}
	if Is(err, NotFound) {
		t.Error("expected Is to reject a different kind")
	}
}

func TestIs_NonClassifiedError(t *testing.T) {
	if Is(errors.New("plain"), NotFound) {
		t.Error("expected Is to return false for a non-classified error")
	}
}

func TestKindOf(t *testing.T) {
	err := New(AuthMissing, "no credential")
	if KindOf(err) != AuthMissing {
		t.Errorf("expected AuthMissing, got %v", KindOf(err))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("expected empty Kind for a non-classified error")
	}
}

func TestKindOf_WrappedByFmt(t *testing.T) {
	inner := New(LLMUnavailable, "retries exhausted")
	wrapped := fmt.Errorf("generating column definitions: %w", inner)
	if KindOf(wrapped) != LLMUnavailable {
		t.Errorf("expected KindOf to see through fmt.Errorf wrapping, got %v", KindOf(wrapped))
	}
}
