package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeNodeUnresolved, "node not found")
	if err.Code != ErrCodeNodeUnresolved {
		t.Errorf("expected code %s, got %s", ErrCodeNodeUnresolved, err.Code)
	}
	if err.Cause != nil {
		t.Errorf("expected nil cause, got %v", err.Cause)
	}
	if err.Error() != "[NODE_UNRESOLVED] node not found" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestWrapPreservesCause(t *testing.T) {
	err := Wrap(ErrCodeCollectorUnavailable, "prometheus query failed", context.DeadlineExceeded)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected cause to be reachable through errors.Is")
	}
	if err.Error() != "[COLLECTOR_UNAVAILABLE] prometheus query failed: context deadline exceeded" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, ""},
		{"plain error", errors.New("boom"), ""},
		{"direct", New(ErrCodeBillingUnreachable, "down"), ErrCodeBillingUnreachable},
		{"wrapped by fmt", fmt.Errorf("attribute: %w", New(ErrCodeNodeUnresolved, "gone")), ErrCodeNodeUnresolved},
		{"outermost wins", Wrap(ErrCodeInvalidRequest, "bad", New(ErrCodeInternal, "inner")), ErrCodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsCode(t *testing.T) {
	err := WrapWithContext(ErrCodeNoDataAvailable, "all sources failed", nil, map[string]any{"sources": 3})
	if !IsCode(err, ErrCodeNoDataAvailable) {
		t.Error("expected IsCode to match")
	}
	if IsCode(err, ErrCodeInternal) {
		t.Error("expected IsCode to reject other codes")
	}
	if IsCode(nil, ErrCodeInternal) {
		t.Error("nil error must never match")
	}
	if err.Context["sources"] != 3 {
		t.Errorf("context not retained: %v", err.Context)
	}
}
