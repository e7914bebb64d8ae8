package ledger

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsKind(t *testing.T) {
	err := E(ErrNotFound, "get member", "member not found")
	if !errors.Is(err, ErrNotFound) {
		t.Error("expected errors.Is(err, ErrNotFound)")
	}
	if errors.Is(err, ErrForbidden) {
		t.Error("not found must not match forbidden")
	}
	if got := err.Error(); got != "get member: member not found" {
		t.Errorf("Error() = %q", got)
	}
}

func TestInvariantViolationMatchesForbidden(t *testing.T) {
	err := E(ErrInvariantViolation, "delete member", "family needs an admin")
	if !errors.Is(err, ErrForbidden) {
		t.Error("invariant violation should match ErrForbidden")
	}
	if !errors.Is(err, ErrInvariantViolation) {
		t.Error("invariant violation should match itself")
	}
	if got := KindOf(err); got != ErrInvariantViolation {
		t.Errorf("KindOf = %v, want %v", got, ErrInvariantViolation)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("database is locked")
	err := fmt.Errorf("apply: %w", Wrap(ErrTransientIO, "insert transaction", cause))

	if !errors.Is(err, ErrTransientIO) {
		t.Error("expected transient kind through fmt wrapping")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable")
	}
}

func TestKindOfUnclassified(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != nil {
		t.Errorf("KindOf = %v, want nil", got)
	}
	if got := KindOf(nil); got != nil {
		t.Errorf("KindOf(nil) = %v, want nil", got)
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{E(ErrInsufficientBalance, "redeem", "need 20 points, have 5"), "need 20 points, have 5"},
		{Wrap(ErrConflict, "apply", errors.New("cas")), "concurrent update conflict"},
		{errors.New("boom"), "internal error"},
	}
	for _, tt := range tests {
		if got := Message(tt.err); got != tt.want {
			t.Errorf("Message(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
