package werr

import (
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func TestKindOfUnwrapsWrappedError(t *testing.T) {
	base := New(Solve, "unsat after %d models", 3)
	wrapped := fmt.Errorf("dispatching call: %w", base)

	if got := KindOf(wrapped); got != Solve {
		t.Fatalf("KindOf(wrapped) = %v, want %v", got, Solve)
	}
}

func TestKindOfReturnsInternalForPlainError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != Internal {
		t.Fatalf("KindOf(plain) = %v, want %v", got, Internal)
	}
}

func TestFatalClassification(t *testing.T) {
	fatal := []Kind{Schema, Contract, Dispatch, TraceStore, Internal}
	for _, k := range fatal {
		if !k.Fatal() {
			t.Errorf("%v.Fatal() = false, want true", k)
		}
	}
	recovered := []Kind{Solve, RuntimeErrno}
	for _, k := range recovered {
		if k.Fatal() {
			t.Errorf("%v.Fatal() = true, want false", k)
		}
	}
}

func TestWrapNilReturnsNil(t *testing.T) {
	if err := Wrap(Dispatch, nil, "context"); err != nil {
		t.Fatalf("Wrap(nil) = %v, want nil", err)
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := Wrap(TraceStore, cause, "flushing trace")
	if errors.Cause(wrapped.Unwrap()) != cause {
		t.Fatalf("Unwrap() did not expose the original cause")
	}
}

func TestErrorStringIncludesKind(t *testing.T) {
	err := New(RuntimeErrno, "errno %d", 28)
	if got := err.Error(); !strings.Contains(got, RuntimeErrno.String()) {
		t.Fatalf("Error() = %q, want it to include the kind %q", got, RuntimeErrno.String())
	}
}
