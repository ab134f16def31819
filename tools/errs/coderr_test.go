package errs

import (
	"testing"

	"github.com/pkg/errors"
)

func TestCodeOfThroughWrapping(t *testing.T) {
	err := ErrRecordNotFound.WrapMsg("conversation c1")
	err = errors.WithMessage(err, "history")

	ce, ok := CodeOf(err)
	if !ok {
		t.Fatalf("code not recoverable from %v", err)
	}
	if ce.Code != RecordNotFound {
		t.Fatalf("code = %d, want %d", ce.Code, RecordNotFound)
	}
}

func TestWithDetailAccumulates(t *testing.T) {
	e := ErrArgs.WithDetail("first").WithDetail("second")
	if e.Detail != "first, second" {
		t.Fatalf("detail = %q", e.Detail)
	}
	// the shared sentinel must stay clean
	if ErrArgs.Detail != "" {
		t.Fatalf("sentinel mutated: %q", ErrArgs.Detail)
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := ErrNoPermission.WrapMsg("join c1")
	if !ErrNoPermission.Is(err) {
		t.Fatal("Is must match wrapped errors by code")
	}
	if ErrRecordNotFound.Is(err) {
		t.Fatal("Is must not match a different code")
	}
}
