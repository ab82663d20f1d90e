package apperr

import (
	"errors"
	"fmt"
	"testing"
)

type kindedErr struct{}

func (kindedErr) Error() string    { return "limit" }
func (kindedErr) ErrorKind() Kind { return KindQuotaExceeded }

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"user input", UserInput("bad file"), KindUserInput},
		{"wrapped store", fmt.Errorf("start: %w", Store("Upload failed", errors.New("denied"))), KindStoreOperation},
		{"kinder", kindedErr{}, KindQuotaExceeded},
		{"plain", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrapMessage(t *testing.T) {
	cause := errors.New("access denied")
	err := Store("Upload failed", cause)
	if err.Error() != "Upload failed: access denied" {
		t.Errorf("unexpected message: %s", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to unwrap")
	}
	if !Is(err, KindStoreOperation) {
		t.Error("expected store operation kind")
	}
}
