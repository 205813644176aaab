package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNetworkError_Unwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := WrapNetwork("dial", "127.0.0.1:7656", inner)

	if !errors.Is(err, inner) {
		t.Error("expected errors.Is to find the wrapped error")
	}
	want := "network dial 127.0.0.1:7656: connection refused"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestNetworkError_NoAddr(t *testing.T) {
	err := WrapNetwork("handshake", "", errors.New("bad reply"))
	if got := err.Error(); got != "network handshake: bad reply" {
		t.Errorf("Error() = %q", got)
	}
}

func TestStructuredErrors_As(t *testing.T) {
	wrapped := fmt.Errorf("connect: %w", &VersionMismatch{Expected: 1, Actual: 9})

	var vm *VersionMismatch
	if !errors.As(wrapped, &vm) {
		t.Fatal("expected errors.As to match VersionMismatch")
	}
	if vm.Actual != 9 {
		t.Errorf("Actual = %d, want 9", vm.Actual)
	}
}

func TestMessageTooLarge_Message(t *testing.T) {
	err := &MessageTooLarge{Size: 2_000_000, Max: 1 << 20}
	want := "protocol: message too large: 2000000 bytes (max 1048576)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestSentinels_Distinct(t *testing.T) {
	sentinels := []error{
		ErrNotConnected, ErrChannelClosed, ErrSessionNotActive,
		ErrUnknownDestination, ErrTimeout,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && errors.Is(a, b) {
				t.Errorf("sentinel %d and %d compare equal", i, j)
			}
		}
	}
}
