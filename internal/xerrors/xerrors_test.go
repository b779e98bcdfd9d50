package xerrors

import (
	"errors"
	"io/fs"
	"testing"
)

func TestWrapNilPassthrough(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Fatal("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "ctx %d", 1) != nil {
		t.Fatal("Wrapf(nil) should be nil")
	}
	if WithStack(nil) != nil {
		t.Fatal("WithStack(nil) should be nil")
	}
}

func TestWrapPreservesChain(t *testing.T) {
	err := Wrap(fs.ErrNotExist, "loading manifest")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("errors.Is lost the sentinel: %v", err)
	}
	want := "loading manifest: file does not exist"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestNewCapturesStack(t *testing.T) {
	err := New("boom")
	type hasStack interface{ StackPCs() []uintptr }
	var hs hasStack
	if !errors.As(err, &hs) || len(hs.StackPCs()) == 0 {
		t.Fatal("New should capture a stack")
	}
}

func TestWithStackIdempotent(t *testing.T) {
	err := New("boom")
	if got := WithStack(err); got != err {
		t.Fatal("WithStack should not re-wrap an already stacked error")
	}
}

func TestWrapCapturesPC(t *testing.T) {
	err := Wrap(errors.New("inner"), "outer")
	type hasPC interface{ PC() uintptr }
	hp, ok := err.(hasPC)
	if !ok || hp.PC() == 0 {
		t.Fatal("Wrap should record the caller PC")
	}
}
