package link

import (
	"context"
	"errors"
	"testing"
)

func TestStatic(t *testing.T) {
	ctx := context.Background()
	s := NewStatic()
	if !s.Associated() {
		t.Fatal("new static link should be associated")
	}
	if err := s.Disassociate(ctx); err != nil {
		t.Fatalf("Disassociate: %v", err)
	}
	if s.Associated() {
		t.Fatal("link should be down after Disassociate")
	}
	if err := s.Associate(ctx); err != nil {
		t.Fatalf("Associate: %v", err)
	}
	if !s.Associated() {
		t.Fatal("link should be up after Associate")
	}
}

func TestStatic_AssociateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewStatic()
	_ = s.Disassociate(ctx)

	err := s.Associate(ctx)
	var le *Error
	if !errors.As(err, &le) || le.Op != "associate" {
		t.Fatalf("err = %v, want *link.Error for associate", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err should wrap context.Canceled")
	}
}

func TestError_Message(t *testing.T) {
	base := errors.New("no such device")
	tests := []struct {
		err  *Error
		want string
	}{
		{&Error{Op: "associate", Err: base}, "link: associate: no such device"},
		{&Error{Op: "lookup", Iface: "wlan0", Err: base}, "link: lookup wlan0: no such device"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
