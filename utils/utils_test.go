package utils

import (
	"testing"
)

func TestAssertInvariant(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for violated invariant")
		}
	}()

	AssertInvariant(true, "should not panic")
	AssertInvariant(false, "should panic")
}

func TestRedactTail(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{name: "longer than prefix", in: "d-1234567890", n: 4, want: "d-12..."},
		{name: "shorter than prefix", in: "abc", n: 8, want: "abc"},
		{name: "exact length", in: "abcd", n: 4, want: "abcd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RedactTail(tt.in, tt.n); got != tt.want {
				t.Errorf("RedactTail(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}
}

func TestTruncateString(t *testing.T) {
	if got := TruncateString("hello world", 5); got != "hello" {
		t.Errorf("TruncateString() = %q, want %q", got, "hello")
	}
	if got := TruncateString("hi", 5); got != "hi" {
		t.Errorf("TruncateString() = %q, want %q", got, "hi")
	}
}
