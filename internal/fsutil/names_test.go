package fsutil

import (
	"strings"
	"testing"
)

func TestSafeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"arc", "arc"},
		{"IR7 betatron", "IR7_betatron"},
		{"../../etc/passwd", "etc_passwd"},
		{"a//b", "a_b"},
		{"TCP.C6L7.B1", "TCP.C6L7.B1"},
		{"  ", "unnamed"},
		{"", "unnamed"},
		{"é", "unnamed"},
	}
	for _, tt := range tests {
		if got := SafeName(tt.in); got != tt.want {
			t.Errorf("SafeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := SafeName(strings.Repeat("x", 500))
	if len(long) != maxNameLen {
		t.Errorf("long name has length %d, want %d", len(long), maxNameLen)
	}
}
