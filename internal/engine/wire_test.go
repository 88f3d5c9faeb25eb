package engine

import (
	"fmt"
	"testing"
)

func TestEncodeWire(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0.0, "#x00"},
		{0.5, "#x32"},
		{0.54, "#x36"},
		{1.0, "#x64"},
		{2.55, "#xFF"},
		{9.99, "#xFF"}, // clamped high
		{-0.3, "#x00"}, // clamped low
	}

	for _, tt := range tests {
		if got := EncodeWire(tt.in); got != tt.want {
			t.Errorf("EncodeWire(%f) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWireRoundTrip(t *testing.T) {
	for v := 0; v <= 255; v++ {
		enc := fmt.Sprintf("#x%02X", v)
		got, ok := ParseWireValue(enc)
		if !ok || got != v {
			t.Fatalf("round trip of %d via %q: got %d, ok=%v", v, enc, got, ok)
		}
	}
}

func TestParseWireValue(t *testing.T) {
	tests := []struct {
		token string
		want  int
		ok    bool
	}{
		{"#x32", 50, true},
		{"#X0d", 13, true},
		{"#b110010", 50, true},
		{"50", 50, true},
		{"0", 0, true},
		{"T", 1, true},
		{"F", 0, true},
		{"  #x0A ", 10, true},
		{"#x", 0, false},
		{"#xZZ", 0, false},
		{"maybe", 0, false},
		{"", 0, false},
		{"1.5", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseWireValue(tt.token)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseWireValue(%q) = (%d, %v), want (%d, %v)", tt.token, got, ok, tt.want, tt.ok)
		}
	}
}

func TestExtractValue(t *testing.T) {
	tests := []struct {
		line string
		want int
		ok   bool
	}{
		{"o1[0] := #x32", 50, true},
		{"o1[3] := 13", 13, true},
		{"o1[0] := #b1010", 10, true},
		{"o1[0] := T", 1, true},
		{"garbage with no assignment", 0, false},
		{"o1[0] :=", 0, false},
	}

	for _, tt := range tests {
		got, end, ok := extractValue(tt.line)
		if ok != tt.ok || got != tt.want {
			t.Errorf("extractValue(%q) = (%d, %v), want (%d, %v)", tt.line, got, ok, tt.want, tt.ok)
		}
		if ok && (end <= 0 || end > len(tt.line)) {
			t.Errorf("extractValue(%q) consume offset %d out of range", tt.line, end)
		}
	}
}

func TestExtractValueOffsetSplitsTrailingText(t *testing.T) {
	line := "o1[0] := #x32\ni1\n"
	got, end, ok := extractValue(line)
	if !ok || got != 50 {
		t.Fatalf("extractValue = (%d, %v), want (50, true)", got, ok)
	}
	if rest := line[end:]; rest != "\ni1\n" {
		t.Errorf("text after consume offset = %q, want the next prompt intact", rest)
	}
}

func TestStripANSI(t *testing.T) {
	in := "\x1b[32mo1[0]\x1b[0m := \x1b[1m#x19\x1b[0m"
	want := "o1[0] := #x19"
	if got := StripANSI(in); got != want {
		t.Errorf("StripANSI = %q, want %q", got, want)
	}

	plain := "o1[0] := 5"
	if got := StripANSI(plain); got != plain {
		t.Errorf("StripANSI mangled plain text: %q", got)
	}
}
