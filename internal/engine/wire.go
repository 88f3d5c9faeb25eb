package engine

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	// InputScale maps physical volume to the engine's 8-bit range:
	// 0.5 ml becomes 50.
	InputScale = 100.0
	// OutputDivisor maps the engine's integer decision back to commanded
	// amplitude: 50 becomes 5.0 mm.
	OutputDivisor = 10.0
)

var (
	// valuePattern matches the right-hand side of an assignment line such
	// as "o1[0] := #x32": hex or binary bitvector, plain decimal, or a
	// boolean token.
	valuePattern = regexp.MustCompile(`:=\s*(#?[xXbB]?[0-9a-fA-F]+|T|F)`)

	ansiPattern = regexp.MustCompile(`\x1b(?:[@-Z\\-_]|\[[0-?]*[ -/]*[@-~])`)
)

// EncodeWire renders a physical quantity as the engine's input token: the
// value scaled by InputScale, rounded, clamped to one unsigned byte, as
// two-digit uppercase hex with the bitvector marker.
func EncodeWire(v float64) string {
	n := int(math.Round(v * InputScale))
	if n < 0 {
		n = 0
	} else if n > 255 {
		n = 255
	}
	return fmt.Sprintf("#x%02X", n)
}

// ParseWireValue decodes a token accepted by the value grammar. It returns
// false for anything outside the grammar rather than guessing.
func ParseWireValue(token string) (int, bool) {
	token = strings.TrimSpace(token)
	switch {
	case token == "T":
		return 1, true
	case token == "F":
		return 0, true
	case strings.HasPrefix(token, "#x"), strings.HasPrefix(token, "#X"):
		n, err := strconv.ParseInt(token[2:], 16, 64)
		if err != nil {
			return 0, false
		}
		return int(n), true
	case strings.HasPrefix(token, "#b"), strings.HasPrefix(token, "#B"):
		n, err := strconv.ParseInt(token[2:], 2, 64)
		if err != nil {
			return 0, false
		}
		return int(n), true
	default:
		n, err := strconv.Atoi(token)
		if err != nil {
			return 0, false
		}
		return n, true
	}
}

// extractValue finds the first assignment value in text and decodes it.
// The second result is the offset just past the match, so callers can
// consume the buffer through the value.
func extractValue(text string) (int, int, bool) {
	m := valuePattern.FindStringSubmatchIndex(text)
	if m == nil {
		return 0, 0, false
	}
	n, ok := ParseWireValue(text[m[2]:m[3]])
	if !ok {
		return 0, 0, false
	}
	return n, m[1], true
}

// StripANSI removes terminal control sequences so marker matching sees
// plain text.
func StripANSI(s string) string {
	if !strings.ContainsRune(s, '\x1b') {
		return s
	}
	return ansiPattern.ReplaceAllString(s, "")
}
