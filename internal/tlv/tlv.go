// Package tlv builds EMV BER-TLV data objects as hex strings.
//
// Every data object the emulator returns is constructed from two
// primitives: Encode for a leaf tag and Wrap for a constructed
// (template) tag whose value is the concatenation of already-encoded
// children. Only single-byte lengths are supported; values longer
// than 255 bytes do not occur in the response set this emulator
// produces.
package tlv

import (
	"fmt"
	"strings"
)

// MaxValueBytes is the largest value a single-byte TLV length can describe.
const MaxValueBytes = 255

// Encode renders tag ‖ length ‖ value as an uppercase hex string. The
// length field is the value's byte count as two hex digits.
//
// Malformed input (odd-length value, value over MaxValueBytes) yields
// the sentinel empty encoding of the tag rather than an error: callers
// are response builders that must always produce some well-formed TLV.
func Encode(tag, valueHex string) string {
	tag = Normalize(tag)
	valueHex = Normalize(valueHex)

	if len(valueHex)%2 != 0 || len(valueHex)/2 > MaxValueBytes {
		return tag + "00"
	}
	return fmt.Sprintf("%s%02X%s", tag, len(valueHex)/2, valueHex)
}

// Wrap encodes a template: the children (already TLV-encoded) are
// concatenated and become the value of outerTag.
func Wrap(outerTag string, children ...string) string {
	var b strings.Builder
	for _, child := range children {
		b.WriteString(Normalize(child))
	}
	return Encode(outerTag, b.String())
}

// Normalize uppercases a hex string and strips spaces, accepting the
// "00 A4 04 00" style used in traces and test fixtures.
func Normalize(h string) string {
	return strings.ToUpper(strings.ReplaceAll(h, " ", ""))
}

// IsHex reports whether s consists solely of hex digits. An empty
// string counts as hex (a zero-length value is legal TLV).
func IsHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'A' && r <= 'F':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}
