package tlv

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/moov-io/bertlv"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name  string
		tag   string
		value string
		want  string
	}{
		{
			name:  "Leaf",
			tag:   "84",
			value: "A0000000031010",
			want:  "8407A0000000031010",
		},
		{
			name:  "Empty value",
			tag:   "87",
			value: "",
			want:  "8700",
		},
		{
			name:  "Two byte tag",
			tag:   "9F36",
			value: "0001",
			want:  "9F36020001",
		},
		{
			name:  "Lowercase and spaces normalized",
			tag:   "5a",
			value: "41 11 11 11 11 11 11 11",
			want:  "5A084111111111111111",
		},
		{
			name:  "Odd length value falls back to sentinel",
			tag:   "50",
			value: "414",
			want:  "5000",
		},
		{
			name:  "Oversized value falls back to sentinel",
			tag:   "50",
			value: strings.Repeat("AB", 256),
			want:  "5000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Encode(tt.tag, tt.value); got != tt.want {
				t.Errorf("Encode(%q, %q) = %q, want %q", tt.tag, tt.value, got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	inner := Encode("84", "A0000000031010")
	got := Wrap("6F", inner)
	want := "6F098407A0000000031010"
	if got != want {
		t.Errorf("Wrap() = %q, want %q", got, want)
	}
}

func TestWrapMultipleChildren(t *testing.T) {
	got := Wrap("77", Encode("82", "1980"), Encode("94", "08010100"))
	want := "770A820219809404" + "08010100"
	if got != want {
		t.Errorf("Wrap() = %q, want %q", got, want)
	}
}

// Round-trip law: encoding then structurally decoding must recover the
// original tag and value for any even-length value up to 255 bytes.
func TestEncodeRoundTrip(t *testing.T) {
	values := []string{
		"",
		"00",
		"A0000000031010",
		strings.Repeat("5A", 127),
		strings.Repeat("FF", 255),
	}

	for _, value := range values {
		encoded := Encode("9F10", value)

		raw, err := hex.DecodeString(encoded)
		if err != nil {
			t.Fatalf("Encode produced non-hex output %q: %v", encoded, err)
		}

		packets, err := bertlv.Decode(raw)
		if err != nil {
			t.Fatalf("decode of %q failed: %v", encoded, err)
		}
		if len(packets) != 1 {
			t.Fatalf("expected one TLV, got %d", len(packets))
		}

		if got := strings.ToUpper(packets[0].Tag); got != "9F10" {
			t.Errorf("round-trip tag = %q, want 9F10", got)
		}
		if got := strings.ToUpper(hex.EncodeToString(packets[0].Value)); got != value {
			t.Errorf("round-trip value = %q, want %q", got, value)
		}
	}
}

func TestIsHex(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"00A40400", true},
		{"abcdef", true},
		{"", true},
		{"00A4040G", false},
		{"hello", false},
	}

	for _, tt := range tests {
		if got := IsHex(tt.in); got != tt.want {
			t.Errorf("IsHex(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
