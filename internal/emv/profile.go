package emv

import (
	"encoding/hex"
	"strings"
	"time"
)

// Default field values used when a command arrives without card data.
const (
	defaultPAN        = "4111111111111111"
	defaultExpiryYYMM = "3012"
	defaultHolderName = "TEST CARDHOLDER"
	serviceCode       = "201"
)

// CardProfile is the optional per-command card data supplied by the
// device. Absent fields fall back to deterministic defaults.
type CardProfile struct {
	PAN        string    `json:"pan"`
	Expiry     time.Time `json:"expiry"`
	HolderName string    `json:"holder_name"`
}

func (p *CardProfile) pan() string {
	if p == nil || p.PAN == "" {
		return defaultPAN
	}
	return p.PAN
}

// expiryYYMM converts the calendar expiry to the two-digit-year
// year-month encoding EMV uses. A missing or zero expiry falls back to
// the fixed default rather than failing the command.
func (p *CardProfile) expiryYYMM() string {
	if p == nil || p.Expiry.IsZero() {
		return defaultExpiryYYMM
	}
	return p.Expiry.Format("0601")
}

// holderNameHex uppercases the holder name and pads or truncates it to
// the 26-character cardholder name field, then hex-encodes it.
func (p *CardProfile) holderNameHex() string {
	name := defaultHolderName
	if p != nil && p.HolderName != "" {
		name = p.HolderName
	}
	name = strings.ToUpper(name)
	if len(name) > 26 {
		name = name[:26]
	} else {
		name += strings.Repeat(" ", 26-len(name))
	}
	return strings.ToUpper(hex.EncodeToString([]byte(name)))
}

// panHex renders the PAN as compressed numeric, padded with a
// trailing F nibble when the digit count is odd (15-digit PANs).
func (p *CardProfile) panHex() string {
	return padNibbles(p.pan())
}

// track2Hex builds the track 2 equivalent data: PAN, 'D' separator,
// expiry, service code, discretionary filler.
func (p *CardProfile) track2Hex() string {
	return padNibbles(p.pan() + "D" + p.expiryYYMM() + serviceCode + "0000000000")
}

func padNibbles(s string) string {
	if len(s)%2 != 0 {
		return s + "F"
	}
	return s
}
