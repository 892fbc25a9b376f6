package emv

import (
	"sort"

	"github.com/cardlab/emv-emulator/internal/tlv"
)

// PSEHex is the Payment System Environment directory name
// "1PAY.SYS.DDF01" as hex. Contact PSE only; the emulator does not
// model the contactless PPSE directory.
const PSEHex = "315041592E5359532E4444463031"

// AIDEntry describes one payment application the emulated card hosts.
type AIDEntry struct {
	AID     string `json:"aid"`
	Name    string `json:"name"`
	Scheme  string `json:"scheme"`
	Country string `json:"country"`
	Issuer  string `json:"issuer"`
}

// Test-scheme registry. Production deployments would source this from
// configuration; the lookup contract stays the same.
var aidRegistry = map[string]AIDEntry{
	"A0000000031010": {
		AID:     "A0000000031010",
		Name:    "VISA CREDIT",
		Scheme:  "visa",
		Country: "US",
		Issuer:  "TESTBANK",
	},
	"A0000000041010": {
		AID:     "A0000000041010",
		Name:    "MASTERCARD",
		Scheme:  "mastercard",
		Country: "US",
		Issuer:  "TESTBANK",
	},
	"A000000025010801": {
		AID:     "A000000025010801",
		Name:    "AMEX",
		Scheme:  "amex",
		Country: "US",
		Issuer:  "TESTBANK",
	},
	"A0000003241010": {
		AID:     "A0000003241010",
		Name:    "DISCOVER",
		Scheme:  "discover",
		Country: "US",
		Issuer:  "TESTBANK",
	},
}

// LookupAID resolves an application identifier to its registry entry.
// Matching is case-insensitive; stored AIDs are canonical uppercase.
func LookupAID(aid string) (AIDEntry, bool) {
	entry, ok := aidRegistry[tlv.Normalize(aid)]
	return entry, ok
}

// IsPSE reports whether the hex string names the PSE directory.
func IsPSE(aid string) bool {
	return tlv.Normalize(aid) == PSEHex
}

// RegisteredAIDs returns the registry keys in sorted order.
func RegisteredAIDs() []string {
	aids := make([]string, 0, len(aidRegistry))
	for aid := range aidRegistry {
		aids = append(aids, aid)
	}
	sort.Strings(aids)
	return aids
}
