package emv

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/cardlab/emv-emulator/internal/tlv"
)

// FCI template tags returned by SELECT.
const (
	tagFCITemplate     = "6F"
	tagDFName          = "84"
	tagFCIProprietary  = "A5"
	tagAppLabel        = "50"
	tagAppPriority     = "87"
	tagLanguagePref    = "5F2D"
	tagIssuerCodeTable = "9F11"
	tagAppPreferred    = "9F12"
)

// BuildSelect answers SELECT-by-name. The command carries a one-byte
// length followed by the DF name: either the PSE directory name or an
// application AID that must exist in the registry.
func BuildSelect(command string, _ *CardProfile) Result {
	command = tlv.Normalize(command)

	// Five header bytes (CLA INS P1 P2 00) followed by the one-byte
	// DF name length. Commands using any other header form land here
	// with an implausible length byte and fail the overrun check.
	if len(command) < 12 {
		return failure(SWWrongLength)
	}

	declared, err := strconv.ParseUint(command[10:12], 16, 8)
	if err != nil {
		return failure(SWWrongLength)
	}
	end := 12 + int(declared)*2
	if end > len(command) {
		return failure(SWWrongLength)
	}
	name := command[12:end]

	if IsPSE(name) {
		return Result{
			Body: tlv.Wrap(tagFCITemplate, tlv.Encode(tagDFName, name)),
			SW:   SWSuccess,
		}
	}

	entry, ok := LookupAID(name)
	if !ok {
		return failure(SWFileNotFound)
	}

	label := strings.ToUpper(hex.EncodeToString([]byte(entry.Name)))
	proprietary := tlv.Wrap(tagFCIProprietary,
		tlv.Encode(tagAppLabel, label),
		tlv.Encode(tagAppPreferred, label),
		tlv.Encode(tagAppPriority, "01"),
		tlv.Encode(tagLanguagePref, "656E"), // "en"
		tlv.Encode(tagIssuerCodeTable, "01"),
	)

	return Result{
		Body: tlv.Wrap(tagFCITemplate,
			tlv.Encode(tagDFName, entry.AID),
			proprietary,
		),
		SW: SWSuccess,
	}
}
