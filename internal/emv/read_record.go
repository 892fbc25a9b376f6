package emv

import (
	"strconv"

	"github.com/cardlab/emv-emulator/internal/tlv"
)

// Record template tags.
const (
	tagRecordTemplate = "70"
	tagPAN            = "5A"
	tagExpiry         = "5F24"
	tagHolderName     = "5F20"
	tagServiceCode    = "5F30"
	tagTrack2         = "57"
	tagIssuerCountry  = "5F28"
	tagAppCurrency    = "9F42"
	tagAppVersion     = "9F08"
)

// ISO 3166 / ISO 4217 numeric code 840 (US / USD).
const numericCodeUS = "0840"

// BuildReadRecord returns one of three fixed record layouts selected
// by the record number byte (P1). Records outside 1-3 do not exist on
// the emulated card.
func BuildReadRecord(command string, profile *CardProfile) Result {
	command = tlv.Normalize(command)

	if len(command) < 8 {
		return failure(SWWrongLength)
	}

	record, err := strconv.ParseUint(command[4:6], 16, 8)
	if err != nil {
		return failure(SWWrongLength)
	}

	var body string
	switch record {
	case 1:
		body = tlv.Wrap(tagRecordTemplate,
			tlv.Encode(tagPAN, profile.panHex()),
			tlv.Encode(tagExpiry, profile.expiryYYMM()+"31"),
			tlv.Encode(tagHolderName, profile.holderNameHex()),
			tlv.Encode(tagServiceCode, "0"+serviceCode),
			tlv.Encode(tagTrack2, profile.track2Hex()),
		)
	case 2:
		body = tlv.Wrap(tagRecordTemplate,
			tlv.Encode(tagTrack2, profile.track2Hex()),
		)
	case 3:
		body = tlv.Wrap(tagRecordTemplate,
			tlv.Encode(tagIssuerCountry, numericCodeUS),
			tlv.Encode(tagAppCurrency, numericCodeUS),
			tlv.Encode(tagAppVersion, "008C"),
		)
	default:
		return failure(SWFileNotFound)
	}

	return Result{Body: body, SW: SWSuccess}
}
