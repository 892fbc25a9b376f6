package emv

import "github.com/cardlab/emv-emulator/internal/tlv"

// Data object tags served by GET DATA.
const (
	tagATC           = "9F36"
	tagLastOnlineATC = "9F13"
	tagPINTryCounter = "9F17"
	tagLogFormat     = "9F4F"
)

// Canned data object values. The log format value is a DOL listing
// cryptogram information data, amount, currency, date and ATC.
var getDataObjects = map[string]string{
	tagATC:           "0001",
	tagLastOnlineATC: "0000",
	tagPINTryCounter: "03",
	tagLogFormat:     "9F27019F02065F2A029A039F3602",
}

// BuildGetData serves single data objects by tag. The two-byte tag
// sits in the P1-P2 positions of the command header.
func BuildGetData(command string, _ *CardProfile) Result {
	command = tlv.Normalize(command)

	// Header plus the Le byte.
	if len(command) < 10 {
		return failure(SWWrongLength)
	}

	tag := command[4:8]
	value, ok := getDataObjects[tag]
	if !ok {
		return failure(SWFileNotFound)
	}

	return Result{Body: tlv.Encode(tag, value), SW: SWSuccess}
}
