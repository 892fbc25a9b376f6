package emv

import "fmt"

// StatusWord is the two-byte SW1-SW2 code terminating every APDU
// response. The emulator only ever emits the closed set below.
type StatusWord uint16

const (
	// SWSuccess indicates normal processing (ISO 7816-4 '9000').
	SWSuccess StatusWord = 0x9000
	// SWFileNotFound is returned for unknown AIDs, unsupported record
	// numbers and unrecognized data object tags ('6A82').
	SWFileNotFound StatusWord = 0x6A82
	// SWCommandNotSupported is returned when no command family matches ('6D00').
	SWCommandNotSupported StatusWord = 0x6D00
	// SWConditionsNotSatisfied is the fail-safe catch-all for internal
	// faults during response construction ('6985').
	SWConditionsNotSatisfied StatusWord = 0x6985
	// SWWrongLength signals a malformed command buffer ('6700').
	SWWrongLength StatusWord = 0x6700
	// SWSecurityStatusNotSatisfied ('6982').
	SWSecurityStatusNotSatisfied StatusWord = 0x6982
)

// Hex renders the status word as four uppercase hex digits.
func (sw StatusWord) Hex() string {
	return fmt.Sprintf("%04X", uint16(sw))
}

// IsSuccess reports whether the status word indicates normal completion.
func (sw StatusWord) IsSuccess() bool {
	return sw == SWSuccess
}

// Verbose returns a human-readable description, for logs and traces.
func (sw StatusWord) Verbose() string {
	switch sw {
	case SWSuccess:
		return "Normal processing"
	case SWFileNotFound:
		return "File or application not found"
	case SWCommandNotSupported:
		return "Instruction not supported"
	case SWConditionsNotSatisfied:
		return "Conditions of use not satisfied"
	case SWWrongLength:
		return "Wrong length"
	case SWSecurityStatusNotSatisfied:
		return "Security status not satisfied"
	default:
		return fmt.Sprintf("Unknown status %04X", uint16(sw))
	}
}
