package emv

import "github.com/cardlab/emv-emulator/internal/tlv"

// CommandType identifies the EMV command family of an APDU.
type CommandType int

const (
	CmdUnknown CommandType = iota
	CmdSelect
	CmdGetProcessingOptions
	CmdReadRecord
	CmdGetData
	CmdGenerateAC
)

// String returns the family name used in logs and history entries.
func (ct CommandType) String() string {
	switch ct {
	case CmdSelect:
		return "SELECT"
	case CmdGetProcessingOptions:
		return "GET_PROCESSING_OPTIONS"
	case CmdReadRecord:
		return "READ_RECORD"
	case CmdGetData:
		return "GET_DATA"
	case CmdGenerateAC:
		return "GENERATE_AC"
	default:
		return "UNKNOWN"
	}
}

// commandPrefixes is tested top-down; the first literal-prefix match
// wins, so order carries the dispatch priority. The current prefixes
// are pairwise non-overlapping, but anyone extending this table must
// re-check that no entry is a prefix of a later entry's prefix.
var commandPrefixes = []struct {
	prefix string
	typ    CommandType
}{
	{"00A40400", CmdSelect},
	{"80A80000", CmdGetProcessingOptions},
	{"00B2", CmdReadRecord},
	{"80CA", CmdGetData},
	{"80AE", CmdGenerateAC},
}

// Classify determines the command family of a normalized APDU hex
// string. Unmatched commands are CmdUnknown, never an error.
func Classify(command string) CommandType {
	command = tlv.Normalize(command)
	for _, entry := range commandPrefixes {
		if len(command) >= len(entry.prefix) && command[:len(entry.prefix)] == entry.prefix {
			return entry.typ
		}
	}
	return CmdUnknown
}
