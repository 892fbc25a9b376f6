package emv

// Result is the outcome of one response builder: the TLV response body
// (without status word) and the status word to append. Builders either
// succeed with a body or short-circuit with an error status word and an
// empty body.
type Result struct {
	Body string
	SW   StatusWord
}

// Hex renders the full wire response: body followed by the status word.
func (r Result) Hex() string {
	return r.Body + r.SW.Hex()
}

// IsSuccess reports whether the result carries the success status word.
func (r Result) IsSuccess() bool {
	return r.SW.IsSuccess()
}

func failure(sw StatusWord) Result {
	return Result{SW: sw}
}

// builders maps each command family to its response builder. A var so
// tests can substitute a builder.
var builders = map[CommandType]func(string, *CardProfile) Result{
	CmdSelect:               BuildSelect,
	CmdGetProcessingOptions: BuildGPO,
	CmdReadRecord:           BuildReadRecord,
	CmdGetData:              BuildGetData,
	CmdGenerateAC:           BuildGenerateAC,
}

// Build dispatches a classified command to its family's response
// builder. Any panic escaping a builder is converted to the
// conditions-not-satisfied status word; a single bad command must
// never take down the session that sent it.
func Build(typ CommandType, command string, profile *CardProfile) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = failure(SWConditionsNotSatisfied)
		}
	}()

	builder, ok := builders[typ]
	if !ok {
		return failure(SWCommandNotSupported)
	}
	return builder(command, profile)
}
