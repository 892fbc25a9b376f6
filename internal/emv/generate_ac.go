package emv

import "github.com/cardlab/emv-emulator/internal/tlv"

const (
	tagCryptogram     = "9F26"
	tagCryptogramInfo = "9F27"
)

// Fixed placeholder cryptogram. The emulator holds no key material,
// so the value carries no cryptographic meaning.
const placeholderCryptogram = "0102030405060708"

// Cryptogram information data: ARQC, no advice required.
const cidARQC = "80"

// BuildGenerateAC answers GENERATE AC with a placeholder application
// cryptogram, the ATC and the cryptogram information data. Always
// succeeds; the terminal-supplied CDOL data is not inspected.
func BuildGenerateAC(_ string, _ *CardProfile) Result {
	return Result{
		Body: tlv.Wrap(tagResponseTemplate,
			tlv.Encode(tagCryptogram, placeholderCryptogram),
			tlv.Encode(tagATC, getDataObjects[tagATC]),
			tlv.Encode(tagCryptogramInfo, cidARQC),
		),
		SW: SWSuccess,
	}
}
