package emv

import "github.com/cardlab/emv-emulator/internal/tlv"

const (
	tagResponseTemplate = "77"
	tagAIP              = "82"
	tagAFL              = "94"
)

// Application Interchange Profile: SDA and cardholder verification
// supported, terminal risk management to be performed.
const aipValue = "1980"

// Application File Locator: SFI 1, records 1 through 1, none used for
// offline data authentication.
const aflValue = "08010100"

// BuildGPO answers GET PROCESSING OPTIONS with a fixed AIP and AFL
// wrapped in the response message template. Always succeeds.
func BuildGPO(_ string, _ *CardProfile) Result {
	return Result{
		Body: tlv.Wrap(tagResponseTemplate,
			tlv.Encode(tagAIP, aipValue),
			tlv.Encode(tagAFL, aflValue),
		),
		SW: SWSuccess,
	}
}
