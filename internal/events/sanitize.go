// internal/events/sanitize.go
package events

// Fixed UI vocabulary.
const (
	TextAuthorizing = "Authorizing wallet…"
	TextBuilding    = "Building transaction…"
	TextSigning     = "Signing transaction…"
	TextSubmitting  = "Submitting transaction…"
	TextConfirming  = "Confirming transaction…"
	TextSubmitted   = "Transaction submitted"
	TextConfirmed   = "Transaction confirmed"
	TextFailed      = "Transaction failed"
	TextProcessing  = "Processing transaction…"
)

var vocabulary = map[string]struct{}{
	TextAuthorizing: {},
	TextBuilding:    {},
	TextSigning:     {},
	TextSubmitting:  {},
	TextConfirming:  {},
	TextSubmitted:   {},
	TextConfirmed:   {},
	TextFailed:      {},
	TextProcessing:  {},
}

// Sanitize rewrites any text outside the fixed vocabulary. Failures always
// read "Transaction failed"; other unknown text becomes "Processing transaction…".
func Sanitize(stage Stage, text string) string {
	if stage == StageFailed {
		return TextFailed
	}
	if _, ok := vocabulary[text]; ok {
		return text
	}
	return TextProcessing
}

// StageText returns the default text for a stage.
func StageText(stage Stage) string {
	switch stage {
	case StageAuthorizing:
		return TextAuthorizing
	case StageBuilding:
		return TextBuilding
	case StageSigning:
		return TextSigning
	case StageSubmitting:
		return TextSubmitting
	case StageConfirming:
		return TextConfirming
	case StageSubmitted:
		return TextSubmitted
	case StageConfirmed:
		return TextConfirmed
	case StageFailed:
		return TextFailed
	default:
		return TextProcessing
	}
}
