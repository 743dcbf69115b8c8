package language

// Thresholds for the response-language resolution contract.
const (
	// UseThreshold is the minimum detection confidence for a reply to
	// follow the detected language instead of the stored one.
	UseThreshold = 0.7
	// UpdateThreshold is the minimum confidence to durably update the
	// conversation's language tag. Deliberately higher than UseThreshold
	// so a single borderline message cannot flip the stored language
	// back and forth.
	UpdateThreshold = 0.8
)

// Fallback is the hardcoded last-resort reply language.
const Fallback = "en"

// Supported reports whether lang is one of the reply languages.
func Supported(lang string) bool {
	switch lang {
	case "en", "ms", "zh":
		return true
	}
	return false
}

// ResolveReply returns the language a reply must be written in.
// Priority: detected language (if supported and confident enough),
// then the conversation's stored language, then "en".
func ResolveReply(detected Detection, stored string) string {
	if Supported(detected.Lang) && detected.Confidence >= UseThreshold {
		return detected.Lang
	}
	if Supported(stored) {
		return stored
	}
	return Fallback
}

// ShouldUpdateStored reports whether the conversation's language tag should
// be durably updated to the detected language.
func ShouldUpdateStored(detected Detection, stored string) bool {
	return Supported(detected.Lang) &&
		detected.Confidence >= UpdateThreshold &&
		detected.Lang != stored
}
