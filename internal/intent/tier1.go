package intent

import "regexp"

// tier1Pattern pairs a deterministic pattern with its intent.
type tier1Pattern struct {
	intent string
	re     *regexp.Regexp
}

// T1 patterns: emergencies and high-priority phrases that must never wait
// for a fuzzy or model-based tier. Matches short-circuit with confidence 1.
// Go's \b is ASCII-only and never fires next to Han runes, so the Chinese
// alternatives sit outside the word-boundary group.
var tier1Patterns = []tier1Pattern{
	{"emergency_theft", regexp.MustCompile(`(?i)\b(stolen|theft|robbed|someone took my|kena curi|dicuri)\b|被偷|偷了`)},
	{"emergency_theft", regexp.MustCompile(`(?i)\bmy (wallet|phone|bag|passport|laptop) (is|was) (gone|missing|stolen)\b`)},
	{"emergency_medical", regexp.MustCompile(`(?i)\b(ambulance|bleeding|unconscious|heart attack|can'?t breathe|chest pain|sakit teruk|demam panas)\b|救护车|晕倒|受伤`)},
	{"emergency_medical", regexp.MustCompile(`(?i)\b(i'?m|i am|someone is) (hurt|injured|very sick)\b`)},
	{"emergency_fire", regexp.MustCompile(`(?i)\b(fire|smoke|burning|kebakaran|api)\b|着火|起火|冒烟`)},
	{"card_locked", regexp.MustCompile(`(?i)\b(card (is )?(locked|not working|blocked)|locked out|can'?t (get|open) (in|the door)|kad (tak boleh|rosak))\b|门卡|进不去`)},
}

// cancelRe detects a request to abort the active workflow. Run before the
// tiers whenever a workflow is active.
var cancelRe = regexp.MustCompile(`(?i)\b(cancel|never ?mind|stop|forget it|batal|tak ?nak)\b|算了|不要了`)

// IsCancellation reports whether text asks to abort the current workflow.
func IsCancellation(text string) bool {
	return cancelRe.MatchString(text)
}

// classifyTier1 runs the deterministic pattern list.
func classifyTier1(text string) (string, bool) {
	for _, p := range tier1Patterns {
		if p.re.MatchString(text) {
			return p.intent, true
		}
	}
	return "", false
}
