package intent

import "strings"

// IntentInfo is one entry of the intent taxonomy.
type IntentInfo struct {
	Name        string
	Description string
	Emergency   bool
}

// Taxonomy is the canonical intent set, in the order presented to the T4
// classification prompt.
var Taxonomy = []IntentInfo{
	{Name: "greeting", Description: "guest says hello or opens the conversation"},
	{Name: "booking_inquiry", Description: "guest wants to make, change or ask about a booking"},
	{Name: "check_in", Description: "questions about check-in time or the check-in process"},
	{Name: "check_out", Description: "questions about checkout time, late checkout, leaving"},
	{Name: "pricing", Description: "room rates, deposits, payment methods"},
	{Name: "wifi", Description: "wifi access or password"},
	{Name: "facilities", Description: "questions about showers, lockers, kitchen, laundry, common areas"},
	{Name: "directions", Description: "how to find the hostel or nearby places"},
	{Name: "luggage", Description: "luggage storage before check-in or after checkout"},
	{Name: "complaint", Description: "guest is unhappy with the room, noise, cleanliness or service"},
	{Name: "card_locked", Description: "key card not working or guest locked out"},
	{Name: "emergency_theft", Description: "something was stolen or is missing", Emergency: true},
	{Name: "emergency_medical", Description: "guest is hurt, sick or needs medical help", Emergency: true},
	{Name: "emergency_fire", Description: "fire, smoke or a safety hazard", Emergency: true},
	{Name: "thanks", Description: "guest says thank you"},
	{Name: "goodbye", Description: "guest ends the conversation"},
}

// IsEmergency reports whether name is an emergency intent.
func IsEmergency(name string) bool {
	for _, info := range Taxonomy {
		if info.Name == name {
			return info.Emergency
		}
	}
	return false
}

// Known reports whether name is in the taxonomy.
func Known(name string) bool {
	for _, info := range Taxonomy {
		if info.Name == name {
			return true
		}
	}
	return false
}

// llmSynonyms maps paraphrases an LLM is likely to return onto canonical
// intent names.
var llmSynonyms = map[string]string{
	"hello":            "greeting",
	"hi":               "greeting",
	"welcome":          "greeting",
	"booking":          "booking_inquiry",
	"book":             "booking_inquiry",
	"reservation":      "booking_inquiry",
	"reserve":          "booking_inquiry",
	"checkin":          "check_in",
	"check-in":         "check_in",
	"arrival":          "check_in",
	"checkout":         "check_out",
	"check-out":        "check_out",
	"departure":        "check_out",
	"price":            "pricing",
	"prices":           "pricing",
	"rates":            "pricing",
	"cost":             "pricing",
	"payment":          "pricing",
	"internet":         "wifi",
	"wi-fi":            "wifi",
	"amenities":        "facilities",
	"facility":         "facilities",
	"location":         "directions",
	"address":          "directions",
	"bags":             "luggage",
	"baggage":          "luggage",
	"storage":          "luggage",
	"complain":         "complaint",
	"issue":            "complaint",
	"problem":          "complaint",
	"keycard":          "card_locked",
	"key_card":         "card_locked",
	"locked_out":       "card_locked",
	"theft":            "emergency_theft",
	"stolen":           "emergency_theft",
	"robbery":          "emergency_theft",
	"medical":          "emergency_medical",
	"injury":           "emergency_medical",
	"sick":             "emergency_medical",
	"fire":             "emergency_fire",
	"thank_you":        "thanks",
	"thankyou":         "thanks",
	"gratitude":        "thanks",
	"bye":              "goodbye",
	"farewell":         "goodbye",
	"none":             Unknown,
	"other":            Unknown,
	"unclear":          Unknown,
	"general_question": Unknown,
}

// MapLLMIntentToSpecific maps a raw LLM answer onto a canonical intent.
// Unmappable answers become "unknown" rather than leaking free text into
// the routing table.
func MapLLMIntentToSpecific(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = strings.Trim(name, "\"'.` ")
	name = strings.ReplaceAll(name, " ", "_")
	if Known(name) {
		return name
	}
	if mapped, ok := llmSynonyms[name]; ok {
		return mapped
	}
	// "intent: booking_inquiry" style answers.
	if idx := strings.LastIndex(name, ":"); idx >= 0 {
		return MapLLMIntentToSpecific(name[idx+1:])
	}
	return Unknown
}
