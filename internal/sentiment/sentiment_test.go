package sentiment

import "testing"

func TestAnalyze(t *testing.T) {
	tests := []struct {
		text string
		want Label
	}{
		{"This is ridiculous!", Negative},
		{"Nobody is helping me!", Negative},
		{"I am extremely disappointed!", Negative},
		{"Thank you so much!", Positive},
		{"terima kasih", Positive},
		{"bilik saya teruk dan kotor", Negative},
		{"太差了，我要投诉", Negative},
		{"What time is check-in?", Neutral},
		{"", Neutral},
		// Negative wins a tie with polite phrasing.
		{"Thanks for nothing, this is terrible", Negative},
	}
	for _, tt := range tests {
		if got := Analyze(tt.text); got != tt.want {
			t.Errorf("Analyze(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
