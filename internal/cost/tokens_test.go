package cost

import "testing"

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"whitespace", "   \n\t", 0},
		{"single short word", "hi", 1},
		{"words dominate", "a b c d e", 5},
		{"runes dominate", "abcdefghijklmnopqrstuvwxyz", 6},
		{"multibyte counted as runes", "日本語のテキストです", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateTokens(tt.text); got != tt.want {
				t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestHeuristicCounterMatchesEstimate(t *testing.T) {
	text := "A slow pan across a neon city at night"
	if got, want := (HeuristicCounter{}).CountTokens(text), EstimateTokens(text); got != want {
		t.Errorf("CountTokens = %d, want %d", got, want)
	}
}
