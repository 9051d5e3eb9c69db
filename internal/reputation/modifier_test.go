package reputation

import "testing"

func TestNeutralModifier(t *testing.T) {
	m := NeutralModifier("npc-1", "char-1")

	if m.Opinion != 0 {
		t.Fatalf("expected neutral opinion 0, got %v", m.Opinion)
	}
	if m.PriceModifier != 1.0 {
		t.Fatalf("expected neutral price 1.0, got %v", m.PriceModifier)
	}
	if m.DialogueAccessLevel != 5 {
		t.Fatalf("expected neutral dialogue level 5, got %d", m.DialogueAccessLevel)
	}
	if !m.WillHelp || m.WillHarm || m.WillReport || !m.WillTrade {
		t.Fatalf("unexpected neutral flags: %+v", m)
	}
	if m.QualityOfService != 50 {
		t.Fatalf("expected neutral quality 50, got %d", m.QualityOfService)
	}
}

func TestModifierForPrice(t *testing.T) {
	tests := []struct {
		name    string
		opinion float64
		want    float64
	}{
		{name: "neutral", opinion: 0, want: 1.0},
		{name: "liked", opinion: 50, want: 0.75},
		{name: "adored", opinion: 100, want: 0.5},
		{name: "disliked", opinion: -50, want: 1.25},
		{name: "hated", opinion: -100, want: 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ModifierFor(Knowledge{OverallOpinion: tt.opinion})
			if m.PriceModifier != tt.want {
				t.Fatalf("expected price %v, got %v", tt.want, m.PriceModifier)
			}
		})
	}
}

func TestModifierForDialogueAccess(t *testing.T) {
	tests := []struct {
		trust float64
		want  int
	}{
		{trust: 0, want: 0},
		{trust: 44, want: 4},
		{trust: 45, want: 5},
		{trust: 100, want: 10},
	}
	for _, tt := range tests {
		m := ModifierFor(Knowledge{TrustLevel: tt.trust})
		if m.DialogueAccessLevel != tt.want {
			t.Fatalf("trust %v: expected dialogue level %d, got %d", tt.trust, tt.want, m.DialogueAccessLevel)
		}
	}
}

func TestModifierForFlags(t *testing.T) {
	tests := []struct {
		name       string
		knowledge  Knowledge
		willHelp   bool
		willHarm   bool
		willReport bool
		willTrade  bool
	}{
		{
			name:      "trusted friend",
			knowledge: Knowledge{OverallOpinion: 55, TrustLevel: 70},
			willHelp:  true,
			willTrade: true,
		},
		{
			name:      "liked but untrusted",
			knowledge: Knowledge{OverallOpinion: 55, TrustLevel: 30},
			willTrade: true,
		},
		{
			name:       "despised",
			knowledge:  Knowledge{OverallOpinion: -60, TrustLevel: 20},
			willHarm:   true,
			willReport: true,
		},
		{
			name:      "feared",
			knowledge: Knowledge{OverallOpinion: 10, TrustLevel: 40, FearLevel: 80},
			willHarm:  true,
			willTrade: true,
		},
		{
			name:       "suspicious",
			knowledge:  Knowledge{OverallOpinion: -35, TrustLevel: 25},
			willReport: true,
			willTrade:  true,
		},
		{
			name:      "boycotted",
			knowledge: Knowledge{OverallOpinion: -45, TrustLevel: 60},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ModifierFor(tt.knowledge)
			if m.WillHelp != tt.willHelp {
				t.Fatalf("willHelp: expected %v, got %v", tt.willHelp, m.WillHelp)
			}
			if m.WillHarm != tt.willHarm {
				t.Fatalf("willHarm: expected %v, got %v", tt.willHarm, m.WillHarm)
			}
			if m.WillReport != tt.willReport {
				t.Fatalf("willReport: expected %v, got %v", tt.willReport, m.WillReport)
			}
			if m.WillTrade != tt.willTrade {
				t.Fatalf("willTrade: expected %v, got %v", tt.willTrade, m.WillTrade)
			}
		})
	}
}

func TestModifierForQualityOfService(t *testing.T) {
	tests := []struct {
		name      string
		knowledge Knowledge
		want      int
	}{
		{name: "zeroed", knowledge: Knowledge{OverallOpinion: -100, TrustLevel: 0}, want: 0},
		{name: "middling", knowledge: Knowledge{OverallOpinion: 0, TrustLevel: 40}, want: 60},
		{name: "capped", knowledge: Knowledge{OverallOpinion: 100, TrustLevel: 100}, want: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ModifierFor(tt.knowledge)
			if m.QualityOfService != tt.want {
				t.Fatalf("expected quality %d, got %d", tt.want, m.QualityOfService)
			}
		})
	}
}

func TestModifierRangesHold(t *testing.T) {
	extremes := []Knowledge{
		{OverallOpinion: -100, TrustLevel: 0, FearLevel: 100},
		{OverallOpinion: 100, TrustLevel: 100, FearLevel: 0},
		{OverallOpinion: 0, TrustLevel: 50, FearLevel: 50},
	}
	for _, k := range extremes {
		m := ModifierFor(k)
		if m.PriceModifier < 0.5 || m.PriceModifier > 2.0 {
			t.Fatalf("price out of range: %v", m.PriceModifier)
		}
		if m.DialogueAccessLevel < 0 || m.DialogueAccessLevel > 10 {
			t.Fatalf("dialogue level out of range: %d", m.DialogueAccessLevel)
		}
		if m.QualityOfService < 0 || m.QualityOfService > 100 {
			t.Fatalf("quality out of range: %d", m.QualityOfService)
		}
	}
}

func TestDominantSentimentFor(t *testing.T) {
	tests := []struct {
		name     string
		opinions []float64
		want     Sentiment
	}{
		{name: "empty", opinions: nil, want: SentimentNeutral},
		{name: "mild opinions stay neutral", opinions: []float64{15, -10, 20}, want: SentimentNeutral},
		{name: "positive majority", opinions: []float64{45, 30, -25}, want: SentimentPositive},
		{name: "negative majority", opinions: []float64{-45, -30, 25}, want: SentimentNegative},
		{name: "balanced strong opinions", opinions: []float64{45, -45}, want: SentimentNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DominantSentimentFor(tt.opinions); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
