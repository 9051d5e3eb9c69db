package reputation

import (
	"errors"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func staticID(value string) func() (string, error) {
	return func() (string, error) { return value, nil }
}

func TestNewEvent(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	input := NewEventInput{
		CharacterID:  "char-1",
		Type:         "theft",
		LocationID:   "loc-dustgulch",
		OriginNPCID:  "npc-bartender",
		Magnitude:    40,
		Sentiment:    -35,
		Faction:      "merchant_guild",
		SpreadRadius: 2,
		DecayRate:    0.25,
		Description:  "lifted a coin purse at the bar",
		TTL:          72 * time.Hour,
	}

	event, err := NewEvent(input, fixedClock(now), staticID("evt-1"))
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if event.ID != "evt-1" {
		t.Fatalf("expected generated id, got %q", event.ID)
	}
	if !event.Timestamp.Equal(now) {
		t.Fatalf("expected timestamp %v, got %v", now, event.Timestamp)
	}
	if event.ExpiresAt == nil || !event.ExpiresAt.Equal(now.Add(72*time.Hour)) {
		t.Fatalf("expected expiry 72h after timestamp, got %v", event.ExpiresAt)
	}
	if event.SpreadCount != 0 || event.LastSpreadAt != nil {
		t.Fatal("expected fresh event without spread bookkeeping")
	}
}

func TestNewEventNoTTLNeverExpires(t *testing.T) {
	input := NewEventInput{
		CharacterID: "char-1",
		Type:        "rescue",
		LocationID:  "loc-1",
		Magnitude:   50,
		Sentiment:   60,
	}
	event, err := NewEvent(input, nil, staticID("evt-2"))
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if event.ExpiresAt != nil {
		t.Fatalf("expected no expiry, got %v", event.ExpiresAt)
	}
	if event.Expired(time.Now().Add(1000 * time.Hour)) {
		t.Fatal("event without expiry must never report expired")
	}
}

func TestNewEventValidation(t *testing.T) {
	valid := NewEventInput{
		CharacterID: "char-1",
		Type:        "theft",
		LocationID:  "loc-1",
		Magnitude:   40,
		Sentiment:   -35,
	}

	tests := []struct {
		name    string
		mutate  func(*NewEventInput)
		wantErr error
	}{
		{
			name:    "empty character id",
			mutate:  func(in *NewEventInput) { in.CharacterID = "  " },
			wantErr: ErrEmptyCharacterID,
		},
		{
			name:    "empty location id",
			mutate:  func(in *NewEventInput) { in.LocationID = "" },
			wantErr: ErrEmptyLocationID,
		},
		{
			name:    "magnitude too low",
			mutate:  func(in *NewEventInput) { in.Magnitude = 0 },
			wantErr: ErrInvalidMagnitude,
		},
		{
			name:    "magnitude too high",
			mutate:  func(in *NewEventInput) { in.Magnitude = 101 },
			wantErr: ErrInvalidMagnitude,
		},
		{
			name:    "sentiment below range",
			mutate:  func(in *NewEventInput) { in.Sentiment = -101 },
			wantErr: ErrInvalidSentiment,
		},
		{
			name:    "sentiment above range",
			mutate:  func(in *NewEventInput) { in.Sentiment = 101 },
			wantErr: ErrInvalidSentiment,
		},
		{
			name:    "negative spread radius",
			mutate:  func(in *NewEventInput) { in.SpreadRadius = -1 },
			wantErr: ErrInvalidSpreadRadius,
		},
		{
			name:    "spread radius above cap",
			mutate:  func(in *NewEventInput) { in.SpreadRadius = 6 },
			wantErr: ErrInvalidSpreadRadius,
		},
		{
			name:    "decay rate below range",
			mutate:  func(in *NewEventInput) { in.DecayRate = -0.1 },
			wantErr: ErrInvalidDecayRate,
		},
		{
			name:    "decay rate above range",
			mutate:  func(in *NewEventInput) { in.DecayRate = 1.1 },
			wantErr: ErrInvalidDecayRate,
		},
		{
			name:    "negative ttl",
			mutate:  func(in *NewEventInput) { in.TTL = -time.Hour },
			wantErr: ErrInvalidExpiry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := valid
			tt.mutate(&input)
			_, err := NewEvent(input, nil, staticID("evt"))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestEventExpired(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	expiry := now.Add(time.Hour)
	event := Event{ExpiresAt: &expiry}

	if event.Expired(now) {
		t.Fatal("event must not be expired before its expiry")
	}
	if !event.Expired(expiry) {
		t.Fatal("event must be expired at its expiry instant")
	}
	if !event.Expired(expiry.Add(time.Minute)) {
		t.Fatal("event must be expired after its expiry")
	}
}

func TestCredibilityForHop(t *testing.T) {
	tests := []struct {
		hop  int
		want int
	}{
		{hop: 0, want: 100},
		{hop: 1, want: 80},
		{hop: 2, want: 60},
		{hop: 3, want: 40},
		{hop: 4, want: 30},
		{hop: 10, want: 30},
	}
	for _, tt := range tests {
		if got := CredibilityForHop(tt.hop); got != tt.want {
			t.Fatalf("hop %d: expected credibility %d, got %d", tt.hop, tt.want, got)
		}
	}
}
