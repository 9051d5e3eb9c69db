package reputation

import (
	"fmt"
	"strings"
	"time"

	apperrors "grapevine/internal/platform/errors"
	"grapevine/internal/platform/id"
)

// EventType identifies a category of reputation-affecting action. Valid
// types and their default parameters are configuration, not code; see the
// config package.
type EventType string

// Source describes how an NPC learned about an event.
type Source string

const (
	// SourceWitnessed marks first-hand knowledge from the scene itself.
	SourceWitnessed Source = "WITNESSED"
	// SourceHeard marks knowledge relayed by another NPC within two hops.
	SourceHeard Source = "HEARD"
	// SourceRumor marks third-hop hearsay with distorted sentiment.
	SourceRumor Source = "RUMOR"
)

// Validation bounds for events.
const (
	MagnitudeMin = 1
	MagnitudeMax = 100

	SentimentMin = -100
	SentimentMax = 100

	// MaxSpreadRadius bounds the radius an event may request. The spreading
	// engine additionally caps traversal at MaxHops.
	MaxSpreadRadius = 5

	// MaxHops is the farthest an event travels from its origin regardless of
	// the requested radius.
	MaxHops = 3

	// CredibilityFloor is the lowest credibility any retelling can carry.
	CredibilityFloor = 30
)

var (
	// ErrEmptyCharacterID indicates a missing character id.
	ErrEmptyCharacterID = apperrors.New(apperrors.CodeEventEmptyCharacterID, "character id is required")
	// ErrEmptyLocationID indicates a missing location id.
	ErrEmptyLocationID = apperrors.New(apperrors.CodeEventEmptyLocationID, "location id is required")
	// ErrInvalidMagnitude indicates a magnitude outside [1, 100].
	ErrInvalidMagnitude = apperrors.New(apperrors.CodeEventInvalidMagnitude, "magnitude must be between 1 and 100")
	// ErrInvalidSentiment indicates a sentiment outside [-100, 100].
	ErrInvalidSentiment = apperrors.New(apperrors.CodeEventInvalidSentiment, "sentiment must be between -100 and 100")
	// ErrInvalidSpreadRadius indicates a spread radius outside [0, 5].
	ErrInvalidSpreadRadius = apperrors.New(apperrors.CodeEventInvalidSpreadRadius, "spread radius must be between 0 and 5")
	// ErrInvalidDecayRate indicates a decay rate outside [0, 1].
	ErrInvalidDecayRate = apperrors.New(apperrors.CodeEventInvalidDecayRate, "decay rate must be between 0 and 1")
	// ErrInvalidExpiry indicates an expiration before the event timestamp.
	ErrInvalidExpiry = apperrors.New(apperrors.CodeEventInvalidExpiry, "expiration must not precede the event timestamp")
)

// Event records one reputation-affecting action taken by a character.
// Spread bookkeeping (SpreadCount, LastSpreadAt) is owned by the spreading
// engine; everything else is immutable after creation.
type Event struct {
	ID          string
	CharacterID string
	Type        EventType
	// Magnitude is how noteworthy the action was, 1 to 100.
	Magnitude int
	// Sentiment is how favorably witnesses judge the action, -100 to 100.
	Sentiment int
	// Faction is the faction whose members care extra about this event.
	// Empty means no faction affinity.
	Faction string
	// LocationID is where the action happened.
	LocationID string
	// OriginNPCID is the NPC who witnessed the action first-hand. Empty
	// means nobody saw it: the event still counts toward the location's
	// record but gossip has no seed, so spreading informs nobody.
	OriginNPCID string
	// SpreadRadius is how many hops outward the event wants to travel,
	// 0 to 5. Effective traversal is capped at MaxHops.
	SpreadRadius int
	// DecayRate is the per-hop magnitude loss fraction, 0 to 1.
	DecayRate float64
	Timestamp time.Time
	// ExpiresAt is when the event stops mattering. Nil means never.
	ExpiresAt   *time.Time
	Description string
	// SpreadCount is how many NPCs the most recent spread run informed.
	SpreadCount int
	// LastSpreadAt is when the spreading engine last processed this event.
	LastSpreadAt *time.Time
}

// NewEventInput carries the resolved parameters for a new event. Callers
// normally fill it from the event-type defaults table before overriding.
type NewEventInput struct {
	CharacterID  string
	Type         EventType
	LocationID   string
	OriginNPCID  string
	Magnitude    int
	Sentiment    int
	Faction      string
	SpreadRadius int
	DecayRate    float64
	Description  string
	// TTL is how long the event stays live. Zero means it never expires.
	TTL time.Duration
}

// NewEvent validates input and mints an event with a generated ID and
// timestamps. No spreading happens here.
func NewEvent(input NewEventInput, now func() time.Time, idGenerator func() (string, error)) (Event, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := normalizeNewEventInput(input)
	if err != nil {
		return Event{}, err
	}

	eventID, err := idGenerator()
	if err != nil {
		return Event{}, fmt.Errorf("generate event id: %w", err)
	}

	timestamp := now().UTC()
	event := Event{
		ID:           eventID,
		CharacterID:  normalized.CharacterID,
		Type:         normalized.Type,
		Magnitude:    normalized.Magnitude,
		Sentiment:    normalized.Sentiment,
		Faction:      normalized.Faction,
		LocationID:   normalized.LocationID,
		OriginNPCID:  normalized.OriginNPCID,
		SpreadRadius: normalized.SpreadRadius,
		DecayRate:    normalized.DecayRate,
		Timestamp:    timestamp,
		Description:  normalized.Description,
	}
	if normalized.TTL > 0 {
		expiresAt := timestamp.Add(normalized.TTL)
		event.ExpiresAt = &expiresAt
	}
	return event, nil
}

// normalizeNewEventInput trims identifiers and validates parameter ranges.
func normalizeNewEventInput(input NewEventInput) (NewEventInput, error) {
	input.CharacterID = strings.TrimSpace(input.CharacterID)
	input.LocationID = strings.TrimSpace(input.LocationID)
	input.OriginNPCID = strings.TrimSpace(input.OriginNPCID)
	input.Faction = strings.TrimSpace(input.Faction)
	input.Description = strings.TrimSpace(input.Description)

	if input.CharacterID == "" {
		return NewEventInput{}, ErrEmptyCharacterID
	}
	if input.LocationID == "" {
		return NewEventInput{}, ErrEmptyLocationID
	}
	if input.Magnitude < MagnitudeMin || input.Magnitude > MagnitudeMax {
		return NewEventInput{}, ErrInvalidMagnitude
	}
	if input.Sentiment < SentimentMin || input.Sentiment > SentimentMax {
		return NewEventInput{}, ErrInvalidSentiment
	}
	if input.SpreadRadius < 0 || input.SpreadRadius > MaxSpreadRadius {
		return NewEventInput{}, ErrInvalidSpreadRadius
	}
	if input.DecayRate < 0 || input.DecayRate > 1 {
		return NewEventInput{}, ErrInvalidDecayRate
	}
	if input.TTL < 0 {
		return NewEventInput{}, ErrInvalidExpiry
	}
	return input, nil
}

// Expired reports whether the event has passed its expiration.
func (e Event) Expired(now time.Time) bool {
	if e.ExpiresAt == nil {
		return false
	}
	return !now.Before(*e.ExpiresAt)
}

// CredibilityForHop returns how believable a retelling is after the given
// number of hops: 100 at the source, 20 less per hop, never below the floor.
func CredibilityForHop(hop int) int {
	credibility := 100 - hop*20
	if credibility < CredibilityFloor {
		return CredibilityFloor
	}
	return credibility
}

// SourceForHop classifies a recollection by how far it traveled: witnessed
// at the scene, heard within two hops, rumor at the third.
func SourceForHop(hop int) Source {
	switch {
	case hop <= 0:
		return SourceWitnessed
	case hop <= 2:
		return SourceHeard
	default:
		return SourceRumor
	}
}

// KnownEvent is one NPC's recollection of an event. Recollections are
// stored inside the owning Knowledge record as a JSON document.
type KnownEvent struct {
	EventID string    `json:"event_id"`
	Type    EventType `json:"type"`
	// PerceivedMagnitude is the magnitude after per-hop decay and any
	// faction boost. The boost applies after decay, so same-faction
	// listeners can perceive slow-decaying events as larger than life.
	PerceivedMagnitude int `json:"perceived_magnitude"`
	// PerceivedSentiment is the sentiment as retold, jittered at rumor range.
	PerceivedSentiment int    `json:"perceived_sentiment"`
	Source             Source `json:"source"`
	// HeardFrom is the NPC who relayed the event. Empty for witnesses.
	HeardFrom   string    `json:"heard_from,omitempty"`
	HopDistance int       `json:"hop_distance"`
	LearnedAt   time.Time `json:"learned_at"`
	// Credibility is how believable this recollection is, 30 to 100.
	Credibility int `json:"credibility"`
}
