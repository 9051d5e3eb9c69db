package reputation

// Sentiment labels the dominant leaning of a location toward a character.
type Sentiment string

const (
	SentimentPositive Sentiment = "POSITIVE"
	SentimentNegative Sentiment = "NEGATIVE"
	SentimentNeutral  Sentiment = "NEUTRAL"
)

// FactionStanding is a character's average opinion among NPCs whose home
// location belongs to one faction.
type FactionStanding struct {
	Faction  string
	Opinion  float64
	NPCCount int
}

// LocationReputation summarizes how a character is seen around a location.
type LocationReputation struct {
	CharacterID string
	LocationID  string
	// OverallReputation is the mean opinion across every NPC holding a
	// knowledge record for the character. Zero when nobody knows them.
	OverallReputation float64
	DominantSentiment Sentiment
	// KnownByCount is how many NPCs hold any knowledge of the character.
	KnownByCount int
	// MostInfluentialEvent is the live event with the largest magnitude
	// at this location. Nil when no live events remain.
	MostInfluentialEvent *Event
	// RecentEvents holds up to five of the newest live events here.
	RecentEvents     []Event
	FactionStandings []FactionStanding
}

// DominantSentimentFor labels opinions by comparing how many NPCs lean
// clearly positive (> 20) against clearly negative (< -20).
func DominantSentimentFor(opinions []float64) Sentiment {
	var positive, negative int
	for _, opinion := range opinions {
		switch {
		case opinion > 20:
			positive++
		case opinion < -20:
			negative++
		}
	}
	switch {
	case positive > negative:
		return SentimentPositive
	case negative > positive:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}
