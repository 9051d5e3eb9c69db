package reputation

import "math"

// Modifier is the gameplay-facing answer to "how does this NPC treat this
// character right now". All fields derive from the NPC's knowledge record.
type Modifier struct {
	NPCID       string
	CharacterID string
	// Opinion echoes the overall opinion the modifier was derived from.
	Opinion float64
	// PriceModifier scales trade prices, 0.5 (adoring) to 2.0 (hostile).
	PriceModifier float64
	// DialogueAccessLevel gates conversation topics, 0 to 10.
	DialogueAccessLevel int
	WillHelp            bool
	WillHarm            bool
	WillReport          bool
	WillTrade           bool
	// QualityOfService is how well the NPC performs services, 0 to 100.
	QualityOfService int
}

// NeutralModifier is the stance toward a stranger: no opinion, standard
// prices, small talk only, no grudge and no favors.
func NeutralModifier(npcID, characterID string) Modifier {
	return Modifier{
		NPCID:               npcID,
		CharacterID:         characterID,
		Opinion:             0,
		PriceModifier:       1.0,
		DialogueAccessLevel: 5,
		WillHelp:            true,
		WillHarm:            false,
		WillReport:          false,
		WillTrade:           true,
		QualityOfService:    50,
	}
}

// ModifierFor derives the gameplay modifier from a knowledge record.
func ModifierFor(k Knowledge) Modifier {
	opinion := k.OverallOpinion
	trust := k.TrustLevel
	fear := k.FearLevel

	return Modifier{
		NPCID:               k.NPCID,
		CharacterID:         k.CharacterID,
		Opinion:             opinion,
		PriceModifier:       clamp(1.0-opinion/200, 0.5, 2.0),
		DialogueAccessLevel: int(clamp(math.Round(trust/10), 0, 10)),
		WillHelp:            opinion > 30 && trust > 40,
		WillHarm:            opinion < -50 || fear > 70,
		WillReport:          opinion < -30 && trust < 30,
		WillTrade:           opinion > -40,
		QualityOfService:    int(clamp(math.Round(50+opinion/2+trust/4), 0, 100)),
	}
}
