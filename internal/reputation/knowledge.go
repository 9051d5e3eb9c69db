package reputation

import (
	"math"
	"time"

	apperrors "grapevine/internal/platform/errors"
)

var (
	// ErrEmptyNPCID indicates a missing NPC id.
	ErrEmptyNPCID = apperrors.New(apperrors.CodeKnowledgeEmptyNPCID, "npc id is required")
)

// Knowledge aggregates everything one NPC knows about one character.
// OverallOpinion, TrustLevel, and FearLevel are derived from Events by
// Recalculate and must never be edited directly.
type Knowledge struct {
	NPCID       string
	CharacterID string
	Events      []KnownEvent
	// OverallOpinion is the NPC's weighted judgement, -100 to 100.
	OverallOpinion float64
	// TrustLevel is how far the NPC trusts the character, 0 to 100.
	TrustLevel float64
	// FearLevel is how much the NPC fears the character, 0 to 100.
	FearLevel float64
	// Version guards concurrent updates. Stores reject writes whose
	// version does not match the persisted record.
	Version   int64
	UpdatedAt time.Time
}

// Learn folds one recollection into the record and reports whether the
// record changed. An NPC keeps a single recollection per event: a retelling
// of an already-known event only sticks when it is more credible than the
// one on file, and ties keep the incumbent.
func (k *Knowledge) Learn(incoming KnownEvent) bool {
	for i, known := range k.Events {
		if known.EventID != incoming.EventID {
			continue
		}
		if incoming.Credibility <= known.Credibility {
			return false
		}
		k.Events[i] = incoming
		k.Recalculate()
		return true
	}
	k.Events = append(k.Events, incoming)
	k.Recalculate()
	return true
}

// Forget removes every recollection the keep predicate rejects and reports
// whether anything was removed. Derived fields are recomputed on change.
func (k *Knowledge) Forget(keep func(KnownEvent) bool) bool {
	kept := k.Events[:0]
	for _, known := range k.Events {
		if keep(known) {
			kept = append(kept, known)
		}
	}
	if len(kept) == len(k.Events) {
		return false
	}
	k.Events = kept
	k.Recalculate()
	return true
}

// Recalculate recomputes the derived opinion, trust, and fear from Events.
//
// Opinion is the credibility- and magnitude-weighted mean of perceived
// sentiment. Trust starts neutral at 50 and moves by the balance of positive
// against negative evidence, so new positive evidence never lowers it. Fear
// accumulates from negative events only, weighted quadratically by magnitude
// so a massacre frightens in a way a hundred pocket thefts never will.
func (k *Knowledge) Recalculate() {
	var weightSum, weighted float64
	var positive, negative float64
	var fright float64

	for _, known := range k.Events {
		magnitude := float64(known.PerceivedMagnitude) / 100
		credibility := float64(known.Credibility) / 100
		weight := magnitude * credibility
		sentiment := float64(known.PerceivedSentiment)

		weightSum += weight
		weighted += sentiment * weight

		switch {
		case sentiment > 0:
			positive += sentiment * weight
		case sentiment < 0:
			negative += -sentiment * weight
			fright += -sentiment * magnitude * magnitude * credibility
		}
	}

	if weightSum == 0 {
		k.OverallOpinion = 0
		k.TrustLevel = 50
		k.FearLevel = 0
		return
	}

	k.OverallOpinion = clamp(weighted/weightSum, -100, 100)
	k.TrustLevel = clamp(50+(positive-negative)/2, 0, 100)
	k.FearLevel = clamp(fright, 0, 100)
}

func clamp(value, low, high float64) float64 {
	return math.Min(high, math.Max(low, value))
}
