// Package spread implements gossip diffusion through the NPC social graph.
//
// An event enters the graph at its witness and travels outward hop by hop.
// Every edge crossing is a random draw weighted by relationship strength,
// and each hop degrades what the listener actually retains: magnitude
// decays, credibility drops, and at rumor distance the sentiment itself
// gets distorted in the retelling.
package spread

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sort"
	"time"

	"grapevine/internal/random"
	"grapevine/internal/reputation"
	"grapevine/internal/social"
	"grapevine/internal/storage"
)

// maxLearnAttempts bounds optimistic retries when a concurrent spread run
// updates the same knowledge record between our read and write.
const maxLearnAttempts = 3

// factionBoost amplifies perceived magnitude when the event carries a
// faction tag. It applies after hop decay, so faction gossip can arrive
// larger than life when the decay rate is low. That is intended behavior,
// not a missing cap.
const factionBoost = 1.2

// rumorJitterRange bounds the uniform sentiment distortion applied to
// third-hop retellings, in both directions.
const rumorJitterRange = 10

// Result summarizes one spread run.
type Result struct {
	// NPCsInformed counts every NPC the run reached, witness included.
	NPCsInformed int
	// HopDistribution counts informed NPCs per hop distance.
	HopDistribution [reputation.MaxHops + 1]int
	// AverageMagnitude is the mean perceived magnitude across informed
	// NPCs, zero when nobody was reached.
	AverageMagnitude float64
}

// Spreader walks events through the social graph and records what each
// reached NPC retains. It holds no state between runs; concurrent runs
// coordinate only through the knowledge store's version guard.
type Spreader struct {
	events    storage.EventStore
	knowledge storage.KnowledgeStore
	graph     social.Provider

	now      func() time.Time
	seedFunc func() (int64, error) // Generates per-run random seeds.
}

// New constructs a Spreader. A nil seedFunc falls back to crypto seeding.
func New(events storage.EventStore, knowledge storage.KnowledgeStore, graph social.Provider, seedFunc func() (int64, error)) *Spreader {
	if seedFunc == nil {
		seedFunc = random.NewSeed
	}
	return &Spreader{
		events:    events,
		knowledge: knowledge,
		graph:     graph,
		now:       time.Now,
		seedFunc:  seedFunc,
	}
}

// Spread diffuses the event through the graph at its location and persists
// a recollection for every NPC reached. The run ends by stamping the event
// with the informed count and the run time.
//
// A graph-provider outage degrades the run to the hop-0 witness instead of
// failing it. Store outages abort and surface to the caller.
func (s *Spreader) Spread(ctx context.Context, event reputation.Event) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if event.ID == "" {
		return Result{}, fmt.Errorf("event id is required")
	}

	seed, err := s.seedFunc()
	if err != nil {
		return Result{}, fmt.Errorf("generate spread seed: %w", err)
	}
	rng := rand.New(rand.NewSource(seed))
	now := s.now().UTC()

	var result Result
	var magnitudeSum int
	informed := make(map[string]struct{})

	record := func(npcID string, known reputation.KnownEvent) error {
		if err := s.learn(ctx, npcID, event.CharacterID, known, now); err != nil {
			return err
		}
		informed[npcID] = struct{}{}
		result.NPCsInformed++
		result.HopDistribution[known.HopDistance]++
		magnitudeSum += known.PerceivedMagnitude
		return nil
	}

	frontier := make([]string, 0, 1)
	if event.OriginNPCID != "" {
		witness := reputation.KnownEvent{
			EventID:            event.ID,
			Type:               event.Type,
			PerceivedMagnitude: event.Magnitude,
			PerceivedSentiment: event.Sentiment,
			Source:             reputation.SourceWitnessed,
			HopDistance:        0,
			LearnedAt:          now,
			Credibility:        reputation.CredibilityForHop(0),
		}
		if err := record(event.OriginNPCID, witness); err != nil {
			return Result{}, err
		}
		frontier = append(frontier, event.OriginNPCID)
	}

	radius := event.SpreadRadius
	if radius > reputation.MaxHops {
		radius = reputation.MaxHops
	}

	if len(frontier) > 0 && radius > 0 {
		connections, err := s.graph.Connections(ctx, event.LocationID)
		if err != nil {
			log.Printf("spread event %s: social graph unavailable, keeping hop-0 only: %v", event.ID, err)
			connections = nil
		}
		edges := make(map[string][]social.Connection, len(connections))
		for _, connection := range connections {
			edges[connection.NPCID] = append(edges[connection.NPCID], connection)
		}

		for hop := 1; hop <= radius && len(frontier) > 0; hop++ {
			reached, err := spreadHop(event, hop, now, frontier, edges, informed, rng, record)
			if err != nil {
				return Result{}, err
			}
			frontier = reached
		}
	}

	if result.NPCsInformed > 0 {
		result.AverageMagnitude = float64(magnitudeSum) / float64(result.NPCsInformed)
	}

	if err := s.events.UpdateEventSpread(ctx, event.ID, result.NPCsInformed, now); err != nil {
		return Result{}, fmt.Errorf("update event spread metadata: %w", err)
	}
	return result, nil
}

// spreadHop expands the frontier by one hop and returns the NPCs informed
// at that distance, in deterministic order for a given rng state.
func spreadHop(
	event reputation.Event,
	hop int,
	now time.Time,
	frontier []string,
	edges map[string][]social.Connection,
	informed map[string]struct{},
	rng *rand.Rand,
	record func(string, reputation.KnownEvent) error,
) ([]string, error) {
	type contact struct {
		informers []social.Connection
		reached   bool
	}
	contacts := make(map[string]*contact)
	var order []string

	// One independent draw per edge. A candidate with several informers
	// only needs a single successful draw.
	for _, npcID := range frontier {
		for _, edge := range edges[npcID] {
			candidate := edge.RelatedNPCID
			if _, done := informed[candidate]; done {
				continue
			}
			entry, ok := contacts[candidate]
			if !ok {
				entry = &contact{}
				contacts[candidate] = entry
				order = append(order, candidate)
			}
			entry.informers = append(entry.informers, edge)
			// Family always tells family; other ties cross with
			// strength/10 odds.
			if edge.IsFamily || rng.Float64() < edge.Strength/10 {
				entry.reached = true
			}
		}
	}
	sort.Strings(order)

	magnitude := float64(event.Magnitude) * math.Pow(1-event.DecayRate, float64(hop))
	if event.Faction != "" {
		magnitude *= factionBoost
	}
	perceivedMagnitude := int(math.Round(magnitude))
	credibility := reputation.CredibilityForHop(hop)
	source := reputation.SourceForHop(hop)

	var reached []string
	for _, candidate := range order {
		entry := contacts[candidate]
		if !entry.reached {
			continue
		}

		sentiment := event.Sentiment
		if source == reputation.SourceRumor {
			jitter := rng.Intn(2*rumorJitterRange+1) - rumorJitterRange
			sentiment = clampInt(sentiment+jitter, reputation.SentimentMin, reputation.SentimentMax)
		}

		known := reputation.KnownEvent{
			EventID:            event.ID,
			Type:               event.Type,
			PerceivedMagnitude: perceivedMagnitude,
			PerceivedSentiment: sentiment,
			Source:             source,
			HeardFrom:          strongestInformer(entry.informers),
			HopDistance:        hop,
			LearnedAt:          now,
			Credibility:        credibility,
		}
		if err := record(candidate, known); err != nil {
			return nil, err
		}
		reached = append(reached, candidate)
	}
	return reached, nil
}

// learn folds the recollection into the NPC's knowledge record with a
// bounded optimistic-retry loop around the store's version guard.
func (s *Spreader) learn(ctx context.Context, npcID, characterID string, known reputation.KnownEvent, now time.Time) error {
	for attempt := 0; attempt < maxLearnAttempts; attempt++ {
		knowledge, err := s.knowledge.GetKnowledge(ctx, npcID, characterID)
		if errors.Is(err, storage.ErrNotFound) {
			knowledge = reputation.Knowledge{NPCID: npcID, CharacterID: characterID}
		} else if err != nil {
			return fmt.Errorf("read knowledge for npc %s: %w", npcID, err)
		}

		if !knowledge.Learn(known) {
			// Already on file with equal or better credibility.
			return nil
		}
		knowledge.UpdatedAt = now

		err = s.knowledge.UpsertKnowledge(ctx, knowledge)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return fmt.Errorf("write knowledge for npc %s: %w", npcID, err)
		}
	}
	return fmt.Errorf("write knowledge for npc %s: %w", npcID, storage.ErrConflict)
}

// strongestInformer picks the relay the candidate credits the story to:
// the informer with the strongest tie, smallest id on equal strength.
func strongestInformer(informers []social.Connection) string {
	best := ""
	bestStrength := -1.0
	for _, edge := range informers {
		switch {
		case edge.Strength > bestStrength:
			best = edge.NPCID
			bestStrength = edge.Strength
		case edge.Strength == bestStrength && edge.NPCID < best:
			best = edge.NPCID
		}
	}
	return best
}

func clampInt(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
