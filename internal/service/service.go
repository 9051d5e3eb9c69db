// Package service composes event storage, knowledge storage, the social
// graph, and the spreading engine into the reputation engine's operations:
// report an event, re-run its spread, and query what NPCs make of a
// character.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"grapevine/internal/config"
	"grapevine/internal/platform/id"
	"grapevine/internal/reputation"
	"grapevine/internal/social"
	"grapevine/internal/spread"
	"grapevine/internal/storage"
)

// knowledgePageSize bounds how many knowledge records a location summary
// loads per page while walking a character's records.
const knowledgePageSize = 200

// recentEventLimit is how many of the newest events a location summary keeps.
const recentEventLimit = 5

// Options overrides the event-type defaults for a single reported event.
// Zero-valued fields keep the table defaults; pointer fields exist where a
// zero value is itself a meaningful override.
type Options struct {
	// Magnitude overrides the default magnitude, 1 to 100. Zero keeps the
	// default.
	Magnitude int
	// Sentiment overrides the default sentiment, -100 to 100. Nil keeps
	// the default.
	Sentiment *int
	// Faction overrides the default faction. Nil keeps the default; an
	// explicit empty string detaches the event from any faction.
	Faction *string
	// OriginNPCID names the witness. Empty means nobody saw it happen and
	// the event will not travel.
	OriginNPCID string
	// SpreadRadius overrides how many hops the event may travel, 0 to 5.
	// Nil keeps the default.
	SpreadRadius *int
	// DecayRate overrides the per-hop magnitude decay, 0 to 1. Nil keeps
	// the default.
	DecayRate *float64
	// Description overrides the default description. Empty keeps the
	// default.
	Description string
	// TTL overrides how long the event stays live. Nil keeps the default;
	// zero makes the event permanent.
	TTL *time.Duration
}

// Service exposes the reputation engine to callers. Construct it with New;
// the zero value is not usable.
type Service struct {
	events    storage.EventStore
	knowledge storage.KnowledgeStore
	directory social.Directory
	table     *config.Table
	spreader  *spread.Spreader
	tracer    trace.Tracer

	now         func() time.Time
	idGenerator func() (string, error)
}

// New creates a service over the given stores and spreading engine. The
// directory resolves NPCs to locations and factions for location summaries.
func New(events storage.EventStore, knowledge storage.KnowledgeStore, directory social.Directory, table *config.Table, spreader *spread.Spreader) *Service {
	return &Service{
		events:      events,
		knowledge:   knowledge,
		directory:   directory,
		table:       table,
		spreader:    spreader,
		tracer:      otel.Tracer("grapevine/service"),
		now:         time.Now,
		idGenerator: id.NewID,
	}
}

// CreateEvent records one reputation event for a character and spreads it
// through the social graph right away. Unset options fall back to the
// event-type table; out-of-range values are rejected before anything is
// written.
func (s *Service) CreateEvent(ctx context.Context, characterID string, eventType reputation.EventType, locationID string, opts Options) (reputation.Event, spread.Result, error) {
	if s == nil || s.events == nil || s.table == nil || s.spreader == nil {
		return reputation.Event{}, spread.Result{}, errors.New("event store is not configured")
	}

	ctx, span := s.tracer.Start(ctx, "service.CreateEvent", trace.WithAttributes(
		attribute.String("reputation.event_type", string(eventType)),
		attribute.String("reputation.location_id", locationID),
	))
	defer span.End()

	defaults, err := s.table.Resolve(eventType)
	if err != nil {
		return reputation.Event{}, spread.Result{}, err
	}

	input := reputation.NewEventInput{
		CharacterID:  characterID,
		Type:         eventType,
		LocationID:   locationID,
		OriginNPCID:  opts.OriginNPCID,
		Magnitude:    defaults.Magnitude,
		Sentiment:    defaults.Sentiment,
		Faction:      defaults.Faction,
		SpreadRadius: defaults.SpreadRadius,
		DecayRate:    defaults.DecayRate,
		Description:  defaults.Description,
		TTL:          defaults.TTL(),
	}
	if opts.Magnitude != 0 {
		input.Magnitude = opts.Magnitude
	}
	if opts.Sentiment != nil {
		input.Sentiment = *opts.Sentiment
	}
	if opts.Faction != nil {
		input.Faction = *opts.Faction
	}
	if opts.SpreadRadius != nil {
		input.SpreadRadius = *opts.SpreadRadius
	}
	if opts.DecayRate != nil {
		input.DecayRate = *opts.DecayRate
	}
	if opts.Description != "" {
		input.Description = opts.Description
	}
	if opts.TTL != nil {
		input.TTL = *opts.TTL
	}

	event, err := reputation.NewEvent(input, s.now, s.idGenerator)
	if err != nil {
		return reputation.Event{}, spread.Result{}, err
	}

	if err := s.events.PutEvent(ctx, event); err != nil {
		return reputation.Event{}, spread.Result{}, fmt.Errorf("store event %s: %w", event.ID, err)
	}

	result, err := s.spreader.Spread(ctx, event)
	if err != nil {
		return reputation.Event{}, spread.Result{}, fmt.Errorf("spread event %s: %w", event.ID, err)
	}
	span.SetAttributes(attribute.Int("reputation.npcs_informed", result.NPCsInformed))

	persisted, err := s.events.GetEvent(ctx, event.ID)
	if err != nil {
		return reputation.Event{}, spread.Result{}, fmt.Errorf("load event %s after spread: %w", event.ID, err)
	}
	return persisted, result, nil
}

// Spread re-runs gossip for an existing event. It is the recovery path for
// events whose first spread was interrupted; informing an NPC twice leaves
// a single recollection, so re-running is safe.
func (s *Service) Spread(ctx context.Context, eventID string) (spread.Result, error) {
	if s == nil || s.events == nil || s.spreader == nil {
		return spread.Result{}, errors.New("event store is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return spread.Result{}, errors.New("event id is required")
	}

	ctx, span := s.tracer.Start(ctx, "service.Spread", trace.WithAttributes(
		attribute.String("reputation.event_id", eventID),
	))
	defer span.End()

	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return spread.Result{}, fmt.Errorf("load event %s: %w", eventID, err)
	}
	result, err := s.spreader.Spread(ctx, event)
	if err != nil {
		return spread.Result{}, fmt.Errorf("spread event %s: %w", eventID, err)
	}
	span.SetAttributes(attribute.Int("reputation.npcs_informed", result.NPCsInformed))
	return result, nil
}

// NPCKnowledge returns everything one NPC knows about a character.
// storage.ErrNotFound means the NPC has never heard of them.
func (s *Service) NPCKnowledge(ctx context.Context, npcID, characterID string) (reputation.Knowledge, error) {
	if s == nil || s.knowledge == nil {
		return reputation.Knowledge{}, errors.New("knowledge store is not configured")
	}
	npcID = strings.TrimSpace(npcID)
	characterID = strings.TrimSpace(characterID)
	if npcID == "" {
		return reputation.Knowledge{}, reputation.ErrEmptyNPCID
	}
	if characterID == "" {
		return reputation.Knowledge{}, reputation.ErrEmptyCharacterID
	}

	ctx, span := s.tracer.Start(ctx, "service.NPCKnowledge", trace.WithAttributes(
		attribute.String("reputation.npc_id", npcID),
	))
	defer span.End()

	return s.knowledge.GetKnowledge(ctx, npcID, characterID)
}

// ReputationModifier derives gameplay modifiers from what an NPC knows
// about a character. An NPC with no knowledge treats the character
// neutrally rather than reporting an error.
func (s *Service) ReputationModifier(ctx context.Context, npcID, characterID string) (reputation.Modifier, error) {
	if s == nil || s.knowledge == nil {
		return reputation.Modifier{}, errors.New("knowledge store is not configured")
	}
	npcID = strings.TrimSpace(npcID)
	characterID = strings.TrimSpace(characterID)
	if npcID == "" {
		return reputation.Modifier{}, reputation.ErrEmptyNPCID
	}
	if characterID == "" {
		return reputation.Modifier{}, reputation.ErrEmptyCharacterID
	}

	ctx, span := s.tracer.Start(ctx, "service.ReputationModifier", trace.WithAttributes(
		attribute.String("reputation.npc_id", npcID),
	))
	defer span.End()

	knowledge, err := s.knowledge.GetKnowledge(ctx, npcID, characterID)
	if errors.Is(err, storage.ErrNotFound) {
		return reputation.NeutralModifier(npcID, characterID), nil
	}
	if err != nil {
		return reputation.Modifier{}, fmt.Errorf("load knowledge for npc %s: %w", npcID, err)
	}
	return reputation.ModifierFor(knowledge), nil
}

// LocationReputation summarizes how a character is seen around a location:
// overall standing, dominant sentiment, the live events on record there,
// and per-faction standings. NPCs whose location or faction cannot be
// resolved still count toward the overall numbers but are skipped in the
// faction breakdown.
func (s *Service) LocationReputation(ctx context.Context, characterID, locationID string) (reputation.LocationReputation, error) {
	if s == nil || s.events == nil || s.knowledge == nil || s.directory == nil {
		return reputation.LocationReputation{}, errors.New("event store is not configured")
	}
	characterID = strings.TrimSpace(characterID)
	locationID = strings.TrimSpace(locationID)
	if characterID == "" {
		return reputation.LocationReputation{}, reputation.ErrEmptyCharacterID
	}
	if locationID == "" {
		return reputation.LocationReputation{}, reputation.ErrEmptyLocationID
	}

	ctx, span := s.tracer.Start(ctx, "service.LocationReputation", trace.WithAttributes(
		attribute.String("reputation.location_id", locationID),
	))
	defer span.End()

	summary := reputation.LocationReputation{
		CharacterID:       characterID,
		LocationID:        locationID,
		DominantSentiment: reputation.SentimentNeutral,
	}

	events, err := s.events.ListEventsByCharacterLocation(ctx, characterID, locationID, s.now().UTC())
	if err != nil {
		return reputation.LocationReputation{}, fmt.Errorf("list events for %s at %s: %w", characterID, locationID, err)
	}
	if len(events) > 0 {
		most := events[0]
		for _, event := range events[1:] {
			if event.Magnitude > most.Magnitude {
				most = event
			}
		}
		summary.MostInfluentialEvent = &most
		recent := events
		if len(recent) > recentEventLimit {
			recent = recent[:recentEventLimit]
		}
		summary.RecentEvents = recent
	}

	var (
		opinions      []float64
		factionSums   = make(map[string]float64)
		factionCounts = make(map[string]int)
		factionCache  = make(map[string]string)
	)
	token := ""
	for {
		page, err := s.knowledge.ListKnowledgeByCharacter(ctx, characterID, knowledgePageSize, token)
		if err != nil {
			return reputation.LocationReputation{}, fmt.Errorf("list knowledge for %s: %w", characterID, err)
		}
		for _, record := range page.Records {
			opinions = append(opinions, record.OverallOpinion)
			faction, err := s.factionFor(ctx, record.NPCID, factionCache)
			if err != nil {
				log.Printf("location reputation: resolve faction for npc %s: %v", record.NPCID, err)
				continue
			}
			if faction == "" {
				continue
			}
			factionSums[faction] += record.OverallOpinion
			factionCounts[faction]++
		}
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}

	summary.KnownByCount = len(opinions)
	if len(opinions) > 0 {
		var sum float64
		for _, opinion := range opinions {
			sum += opinion
		}
		summary.OverallReputation = sum / float64(len(opinions))
	}
	summary.DominantSentiment = reputation.DominantSentimentFor(opinions)

	factions := make([]string, 0, len(factionCounts))
	for faction := range factionCounts {
		factions = append(factions, faction)
	}
	sort.Strings(factions)
	for _, faction := range factions {
		summary.FactionStandings = append(summary.FactionStandings, reputation.FactionStanding{
			Faction:  faction,
			Opinion:  factionSums[faction] / float64(factionCounts[faction]),
			NPCCount: factionCounts[faction],
		})
	}

	span.SetAttributes(attribute.Int("reputation.known_by", summary.KnownByCount))
	return summary, nil
}

// factionFor resolves the faction running an NPC's home location. The cache
// keys locations so co-located NPCs share one lookup per call.
func (s *Service) factionFor(ctx context.Context, npcID string, cache map[string]string) (string, error) {
	locationID, err := s.directory.NPCLocation(ctx, npcID)
	if err != nil {
		return "", fmt.Errorf("npc location: %w", err)
	}
	if faction, ok := cache[locationID]; ok {
		return faction, nil
	}
	faction, err := s.directory.LocationFaction(ctx, locationID)
	if err != nil {
		return "", fmt.Errorf("location faction: %w", err)
	}
	cache[locationID] = faction
	return faction, nil
}
