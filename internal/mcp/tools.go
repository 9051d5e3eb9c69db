package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"grapevine/internal/reputation"
	"grapevine/internal/service"
	"grapevine/internal/spread"
	"grapevine/internal/storage"
)

type ReportEventInput struct {
	CharacterID string `json:"character_id" jsonschema:"character the event is about"`
	EventType   string `json:"event_type" jsonschema:"configured event type, e.g. theft or rescue"`
	LocationID  string `json:"location_id" jsonschema:"where the event happened"`
	OriginNPCID string `json:"origin_npc_id,omitempty" jsonschema:"NPC who witnessed it first-hand; omit if nobody saw it"`
	// Optional overrides; omitted fields keep the event-type defaults.
	Magnitude    int      `json:"magnitude,omitempty" jsonschema:"override magnitude, 1 to 100"`
	Sentiment    *int     `json:"sentiment,omitempty" jsonschema:"override sentiment, -100 to 100"`
	Faction      *string  `json:"faction,omitempty" jsonschema:"override faction tag; empty string detaches the event"`
	SpreadRadius *int     `json:"spread_radius,omitempty" jsonschema:"override spread radius, 0 to 5"`
	DecayRate    *float64 `json:"decay_rate,omitempty" jsonschema:"override per-hop decay, 0 to 1"`
	Description  string   `json:"description,omitempty" jsonschema:"override description"`
	TTLHours     *int     `json:"ttl_hours,omitempty" jsonschema:"override lifetime in hours; 0 keeps the event forever"`
}

type SpreadEventInput struct {
	EventID string `json:"event_id" jsonschema:"event to re-run gossip for"`
}

type GetNPCKnowledgeInput struct {
	NPCID       string `json:"npc_id" jsonschema:"NPC to ask"`
	CharacterID string `json:"character_id" jsonschema:"character asked about"`
}

type GetReputationModifierInput struct {
	NPCID       string `json:"npc_id" jsonschema:"NPC to ask"`
	CharacterID string `json:"character_id" jsonschema:"character asked about"`
}

type GetLocationReputationInput struct {
	CharacterID string `json:"character_id" jsonschema:"character asked about"`
	LocationID  string `json:"location_id" jsonschema:"location to summarize"`
}

type ListEventTypesInput struct{}

type EventOutput struct {
	ID           string  `json:"id"`
	CharacterID  string  `json:"character_id"`
	EventType    string  `json:"event_type"`
	Magnitude    int     `json:"magnitude"`
	Sentiment    int     `json:"sentiment"`
	Faction      string  `json:"faction,omitempty"`
	LocationID   string  `json:"location_id"`
	OriginNPCID  string  `json:"origin_npc_id,omitempty"`
	SpreadRadius int     `json:"spread_radius"`
	DecayRate    float64 `json:"decay_rate"`
	Timestamp    string  `json:"timestamp"`
	ExpiresAt    string  `json:"expires_at,omitempty"`
	Description  string  `json:"description,omitempty"`
	SpreadCount  int     `json:"spread_count"`
}

type SpreadResultOutput struct {
	NPCsInformed     int     `json:"npcs_informed"`
	HopDistribution  []int   `json:"hop_distribution"`
	AverageMagnitude float64 `json:"average_magnitude"`
}

type ReportEventOutput struct {
	Event  EventOutput        `json:"event"`
	Spread SpreadResultOutput `json:"spread"`
}

type KnownEventOutput struct {
	EventID            string `json:"event_id"`
	EventType          string `json:"event_type"`
	PerceivedMagnitude int    `json:"perceived_magnitude"`
	PerceivedSentiment int    `json:"perceived_sentiment"`
	Source             string `json:"source"`
	HeardFrom          string `json:"heard_from,omitempty"`
	HopDistance        int    `json:"hop_distance"`
	LearnedAt          string `json:"learned_at"`
	Credibility        int    `json:"credibility"`
}

type GetNPCKnowledgeOutput struct {
	// Known is false when the NPC has never heard of the character.
	Known          bool               `json:"known"`
	OverallOpinion float64            `json:"overall_opinion"`
	TrustLevel     float64            `json:"trust_level"`
	FearLevel      float64            `json:"fear_level"`
	Events         []KnownEventOutput `json:"events,omitempty"`
}

type ModifierOutput struct {
	Opinion             float64 `json:"opinion"`
	PriceModifier       float64 `json:"price_modifier"`
	DialogueAccessLevel int     `json:"dialogue_access_level"`
	WillHelp            bool    `json:"will_help"`
	WillHarm            bool    `json:"will_harm"`
	WillReport          bool    `json:"will_report"`
	WillTrade           bool    `json:"will_trade"`
	QualityOfService    int     `json:"quality_of_service"`
}

type FactionStandingOutput struct {
	Faction  string  `json:"faction"`
	Opinion  float64 `json:"opinion"`
	NPCCount int     `json:"npc_count"`
}

type LocationReputationOutput struct {
	OverallReputation    float64                 `json:"overall_reputation"`
	DominantSentiment    string                  `json:"dominant_sentiment"`
	KnownByCount         int                     `json:"known_by_count"`
	MostInfluentialEvent *EventOutput            `json:"most_influential_event,omitempty"`
	RecentEvents         []EventOutput           `json:"recent_events,omitempty"`
	FactionStandings     []FactionStandingOutput `json:"faction_standings,omitempty"`
}

type EventTypeOutput struct {
	EventType    string  `json:"event_type"`
	Magnitude    int     `json:"magnitude"`
	Sentiment    int     `json:"sentiment"`
	SpreadRadius int     `json:"spread_radius"`
	DecayRate    float64 `json:"decay_rate"`
	ExpiresHours int     `json:"expires_hours"`
	Faction      string  `json:"faction,omitempty"`
	Description  string  `json:"description,omitempty"`
}

type ListEventTypesOutput struct {
	EventTypes []EventTypeOutput `json:"event_types"`
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "report_event",
		Description: "Record a reputation event for a character and spread it through the NPC social graph",
	}, s.handleReportEvent)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "spread_event",
		Description: "Re-run gossip for an existing event",
	}, s.handleSpreadEvent)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_npc_knowledge",
		Description: "Retrieve everything one NPC knows about a character",
	}, s.handleGetNPCKnowledge)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_reputation_modifier",
		Description: "Derive gameplay modifiers (prices, dialogue, willingness) from an NPC's opinion of a character",
	}, s.handleGetReputationModifier)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_location_reputation",
		Description: "Summarize how a character is seen around a location, including faction standings",
	}, s.handleGetLocationReputation)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_event_types",
		Description: "List the configured event types and their default parameters",
	}, s.handleListEventTypes)
}

func (s *Server) handleReportEvent(ctx context.Context, req *sdk.CallToolRequest, input ReportEventInput) (*sdk.CallToolResult, ReportEventOutput, error) {
	if input.CharacterID == "" {
		return nil, ReportEventOutput{}, fmt.Errorf("character_id is required")
	}
	if input.EventType == "" {
		return nil, ReportEventOutput{}, fmt.Errorf("event_type is required")
	}
	if input.LocationID == "" {
		return nil, ReportEventOutput{}, fmt.Errorf("location_id is required")
	}

	opts := service.Options{
		Magnitude:    input.Magnitude,
		Sentiment:    input.Sentiment,
		Faction:      input.Faction,
		OriginNPCID:  input.OriginNPCID,
		SpreadRadius: input.SpreadRadius,
		DecayRate:    input.DecayRate,
		Description:  input.Description,
	}
	if input.TTLHours != nil {
		ttl := time.Duration(*input.TTLHours) * time.Hour
		opts.TTL = &ttl
	}

	event, result, err := s.service.CreateEvent(ctx, input.CharacterID, reputation.EventType(input.EventType), input.LocationID, opts)
	if err != nil {
		return nil, ReportEventOutput{}, err
	}
	return nil, ReportEventOutput{
		Event:  eventOutputFrom(event),
		Spread: spreadResultOutputFrom(result),
	}, nil
}

func (s *Server) handleSpreadEvent(ctx context.Context, req *sdk.CallToolRequest, input SpreadEventInput) (*sdk.CallToolResult, SpreadResultOutput, error) {
	if input.EventID == "" {
		return nil, SpreadResultOutput{}, fmt.Errorf("event_id is required")
	}
	result, err := s.service.Spread(ctx, input.EventID)
	if err != nil {
		return nil, SpreadResultOutput{}, err
	}
	return nil, spreadResultOutputFrom(result), nil
}

func (s *Server) handleGetNPCKnowledge(ctx context.Context, req *sdk.CallToolRequest, input GetNPCKnowledgeInput) (*sdk.CallToolResult, GetNPCKnowledgeOutput, error) {
	knowledge, err := s.service.NPCKnowledge(ctx, input.NPCID, input.CharacterID)
	if errors.Is(err, storage.ErrNotFound) {
		// No information is a normal answer, not a failure.
		return nil, GetNPCKnowledgeOutput{Known: false}, nil
	}
	if err != nil {
		return nil, GetNPCKnowledgeOutput{}, err
	}

	output := GetNPCKnowledgeOutput{
		Known:          true,
		OverallOpinion: knowledge.OverallOpinion,
		TrustLevel:     knowledge.TrustLevel,
		FearLevel:      knowledge.FearLevel,
		Events:         make([]KnownEventOutput, 0, len(knowledge.Events)),
	}
	for _, known := range knowledge.Events {
		output.Events = append(output.Events, KnownEventOutput{
			EventID:            known.EventID,
			EventType:          string(known.Type),
			PerceivedMagnitude: known.PerceivedMagnitude,
			PerceivedSentiment: known.PerceivedSentiment,
			Source:             string(known.Source),
			HeardFrom:          known.HeardFrom,
			HopDistance:        known.HopDistance,
			LearnedAt:          known.LearnedAt.Format(time.RFC3339),
			Credibility:        known.Credibility,
		})
	}
	return nil, output, nil
}

func (s *Server) handleGetReputationModifier(ctx context.Context, req *sdk.CallToolRequest, input GetReputationModifierInput) (*sdk.CallToolResult, ModifierOutput, error) {
	modifier, err := s.service.ReputationModifier(ctx, input.NPCID, input.CharacterID)
	if err != nil {
		return nil, ModifierOutput{}, err
	}
	return nil, ModifierOutput{
		Opinion:             modifier.Opinion,
		PriceModifier:       modifier.PriceModifier,
		DialogueAccessLevel: modifier.DialogueAccessLevel,
		WillHelp:            modifier.WillHelp,
		WillHarm:            modifier.WillHarm,
		WillReport:          modifier.WillReport,
		WillTrade:           modifier.WillTrade,
		QualityOfService:    modifier.QualityOfService,
	}, nil
}

func (s *Server) handleGetLocationReputation(ctx context.Context, req *sdk.CallToolRequest, input GetLocationReputationInput) (*sdk.CallToolResult, LocationReputationOutput, error) {
	summary, err := s.service.LocationReputation(ctx, input.CharacterID, input.LocationID)
	if err != nil {
		return nil, LocationReputationOutput{}, err
	}

	output := LocationReputationOutput{
		OverallReputation: summary.OverallReputation,
		DominantSentiment: string(summary.DominantSentiment),
		KnownByCount:      summary.KnownByCount,
	}
	if summary.MostInfluentialEvent != nil {
		event := eventOutputFrom(*summary.MostInfluentialEvent)
		output.MostInfluentialEvent = &event
	}
	for _, event := range summary.RecentEvents {
		output.RecentEvents = append(output.RecentEvents, eventOutputFrom(event))
	}
	for _, standing := range summary.FactionStandings {
		output.FactionStandings = append(output.FactionStandings, FactionStandingOutput{
			Faction:  standing.Faction,
			Opinion:  standing.Opinion,
			NPCCount: standing.NPCCount,
		})
	}
	return nil, output, nil
}

func (s *Server) handleListEventTypes(ctx context.Context, req *sdk.CallToolRequest, input ListEventTypesInput) (*sdk.CallToolResult, ListEventTypesOutput, error) {
	output := ListEventTypesOutput{}
	for _, eventType := range s.table.Types() {
		defaults, err := s.table.Resolve(eventType)
		if err != nil {
			return nil, ListEventTypesOutput{}, err
		}
		output.EventTypes = append(output.EventTypes, EventTypeOutput{
			EventType:    string(defaults.Type),
			Magnitude:    defaults.Magnitude,
			Sentiment:    defaults.Sentiment,
			SpreadRadius: defaults.SpreadRadius,
			DecayRate:    defaults.DecayRate,
			ExpiresHours: defaults.ExpiresHours,
			Faction:      defaults.Faction,
			Description:  defaults.Description,
		})
	}
	return nil, output, nil
}

func eventOutputFrom(event reputation.Event) EventOutput {
	output := EventOutput{
		ID:           event.ID,
		CharacterID:  event.CharacterID,
		EventType:    string(event.Type),
		Magnitude:    event.Magnitude,
		Sentiment:    event.Sentiment,
		Faction:      event.Faction,
		LocationID:   event.LocationID,
		OriginNPCID:  event.OriginNPCID,
		SpreadRadius: event.SpreadRadius,
		DecayRate:    event.DecayRate,
		Timestamp:    event.Timestamp.Format(time.RFC3339),
		Description:  event.Description,
		SpreadCount:  event.SpreadCount,
	}
	if event.ExpiresAt != nil {
		output.ExpiresAt = event.ExpiresAt.Format(time.RFC3339)
	}
	return output
}

func spreadResultOutputFrom(result spread.Result) SpreadResultOutput {
	return SpreadResultOutput{
		NPCsInformed:     result.NPCsInformed,
		HopDistribution:  result.HopDistribution[:],
		AverageMagnitude: result.AverageMagnitude,
	}
}
