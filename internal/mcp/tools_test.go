package mcp

import (
	"context"
	"testing"

	"grapevine/internal/config"
	"grapevine/internal/service"
	"grapevine/internal/spread"
	"grapevine/internal/storage"
	"grapevine/internal/testkit/repfakes"
)

type serverFixture struct {
	server *Server
	events *repfakes.EventStore
	social *repfakes.SocialStore
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	table, err := config.DefaultTable()
	if err != nil {
		t.Fatalf("load default table: %v", err)
	}

	events := repfakes.NewEventStore()
	knowledge := repfakes.NewKnowledgeStore()
	graph := repfakes.NewSocialStore()
	spreader := spread.New(events, knowledge, graph, func() (int64, error) { return 7, nil })
	svc := service.New(events, knowledge, graph, table, spreader)

	return &serverFixture{
		server: NewServer(svc, table, "test"),
		events: events,
		social: graph,
	}
}

func TestReportEventSpreadsToWitness(t *testing.T) {
	fixture := newServerFixture(t)
	if err := fixture.social.PutNPC(context.Background(), storage.NPC{ID: "npc-sheriff", Name: "Sheriff", LocationID: "loc-town"}); err != nil {
		t.Fatalf("put npc: %v", err)
	}

	_, output, err := fixture.server.handleReportEvent(context.Background(), nil, ReportEventInput{
		CharacterID: "char-dalton",
		EventType:   "theft",
		LocationID:  "loc-town",
		OriginNPCID: "npc-sheriff",
	})
	if err != nil {
		t.Fatalf("report event: %v", err)
	}
	if output.Event.EventType != "theft" || output.Event.Magnitude != 40 {
		t.Fatalf("expected theft defaults, got %+v", output.Event)
	}
	if output.Spread.NPCsInformed != 1 {
		t.Fatalf("expected 1 informed, got %+v", output.Spread)
	}

	_, knowledge, err := fixture.server.handleGetNPCKnowledge(context.Background(), nil, GetNPCKnowledgeInput{
		NPCID:       "npc-sheriff",
		CharacterID: "char-dalton",
	})
	if err != nil {
		t.Fatalf("get knowledge: %v", err)
	}
	if !knowledge.Known || len(knowledge.Events) != 1 {
		t.Fatalf("expected one recollection, got %+v", knowledge)
	}
	if knowledge.Events[0].Source != "WITNESSED" || knowledge.Events[0].Credibility != 100 {
		t.Fatalf("unexpected witness recollection: %+v", knowledge.Events[0])
	}
}

func TestReportEventRejectsUnknownType(t *testing.T) {
	fixture := newServerFixture(t)
	_, _, err := fixture.server.handleReportEvent(context.Background(), nil, ReportEventInput{
		CharacterID: "char-dalton",
		EventType:   "jaywalking",
		LocationID:  "loc-town",
	})
	if err == nil {
		t.Fatalf("expected unknown event type error")
	}
}

func TestReportEventRequiresIdentifiers(t *testing.T) {
	fixture := newServerFixture(t)
	_, _, err := fixture.server.handleReportEvent(context.Background(), nil, ReportEventInput{
		EventType:  "theft",
		LocationID: "loc-town",
	})
	if err == nil {
		t.Fatalf("expected missing character_id error")
	}
}

func TestGetNPCKnowledgeUnknownCharacter(t *testing.T) {
	fixture := newServerFixture(t)
	_, output, err := fixture.server.handleGetNPCKnowledge(context.Background(), nil, GetNPCKnowledgeInput{
		NPCID:       "npc-sheriff",
		CharacterID: "char-stranger",
	})
	if err != nil {
		t.Fatalf("get knowledge: %v", err)
	}
	if output.Known {
		t.Fatalf("expected unknown character, got %+v", output)
	}
}

func TestGetReputationModifierNeutralDefaults(t *testing.T) {
	fixture := newServerFixture(t)
	_, output, err := fixture.server.handleGetReputationModifier(context.Background(), nil, GetReputationModifierInput{
		NPCID:       "npc-sheriff",
		CharacterID: "char-stranger",
	})
	if err != nil {
		t.Fatalf("get modifier: %v", err)
	}
	if output.Opinion != 0 || output.PriceModifier != 1.0 || output.DialogueAccessLevel != 5 {
		t.Fatalf("expected neutral defaults, got %+v", output)
	}
	if !output.WillHelp || output.WillHarm || output.WillReport || !output.WillTrade || output.QualityOfService != 50 {
		t.Fatalf("expected neutral defaults, got %+v", output)
	}
}

func TestSpreadEventRequiresID(t *testing.T) {
	fixture := newServerFixture(t)
	_, _, err := fixture.server.handleSpreadEvent(context.Background(), nil, SpreadEventInput{})
	if err == nil {
		t.Fatalf("expected missing event_id error")
	}
}

func TestListEventTypes(t *testing.T) {
	fixture := newServerFixture(t)
	_, output, err := fixture.server.handleListEventTypes(context.Background(), nil, ListEventTypesInput{})
	if err != nil {
		t.Fatalf("list event types: %v", err)
	}
	if len(output.EventTypes) == 0 {
		t.Fatalf("expected configured event types")
	}
	byName := make(map[string]EventTypeOutput, len(output.EventTypes))
	for _, entry := range output.EventTypes {
		byName[entry.EventType] = entry
	}
	murder, ok := byName["murder"]
	if !ok {
		t.Fatalf("expected murder in event types: %+v", output.EventTypes)
	}
	if murder.Magnitude != 95 || murder.SpreadRadius != 3 || murder.ExpiresHours != 0 {
		t.Fatalf("unexpected murder defaults: %+v", murder)
	}
}

func TestGetLocationReputationUnknownCharacter(t *testing.T) {
	fixture := newServerFixture(t)
	_, output, err := fixture.server.handleGetLocationReputation(context.Background(), nil, GetLocationReputationInput{
		CharacterID: "char-stranger",
		LocationID:  "loc-town",
	})
	if err != nil {
		t.Fatalf("get location reputation: %v", err)
	}
	if output.KnownByCount != 0 || output.OverallReputation != 0 {
		t.Fatalf("expected empty reputation, got %+v", output)
	}
	if output.DominantSentiment != "NEUTRAL" {
		t.Fatalf("expected neutral sentiment, got %q", output.DominantSentiment)
	}
}
