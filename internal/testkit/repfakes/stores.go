// Package repfakes provides in-memory store fakes for reputation tests.
package repfakes

import (
	"context"
	"sort"
	"time"

	"grapevine/internal/reputation"
	"grapevine/internal/social"
	"grapevine/internal/storage"
	"grapevine/internal/storage/cursor"
)

// EventStore is a lightweight in-memory storage.EventStore fake for tests.
type EventStore struct {
	Events map[string]reputation.Event
	PutErr error
}

// NewEventStore constructs an EventStore fake with initialized state maps.
func NewEventStore() *EventStore {
	return &EventStore{Events: make(map[string]reputation.Event)}
}

func (s *EventStore) PutEvent(_ context.Context, event reputation.Event) error {
	if s.PutErr != nil {
		return s.PutErr
	}
	s.Events[event.ID] = event
	return nil
}

func (s *EventStore) GetEvent(_ context.Context, eventID string) (reputation.Event, error) {
	event, ok := s.Events[eventID]
	if !ok {
		return reputation.Event{}, storage.ErrNotFound
	}
	return event, nil
}

func (s *EventStore) UpdateEventSpread(_ context.Context, eventID string, spreadCount int, lastSpreadAt time.Time) error {
	event, ok := s.Events[eventID]
	if !ok {
		return storage.ErrNotFound
	}
	event.SpreadCount = spreadCount
	event.LastSpreadAt = &lastSpreadAt
	s.Events[eventID] = event
	return nil
}

func (s *EventStore) ListEventsByCharacterLocation(_ context.Context, characterID, locationID string, now time.Time) ([]reputation.Event, error) {
	var events []reputation.Event
	for _, event := range s.Events {
		if event.CharacterID != characterID || event.LocationID != locationID {
			continue
		}
		if event.ExpiresAt != nil && !event.ExpiresAt.After(now) {
			continue
		}
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	return events, nil
}

func (s *EventStore) FilterExistingEventIDs(_ context.Context, eventIDs []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{}, len(eventIDs))
	for _, id := range eventIDs {
		if _, ok := s.Events[id]; ok {
			existing[id] = struct{}{}
		}
	}
	return existing, nil
}

func (s *EventStore) DeleteExpiredEvents(_ context.Context, now time.Time) (int64, error) {
	var deleted int64
	for id, event := range s.Events {
		if event.ExpiresAt != nil && !event.ExpiresAt.After(now) {
			delete(s.Events, id)
			deleted++
		}
	}
	return deleted, nil
}

// KnowledgeStore is an in-memory storage.KnowledgeStore fake. It honors the
// version guard the same way the real stores do so optimistic-retry paths
// can be tested without a database.
type KnowledgeStore struct {
	Records map[string]reputation.Knowledge
	// ForcedConflicts makes the next N upserts fail with ErrConflict
	// before any state changes, regardless of versions.
	ForcedConflicts int

	seqs    map[string]uint64
	nextSeq uint64
}

// NewKnowledgeStore constructs a KnowledgeStore fake with initialized state maps.
func NewKnowledgeStore() *KnowledgeStore {
	return &KnowledgeStore{
		Records: make(map[string]reputation.Knowledge),
		seqs:    make(map[string]uint64),
	}
}

func knowledgeKey(npcID, characterID string) string {
	return npcID + ":" + characterID
}

func (s *KnowledgeStore) GetKnowledge(_ context.Context, npcID, characterID string) (reputation.Knowledge, error) {
	record, ok := s.Records[knowledgeKey(npcID, characterID)]
	if !ok {
		return reputation.Knowledge{}, storage.ErrNotFound
	}
	return record, nil
}

func (s *KnowledgeStore) UpsertKnowledge(_ context.Context, knowledge reputation.Knowledge) error {
	if s.ForcedConflicts > 0 {
		s.ForcedConflicts--
		return storage.ErrConflict
	}
	key := knowledgeKey(knowledge.NPCID, knowledge.CharacterID)
	existing, ok := s.Records[key]
	if knowledge.Version == 0 {
		if ok {
			return storage.ErrConflict
		}
		knowledge.Version = 1
		s.nextSeq++
		s.seqs[key] = s.nextSeq
		s.Records[key] = knowledge
		return nil
	}
	if !ok || existing.Version != knowledge.Version {
		return storage.ErrConflict
	}
	knowledge.Version++
	s.Records[key] = knowledge
	return nil
}

func (s *KnowledgeStore) ListKnowledgeByCharacter(_ context.Context, characterID string, pageSize int, pageToken string) (storage.KnowledgePage, error) {
	return s.page(characterID, pageSize, pageToken)
}

func (s *KnowledgeStore) ScanKnowledge(_ context.Context, pageSize int, pageToken string) (storage.KnowledgePage, error) {
	return s.page("", pageSize, pageToken)
}

func (s *KnowledgeStore) page(characterID string, pageSize int, pageToken string) (storage.KnowledgePage, error) {
	var afterSeq uint64
	if pageToken != "" {
		decoded, err := cursor.Decode(pageToken)
		if err != nil {
			return storage.KnowledgePage{}, err
		}
		if err := cursor.ValidateFilterHash(decoded, characterID); err != nil {
			return storage.KnowledgePage{}, err
		}
		afterSeq = decoded.Seq
	}

	type row struct {
		seq    uint64
		record reputation.Knowledge
	}
	var rows []row
	for key, record := range s.Records {
		seq := s.seqs[key]
		if seq <= afterSeq {
			continue
		}
		if characterID != "" && record.CharacterID != characterID {
			continue
		}
		rows = append(rows, row{seq: seq, record: record})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	page := storage.KnowledgePage{}
	for i, r := range rows {
		if i == pageSize {
			token, err := cursor.Encode(cursor.New(rows[i-1].seq, characterID))
			if err != nil {
				return storage.KnowledgePage{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Records = append(page.Records, r.record)
	}
	return page, nil
}

func (s *KnowledgeStore) DeleteKnowledge(_ context.Context, npcID, characterID string, version int64) error {
	key := knowledgeKey(npcID, characterID)
	existing, ok := s.Records[key]
	if !ok {
		return storage.ErrNotFound
	}
	if existing.Version != version {
		return storage.ErrConflict
	}
	delete(s.Records, key)
	delete(s.seqs, key)
	return nil
}

// SocialStore is an in-memory social graph fake. It satisfies both the
// storage.SocialStore contract and the social.Provider and social.Directory
// views the spread engine and service consume.
type SocialStore struct {
	NPCs      map[string]storage.NPC
	Locations map[string]storage.Location
	Edges     []social.Connection
	// ConnectionsErr simulates a social graph outage.
	ConnectionsErr error
}

// NewSocialStore constructs a SocialStore fake with initialized state maps.
func NewSocialStore() *SocialStore {
	return &SocialStore{
		NPCs:      make(map[string]storage.NPC),
		Locations: make(map[string]storage.Location),
	}
}

func (s *SocialStore) PutNPC(_ context.Context, npc storage.NPC) error {
	s.NPCs[npc.ID] = npc
	return nil
}

func (s *SocialStore) PutLocation(_ context.Context, location storage.Location) error {
	s.Locations[location.ID] = location
	return nil
}

func (s *SocialStore) PutConnection(_ context.Context, connection social.Connection) error {
	mirrored := connection
	mirrored.NPCID, mirrored.RelatedNPCID = connection.RelatedNPCID, connection.NPCID
	s.Edges = append(s.Edges, connection, mirrored)
	return nil
}

func (s *SocialStore) ListNPCsByLocation(_ context.Context, locationID string) ([]storage.NPC, error) {
	var npcs []storage.NPC
	for _, npc := range s.NPCs {
		if npc.LocationID == locationID {
			npcs = append(npcs, npc)
		}
	}
	sort.Slice(npcs, func(i, j int) bool { return npcs[i].ID < npcs[j].ID })
	return npcs, nil
}

func (s *SocialStore) Connections(_ context.Context, locationID string) ([]social.Connection, error) {
	if s.ConnectionsErr != nil {
		return nil, s.ConnectionsErr
	}
	var connections []social.Connection
	for _, edge := range s.Edges {
		a, okA := s.NPCs[edge.NPCID]
		b, okB := s.NPCs[edge.RelatedNPCID]
		if !okA || !okB || a.LocationID != locationID || b.LocationID != locationID {
			continue
		}
		connections = append(connections, edge)
	}
	sort.Slice(connections, func(i, j int) bool {
		if connections[i].NPCID != connections[j].NPCID {
			return connections[i].NPCID < connections[j].NPCID
		}
		return connections[i].RelatedNPCID < connections[j].RelatedNPCID
	})
	return connections, nil
}

func (s *SocialStore) NPCLocation(_ context.Context, npcID string) (string, error) {
	npc, ok := s.NPCs[npcID]
	if !ok {
		return "", storage.ErrNotFound
	}
	return npc.LocationID, nil
}

func (s *SocialStore) LocationFaction(_ context.Context, locationID string) (string, error) {
	location, ok := s.Locations[locationID]
	if !ok {
		return "", storage.ErrNotFound
	}
	return location.Faction, nil
}
