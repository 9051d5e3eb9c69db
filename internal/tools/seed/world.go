package seed

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"grapevine/internal/social"
	"grapevine/internal/storage"
)

// world is the generated demo population before it is written anywhere.
type world struct {
	Locations   []storage.Location
	NPCs        []storage.NPC
	Connections []social.Connection
}

// buildWorld generates settlements, households, and acquaintance edges
// from the rng. Same seed, same world.
func buildWorld(rng *rand.Rand, npcsPerSettlement int) world {
	generated := world{}
	usedIDs := make(map[string]int)

	for _, place := range settlements {
		generated.Locations = append(generated.Locations, storage.Location{
			ID:      place.ID,
			Name:    place.Name,
			Faction: place.Faction,
		})

		residents := rosterFor(rng, place, npcsPerSettlement, usedIDs)
		generated.NPCs = append(generated.NPCs, residents...)
		generated.Connections = append(generated.Connections, edgesFor(rng, residents)...)
	}
	return generated
}

// rosterFor populates one settlement with households of two to four kin
// sharing a surname.
func rosterFor(rng *rand.Rand, place settlement, count int, usedIDs map[string]int) []storage.NPC {
	var residents []storage.NPC
	for len(residents) < count {
		surname := familyNames[rng.Intn(len(familyNames))]
		householdSize := 2 + rng.Intn(3)
		if remaining := count - len(residents); householdSize > remaining {
			householdSize = remaining
		}
		for i := 0; i < householdSize; i++ {
			given := givenNames[rng.Intn(len(givenNames))]
			id := npcID(given, surname, usedIDs)
			residents = append(residents, storage.NPC{
				ID:         id,
				Name:       given + " " + surname,
				LocationID: place.ID,
			})
		}
	}
	return residents
}

// npcID mints a unique lowercase id from the name parts, numbering
// repeats the way a town actually does with two Silas Holts.
func npcID(given, surname string, usedIDs map[string]int) string {
	base := "npc-" + strings.ToLower(given) + "-" + strings.ToLower(surname)
	usedIDs[base]++
	if usedIDs[base] == 1 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, usedIDs[base])
}

// edgesFor wires one settlement's residents together: kin get family
// edges, and everyone picks up a couple of acquaintances.
func edgesFor(rng *rand.Rand, residents []storage.NPC) []social.Connection {
	var edges []social.Connection
	seen := make(map[string]struct{})

	addEdge := func(a, b storage.NPC, strength float64, family bool) {
		key := a.ID + "|" + b.ID
		if a.ID > b.ID {
			key = b.ID + "|" + a.ID
		}
		if _, dup := seen[key]; dup || a.ID == b.ID {
			return
		}
		seen[key] = struct{}{}
		edges = append(edges, social.Connection{
			NPCID:         a.ID,
			RelatedNPCID:  b.ID,
			Strength:      strength,
			IsFamily:      family,
			IsSameFaction: true,
		})
	}

	surname := func(npc storage.NPC) string {
		parts := strings.Fields(npc.Name)
		return parts[len(parts)-1]
	}

	for i, resident := range residents {
		for j := i + 1; j < len(residents); j++ {
			if surname(resident) == surname(residents[j]) {
				addEdge(resident, residents[j], 8+2*rng.Float64(), true)
			}
		}
	}

	for _, resident := range residents {
		acquaintances := 2 + rng.Intn(2)
		for i := 0; i < acquaintances; i++ {
			other := residents[rng.Intn(len(residents))]
			addEdge(resident, other, 1+6*rng.Float64(), false)
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].NPCID != edges[j].NPCID {
			return edges[i].NPCID < edges[j].NPCID
		}
		return edges[i].RelatedNPCID < edges[j].RelatedNPCID
	})
	return edges
}
