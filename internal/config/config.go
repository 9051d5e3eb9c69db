// Package config loads the per-event-type default table. The table is data,
// not code: games tune magnitudes, sentiments, and spread behavior without
// recompiling by supplying an override file.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "grapevine/internal/platform/errors"
	"grapevine/internal/reputation"
)

//go:embed event_types.yaml
var embeddedTable []byte

// EventTypeDefaults carries the baseline parameters for one event type.
// Callers may override any of them per event.
type EventTypeDefaults struct {
	Type         reputation.EventType `yaml:"type"`
	Magnitude    int                  `yaml:"magnitude"`
	Sentiment    int                  `yaml:"sentiment"`
	SpreadRadius int                  `yaml:"spread_radius"`
	DecayRate    float64              `yaml:"decay_rate"`
	// ExpiresHours is how long events of this type stay live. Zero means
	// they never expire.
	ExpiresHours int    `yaml:"expires_hours"`
	Faction      string `yaml:"faction"`
	Description  string `yaml:"description"`
}

// TTL returns the default time-to-live for events of this type.
func (d EventTypeDefaults) TTL() time.Duration {
	return time.Duration(d.ExpiresHours) * time.Hour
}

type tableFile struct {
	Version    int                 `yaml:"version"`
	EventTypes []EventTypeDefaults `yaml:"event_types"`
}

// Table is an immutable lookup of event-type defaults.
type Table struct {
	defaults map[reputation.EventType]EventTypeDefaults
}

// DefaultTable parses the embedded event-type table.
func DefaultTable() (*Table, error) {
	table, err := parseTable(embeddedTable)
	if err != nil {
		return nil, fmt.Errorf("loading embedded event types: %w", err)
	}
	return table, nil
}

// LoadTable reads an event-type table from an override file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading event types: %w", err)
	}
	table, err := parseTable(data)
	if err != nil {
		return nil, fmt.Errorf("loading event types: %w", err)
	}
	return table, nil
}

func parseTable(data []byte) (*Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if err := validateTableFile(&file); err != nil {
		return nil, err
	}

	defaults := make(map[reputation.EventType]EventTypeDefaults, len(file.EventTypes))
	for _, entry := range file.EventTypes {
		defaults[entry.Type] = entry
	}
	return &Table{defaults: defaults}, nil
}

func validateTableFile(file *tableFile) error {
	if file.Version != 1 {
		return fmt.Errorf("unsupported version: %d", file.Version)
	}
	if len(file.EventTypes) == 0 {
		return fmt.Errorf("at least one event type is required")
	}

	seen := make(map[reputation.EventType]struct{})
	for i, entry := range file.EventTypes {
		name := strings.TrimSpace(string(entry.Type))
		if name == "" {
			return fmt.Errorf("event type %d name is required", i)
		}
		if _, exists := seen[entry.Type]; exists {
			return fmt.Errorf("duplicate event type: %s", entry.Type)
		}
		seen[entry.Type] = struct{}{}

		if entry.Magnitude < reputation.MagnitudeMin || entry.Magnitude > reputation.MagnitudeMax {
			return fmt.Errorf("event type %s: magnitude must be between %d and %d",
				entry.Type, reputation.MagnitudeMin, reputation.MagnitudeMax)
		}
		if entry.Sentiment < reputation.SentimentMin || entry.Sentiment > reputation.SentimentMax {
			return fmt.Errorf("event type %s: sentiment must be between %d and %d",
				entry.Type, reputation.SentimentMin, reputation.SentimentMax)
		}
		if entry.SpreadRadius < 0 || entry.SpreadRadius > reputation.MaxSpreadRadius {
			return fmt.Errorf("event type %s: spread radius must be between 0 and %d",
				entry.Type, reputation.MaxSpreadRadius)
		}
		if entry.DecayRate < 0 || entry.DecayRate > 1 {
			return fmt.Errorf("event type %s: decay rate must be between 0 and 1", entry.Type)
		}
		if entry.ExpiresHours < 0 {
			return fmt.Errorf("event type %s: expires hours must not be negative", entry.Type)
		}
	}
	return nil
}

// Resolve returns the defaults for an event type, or an unknown-type error.
func (t *Table) Resolve(eventType reputation.EventType) (EventTypeDefaults, error) {
	if t == nil {
		return EventTypeDefaults{}, fmt.Errorf("event type table is not configured")
	}
	defaults, ok := t.defaults[eventType]
	if !ok {
		return EventTypeDefaults{}, apperrors.WithMetadata(
			apperrors.CodeEventTypeUnknown,
			fmt.Sprintf("unknown event type: %s", eventType),
			map[string]string{"EventType": string(eventType)},
		)
	}
	return defaults, nil
}

// Types lists the configured event types in stable order.
func (t *Table) Types() []reputation.EventType {
	if t == nil {
		return nil
	}
	types := make([]reputation.EventType, 0, len(t.defaults))
	for eventType := range t.defaults {
		types = append(types, eventType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
