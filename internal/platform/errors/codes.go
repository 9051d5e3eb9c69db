// Package errors provides structured error handling for the reputation engine.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Event errors
	CodeEventTypeUnknown         Code = "EVENT_TYPE_UNKNOWN"
	CodeEventEmptyCharacterID    Code = "EVENT_EMPTY_CHARACTER_ID"
	CodeEventEmptyLocationID     Code = "EVENT_EMPTY_LOCATION_ID"
	CodeEventInvalidMagnitude    Code = "EVENT_INVALID_MAGNITUDE"
	CodeEventInvalidSentiment    Code = "EVENT_INVALID_SENTIMENT"
	CodeEventInvalidSpreadRadius Code = "EVENT_INVALID_SPREAD_RADIUS"
	CodeEventInvalidDecayRate    Code = "EVENT_INVALID_DECAY_RATE"
	CodeEventInvalidExpiry       Code = "EVENT_INVALID_EXPIRY"

	// Knowledge errors
	CodeKnowledgeEmptyNPCID       Code = "KNOWLEDGE_EMPTY_NPC_ID"
	CodeKnowledgeEmptyCharacterID Code = "KNOWLEDGE_EMPTY_CHARACTER_ID"
	CodeKnowledgeConflict         Code = "KNOWLEDGE_CONFLICT"

	// Spread errors
	CodeSpreadGraphUnavailable Code = "SPREAD_GRAPH_UNAVAILABLE"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"

	// Random/seed errors
	CodeSeedOutOfRange Code = "SEED_OUT_OF_RANGE"
)

// Class groups codes by how callers should react to them.
type Class string

const (
	ClassInvalid     Class = "INVALID"
	ClassNotFound    Class = "NOT_FOUND"
	ClassConflict    Class = "CONFLICT"
	ClassUnavailable Class = "UNAVAILABLE"
	ClassInternal    Class = "INTERNAL"
)

// ErrorClass maps domain codes to handling classes.
func (c Code) ErrorClass() Class {
	switch c {
	// Invalid - validation failures, bad input
	case CodeEventTypeUnknown,
		CodeEventEmptyCharacterID,
		CodeEventEmptyLocationID,
		CodeEventInvalidMagnitude,
		CodeEventInvalidSentiment,
		CodeEventInvalidSpreadRadius,
		CodeEventInvalidDecayRate,
		CodeEventInvalidExpiry,
		CodeKnowledgeEmptyNPCID,
		CodeKnowledgeEmptyCharacterID,
		CodeSeedOutOfRange:
		return ClassInvalid

	// NotFound - resource doesn't exist
	case CodeNotFound:
		return ClassNotFound

	// Conflict - concurrent modification lost the race
	case CodeKnowledgeConflict:
		return ClassConflict

	// Unavailable - dependency outage, retry later
	case CodeSpreadGraphUnavailable:
		return ClassUnavailable

	default:
		return ClassInternal
	}
}
