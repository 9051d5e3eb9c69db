// Package reputation defines the domain model for character reputation:
// events witnessed or rumored, per-NPC knowledge with derived opinion,
// trust, and fear, and the gameplay modifiers NPCs answer queries with.
package reputation
