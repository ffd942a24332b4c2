// package models defines the data model for the presence bridge
package models

import "slices"

// Action is a labelled link rendered as a button under the presence.
type Action struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// PresenceSnapshot is the rich presence payload sent to the Presence Sink.
//
// Values are never mutated after construction; a newer snapshot replaces an older one whole.
// Timestamps are Unix epoch milliseconds.
type PresenceSnapshot struct {
	Title             string   `json:"title"`
	Subtitle          string   `json:"subtitle"`
	StartedAt         int64    `json:"startedAt"`
	EndsAt            *int64   `json:"endsAt,omitempty"`
	LargeImage        string   `json:"largeImage,omitempty"`
	LargeImageCaption string   `json:"largeImageCaption,omitempty"`
	SmallImage        string   `json:"smallImage,omitempty"`
	SmallImageCaption string   `json:"smallImageCaption,omitempty"`
	Actions           []Action `json:"actions"`
}

// SameTarget reports whether two snapshots describe the same synchronization target.
//
// Confirmations from the sink are matched on (title, subtitle, startedAt) only.
func (p *PresenceSnapshot) SameTarget(other *PresenceSnapshot) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.Title == other.Title && p.Subtitle == other.Subtitle && p.StartedAt == other.StartedAt
}

// Equal reports whether every field of the two snapshots matches.
func (p *PresenceSnapshot) Equal(other *PresenceSnapshot) bool {
	if p == nil || other == nil {
		return p == other
	}
	if !p.SameTarget(other) {
		return false
	}
	if (p.EndsAt == nil) != (other.EndsAt == nil) {
		return false
	}
	if p.EndsAt != nil && *p.EndsAt != *other.EndsAt {
		return false
	}
	return p.LargeImage == other.LargeImage &&
		p.LargeImageCaption == other.LargeImageCaption &&
		p.SmallImage == other.SmallImage &&
		p.SmallImageCaption == other.SmallImageCaption &&
		slices.Equal(p.Actions, other.Actions)
}

// Clone returns a deep copy so callers can hand snapshots across goroutines.
func (p *PresenceSnapshot) Clone() *PresenceSnapshot {
	if p == nil {
		return nil
	}
	dup := *p
	if p.EndsAt != nil {
		ends := *p.EndsAt
		dup.EndsAt = &ends
	}
	dup.Actions = slices.Clone(p.Actions)
	if dup.Actions == nil {
		dup.Actions = []Action{}
	}
	return &dup
}
