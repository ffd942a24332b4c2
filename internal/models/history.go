package models

import "time"

// HistoryEntry is one presence the sink confirmed, as stored in presence history.
type HistoryEntry struct {
	ID           string    `json:"id"`
	Sequence     int       `json:"sequence"`
	ConnectionID string    `json:"connectionId"`
	Title        string    `json:"title"`
	Subtitle     string    `json:"subtitle"`
	StartedAt    int64     `json:"startedAt"`
	EndsAt       *int64    `json:"endsAt,omitempty"`
	LargeImage   string    `json:"largeImage,omitempty"`
	SmallImage   string    `json:"smallImage,omitempty"`
	URL          string    `json:"url,omitempty"`
	ConfirmedAt  time.Time `json:"confirmedAt"`
}

// NewHistoryEntry flattens a confirmed snapshot. The first action's URL is kept.
func NewHistoryEntry(connID string, p *PresenceSnapshot, confirmedAt time.Time) HistoryEntry {
	entry := HistoryEntry{
		ConnectionID: connID,
		Title:        p.Title,
		Subtitle:     p.Subtitle,
		StartedAt:    p.StartedAt,
		LargeImage:   p.LargeImage,
		SmallImage:   p.SmallImage,
		ConfirmedAt:  confirmedAt,
	}
	if p.EndsAt != nil {
		endsAt := *p.EndsAt
		entry.EndsAt = &endsAt
	}
	if len(p.Actions) > 0 {
		entry.URL = p.Actions[0].URL
	}
	return entry
}
