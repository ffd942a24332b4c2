package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NoTrackType is the discriminator sent by the Track Source when nothing is playing.
const NoTrackType = "NO_TRACK"

// TrackEvent is a now-playing report from the Track Source.
//
// Optional fields are pointers so "not reported" is distinct from zero.
type TrackEvent struct {
	Title       string   `json:"track"`
	Artist      string   `json:"artist"`
	AlbumArtURL string   `json:"albumArtUrl,omitempty"`
	URL         string   `json:"url,omitempty"`
	PositionSec *float64 `json:"currentTime,omitempty"`
	DurationSec *float64 `json:"duration,omitempty"`
	IsPlaying   *bool    `json:"isPlaying,omitempty"`
}

// Playing reports the playback flag, treating an absent flag as playing.
func (e TrackEvent) Playing() bool {
	return e.IsPlaying == nil || *e.IsPlaying
}

// SourceEvent is either a [TrackEvent] or a NoTrack signal.
type SourceEvent struct {
	Track   *TrackEvent
	NoTrack bool
}

// NoTrack returns the clear signal.
func NoTrack() SourceEvent {
	return SourceEvent{NoTrack: true}
}

// Track wraps a track report.
func Track(e TrackEvent) SourceEvent {
	return SourceEvent{Track: &e}
}

// ParseSourceEvent decodes a Track Source payload.
//
// Accepted forms are a track object with non-empty track and artist, or {"type":"NO_TRACK"}.
func ParseSourceEvent(data []byte) (SourceEvent, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return SourceEvent{}, fmt.Errorf("%w: %v", ErrInvalidTrackEvent, err)
	}
	if head.Type == NoTrackType {
		return NoTrack(), nil
	}

	var ev TrackEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return SourceEvent{}, fmt.Errorf("%w: %v", ErrInvalidTrackEvent, err)
	}
	ev.Title = strings.TrimSpace(ev.Title)
	ev.Artist = strings.TrimSpace(ev.Artist)
	if ev.Title == "" || ev.Artist == "" {
		return SourceEvent{}, fmt.Errorf("%w: track and artist are required", ErrInvalidTrackEvent)
	}
	return Track(ev), nil
}

// MarshalJSON renders the event in the same shape [ParseSourceEvent] accepts.
func (e SourceEvent) MarshalJSON() ([]byte, error) {
	if e.NoTrack || e.Track == nil {
		return json.Marshal(map[string]string{"type": NoTrackType})
	}
	return json.Marshal(e.Track)
}
