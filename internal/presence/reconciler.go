package presence

import (
	"math"
	"time"

	"github.com/desertthunder/ytrpc/internal/models"
)

const (
	StrictTolerance    = 2 * time.Second
	LenientTolerance   = 5 * time.Second
	DefaultGraceWindow = 500 * time.Millisecond
)

// Asset keys and captions understood by the sink application.
const (
	DefaultLargeImage   = "ytmusic"
	DefaultLargeCaption = "YouTube Music"
	PlayingImage        = "play"
	PlayingCaption      = "Playing"
	PausedImage         = "pause"
	PausedCaption       = "Paused"
	ListenLabel         = "Listen on YouTube Music"
)

// Options tune the reconciler. Zero values select the defaults.
type Options struct {
	DriftTolerance time.Duration
	LargeJumpsOnly bool // correct only jumps beyond LenientTolerance
	GraceWindow    time.Duration
	DisableGrace   bool
	Now            func() time.Time
}

// Clock tracks playback position as wall-clock instants in epoch milliseconds.
//
// PausedAt is set if and only if playback is paused.
type Clock struct {
	StartedAt int64
	PausedAt  *int64
}

// Paused reports whether the clock is stopped.
func (c Clock) Paused() bool {
	return c.PausedAt != nil
}

// Elapsed returns the playback position at instant now (milliseconds).
func (c Clock) Elapsed(now int64) int64 {
	if c.PausedAt != nil {
		return *c.PausedAt - c.StartedAt
	}
	return now - c.StartedAt
}

// Update is the outcome of applying a Track Source event.
type Update struct {
	Presence *models.PresenceSnapshot // new desired presence, nil when Clear is set
	Clear    bool                     // nothing is playing any more
}

type trackKey struct {
	title  string
	artist string
}

// Reconciler owns the desired presence and its playback clock.
//
// It is not safe for concurrent use; the supervisor drives it from its event loop.
type Reconciler struct {
	tolerance int64
	grace     int64
	now       func() time.Time

	track      *trackKey
	albumArt   string
	url        string
	durationMs *int64
	clock      Clock
	changedAt  int64
	desired    *models.PresenceSnapshot
}

// NewReconciler creates a Reconciler with the given options.
func NewReconciler(opts Options) *Reconciler {
	tolerance := opts.DriftTolerance
	if tolerance <= 0 {
		tolerance = StrictTolerance
	}
	if opts.LargeJumpsOnly {
		tolerance = LenientTolerance
	}

	grace := opts.GraceWindow
	if grace <= 0 {
		grace = DefaultGraceWindow
	}
	if opts.DisableGrace {
		grace = 0
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Reconciler{
		tolerance: tolerance.Milliseconds(),
		grace:     grace.Milliseconds(),
		now:       now,
	}
}

// Apply merges ev into the desired presence.
//
// The boolean is false when the event left the desired presence unchanged by value.
func (r *Reconciler) Apply(ev models.SourceEvent) (Update, bool) {
	if ev.NoTrack || ev.Track == nil {
		had := r.track != nil || r.desired != nil
		r.Reset()
		return Update{Clear: true}, had
	}

	now := r.now().UnixMilli()
	track := *ev.Track
	key := trackKey{title: track.Title, artist: track.Artist}

	if r.track == nil || *r.track != key {
		r.startTrack(key, track, now)
	} else {
		r.advance(track, now)
	}

	if track.AlbumArtURL != "" {
		r.albumArt = track.AlbumArtURL
	}
	if track.URL != "" {
		r.url = track.URL
	}
	if track.DurationSec != nil && *track.DurationSec > 0 {
		d := secondsToMillis(*track.DurationSec)
		r.durationMs = &d
	}

	next := r.snapshot()
	if next.Equal(r.desired) {
		return Update{}, false
	}
	r.desired = next
	return Update{Presence: next.Clone()}, true
}

// Desired returns a copy of the current desired presence, or nil when nothing is playing.
func (r *Reconciler) Desired() *models.PresenceSnapshot {
	return r.desired.Clone()
}

// Clock returns the playback clock and whether a track is active.
func (r *Reconciler) Clock() (Clock, bool) {
	if r.track == nil {
		return Clock{}, false
	}
	c := r.clock
	if c.PausedAt != nil {
		at := *c.PausedAt
		c.PausedAt = &at
	}
	return c, true
}

// Reset forgets the active track, its clock, and the desired presence.
func (r *Reconciler) Reset() {
	r.track = nil
	r.albumArt = ""
	r.url = ""
	r.durationMs = nil
	r.clock = Clock{}
	r.changedAt = 0
	r.desired = nil
}

func (r *Reconciler) startTrack(key trackKey, track models.TrackEvent, now int64) {
	r.Reset()
	r.track = &key
	r.changedAt = now

	var position int64
	if track.PositionSec != nil {
		position = secondsToMillis(*track.PositionSec)
	}
	r.clock = Clock{StartedAt: now - position}

	if !r.playing(track, now) {
		paused := now
		r.clock.PausedAt = &paused
	}
}

func (r *Reconciler) advance(track models.TrackEvent, now int64) {
	playing := r.playing(track, now)

	switch {
	case r.clock.Paused() && playing:
		r.clock.StartedAt += now - *r.clock.PausedAt
		r.clock.PausedAt = nil
	case !r.clock.Paused() && !playing:
		paused := now
		r.clock.PausedAt = &paused
	}

	if track.PositionSec == nil {
		return
	}

	ref := now
	if r.clock.Paused() {
		ref = *r.clock.PausedAt
	}
	reported := secondsToMillis(*track.PositionSec)
	drift := r.clock.Elapsed(ref) - reported
	if drift < 0 {
		drift = -drift
	}
	if drift > r.tolerance {
		r.clock.StartedAt = ref - reported
	}
}

func (r *Reconciler) playing(track models.TrackEvent, now int64) bool {
	if track.Playing() {
		return true
	}
	return r.grace > 0 && now-r.changedAt < r.grace
}

func (r *Reconciler) snapshot() *models.PresenceSnapshot {
	p := &models.PresenceSnapshot{
		Title:             r.track.title,
		Subtitle:          r.track.artist,
		StartedAt:         r.clock.StartedAt,
		LargeImage:        DefaultLargeImage,
		LargeImageCaption: DefaultLargeCaption,
		SmallImage:        PlayingImage,
		SmallImageCaption: PlayingCaption,
		Actions:           []models.Action{},
	}

	if r.albumArt != "" {
		p.LargeImage = r.albumArt
		p.LargeImageCaption = r.track.title + " - " + r.track.artist
	}

	if r.clock.Paused() {
		p.SmallImage = PausedImage
		p.SmallImageCaption = PausedCaption
	} else if r.durationMs != nil {
		ends := r.clock.StartedAt + *r.durationMs
		p.EndsAt = &ends
	}

	if r.url != "" {
		p.Actions = append(p.Actions, models.Action{Label: ListenLabel, URL: r.url})
	}
	return p
}

func secondsToMillis(sec float64) int64 {
	if sec < 0 || math.IsNaN(sec) || math.IsInf(sec, 0) {
		return 0
	}
	return int64(math.Round(sec * 1000))
}
