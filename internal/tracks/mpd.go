package tracks

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fhs/gompd/v2/mpd"

	"github.com/desertthunder/ytrpc/internal/models"
)

const defaultMPDRetry = 2 * time.Second

// MPDSource reports the song playing on an MPD server.
//
// The idle watcher only says that the player changed, so every notification is followed by a fresh
// status query on a short-lived command connection.
type MPDSource struct {
	Network    string // "tcp" or "unix"
	Address    string
	Password   string
	RetryDelay time.Duration
	Logger     *log.Logger
	Out        Submitter
}

// Run follows the player until ctx is done, reconnecting after watcher failures.
func (s *MPDSource) Run(ctx context.Context) error {
	if s.Out == nil {
		return fmt.Errorf("mpd source has no output")
	}
	logger := s.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.With("component", "mpd", "address", s.Address)
	retry := s.RetryDelay
	if retry <= 0 {
		retry = defaultMPDRetry
	}

	for {
		w, err := mpd.NewWatcher(s.network(), s.Address, s.Password, "player")
		if err != nil {
			logger.Warn("watcher init failed", "error", err, "retry", retry)
		} else {
			logger.Info("watching mpd player")
			err = s.watch(ctx, w, logger)
			w.Close()
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("idle loop exited", "error", err, "retry", retry)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retry):
		}
	}
}

func (s *MPDSource) watch(ctx context.Context, w *mpd.Watcher, logger *log.Logger) error {
	go func() {
		for err := range w.Error {
			logger.Debug("watcher error", "error", err)
		}
	}()

	s.poll(logger)
	for {
		select {
		case <-ctx.Done():
			return nil
		case subsystem, ok := <-w.Event:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			logger.Debug("idle event", "subsystem", subsystem)
			s.poll(logger)
		}
	}
}

func (s *MPDSource) poll(logger *log.Logger) {
	ev, err := s.query()
	if err != nil {
		logger.Warn("failed to query mpd", "error", err)
		return
	}
	s.Out.SubmitTrack(ev)
}

func (s *MPDSource) query() (models.SourceEvent, error) {
	var (
		c   *mpd.Client
		err error
	)
	if s.Password != "" {
		c, err = mpd.DialAuthenticated(s.network(), s.Address, s.Password)
	} else {
		c, err = mpd.Dial(s.network(), s.Address)
	}
	if err != nil {
		return models.SourceEvent{}, err
	}
	defer c.Close()

	status, err := c.Status()
	if err != nil {
		return models.SourceEvent{}, err
	}
	song, err := c.CurrentSong()
	if err != nil {
		return models.SourceEvent{}, err
	}
	return EventFromMPD(status, song), nil
}

func (s *MPDSource) network() string {
	if s.Network != "" {
		return s.Network
	}
	if strings.HasPrefix(s.Address, "/") {
		return "unix"
	}
	return "tcp"
}

// EventFromMPD converts MPD status and currentsong attributes into a source event.
//
// A stopped player or an empty queue yields NoTrack.
func EventFromMPD(status, song mpd.Attrs) models.SourceEvent {
	if status["state"] == "stop" || len(song) == 0 {
		return models.NoTrack()
	}

	title := song["Title"]
	if title == "" {
		title = strings.TrimSuffix(path.Base(song["file"]), path.Ext(song["file"]))
	}
	artist := song["Artist"]
	if artist == "" {
		artist = song["AlbumArtist"]
	}
	if artist == "" {
		artist = "Unknown Artist"
	}
	if title == "" || title == "." {
		return models.NoTrack()
	}

	playing := status["state"] == "play"
	ev := models.TrackEvent{Title: title, Artist: artist, IsPlaying: &playing}
	if elapsed, ok := parseSeconds(status["elapsed"]); ok {
		ev.PositionSec = &elapsed
	}
	duration, ok := parseSeconds(status["duration"])
	if !ok {
		duration, ok = parseSeconds(song["duration"])
	}
	if !ok {
		duration, ok = parseSeconds(song["Time"])
	}
	if ok && duration > 0 {
		ev.DurationSec = &duration
	}
	return models.Track(ev)
}

func parseSeconds(v string) (float64, bool) {
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return f, true
}
