package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ytrpc/internal/models"
	"github.com/desertthunder/ytrpc/internal/protocol"
)

// Options configure a [Sink].
type Options struct {
	Version  string
	Identity models.SinkIdentity
	Logger   *log.Logger
}

// Sink answers protocol requests the way a connected presence sink would.
type Sink struct {
	opts   Options
	logger *log.Logger

	mu       sync.Mutex
	activity *models.PresenceSnapshot
	updates  int
}

func New(opts Options) *Sink {
	if opts.Identity.Username == "" {
		opts.Identity.Username = "dry-run"
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Sink{opts: opts, logger: logger.With("component", "host")}
}

// Activity returns the activity currently displayed, or nil.
func (s *Sink) Activity() *models.PresenceSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activity.Clone()
}

// Updates returns how many SET_ACTIVITY requests were accepted.
func (s *Sink) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

// Serve announces the host, then answers requests read from r until r is exhausted or ctx is done.
func (s *Sink) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	writer := protocol.NewWriter(w)

	if err := writer.Write(protocol.HostStarted(s.opts.Version)); err != nil {
		return err
	}
	identity := s.opts.Identity
	if err := writer.Write(protocol.RPCStatus(protocol.RPCConnected, &identity)); err != nil {
		return err
	}
	s.logger.Info("dry-run host ready", "version", s.opts.Version, "identity", identity.String())

	for msg, err := range protocol.Messages(r) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			var framingErr *models.FramingError
			if !errors.As(err, &framingErr) {
				return err
			}
			s.logger.Warn("malformed request", "error", err)
			if err := writer.Write(protocol.DebugLog(fmt.Sprintf("dropped malformed request: %v", err))); err != nil {
				return err
			}
			continue
		}

		if err := writer.Write(s.reply(msg)); err != nil {
			return err
		}
	}
	s.logger.Info("input closed, exiting")
	return nil
}

func (s *Sink) reply(msg protocol.Message) protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg.Type {
	case protocol.TypeSetActivity:
		if msg.Data == nil {
			return protocol.ActivityStatus(protocol.ActivityError, nil, "missing activity data")
		}
		s.activity = msg.Data.Clone()
		s.updates++
		s.logger.Info("activity set", "title", msg.Data.Title, "subtitle", msg.Data.Subtitle)
		return protocol.ActivityStatus(protocol.ActivitySuccess, msg.Data, "")
	case protocol.TypeClearActivity:
		s.activity = nil
		s.logger.Info("activity cleared")
		return protocol.ActivityStatus(protocol.ActivityCleared, nil, "")
	case protocol.TypeReconnectRPC:
		identity := s.opts.Identity
		return protocol.RPCStatus(protocol.RPCConnected, &identity)
	default:
		return protocol.DebugLog(fmt.Sprintf("unexpected message type %s", msg.Type))
	}
}
