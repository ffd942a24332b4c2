package server

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/desertthunder/ytrpc/internal/models"
)

const (
	streamBuffer       = 8
	streamWriteTimeout = 5 * time.Second
)

// StatusSource hands out status subscriptions. [status.Publisher] implements it.
type StatusSource interface {
	Subscribe(buffer int) (<-chan models.StatusSnapshot, func())
}

// StatusStream pushes status snapshots to websocket clients, starting with the current one.
//
// Clients that fall behind miss intermediate snapshots but always see the latest.
type StatusStream struct {
	source  StatusSource
	origins []string
	logger  *log.Logger
}

// NewStatusStream creates a [StatusStream] handler. Browsers may only connect from the server's own
// host or an origin host matching one of origins.
func NewStatusStream(source StatusSource, origins []string, logger *log.Logger) *StatusStream {
	if logger == nil {
		logger = log.Default()
	}
	return &StatusStream{source: source, origins: origins, logger: logger}
}

func (s *StatusStream) Routes() []string {
	return []string{"/ws"}
}

func (s *StatusStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		s.logger.Warn("ws accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	updates, cancel := s.source.Subscribe(streamBuffer)
	defer cancel()

	// clients never send; CloseRead handles pings and reports the close
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-updates:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "status stream closed")
				return
			}
			if err := s.write(ctx, conn, snapshot); err != nil {
				s.logger.Debug("ws write failed", "error", err)
				return
			}
		}
	}
}

func (s *StatusStream) write(ctx context.Context, conn *websocket.Conn, snapshot models.StatusSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, snapshot)
}
