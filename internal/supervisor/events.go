package supervisor

import (
	"github.com/desertthunder/ytrpc/internal/models"
	"github.com/desertthunder/ytrpc/internal/protocol"
	"github.com/desertthunder/ytrpc/internal/reconnect"
)

// EventKind enumerates everything the event loop reacts to.
type EventKind int

const (
	EventTrack EventKind = iota
	EventConnect
	EventReconnect
	EventDisconnect
	EventMessage
	EventFramingError
	EventTransportClosed
	EventRetry
	EventFlush
	EventHealthCheck
)

func (k EventKind) String() string {
	switch k {
	case EventTrack:
		return "track"
	case EventConnect:
		return "connect"
	case EventReconnect:
		return "reconnect"
	case EventDisconnect:
		return "disconnect"
	case EventMessage:
		return "message"
	case EventFramingError:
		return "framing_error"
	case EventTransportClosed:
		return "transport_closed"
	case EventRetry:
		return "retry"
	case EventFlush:
		return "flush"
	case EventHealthCheck:
		return "health_check"
	default:
		return "unknown"
	}
}

// Event is one input to the state machine. Only the fields relevant to Kind are set.
type Event struct {
	Kind    EventKind
	ConnID  string
	Message protocol.Message
	Err     error
	Source  models.SourceEvent
	Ticket  reconnect.Ticket

	done chan struct{}
}

// inbox adapts transport callbacks into loop events.
type inbox struct {
	s *Supervisor
}

func (i inbox) Message(connID string, msg protocol.Message) {
	i.s.post(Event{Kind: EventMessage, ConnID: connID, Message: msg})
}

func (i inbox) FramingError(connID string, err error) {
	i.s.post(Event{Kind: EventFramingError, ConnID: connID, Err: err})
}

func (i inbox) Closed(connID string, err error) {
	i.s.post(Event{Kind: EventTransportClosed, ConnID: connID, Err: err})
}
