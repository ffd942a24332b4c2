package models

import (
	"fmt"
	"time"
)

// ConnectionState is the position of the Connection Supervisor state machine.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	ConnectingHost
	HostConnected
	PresenceReady
	Fault
)

// String returns the wire name of the state.
func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case ConnectingHost:
		return "connecting_host"
	case HostConnected:
		return "host_connected"
	case PresenceReady:
		return "presence_ready"
	case Fault:
		return "fault"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (s *ConnectionState) UnmarshalText(b []byte) error {
	for _, st := range []ConnectionState{Disconnected, ConnectingHost, HostConnected, PresenceReady, Fault} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("%w: unknown connection state %q", ErrInvalidStatus, string(b))
}

// SinkIdentity is the account the Presence Sink is logged in as.
type SinkIdentity struct {
	Username      string `json:"username"`
	Discriminator string `json:"discriminator,omitempty"`
}

// String renders the identity as username#discriminator when a discriminator is set.
func (i SinkIdentity) String() string {
	if i.Discriminator == "" || i.Discriminator == "0" {
		return i.Username
	}
	return i.Username + "#" + i.Discriminator
}

// StatusSnapshot is the externally observable engine status.
//
// It is rebuilt whole on every transition so consumers always see a consistent tuple.
type StatusSnapshot struct {
	ConnectionState    ConnectionState   `json:"connectionState"`
	LastError          string            `json:"lastError,omitempty"`
	SinkIdentity       *SinkIdentity     `json:"sinkIdentity,omitempty"`
	PresenceForDisplay *PresenceSnapshot `json:"presenceForDisplay"`
	HostVersion        string            `json:"hostVersion,omitempty"`
	VersionMismatch    bool              `json:"versionMismatch"`
	ManualDisconnect   bool              `json:"manualDisconnect"`
	AutoReconnect      bool              `json:"autoReconnect"`
	RetryAttempts      int               `json:"retryAttempts"`
	NextRetryAt        *time.Time        `json:"nextRetryAt,omitempty"`
	ConnectionID       string            `json:"connectionId,omitempty"`
	UpdatedAt          time.Time         `json:"updatedAt"`
}

// Clone returns a copy that shares no pointers with s.
func (s StatusSnapshot) Clone() StatusSnapshot {
	dup := s
	if s.SinkIdentity != nil {
		id := *s.SinkIdentity
		dup.SinkIdentity = &id
	}
	dup.PresenceForDisplay = s.PresenceForDisplay.Clone()
	if s.NextRetryAt != nil {
		at := *s.NextRetryAt
		dup.NextRetryAt = &at
	}
	return dup
}
