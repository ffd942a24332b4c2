package protocol

import "github.com/desertthunder/ytrpc/internal/models"

// MessageType discriminates protocol messages.
type MessageType string

const (
	// Outbound
	TypeSetActivity   MessageType = "SET_ACTIVITY"
	TypeClearActivity MessageType = "CLEAR_ACTIVITY"
	TypeReconnectRPC  MessageType = "RECONNECT_RPC"

	// Inbound
	TypeHostStarted    MessageType = "NATIVE_HOST_STARTED"
	TypeRPCStatus      MessageType = "RPC_STATUS_UPDATE"
	TypeRPCError       MessageType = "RPC_ERROR"
	TypeActivityStatus MessageType = "ACTIVITY_STATUS"
	TypeHostError      MessageType = "NATIVE_HOST_ERROR"
	TypeDebugLog       MessageType = "DEBUG_LOG"
)

// RPC_STATUS_UPDATE status values
const (
	RPCConnected    = "connected"
	RPCDisconnected = "disconnected"
)

// ACTIVITY_STATUS status values
const (
	ActivitySuccess     = "success"
	ActivityCleared     = "cleared"
	ActivityNotReady    = "error_rpc_not_ready"
	ActivityError       = "error"
	ActivityClearFailed = "clear_error"
)

// Message is the envelope shared by every protocol message.
type Message struct {
	Type      MessageType              `json:"type"`
	Data      *models.PresenceSnapshot `json:"data,omitempty"`
	Version   string                   `json:"version,omitempty"`
	Status    string                   `json:"status,omitempty"`
	User      *models.SinkIdentity     `json:"user,omitempty"`
	Message   string                   `json:"message,omitempty"`
	ErrorType string                   `json:"errorType,omitempty"`
	Activity  *models.PresenceSnapshot `json:"activity,omitempty"`
}

// Outbound reports whether the message travels from the bridge to the host.
func (m Message) Outbound() bool {
	switch m.Type {
	case TypeSetActivity, TypeClearActivity, TypeReconnectRPC:
		return true
	default:
		return false
	}
}

func SetActivity(p *models.PresenceSnapshot) Message {
	return Message{Type: TypeSetActivity, Data: p}
}

func ClearActivity() Message {
	return Message{Type: TypeClearActivity}
}

func ReconnectRPC() Message {
	return Message{Type: TypeReconnectRPC}
}

func HostStarted(version string) Message {
	return Message{Type: TypeHostStarted, Version: version}
}

func RPCStatus(status string, user *models.SinkIdentity) Message {
	return Message{Type: TypeRPCStatus, Status: status, User: user}
}

func RPCError(message, errorType string) Message {
	return Message{Type: TypeRPCError, Message: message, ErrorType: errorType}
}

func ActivityStatus(status string, activity *models.PresenceSnapshot, message string) Message {
	return Message{Type: TypeActivityStatus, Status: status, Activity: activity, Message: message}
}

func HostError(message string) Message {
	return Message{Type: TypeHostError, Message: message}
}

func DebugLog(message string) Message {
	return Message{Type: TypeDebugLog, Message: message}
}
