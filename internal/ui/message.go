package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/ytrpc/internal/models"
)

// MsgKind enumerates all message types in the monitor.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgStreamOpened MsgKind = iota
	MsgStatus
	MsgStreamClosed
	MsgHistoryFetched
	MsgCommandDone
	MsgTick
)

type streamOpened struct {
	updates <-chan models.StatusSnapshot
	err     error
}

type historyFetched struct {
	entries []models.HistoryEntry
	err     error
}

type commandDone struct {
	name   string
	status models.StatusSnapshot
	err    error
}

// streamOpenedMsg is the constructor for [MsgStreamOpened]
func streamOpenedMsg(updates <-chan models.StatusSnapshot, err error) Msg {
	return Msg{kind: MsgStreamOpened, data: streamOpened{updates, err}}
}

// statusMsg is the constructor for [MsgStatus]
func statusMsg(s models.StatusSnapshot) Msg {
	return Msg{kind: MsgStatus, data: s}
}

// streamClosedMsg is the constructor for [MsgStreamClosed]
func streamClosedMsg() Msg {
	return Msg{kind: MsgStreamClosed}
}

// historyFetchedMsg is the constructor for [MsgHistoryFetched]
func historyFetchedMsg(entries []models.HistoryEntry, err error) Msg {
	return Msg{kind: MsgHistoryFetched, data: historyFetched{entries, err}}
}

// commandDoneMsg is the constructor for [MsgCommandDone]
func commandDoneMsg(name string, s models.StatusSnapshot, err error) Msg {
	return Msg{kind: MsgCommandDone, data: commandDone{name, s, err}}
}

// tickMsg is the constructor for [MsgTick]
func tickMsg(t time.Time) Msg {
	return Msg{kind: MsgTick, data: t}
}
