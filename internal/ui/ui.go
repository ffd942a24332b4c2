package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/ytrpc/internal/models"
)

const (
	redialDelay  = 2 * time.Second
	historyLimit = 50
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	StatusView ViewState = iota
	HistoryView
)

// Client is the engine surface the monitor needs. [services.EngineClient] implements it.
type Client interface {
	Watch(ctx context.Context) (<-chan models.StatusSnapshot, error)
	Reconnect(ctx context.Context) (models.StatusSnapshot, error)
	Disconnect(ctx context.Context) (models.StatusSnapshot, error)
	History(ctx context.Context, limit int) ([]models.HistoryEntry, error)
}

// Model represents the monitor state.
type Model struct {
	ctx       context.Context
	client    Client
	view      ViewState
	updates   <-chan models.StatusSnapshot
	status    models.StatusSnapshot
	received  bool
	streaming bool
	notice    string
	err       error
	now       time.Time
	width     int
	height    int
	history   list.Model
	help      help.Model
	keys      keyMap
}

// NewModel creates a monitor bound to client.
func NewModel(ctx context.Context, client Client) *Model {
	history := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	history.Title = "Confirmed presences"

	return &Model{
		ctx:     ctx,
		client:  client,
		view:    StatusView,
		now:     time.Now(),
		history: history,
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Init opens the status stream and starts the clock.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.openStream(0), tick())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.history.SetSize(msg.Width-4, msg.Height-6)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case HistoryView:
			return m.handleHistoryKeys(msg)
		default:
			return m.handleStatusKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	if m.view == HistoryView {
		var cmd tea.Cmd
		m.history, cmd = m.history.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgStreamOpened:
		opened := msg.data.(streamOpened)
		if opened.err != nil {
			m.err = opened.err
			m.streaming = false
			return m, m.openStream(redialDelay)
		}
		m.err = nil
		m.updates = opened.updates
		m.streaming = true
		return m, m.waitForStatus()

	case MsgStatus:
		m.status = msg.data.(models.StatusSnapshot)
		m.received = true
		return m, m.waitForStatus()

	case MsgStreamClosed:
		m.updates = nil
		m.streaming = false
		if m.ctx.Err() != nil {
			return m, nil
		}
		return m, m.openStream(redialDelay)

	case MsgHistoryFetched:
		fetched := msg.data.(historyFetched)
		if fetched.err != nil {
			m.notice = fmt.Sprintf("history: %v", fetched.err)
			m.view = StatusView
			return m, nil
		}
		cmd := m.history.SetItems(historyItems(fetched.entries))
		m.view = HistoryView
		return m, cmd

	case MsgCommandDone:
		done := msg.data.(commandDone)
		if done.err != nil {
			m.notice = fmt.Sprintf("%s failed: %v", done.name, done.err)
			return m, nil
		}
		m.notice = done.name + " sent"
		m.status = done.status
		m.received = true
		return m, nil

	case MsgTick:
		m.now = msg.data.(time.Time)
		return m, tick()
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case HistoryView:
		return m.renderHistory()
	default:
		return m.renderStatus()
	}
}

func (m *Model) handleStatusKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.reconnect):
		m.notice = "reconnecting..."
		return m, m.runCommand("reconnect", m.client.Reconnect)
	case key.Matches(msg, m.keys.disconnect):
		m.notice = "disconnecting..."
		return m, m.runCommand("disconnect", m.client.Disconnect)
	case key.Matches(msg, m.keys.history):
		return m, m.fetchHistory()
	}
	return m, nil
}

func (m *Model) handleHistoryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.history.FilterState() != list.Filtering {
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.back):
			m.view = StatusView
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.history, cmd = m.history.Update(msg)
	return m, cmd
}

func (m *Model) openStream(delay time.Duration) tea.Cmd {
	open := func() tea.Msg {
		updates, err := m.client.Watch(m.ctx)
		return streamOpenedMsg(updates, err)
	}
	if delay <= 0 {
		return open
	}
	return tea.Tick(delay, func(time.Time) tea.Msg { return open() })
}

func (m *Model) waitForStatus() tea.Cmd {
	updates := m.updates
	return func() tea.Msg {
		if updates == nil {
			return streamClosedMsg()
		}
		s, ok := <-updates
		if !ok {
			return streamClosedMsg()
		}
		return statusMsg(s)
	}
}

func (m *Model) runCommand(name string, run func(context.Context) (models.StatusSnapshot, error)) tea.Cmd {
	return func() tea.Msg {
		s, err := run(m.ctx)
		return commandDoneMsg(name, s, err)
	}
}

func (m *Model) fetchHistory() tea.Cmd {
	return func() tea.Msg {
		entries, err := m.client.History(m.ctx, historyLimit)
		return historyFetchedMsg(entries, err)
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) renderStatus() string {
	var b strings.Builder

	b.WriteString(styles.title.Render("ytrpc monitor"))
	b.WriteString("\n")

	if !m.received {
		if m.err != nil {
			b.WriteString(styles.err.Render(fmt.Sprintf("Engine unreachable: %v", m.err)))
			b.WriteString("\n" + styles.help.Render("retrying..."))
		} else {
			b.WriteString(styles.help.Render("waiting for engine status..."))
		}
		b.WriteString("\n\n" + m.help.ShortHelpView([]key.Binding{m.keys.quit}))
		return b.String()
	}

	s := m.status
	row := func(label, value string) {
		b.WriteString(styles.label.Render(label) + value + "\n")
	}

	row("State", styles.state(s.ConnectionState).Render(s.ConnectionState.String()))
	if s.SinkIdentity != nil {
		row("Account", s.SinkIdentity.String())
	}
	if s.HostVersion != "" {
		version := s.HostVersion
		if s.VersionMismatch {
			version += " " + styles.warn.Render("(version mismatch)")
		}
		row("Host", version)
	}

	if p := s.PresenceForDisplay; p != nil {
		row("Playing", p.Title)
		row("Artist", p.Subtitle)
		row("Progress", Progress(p, m.now))
	} else {
		row("Playing", styles.help.Render("nothing"))
	}

	row("Auto retry", onOff(s.AutoReconnect))
	if s.ManualDisconnect {
		row("Manual", styles.warn.Render("disconnected by user"))
	}
	if s.RetryAttempts > 0 || s.NextRetryAt != nil {
		row("Retry", RetryLine(s.RetryAttempts, s.NextRetryAt, m.now))
	}
	if s.LastError != "" {
		row("Last error", styles.err.Render(s.LastError))
	}

	if !m.streaming {
		b.WriteString("\n" + styles.warn.Render("stream lost, redialing..."))
	}
	if m.notice != "" {
		b.WriteString("\n" + styles.help.Render(m.notice))
	}

	b.WriteString("\n\n" + m.help.ShortHelpView(m.keys.ShortHelp()))
	return b.String()
}

func (m *Model) renderHistory() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.up, m.keys.down, m.keys.back, m.keys.quit})
	return fmt.Sprintf("%s\n\n%s", m.history.View(), helpView)
}

// Progress renders elapsed/total for a presence, marking paused ones.
func Progress(p *models.PresenceSnapshot, now time.Time) string {
	if p.EndsAt == nil {
		return styles.warn.Render("paused")
	}
	elapsed := max(now.UnixMilli()-p.StartedAt, 0)
	total := *p.EndsAt - p.StartedAt
	elapsed = min(elapsed, total)
	return fmt.Sprintf("%s / %s", clockTime(elapsed), clockTime(total))
}

// RetryLine describes the retry counter and, when one is pending, the countdown.
func RetryLine(attempts int, next *time.Time, now time.Time) string {
	line := fmt.Sprintf("attempt %d", attempts)
	if next != nil {
		wait := max(next.Sub(now), 0).Round(time.Second)
		line += fmt.Sprintf(", next in %s", wait)
	}
	return line
}

func clockTime(ms int64) string {
	secs := ms / 1000
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
