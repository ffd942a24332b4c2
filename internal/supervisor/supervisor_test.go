package supervisor

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/ytrpc/internal/models"
	"github.com/desertthunder/ytrpc/internal/protocol"
	"github.com/desertthunder/ytrpc/internal/shared"
	tu "github.com/desertthunder/ytrpc/internal/testing"
)

type fakeTransport struct {
	mu       sync.Mutex
	sent     []protocol.Message
	closed   bool
	failSend bool
	done     chan struct{}
}

func (f *fakeTransport) Send(msg protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return errors.New("broken pipe")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	return nil
}

func (f *fakeTransport) Done() <-chan struct{} { return f.done }

func (f *fakeTransport) types() []protocol.MessageType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.MessageType, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.Type
	}
	return out
}

func (f *fakeTransport) last() protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return protocol.Message{}
	}
	return f.sent[len(f.sent)-1]
}

type fakeConn struct {
	id        string
	inbox     Inbox
	transport *fakeTransport
}

type fakeDialer struct {
	conns []*fakeConn
	fail  error
}

func (d *fakeDialer) Dial(_ context.Context, connID string, inbox Inbox) (Transport, error) {
	if d.fail != nil {
		return nil, d.fail
	}
	t := &fakeTransport{done: make(chan struct{})}
	d.conns = append(d.conns, &fakeConn{id: connID, inbox: inbox, transport: t})
	return t, nil
}

type fakePrefs struct {
	auto bool
}

func (p *fakePrefs) AutoReconnect(context.Context) (bool, error) { return p.auto, nil }

type fakeHistory struct {
	records []*models.PresenceSnapshot
}

func (h *fakeHistory) Record(_ context.Context, _ string, p *models.PresenceSnapshot) error {
	h.records = append(h.records, p)
	return nil
}

type harness struct {
	t       *testing.T
	s       *Supervisor
	clock   *tu.FakeScheduler
	dialer  *fakeDialer
	prefs   *fakePrefs
	history *fakeHistory
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		clock:   tu.NewFakeScheduler(time.UnixMilli(1_700_000_000_000)),
		dialer:  &fakeDialer{},
		prefs:   &fakePrefs{auto: true},
		history: &fakeHistory{},
	}
	cfg.RequiredVersion = "1.0.0"
	h.s = New(cfg, Deps{
		Dialer:      h.dialer,
		Logger:      shared.NewLogger(io.Discard),
		Scheduler:   h.clock,
		Preferences: h.prefs,
		History:     h.history,
	})
	return h
}

// pump handles every queued event.
func (h *harness) pump() {
	for {
		select {
		case ev := <-h.s.events:
			h.s.handle(ev)
		default:
			return
		}
	}
}

func (h *harness) do(kind EventKind) {
	h.s.handle(Event{Kind: kind})
	h.pump()
}

func (h *harness) conn() *fakeConn {
	h.t.Helper()
	if len(h.dialer.conns) == 0 {
		h.t.Fatal("no host was dialed")
	}
	return h.dialer.conns[len(h.dialer.conns)-1]
}

func (h *harness) recv(msg protocol.Message) {
	c := h.conn()
	c.inbox.Message(c.id, msg)
	h.pump()
}

func (h *harness) exit() {
	c := h.conn()
	c.inbox.Closed(c.id, models.ErrTransportLost)
	h.pump()
}

func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.pump()
}

func (h *harness) ready() {
	h.t.Helper()
	h.do(EventConnect)
	h.recv(protocol.HostStarted("1.0.0"))
	h.recv(protocol.RPCStatus(protocol.RPCConnected, &models.SinkIdentity{Username: "fishy"}))
	h.expectState(models.PresenceReady)
}

func (h *harness) track(title string, pos float64, playing bool) {
	ev := models.Track(models.TrackEvent{Title: title, Artist: "Artist A", PositionSec: &pos, IsPlaying: &playing})
	h.s.handle(Event{Kind: EventTrack, Source: ev})
	h.pump()
}

func (h *harness) expectState(want models.ConnectionState) {
	h.t.Helper()
	if got := h.s.Status().ConnectionState; got != want {
		h.t.Fatalf("state = %v, want %v", got, want)
	}
}

func (h *harness) retryDelays() []time.Duration {
	var out []time.Duration
	for _, timer := range h.clock.Active() {
		out = append(out, timer.Delay)
	}
	return out
}

func TestHandshake(t *testing.T) {
	h := newHarness(t, Config{})
	h.expectState(models.Disconnected)

	h.do(EventConnect)
	h.expectState(models.ConnectingHost)

	h.recv(protocol.HostStarted("1.0.0"))
	h.expectState(models.HostConnected)
	if st := h.s.Status(); st.HostVersion != "1.0.0" || st.VersionMismatch {
		t.Errorf("version = %q mismatch = %v", st.HostVersion, st.VersionMismatch)
	}

	h.recv(protocol.RPCStatus(protocol.RPCConnected, &models.SinkIdentity{Username: "fishy"}))
	h.expectState(models.PresenceReady)
	if id := h.s.Status().SinkIdentity; id == nil || id.Username != "fishy" {
		t.Errorf("identity = %+v", id)
	}
	if got := h.conn().transport.types(); len(got) != 1 || got[0] != protocol.TypeClearActivity {
		t.Errorf("sent on ready without desired presence = %v, want CLEAR_ACTIVITY", got)
	}
}

func TestVersionMismatch(t *testing.T) {
	tt := []struct {
		name    string
		version string
		want    bool
	}{
		{name: "matching", version: "1.0.0", want: false},
		{name: "different", version: "0.9.0", want: true},
		{name: "absent", version: "", want: true},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			h.do(EventConnect)
			h.recv(protocol.HostStarted(tc.version))
			h.expectState(models.HostConnected)
			if got := h.s.Status().VersionMismatch; got != tc.want {
				t.Errorf("VersionMismatch = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTrackConfirmationClearsPending(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready()

	h.track("Song A", 0, true)
	sent := h.conn().transport.last()
	if sent.Type != protocol.TypeSetActivity {
		t.Fatalf("last sent = %s, want SET_ACTIVITY", sent.Type)
	}
	if sent.Data.StartedAt != h.clock.Now().UnixMilli() {
		t.Errorf("startedAt = %d, want now", sent.Data.StartedAt)
	}
	if h.s.pending == nil {
		t.Fatal("presence should be pending until confirmed")
	}

	h.recv(protocol.ActivityStatus(protocol.ActivitySuccess, sent.Data, ""))
	if h.s.pending != nil {
		t.Error("matching confirmation should clear pending")
	}
	if !h.s.confirmed.SameTarget(sent.Data) {
		t.Errorf("confirmed = %+v", h.s.confirmed)
	}
	if len(h.history.records) != 1 {
		t.Errorf("history records = %d, want 1", len(h.history.records))
	}
}

func TestStaleConfirmationKeepsPending(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready()

	h.track("Song A", 0, true)
	stale := h.conn().transport.last().Data

	h.advance(3 * time.Second)
	h.track("Song B", 0, true)

	h.recv(protocol.ActivityStatus(protocol.ActivitySuccess, stale, ""))
	if h.s.pending == nil || h.s.pending.Title != "Song B" {
		t.Errorf("stale confirmation cleared pending: %+v", h.s.pending)
	}
	if h.s.confirmed == nil || h.s.confirmed.Title != "Song A" {
		t.Errorf("confirmed = %+v", h.s.confirmed)
	}
}

func TestNoTrackAfterConfirmed(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready()

	h.track("Song A", 0, true)
	h.recv(protocol.ActivityStatus(protocol.ActivitySuccess, h.conn().transport.last().Data, ""))

	h.s.handle(Event{Kind: EventTrack, Source: models.NoTrack()})
	if got := h.conn().transport.last().Type; got != protocol.TypeClearActivity {
		t.Fatalf("last sent = %s, want CLEAR_ACTIVITY", got)
	}
	if h.s.Status().PresenceForDisplay != nil {
		t.Error("desired presence should be empty")
	}
	if h.s.confirmed != nil {
		t.Errorf("confirmed should be dropped with the track, got %+v", h.s.confirmed)
	}

	h.recv(protocol.ActivityStatus(protocol.ActivityCleared, nil, ""))
	if h.s.confirmed != nil || h.s.pendingClear {
		t.Errorf("confirmed = %+v pendingClear = %v", h.s.confirmed, h.s.pendingClear)
	}
}

func TestNoTrackWhileSinkDownDropsConfirmed(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready()
	h.track("Song A", 0, true)
	h.recv(protocol.ActivityStatus(protocol.ActivitySuccess, h.conn().transport.last().Data, ""))

	h.recv(protocol.RPCStatus(protocol.RPCDisconnected, nil))
	h.expectState(models.HostConnected)

	h.s.handle(Event{Kind: EventTrack, Source: models.NoTrack()})
	if h.s.reconciler.Desired() != nil || h.s.confirmed != nil {
		t.Errorf("desired = %+v confirmed = %+v, want both empty", h.s.reconciler.Desired(), h.s.confirmed)
	}
	if !h.s.pendingClear {
		t.Error("clear should stay pending until the sink is back")
	}
}

func TestNoTrackWhileNotReadyClearsOnReady(t *testing.T) {
	h := newHarness(t, Config{})
	h.do(EventConnect)
	h.recv(protocol.HostStarted("1.0.0"))

	h.track("Song A", 0, true)
	h.s.handle(Event{Kind: EventTrack, Source: models.NoTrack()})
	if len(h.conn().transport.types()) != 0 {
		t.Fatal("nothing should be sent before the sink is ready")
	}

	h.recv(protocol.RPCStatus(protocol.RPCConnected, nil))
	if got := h.conn().transport.types(); len(got) != 1 || got[0] != protocol.TypeClearActivity {
		t.Errorf("sent = %v, want one CLEAR_ACTIVITY", got)
	}
}

func TestTransportLossWhileReady(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready()
	h.track("Song A", 0, true)
	h.recv(protocol.ActivityStatus(protocol.ActivitySuccess, h.conn().transport.last().Data, ""))

	h.exit()
	h.expectState(models.Disconnected)
	st := h.s.Status()
	if st.SinkIdentity != nil {
		t.Error("identity should be cleared")
	}
	if h.s.pending == nil || h.s.pending.Title != "Song A" {
		t.Errorf("pending presence not preserved: %+v", h.s.pending)
	}
	if delays := h.retryDelays(); len(delays) != 1 || delays[0] != 5*time.Second {
		t.Fatalf("retry timers = %v, want one at 5s", delays)
	}
	if st.NextRetryAt == nil || st.RetryAttempts != 1 {
		t.Errorf("retry status = %v / %d", st.NextRetryAt, st.RetryAttempts)
	}

	h.advance(5 * time.Second)
	h.expectState(models.ConnectingHost)
	if len(h.dialer.conns) != 2 {
		t.Fatalf("dials = %d, want 2", len(h.dialer.conns))
	}

	h.recv(protocol.HostStarted("1.0.0"))
	h.recv(protocol.RPCStatus(protocol.RPCConnected, nil))
	if sent := h.conn().transport.last(); sent.Type != protocol.TypeSetActivity || sent.Data.Title != "Song A" {
		t.Errorf("new host did not receive the presence: %+v", sent)
	}
}

func TestBackoffSequenceAndReset(t *testing.T) {
	h := newHarness(t, Config{})
	h.do(EventConnect)

	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second}
	for i, delay := range want {
		h.exit()
		if got := h.retryDelays(); len(got) != 1 || got[0] != delay {
			t.Fatalf("failure %d: timers = %v, want [%v]", i+1, got, delay)
		}
		h.advance(delay)
		h.expectState(models.ConnectingHost)
	}

	h.recv(protocol.HostStarted("1.0.0"))
	if h.s.Status().RetryAttempts != 0 {
		t.Errorf("attempts not reset on HostConnected")
	}
	h.exit()
	if got := h.retryDelays(); len(got) != 1 || got[0] != 5*time.Second {
		t.Errorf("after reset timers = %v, want [5s]", got)
	}
}

func TestSinkFlapKeepsEscalating(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready()

	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}
	for i, delay := range want {
		h.recv(protocol.RPCStatus(protocol.RPCDisconnected, nil))
		if got := h.retryDelays(); len(got) != 1 || got[0] != delay {
			t.Fatalf("drop %d: timers = %v, want [%v]", i+1, got, delay)
		}
		h.advance(delay)
		h.recv(protocol.RPCStatus(protocol.RPCConnected, nil))
		h.expectState(models.PresenceReady)
	}

	h.exit()
	h.advance(40 * time.Second)
	h.recv(protocol.HostStarted("1.0.0"))
	if got := h.s.Status().RetryAttempts; got != 0 {
		t.Errorf("attempts after fresh HostConnected = %d, want 0", got)
	}
}

func TestTwoRapidFailuresOneTimer(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready()

	h.recv(protocol.RPCError("connection lost", ""))
	h.recv(protocol.RPCStatus(protocol.RPCDisconnected, nil))

	if got := h.retryDelays(); len(got) != 1 {
		t.Fatalf("timers = %v, want exactly one", got)
	}
	h.expectState(models.HostConnected)
}

func TestSinkRetrySendsReconnectRPC(t *testing.T) {
	tt := []struct {
		name  string
		msg   protocol.Message
		delay time.Duration
	}{
		{name: "auth failure", msg: protocol.RPCError("Invalid Client ID", "AUTH"), delay: 10 * time.Second},
		{name: "timeout", msg: protocol.RPCError("connection timed out", ""), delay: 2 * time.Second},
		{name: "not ready", msg: protocol.ActivityStatus(protocol.ActivityNotReady, nil, "rpc not ready"), delay: 2 * time.Second},
		{name: "disconnected", msg: protocol.RPCStatus(protocol.RPCDisconnected, nil), delay: 5 * time.Second},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			h.ready()

			h.recv(tc.msg)
			h.expectState(models.HostConnected)
			if h.s.Status().LastError == "" {
				t.Error("lastError should describe the sink failure")
			}
			if got := h.retryDelays(); len(got) != 1 || got[0] != tc.delay {
				t.Fatalf("timers = %v, want [%v]", got, tc.delay)
			}

			h.advance(tc.delay)
			if got := h.conn().transport.last().Type; got != protocol.TypeReconnectRPC {
				t.Errorf("last sent = %s, want RECONNECT_RPC", got)
			}
			if len(h.dialer.conns) != 1 {
				t.Error("sink retry must not respawn the host")
			}
		})
	}
}

func TestManualDisconnect(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready()
	h.track("Song A", 0, true)

	h.exit()
	if len(h.clock.Active()) != 1 {
		t.Fatal("expected a pending retry")
	}

	h.do(EventDisconnect)
	st := h.s.Status()
	if !st.ManualDisconnect || st.ConnectionState != models.Disconnected {
		t.Fatalf("status = %+v", st)
	}
	if len(h.clock.Active()) != 0 {
		t.Error("manual disconnect must cancel the pending retry")
	}

	old := h.dialer.conns[0]
	old.inbox.Closed(old.id, models.ErrTransportLost)
	h.pump()
	h.do(EventHealthCheck)
	h.do(EventConnect)
	h.advance(10 * time.Minute)
	if len(h.dialer.conns) != 1 {
		t.Fatalf("dials = %d, engine reconnected while manually disconnected", len(h.dialer.conns))
	}

	h.do(EventReconnect)
	h.expectState(models.ConnectingHost)
	if h.s.Status().ManualDisconnect {
		t.Error("manual reconnect should clear the flag")
	}
}

func TestManualDisconnectWhileReadyClears(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready()
	h.track("Song A", 0, true)
	transport := h.conn().transport

	h.do(EventDisconnect)
	if transport.last().Type != protocol.TypeClearActivity {
		t.Errorf("last sent = %s, want CLEAR_ACTIVITY", transport.last().Type)
	}
	if !transport.closed {
		t.Error("transport should be closed")
	}

	h.exit()
	h.expectState(models.Disconnected)
}

func TestHostErrorFaults(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready()

	h.recv(protocol.HostError("discord ipc unavailable"))
	h.expectState(models.Fault)
	if !h.conn().transport.closed {
		t.Error("fault should close the transport")
	}
	if !strings.Contains(h.s.Status().LastError, "discord ipc unavailable") {
		t.Errorf("lastError = %q", h.s.Status().LastError)
	}

	h.do(EventHealthCheck)
	h.advance(10 * time.Minute)
	h.expectState(models.Fault)

	h.do(EventReconnect)
	h.expectState(models.ConnectingHost)
	if len(h.dialer.conns) != 2 {
		t.Errorf("dials = %d, want 2", len(h.dialer.conns))
	}
}

func TestHostErrorWhileConnectingOnlyRecords(t *testing.T) {
	h := newHarness(t, Config{})
	h.do(EventConnect)
	h.recv(protocol.HostError("starting up"))
	h.expectState(models.ConnectingHost)
	if h.s.Status().LastError != "starting up" {
		t.Errorf("lastError = %q", h.s.Status().LastError)
	}
}

func TestAutoReconnectDisabled(t *testing.T) {
	h := newHarness(t, Config{})
	h.do(EventConnect)
	h.prefs.auto = false

	h.exit()
	h.expectState(models.Disconnected)
	if len(h.clock.Active()) != 0 {
		t.Error("no retry should be scheduled with auto reconnect off")
	}
	if h.s.Status().AutoReconnect {
		t.Error("status should reflect the preference")
	}

	h.prefs.auto = true
	h.do(EventHealthCheck)
	if len(h.clock.Active()) != 1 {
		t.Error("health check should kick the policy once re-enabled")
	}
}

func TestHealthCheck(t *testing.T) {
	t.Run("host connected without sink", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.do(EventConnect)
		h.recv(protocol.HostStarted("1.0.0"))

		h.do(EventHealthCheck)
		if got := h.retryDelays(); len(got) != 1 || got[0] != 5*time.Second {
			t.Fatalf("timers = %v", got)
		}
		h.advance(5 * time.Second)
		if h.conn().transport.last().Type != protocol.TypeReconnectRPC {
			t.Error("expected RECONNECT_RPC")
		}
	})

	t.Run("stuck connecting", func(t *testing.T) {
		h := newHarness(t, Config{ConnectTimeout: 10 * time.Second})
		h.do(EventConnect)

		h.advance(5 * time.Second)
		h.do(EventHealthCheck)
		h.expectState(models.ConnectingHost)

		h.advance(6 * time.Second)
		h.do(EventHealthCheck)
		h.expectState(models.Disconnected)
		if !h.dialer.conns[0].transport.closed {
			t.Error("stuck transport should be closed")
		}
		if len(h.clock.Active()) != 1 {
			t.Error("expected a transport retry")
		}
	})

	t.Run("dial failure retries", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.dialer.fail = models.ErrTransportLost
		h.do(EventConnect)
		h.expectState(models.Disconnected)
		if len(h.clock.Active()) != 1 {
			t.Error("failed dial should schedule a retry")
		}
	})
}

func TestStaleConnectionIgnored(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready()
	old := h.conn()

	h.exit()
	h.advance(5 * time.Second)
	h.recv(protocol.HostStarted("1.0.0"))

	old.inbox.Message(old.id, protocol.RPCStatus(protocol.RPCConnected, nil))
	old.inbox.Closed(old.id, models.ErrTransportLost)
	h.pump()
	h.expectState(models.HostConnected)
}

func TestFramingErrorKeepsState(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready()

	c := h.conn()
	c.inbox.FramingError(c.id, &models.FramingError{Size: 3, Err: errors.New("bad json")})
	h.pump()
	h.expectState(models.PresenceReady)
	if h.s.Status().LastError == "" {
		t.Error("framing error should surface in lastError")
	}
}

func TestRateLimitedActivity(t *testing.T) {
	h := newHarness(t, Config{SendInterval: 4 * time.Second, SendBurst: 1})
	h.ready()

	h.track("Song A", 0, true)
	h.track("Song B", 0, true)
	h.track("Song C", 0, true)

	sets := func() (n int, last string) {
		for _, m := range h.conn().transport.sent {
			if m.Type == protocol.TypeSetActivity {
				n++
				last = m.Data.Title
			}
		}
		return n, last
	}

	if n, last := sets(); n != 1 || last != "Song A" {
		t.Fatalf("sets = %d (%s), want only Song A before the flush", n, last)
	}
	if len(h.clock.Active()) != 1 {
		t.Fatalf("expected a single flush timer, got %d", len(h.clock.Active()))
	}

	h.advance(4 * time.Second)
	if n, last := sets(); n != 2 || last != "Song C" {
		t.Errorf("after flush sets = %d (%s), want newest presence", n, last)
	}
}

func TestClearBypassesRateLimit(t *testing.T) {
	h := newHarness(t, Config{SendInterval: 4 * time.Second, SendBurst: 1})
	h.ready()

	h.track("Song A", 0, true)
	h.track("Song B", 0, true)
	if len(h.clock.Active()) != 1 {
		t.Fatalf("expected Song B to be held back, timers = %d", len(h.clock.Active()))
	}

	h.s.handle(Event{Kind: EventTrack, Source: models.NoTrack()})
	want := []protocol.MessageType{protocol.TypeClearActivity, protocol.TypeSetActivity, protocol.TypeClearActivity}
	got := h.conn().transport.types()
	if len(got) != len(want) {
		t.Fatalf("sent = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sent = %v, want %v", got, want)
		}
	}
	if len(h.clock.Active()) != 0 {
		t.Error("clear should cancel the held-back update")
	}

	h.advance(5 * time.Second)
	if n := len(h.conn().transport.types()); n != len(want) {
		t.Errorf("held-back update was sent after the clear: %v", h.conn().transport.types())
	}
}

func TestSendFailureClosesTransport(t *testing.T) {
	h := newHarness(t, Config{})
	h.ready()
	h.conn().transport.failSend = true

	h.track("Song A", 0, true)
	if !h.conn().transport.closed {
		t.Error("failed write should close the transport")
	}
	h.exit()
	h.expectState(models.Disconnected)
}

func TestStatusPublishedOncePerTransition(t *testing.T) {
	drain := func(ch <-chan models.StatusSnapshot) []models.StatusSnapshot {
		var out []models.StatusSnapshot
		for len(ch) > 0 {
			out = append(out, <-ch)
		}
		return out
	}
	states := func(snaps []models.StatusSnapshot) []models.ConnectionState {
		out := make([]models.ConnectionState, len(snaps))
		for i, s := range snaps {
			out[i] = s.ConnectionState
		}
		return out
	}

	tt := []struct {
		name  string
		setup func(h *harness)
		act   func(h *harness)
		want  []models.ConnectionState
	}{
		{
			name: "handshake",
			act: func(h *harness) {
				h.do(EventConnect)
				h.recv(protocol.HostStarted("1.0.0"))
			},
			want: []models.ConnectionState{models.ConnectingHost, models.HostConnected},
		},
		{
			name:  "dial failure",
			setup: func(h *harness) { h.dialer.fail = models.ErrTransportLost },
			act:   func(h *harness) { h.do(EventConnect) },
			want:  []models.ConnectionState{models.ConnectingHost, models.Disconnected},
		},
		{
			name: "reconnect from fault",
			setup: func(h *harness) {
				h.ready()
				h.recv(protocol.HostError("discord ipc unavailable"))
				h.expectState(models.Fault)
			},
			act:  func(h *harness) { h.do(EventReconnect) },
			want: []models.ConnectionState{models.Disconnected, models.ConnectingHost},
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			if tc.setup != nil {
				tc.setup(h)
			}
			ch, cancel := h.s.Publisher().Subscribe(16)
			defer cancel()
			drain(ch)

			tc.act(h)

			got := states(drain(ch))
			if len(got) != len(tc.want) {
				t.Fatalf("published states = %v, want %v", got, tc.want)
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Fatalf("published states = %v, want %v", got, tc.want)
				}
			}
		})
	}

	t.Run("retry is part of the disconnected snapshot", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.dialer.fail = models.ErrTransportLost
		ch, cancel := h.s.Publisher().Subscribe(16)
		defer cancel()
		drain(ch)

		h.do(EventConnect)
		snaps := drain(ch)
		last := snaps[len(snaps)-1]
		if last.ConnectionState != models.Disconnected || last.NextRetryAt == nil || last.LastError == "" {
			t.Errorf("disconnected snapshot = %+v", last)
		}
	})
}

func TestRunCommands(t *testing.T) {
	dialer := &fakeDialer{}
	s := New(Config{}, Deps{Dialer: dialer, Logger: shared.NewLogger(io.Discard)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if got := s.Status().ConnectionState; got != models.ConnectingHost {
		t.Fatalf("state = %v", got)
	}
	if err := s.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if !s.Status().ManualDisconnect {
		t.Error("expected manual disconnect flag")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if err := s.Reconnect(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("command after stop = %v, want ErrStopped", err)
	}
}
