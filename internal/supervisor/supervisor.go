package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-co-op/gocron/v2"
	"golang.org/x/time/rate"

	"github.com/desertthunder/ytrpc/internal/models"
	"github.com/desertthunder/ytrpc/internal/presence"
	"github.com/desertthunder/ytrpc/internal/protocol"
	"github.com/desertthunder/ytrpc/internal/reconnect"
	"github.com/desertthunder/ytrpc/internal/shared"
	"github.com/desertthunder/ytrpc/internal/status"
)

const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultHealthInterval = 2 * time.Minute
	eventBuffer           = 128
)

var ErrStopped = fmt.Errorf("supervisor stopped")

// Preferences supplies the persisted auto-reconnect flag.
type Preferences interface {
	AutoReconnect(ctx context.Context) (bool, error)
}

// History stores presences the sink confirmed.
type History interface {
	Record(ctx context.Context, connID string, p *models.PresenceSnapshot) error
}

// Metrics observes the state machine.
type Metrics interface {
	StateChanged(from, to models.ConnectionState)
	RetryScheduled(class string, delay time.Duration)
	MessageSent(msgType string)
	MessageReceived(msgType string)
	FramingError()
	PresenceConfirmed()
}

type noopMetrics struct{}

func (noopMetrics) StateChanged(models.ConnectionState, models.ConnectionState) {}
func (noopMetrics) RetryScheduled(string, time.Duration)                        {}
func (noopMetrics) MessageSent(string)                                          {}
func (noopMetrics) MessageReceived(string)                                      {}
func (noopMetrics) FramingError()                                               {}
func (noopMetrics) PresenceConfirmed()                                          {}

// Config tunes the supervisor. Zero values select the defaults.
type Config struct {
	RequiredVersion string
	AutoConnect     bool // connect as soon as Run starts
	ConnectTimeout  time.Duration
	HealthInterval  time.Duration
	StopGrace       time.Duration
	SendInterval    time.Duration // minimum spacing of SET_ACTIVITY; zero disables limiting
	SendBurst       int
	Presence        presence.Options
}

// Deps are the collaborators of a [Supervisor]. Only Dialer is required.
type Deps struct {
	Dialer      Dialer
	Logger      *log.Logger
	Scheduler   reconnect.Scheduler
	Policies    reconnect.Policies
	Preferences Preferences
	History     History
	Metrics     Metrics
	Publisher   *status.Publisher
}

// Supervisor drives the host connection. See the package documentation for the state machine.
type Supervisor struct {
	cfg        Config
	dialer     Dialer
	logger     *log.Logger
	clock      reconnect.Scheduler
	backoff    *reconnect.Backoff
	prefs      Preferences
	history    History
	metrics    Metrics
	publisher  *status.Publisher
	reconciler *presence.Reconciler
	limiter    *rate.Limiter

	ctx     context.Context
	events  chan Event
	stopped chan struct{}

	state           models.ConnectionState
	transport       Transport
	connID          string
	connectingSince time.Time
	lastError       string
	identity        *models.SinkIdentity
	hostVersion     string
	versionMismatch bool
	manual          bool
	autoReconnect   bool

	pending      *models.PresenceSnapshot
	pendingClear bool
	confirmed    *models.PresenceSnapshot
	flushTimer   reconnect.Timer

	dirty bool
}

// New creates a Supervisor in the Disconnected state.
func New(cfg Config, deps Deps) *Supervisor {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = DefaultHealthInterval
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultStopGrace
	}
	if cfg.SendBurst < 1 {
		cfg.SendBurst = 1
	}

	s := &Supervisor{
		cfg:           cfg,
		dialer:        deps.Dialer,
		logger:        deps.Logger,
		clock:         deps.Scheduler,
		prefs:         deps.Preferences,
		history:       deps.History,
		metrics:       deps.Metrics,
		ctx:           context.Background(),
		events:        make(chan Event, eventBuffer),
		stopped:       make(chan struct{}),
		state:         models.Disconnected,
		autoReconnect: true,
	}

	if s.logger == nil {
		s.logger = shared.NewLogger(nil)
	}
	s.logger = shared.WithLogger(s.logger, "component", "supervisor")
	if s.clock == nil {
		s.clock = reconnect.RealScheduler()
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.dialer == nil {
		s.dialer = missingDialer{}
	}
	if cfg.SendInterval > 0 {
		s.limiter = rate.NewLimiter(rate.Every(cfg.SendInterval), cfg.SendBurst)
	}

	opts := cfg.Presence
	if opts.Now == nil {
		opts.Now = s.clock.Now
	}
	s.reconciler = presence.NewReconciler(opts)
	s.backoff = reconnect.NewBackoff(deps.Policies, s.clock)

	s.publisher = deps.Publisher
	if s.publisher == nil {
		s.publisher = status.NewPublisher(s.snapshot())
	} else {
		s.publisher.Publish(s.snapshot())
	}
	return s
}

// Publisher returns the status publisher observers subscribe to.
func (s *Supervisor) Publisher() *status.Publisher {
	return s.publisher
}

// Status returns the latest published snapshot.
func (s *Supervisor) Status() models.StatusSnapshot {
	return s.publisher.Current()
}

// Run processes events until ctx is cancelled, then tears the host down gracefully.
func (s *Supervisor) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	s.ctx = runCtx

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create health check scheduler: %w", err)
	}
	defer func() {
		if err := sched.Shutdown(); err != nil {
			s.logger.Warn("health check scheduler shutdown", "error", err)
		}
	}()
	defer close(s.stopped)

	if _, err := sched.NewJob(
		gocron.DurationJob(s.cfg.HealthInterval),
		gocron.NewTask(func() { s.post(Event{Kind: EventHealthCheck}) }),
		gocron.WithName("health-check"),
	); err != nil {
		return fmt.Errorf("failed to schedule health check: %w", err)
	}
	sched.Start()

	s.logger.Info("supervisor started", "health_interval", s.cfg.HealthInterval, "required_version", s.cfg.RequiredVersion)
	if s.cfg.AutoConnect {
		s.handle(Event{Kind: EventConnect})
	}

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

// SubmitTrack queues a Track Source event.
func (s *Supervisor) SubmitTrack(ev models.SourceEvent) {
	s.post(Event{Kind: EventTrack, Source: ev})
}

// Connect starts the host unless a manual disconnect is holding the engine down.
func (s *Supervisor) Connect(ctx context.Context) error {
	return s.command(ctx, EventConnect)
}

// Reconnect clears a manual disconnect or fault and connects immediately, superseding any backoff.
func (s *Supervisor) Reconnect(ctx context.Context) error {
	return s.command(ctx, EventReconnect)
}

// Disconnect tears the host down and holds the engine disconnected until Reconnect.
func (s *Supervisor) Disconnect(ctx context.Context) error {
	return s.command(ctx, EventDisconnect)
}

func (s *Supervisor) command(ctx context.Context, kind EventKind) error {
	ev := Event{Kind: kind, done: make(chan struct{})}
	select {
	case s.events <- ev:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}

	select {
	case <-ev.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}
}

func (s *Supervisor) post(ev Event) {
	select {
	case s.events <- ev:
	case <-s.stopped:
	}
}

// handle is the single transition function.
func (s *Supervisor) handle(ev Event) {
	defer func() {
		s.flushStatus()
		if ev.done != nil {
			close(ev.done)
		}
	}()

	switch ev.Kind {
	case EventTrack:
		s.onTrack(ev.Source)
	case EventConnect:
		s.connect("connect requested")
	case EventReconnect:
		s.onReconnect()
	case EventDisconnect:
		s.onDisconnect()
	case EventMessage:
		s.onMessage(ev.ConnID, ev.Message)
	case EventFramingError:
		s.onFramingError(ev.ConnID, ev.Err)
	case EventTransportClosed:
		s.onTransportClosed(ev.ConnID, ev.Err)
	case EventRetry:
		s.onRetry(ev.Ticket)
	case EventFlush:
		s.flushTimer = nil
		s.deliver()
	case EventHealthCheck:
		s.onHealthCheck()
	default:
		s.logger.Warn("unknown event", "kind", ev.Kind)
	}
}

// setState publishes a snapshot for every real transition. Other field changes only mark the
// status dirty and go out once the event has been handled.
func (s *Supervisor) setState(to models.ConnectionState, reason string) {
	from := s.state
	if from == to {
		s.dirty = true
		return
	}
	s.state = to
	s.logger.Info("state transition", "from", from, "to", to, "reason", reason)
	s.metrics.StateChanged(from, to)

	s.dirty = false
	s.publisher.Publish(s.snapshot())
}

func (s *Supervisor) flushStatus() {
	if !s.dirty {
		return
	}
	s.dirty = false
	s.publisher.Publish(s.snapshot())
}

func (s *Supervisor) snapshot() models.StatusSnapshot {
	snap := models.StatusSnapshot{
		ConnectionState:    s.state,
		LastError:          s.lastError,
		SinkIdentity:       s.identity,
		HostVersion:        s.hostVersion,
		VersionMismatch:    s.versionMismatch,
		ManualDisconnect:   s.manual,
		AutoReconnect:      s.autoReconnect,
		RetryAttempts:      s.backoff.Attempts(),
		ConnectionID:       s.connID,
		PresenceForDisplay: s.reconciler.Desired(),
		UpdatedAt:          s.clock.Now(),
	}
	if _, at, ok := s.backoff.Pending(); ok {
		snap.NextRetryAt = &at
	}
	return snap
}

func (s *Supervisor) onTrack(ev models.SourceEvent) {
	update, changed := s.reconciler.Apply(ev)

	if update.Clear {
		if !changed && (s.pendingClear || (s.confirmed == nil && s.pending == nil)) {
			return
		}
		s.pending = nil
		s.pendingClear = true
		s.confirmed = nil
		s.dirty = true
		s.deliver()
		return
	}
	if !changed {
		return
	}

	s.pending = update.Presence
	s.pendingClear = false
	s.dirty = true
	s.deliver()
}

// deliver sends whatever is pending when the sink is ready. Only SET_ACTIVITY is rate limited;
// a clear supersedes any held-back update.
func (s *Supervisor) deliver() {
	if s.state != models.PresenceReady || s.transport == nil {
		return
	}
	if s.pendingClear {
		s.stopFlush()
		s.send(protocol.ClearActivity())
		return
	}
	if s.pending == nil || s.flushTimer != nil {
		return
	}

	msg := protocol.SetActivity(s.pending.Clone())
	if s.limiter != nil {
		now := s.clock.Now()
		r := s.limiter.ReserveN(now, 1)
		if d := r.DelayFrom(now); d > 0 {
			r.CancelAt(now)
			s.logger.Debug("activity update rate limited", "delay", d)
			s.flushTimer = s.clock.AfterFunc(d, func() { s.post(Event{Kind: EventFlush}) })
			return
		}
	}
	s.send(msg)
}

func (s *Supervisor) send(msg protocol.Message) {
	if s.transport == nil {
		return
	}
	if err := s.transport.Send(msg); err != nil {
		s.logger.Warn("failed to send to host", "type", msg.Type, "error", err)
		s.lastError = err.Error()
		s.dirty = true
		_ = s.transport.Close()
		return
	}
	s.metrics.MessageSent(string(msg.Type))
	s.logger.Debug("sent", "type", msg.Type)
}

func (s *Supervisor) stopFlush() {
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
}

func (s *Supervisor) connect(reason string) {
	if s.manual {
		s.logger.Debug("connect ignored, manual disconnect is active")
		return
	}
	if s.state != models.Disconnected {
		return
	}

	s.connID = shared.GenerateID()
	s.identity = nil
	s.hostVersion = ""
	s.versionMismatch = false
	s.connectingSince = s.clock.Now()
	s.setState(models.ConnectingHost, reason)

	t, err := s.dialer.Dial(s.ctx, s.connID, inbox{s})
	if err != nil {
		s.logger.Error("failed to start host", "error", err)
		s.connID = ""
		s.lastError = err.Error()
		s.scheduleRetry(reconnect.TransportLost)
		s.setState(models.Disconnected, "dial failed")
		return
	}
	s.transport = t
}

// dropTransport forgets the current connection; late events from it are ignored.
func (s *Supervisor) dropTransport() Transport {
	t := s.transport
	s.transport = nil
	s.connID = ""
	s.identity = nil
	s.stopFlush()
	return t
}

func (s *Supervisor) onReconnect() {
	s.logger.Info("manual reconnect", "state", s.state)
	s.manual = false
	s.backoff.Cancel()
	s.backoff.Reset()
	s.dirty = true

	switch s.state {
	case models.Fault:
		s.lastError = ""
		s.setState(models.Disconnected, "manual reconnect")
		s.connect("manual reconnect")
	case models.Disconnected:
		s.connect("manual reconnect")
	case models.HostConnected:
		s.send(protocol.ReconnectRPC())
	}
}

func (s *Supervisor) onDisconnect() {
	s.logger.Info("manual disconnect", "state", s.state)
	s.manual = true
	s.backoff.Cancel()

	if s.transport != nil && s.state == models.PresenceReady {
		s.send(protocol.ClearActivity())
	}
	if t := s.dropTransport(); t != nil {
		_ = t.Close()
	}

	s.pending = nil
	s.pendingClear = false
	s.confirmed = nil
	s.lastError = ""
	s.setState(models.Disconnected, "manual disconnect")
}

func (s *Supervisor) onMessage(connID string, msg protocol.Message) {
	if s.transport == nil || connID != s.connID {
		s.logger.Debug("dropping message from stale connection", "conn", connID, "type", msg.Type)
		return
	}
	s.metrics.MessageReceived(string(msg.Type))

	switch msg.Type {
	case protocol.TypeHostStarted:
		s.onHostStarted(msg.Version)
	case protocol.TypeRPCStatus:
		switch msg.Status {
		case protocol.RPCConnected:
			s.onSinkReady(msg.User)
		case protocol.RPCDisconnected:
			s.onSinkFailure(reconnect.SinkGeneric, models.NewSinkError(models.ErrSinkGeneric, "sink disconnected"))
		default:
			s.logger.Warn("unknown rpc status", "status", msg.Status)
		}
	case protocol.TypeRPCError:
		class := reconnect.Classify(msg.ErrorType, msg.Message)
		s.onSinkFailure(class, models.NewSinkError(sinkKind(class), msg.Message))
	case protocol.TypeActivityStatus:
		s.onActivityStatus(msg)
	case protocol.TypeHostError:
		s.onHostError(msg.Message)
	case protocol.TypeDebugLog:
		s.logger.Debug("host", "message", msg.Message)
	default:
		s.logger.Warn("unexpected message from host", "type", msg.Type)
	}
}

func (s *Supervisor) onHostStarted(version string) {
	if s.state != models.ConnectingHost {
		s.logger.Warn("host started notice outside connecting state", "state", s.state, "version", version)
		return
	}

	s.hostVersion = version
	s.versionMismatch = version == "" || (s.cfg.RequiredVersion != "" && version != s.cfg.RequiredVersion)
	if s.versionMismatch {
		s.logger.Warn("host version mismatch", "host", version, "required", s.cfg.RequiredVersion)
	}
	s.lastError = ""
	s.backoff.Reset()
	s.setState(models.HostConnected, "host started")
}

func (s *Supervisor) onSinkReady(user *models.SinkIdentity) {
	if s.state != models.HostConnected && s.state != models.PresenceReady {
		s.logger.Warn("sink ready outside host connection", "state", s.state)
		return
	}

	if user != nil {
		id := *user
		s.identity = &id
	}
	s.lastError = ""
	s.backoff.Cancel()
	s.setState(models.PresenceReady, "sink connected")

	if desired := s.reconciler.Desired(); desired != nil {
		s.pending = desired
		s.pendingClear = false
	} else {
		s.pending = nil
		s.pendingClear = true
	}
	s.deliver()
}

func (s *Supervisor) onSinkFailure(class reconnect.Class, err error) {
	s.logger.Warn("sink failure", "class", class, "error", err)
	s.lastError = err.Error()
	s.dirty = true

	switch s.state {
	case models.PresenceReady:
		s.identity = nil
		s.stopFlush()
		s.scheduleRetry(class)
		s.setState(models.HostConnected, class.String())
	case models.HostConnected:
		s.scheduleRetry(class)
	}
}

func (s *Supervisor) onActivityStatus(msg protocol.Message) {
	switch msg.Status {
	case protocol.ActivitySuccess:
		activity := msg.Activity
		if activity == nil {
			activity = s.pending
		}
		s.confirmed = activity.Clone()
		if s.pending.SameTarget(activity) {
			s.pending = nil
		}
		s.metrics.PresenceConfirmed()
		s.recordHistory(activity)
	case protocol.ActivityCleared:
		s.confirmed = nil
		s.pendingClear = false
	case protocol.ActivityNotReady:
		s.onSinkFailure(reconnect.SinkTimeout, models.NewSinkError(models.ErrActivityRejected, msg.Message))
	case protocol.ActivityError, protocol.ActivityClearFailed:
		class := reconnect.Classify(msg.ErrorType, msg.Message)
		detail := msg.Message
		if detail == "" {
			detail = msg.Status
		}
		s.onSinkFailure(class, models.NewSinkError(sinkKind(class), detail))
	default:
		s.logger.Warn("unknown activity status", "status", msg.Status)
	}
}

func (s *Supervisor) recordHistory(p *models.PresenceSnapshot) {
	if s.history == nil || p == nil {
		return
	}
	if err := s.history.Record(s.ctx, s.connID, p); err != nil {
		s.logger.Warn("failed to record presence history", "error", err)
	}
}

func (s *Supervisor) onHostError(message string) {
	if s.state != models.HostConnected && s.state != models.PresenceReady {
		s.logger.Warn("host error", "state", s.state, "message", message)
		s.lastError = message
		s.dirty = true
		return
	}

	s.logger.Error("unrecoverable host fault", "message", message)
	s.lastError = fmt.Errorf("%w: %s", models.ErrUnrecoverableHost, message).Error()
	s.backoff.Cancel()
	if t := s.dropTransport(); t != nil {
		_ = t.Close()
	}
	s.setState(models.Fault, "host error")
}

func (s *Supervisor) onFramingError(connID string, err error) {
	if connID != s.connID {
		return
	}
	s.logger.Warn("malformed message from host", "error", err)
	s.metrics.FramingError()
	s.lastError = err.Error()
	s.dirty = true
}

func (s *Supervisor) onTransportClosed(connID string, err error) {
	if s.transport == nil || connID != s.connID {
		s.logger.Debug("ignoring close of stale connection", "conn", connID)
		return
	}
	s.dropTransport()

	// the next host starts blank, so the desired presence must be delivered again
	if desired := s.reconciler.Desired(); desired != nil {
		s.pending = desired
		s.pendingClear = false
	}
	s.confirmed = nil

	if err == nil {
		err = models.ErrTransportLost
	}
	s.lastError = err.Error()
	s.scheduleRetry(reconnect.TransportLost)
	s.setState(models.Disconnected, "transport closed")
}

func (s *Supervisor) refreshAutoReconnect() bool {
	if s.prefs == nil {
		return s.autoReconnect
	}
	enabled, err := s.prefs.AutoReconnect(s.ctx)
	if err != nil {
		s.logger.Warn("failed to read auto reconnect preference", "error", err)
		return s.autoReconnect
	}
	if enabled != s.autoReconnect {
		s.autoReconnect = enabled
		s.dirty = true
	}
	return enabled
}

func (s *Supervisor) scheduleRetry(class reconnect.Class) {
	if s.manual || s.state == models.Fault {
		return
	}
	if !s.refreshAutoReconnect() {
		s.logger.Info("auto reconnect disabled, not retrying", "class", class)
		return
	}

	ticket, ok := s.backoff.Schedule(class, func(t reconnect.Ticket) {
		s.post(Event{Kind: EventRetry, Ticket: t})
	})
	if !ok {
		s.logger.Debug("retry already pending", "class", class)
		return
	}
	s.dirty = true
	s.logger.Info("retry scheduled", "class", ticket.Class, "attempt", ticket.Attempt, "delay", ticket.Delay)
	s.metrics.RetryScheduled(ticket.Class.String(), ticket.Delay)
}

func (s *Supervisor) onRetry(t reconnect.Ticket) {
	if !s.backoff.Fire(t) {
		return
	}
	s.dirty = true
	if s.manual {
		return
	}

	switch s.state {
	case models.Disconnected:
		s.connect("retry")
	case models.HostConnected:
		s.logger.Info("requesting sink reconnect", "attempt", t.Attempt)
		s.send(protocol.ReconnectRPC())
	default:
		s.logger.Debug("retry fired with nothing to do", "state", s.state)
	}
}

func (s *Supervisor) onHealthCheck() {
	s.refreshAutoReconnect()
	_, _, retrying := s.backoff.Pending()

	switch s.state {
	case models.Disconnected:
		if !s.manual && !retrying {
			s.logger.Warn("health check: disconnected with no retry pending")
			s.scheduleRetry(reconnect.TransportLost)
		}
	case models.HostConnected:
		if !retrying {
			s.logger.Warn("health check: sink not ready with no retry pending")
			s.scheduleRetry(reconnect.SinkGeneric)
		}
	case models.ConnectingHost:
		if waited := s.clock.Now().Sub(s.connectingSince); waited > s.cfg.ConnectTimeout {
			s.logger.Warn("health check: host did not start", "waited", waited)
			if t := s.dropTransport(); t != nil {
				_ = t.Close()
			}
			s.lastError = fmt.Sprintf("%v: host did not start within %s", models.ErrTransportLost, s.cfg.ConnectTimeout)
			s.scheduleRetry(reconnect.TransportLost)
			s.setState(models.Disconnected, "connect timeout")
		}
	}
}

// shutdown clears the presence, stops the host, and waits for it to exit.
func (s *Supervisor) shutdown() {
	s.logger.Info("shutting down")
	s.backoff.Cancel()

	if s.transport != nil && s.state == models.PresenceReady {
		s.send(protocol.ClearActivity())
	}
	if t := s.dropTransport(); t != nil {
		_ = t.Close()
		select {
		case <-t.Done():
		case <-time.After(s.cfg.StopGrace + time.Second):
			s.logger.Warn("host did not stop in time")
		}
	}
	s.setState(models.Disconnected, "shutdown")
	s.flushStatus()
}

func sinkKind(class reconnect.Class) error {
	switch class {
	case reconnect.SinkAuth:
		return models.ErrSinkAuthFailure
	case reconnect.SinkTimeout:
		return models.ErrSinkTimeout
	default:
		return models.ErrSinkGeneric
	}
}

type missingDialer struct{}

func (missingDialer) Dial(context.Context, string, Inbox) (Transport, error) {
	return nil, fmt.Errorf("%w: no dialer configured", models.ErrTransportLost)
}
