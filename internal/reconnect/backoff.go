package reconnect

import (
	"time"
)

// Timer is a pending callback that can be stopped.
type Timer interface {
	Stop() bool
}

// Scheduler creates timers. [RealScheduler] wraps [time.AfterFunc]; tests substitute a fake clock.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
	Now() time.Time
}

type realScheduler struct{}

// RealScheduler returns the wall-clock scheduler.
func RealScheduler() Scheduler {
	return realScheduler{}
}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (realScheduler) Now() time.Time {
	return time.Now()
}

// Ticket identifies one scheduled retry. It is handed back to [Backoff.Fire] when the timer fires.
type Ticket struct {
	Class   Class
	Attempt int
	Delay   time.Duration
	gen     uint64
}

type pendingRetry struct {
	ticket Ticket
	at     time.Time
	timer  Timer
}

// Backoff owns the attempt counter and at most one outstanding retry timer.
//
// It is not safe for concurrent use. Timer callbacks run on the scheduler's goroutine and should only
// hand the ticket to the owner, which then calls [Backoff.Fire] from its own goroutine.
type Backoff struct {
	policies  Policies
	scheduler Scheduler
	attempts  int
	gen       uint64
	pending   *pendingRetry
}

// NewBackoff creates a Backoff. Nil arguments select the defaults.
func NewBackoff(policies Policies, scheduler Scheduler) *Backoff {
	if policies == nil {
		policies = DefaultPolicies()
	}
	if scheduler == nil {
		scheduler = RealScheduler()
	}
	return &Backoff{policies: policies, scheduler: scheduler}
}

// Schedule arms a retry for class and returns its ticket.
//
// While a retry is pending Schedule is a no-op and returns false.
func (b *Backoff) Schedule(class Class, fire func(Ticket)) (Ticket, bool) {
	if b.pending != nil {
		return b.pending.ticket, false
	}

	b.attempts++
	b.gen++
	ticket := Ticket{
		Class:   class,
		Attempt: b.attempts,
		Delay:   b.policies.Delay(class, b.attempts),
		gen:     b.gen,
	}
	b.pending = &pendingRetry{
		ticket: ticket,
		at:     b.scheduler.Now().Add(ticket.Delay),
	}
	b.pending.timer = b.scheduler.AfterFunc(ticket.Delay, func() { fire(ticket) })
	return ticket, true
}

// Fire consumes a fired ticket. It returns false for tickets that were cancelled or superseded.
func (b *Backoff) Fire(t Ticket) bool {
	if b.pending == nil || b.pending.ticket.gen != t.gen {
		return false
	}
	b.pending = nil
	return true
}

// Cancel stops the pending retry, if any.
func (b *Backoff) Cancel() {
	if b.pending == nil {
		return
	}
	b.pending.timer.Stop()
	b.pending = nil
}

// Reset zeroes the attempt counter. A pending timer is left alone.
func (b *Backoff) Reset() {
	b.attempts = 0
}

// Attempts returns the number of retries scheduled since the last Reset.
func (b *Backoff) Attempts() int {
	return b.attempts
}

// Pending returns the outstanding ticket and its due time.
func (b *Backoff) Pending() (Ticket, time.Time, bool) {
	if b.pending == nil {
		return Ticket{}, time.Time{}, false
	}
	return b.pending.ticket, b.pending.at, true
}
