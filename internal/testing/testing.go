// package testing contains shared testing utilities
package testing

import (
	"errors"
	"io"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/ytrpc/internal/reconnect"
)

// FakeScheduler is a manual clock implementing [reconnect.Scheduler].
//
// Timers fire synchronously from [FakeScheduler.Advance], in due order.
type FakeScheduler struct {
	mu     sync.Mutex
	now    time.Time
	timers []*FakeTimer
}

// FakeTimer is a timer created by [FakeScheduler].
type FakeTimer struct {
	s       *FakeScheduler
	at      time.Time
	Delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func NewFakeScheduler(start time.Time) *FakeScheduler {
	return &FakeScheduler{now: start}
}

func (s *FakeScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *FakeScheduler) AfterFunc(d time.Duration, f func()) reconnect.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &FakeTimer{s: s, at: s.now.Add(d), Delay: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Advance moves the clock forward and fires every timer that becomes due.
func (s *FakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		due := s.dueLocked(target)
		if due == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		s.now = due.at
		due.fired = true
		f := due.f
		s.mu.Unlock()
		f()
	}
}

func (s *FakeScheduler) dueLocked(target time.Time) *FakeTimer {
	var live []*FakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired && !t.at.After(target) {
			live = append(live, t)
		}
	}
	if len(live) == 0 {
		return nil
	}
	sort.SliceStable(live, func(i, j int) bool { return live[i].at.Before(live[j].at) })
	return live[0]
}

// Active returns the timers that have neither fired nor been stopped.
func (s *FakeScheduler) Active() []*FakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var live []*FakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	return live
}

func (t *FakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

// Eventually polls cond until it holds or the timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
