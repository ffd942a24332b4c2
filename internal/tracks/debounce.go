package tracks

import (
	"context"
	"time"

	"github.com/desertthunder/ytrpc/internal/models"
)

// DefaultQuietWindow is the coalescing window for source events.
const DefaultQuietWindow = 150 * time.Millisecond

// Submitter accepts reconciled source events. The supervisor implements it.
type Submitter interface {
	SubmitTrack(ev models.SourceEvent)
}

// Debouncer forwards the newest event once no new event has arrived for the quiet window.
type Debouncer struct {
	out    Submitter
	window time.Duration
	in     chan models.SourceEvent
}

func NewDebouncer(out Submitter, window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultQuietWindow
	}
	return &Debouncer{out: out, window: window, in: make(chan models.SourceEvent, 64)}
}

// SubmitTrack queues ev. It never blocks the caller for long; when the queue is full the oldest
// queued event is dropped since only the newest matters.
func (d *Debouncer) SubmitTrack(ev models.SourceEvent) {
	for {
		select {
		case d.in <- ev:
			return
		default:
		}
		select {
		case <-d.in:
		default:
		}
	}
}

// Run coalesces events until ctx is done. A pending event is flushed on exit.
func (d *Debouncer) Run(ctx context.Context) error {
	quiet := time.NewTimer(time.Hour)
	if !quiet.Stop() {
		<-quiet.C
	}

	var (
		latest  models.SourceEvent
		pending bool
		quietC  <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			if pending {
				d.out.SubmitTrack(latest)
			}
			return nil
		case ev := <-d.in:
			latest = ev
			pending = true
			quiet.Reset(d.window)
			quietC = quiet.C
		case <-quietC:
			quietC = nil
			if pending {
				d.out.SubmitTrack(latest)
				pending = false
			}
		}
	}
}
