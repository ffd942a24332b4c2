package status

import (
	"sync"

	"github.com/desertthunder/ytrpc/internal/models"
)

// Publisher is a thread-safe store of the current status with best-effort subscribers.
type Publisher struct {
	mu      sync.RWMutex
	current models.StatusSnapshot
	subs    map[int]chan models.StatusSnapshot
	nextID  int
	dropped int
}

// NewPublisher creates a Publisher holding initial.
func NewPublisher(initial models.StatusSnapshot) *Publisher {
	return &Publisher{
		current: initial.Clone(),
		subs:    make(map[int]chan models.StatusSnapshot),
	}
}

// Current returns a copy of the latest snapshot.
func (p *Publisher) Current() models.StatusSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current.Clone()
}

// Publish replaces the snapshot and offers it to every subscriber without blocking.
func (p *Publisher) Publish(s models.StatusSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = s.Clone()
	for _, ch := range p.subs {
		select {
		case ch <- p.current.Clone():
		default:
			p.dropped++
		}
	}
}

// Subscribe registers an observer. The current snapshot is delivered first.
//
// The returned cancel func unregisters and closes the channel; it is safe to call more than once.
func (p *Publisher) Subscribe(buffer int) (<-chan models.StatusSnapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan models.StatusSnapshot, buffer)

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	ch <- p.current.Clone()
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers returns the number of registered observers.
func (p *Publisher) Subscribers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (p *Publisher) Dropped() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dropped
}
