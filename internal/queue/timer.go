package queue

import (
	"context"
	"sync"
	"time"
)

// TimerBackend keeps pending units as in-process timers. Nothing survives a restart;
// RecoverOnStartup rebuilds the timers from the repository.
type TimerBackend struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	fire   func(PublishPayload)
}

func NewTimerBackend(fire func(PublishPayload)) *TimerBackend {
	return &TimerBackend{
		timers: make(map[string]*time.Timer),
		fire:   fire,
	}
}

func (b *TimerBackend) Enqueue(_ context.Context, key string, payload PublishPayload, delay time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.timers[key]; ok {
		prev.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		b.mu.Lock()
		if b.timers[key] != t {
			// replaced or removed after this timer had already fired
			b.mu.Unlock()
			return
		}
		delete(b.timers, key)
		b.mu.Unlock()

		b.fire(payload)
	})
	b.timers[key] = t
	return nil
}

func (b *TimerBackend) Remove(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.timers[key]; ok {
		t.Stop()
		delete(b.timers, key)
	}
	return nil
}

func (b *TimerBackend) Pending(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.timers[key]
	return ok
}

func (b *TimerBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.timers)
}

func (b *TimerBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, t := range b.timers {
		t.Stop()
		delete(b.timers, key)
	}
	return nil
}
