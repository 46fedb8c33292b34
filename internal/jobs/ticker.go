package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron"
)

// Locker serializes a tick across instances. TryLock reports false when another
// instance holds the key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type tick struct {
	name    string
	every   time.Duration
	run     func(ctx context.Context) error
	running atomic.Bool
}

// Manager runs periodic ticks on a cron engine. A tick never overlaps itself: a
// firing that finds the previous run still going is skipped.
type Manager struct {
	engine *cron.Cron
	locker Locker
	log    *slog.Logger

	mu    sync.Mutex
	ticks map[string]*tick
}

// NewManager accepts a nil locker for single instance deployments.
func NewManager(locker Locker, log *slog.Logger) *Manager {
	return &Manager{
		engine: cron.New(),
		locker: locker,
		log:    log.With("component", "ticker"),
		ticks:  make(map[string]*tick),
	}
}

func (m *Manager) Register(name string, every time.Duration, run func(ctx context.Context) error) error {
	if every <= 0 {
		return fmt.Errorf("tick %s: interval must be positive, got %s", name, every)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.ticks[name]; exists {
		return fmt.Errorf("tick %s already registered", name)
	}

	t := &tick{name: name, every: every, run: run}
	if err := m.engine.AddFunc("@every "+every.String(), func() { m.fire(t) }); err != nil {
		return fmt.Errorf("scheduling tick %s: %w", name, err)
	}
	m.ticks[name] = t
	return nil
}

// RunNow fires a registered tick outside its cadence and reports whether it ran.
func (m *Manager) RunNow(name string) bool {
	m.mu.Lock()
	t, ok := m.ticks[name]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return m.fire(t)
}

func (m *Manager) fire(t *tick) bool {
	if !t.running.CompareAndSwap(false, true) {
		m.log.Warn("previous run still in progress, skipping", "tick", t.name)
		return false
	}
	defer t.running.Store(false)

	runID := uuid.NewString()
	log := m.log.With("tick", t.name, "run_id", runID)

	// A run may not outlive its own interval.
	ctx, cancel := context.WithTimeout(context.Background(), t.every)
	defer cancel()

	if m.locker != nil {
		release, ok, err := m.locker.TryLock(ctx, "postflow:tick:"+t.name, t.every)
		if err != nil {
			log.Error("acquiring tick lock", "error", err)
			return false
		}
		if !ok {
			log.Debug("tick held by another instance, skipping")
			return false
		}
		defer release()
	}

	start := time.Now()
	if err := t.run(ctx); err != nil {
		log.Error("tick failed", "error", err, "duration", time.Since(start))
		return true
	}
	log.Info("tick finished", "duration", time.Since(start))
	return true
}

func (m *Manager) Start() {
	m.log.Info("starting ticks", "count", len(m.ticks))
	m.engine.Start()
}

func (m *Manager) Stop() {
	m.log.Info("stopping ticks")
	m.engine.Stop()
}
