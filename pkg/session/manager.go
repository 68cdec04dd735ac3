// Package session owns the in-memory session cache in front of the store.
// Lookups hit the cache first and fall back to rehydrating persisted rows;
// writes go through to SQLite so a process restart only loses liveness
// bookkeeping, never session state.
package session

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trapline-sec/trapline/pkg/database"
	"github.com/trapline-sec/trapline/pkg/events"
	"github.com/trapline-sec/trapline/pkg/models"
)

// evictionInterval is how often the idle sweep runs. The sweep wait is
// cancellable so Stop never blocks behind it.
const evictionInterval = 60 * time.Second

// Manager caches live sessions and evicts idle ones. The cache map and its
// last-touch bookkeeping are guarded by one mutex and always mutated
// together; store I/O happens outside the lock.
type Manager struct {
	store *database.Store
	bus   *events.Bus
	ttl   time.Duration
	log   *slog.Logger

	mu        sync.Mutex
	cache     map[string]*models.SessionContext
	lastTouch map[string]time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a Manager. Call Start to run the eviction worker.
func NewManager(store *database.Store, bus *events.Bus, ttl time.Duration) *Manager {
	return &Manager{
		store:     store,
		bus:       bus,
		ttl:       ttl,
		log:       slog.Default().With("component", "session_manager"),
		cache:     make(map[string]*models.SessionContext),
		lastTouch: make(map[string]time.Time),
	}
}

// newSessionID returns 32 lowercase hex characters.
func newSessionID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// Create makes a new session, persists it, caches it, and announces it on
// the bus.
func (m *Manager) Create(ctx context.Context, clientInfo map[string]any) (*models.SessionContext, error) {
	id := newSessionID()
	now := time.Now().UTC()
	sess := models.NewSessionContext(id, clientInfo, now)

	if err := m.store.CreateSession(ctx, sess.Snapshot()); err != nil {
		return nil, fmt.Errorf("failed to persist new session: %w", err)
	}

	m.mu.Lock()
	m.cache[id] = sess
	m.lastTouch[id] = now
	m.mu.Unlock()

	m.bus.Publish(events.EventTypeSessionNew, events.SessionNewPayload(id, sess.ClientInfo(), now))
	m.log.Info("Session created", "session_id", id)

	return sess, nil
}

// Get returns the cached session or rehydrates it from the store. Unknown
// IDs return database.ErrNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*models.SessionContext, error) {
	now := time.Now().UTC()

	m.mu.Lock()
	if sess, ok := m.cache[id]; ok {
		m.lastTouch[id] = now
		m.mu.Unlock()
		return sess, nil
	}
	m.mu.Unlock()

	snap, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	sess := models.Restore(snap)

	// Another request may have rehydrated the same session concurrently;
	// the first insert wins so every caller shares one instance.
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.cache[id]; ok {
		m.lastTouch[id] = now
		return existing, nil
	}
	m.cache[id] = sess
	m.lastTouch[id] = now
	return sess, nil
}

// Touch records one interaction on the session and refreshes its eviction
// clock.
func (m *Manager) Touch(sess *models.SessionContext) {
	now := time.Now().UTC()
	sess.Touch(now)

	m.mu.Lock()
	if _, ok := m.cache[sess.ID()]; ok {
		m.lastTouch[sess.ID()] = now
	}
	m.mu.Unlock()
}

// Persist writes the session's current state through to the store.
func (m *Manager) Persist(ctx context.Context, sess *models.SessionContext) error {
	snap := sess.Snapshot()
	return m.store.UpdateSession(ctx, snap.ID, map[string]any{
		"escalation_level":       snap.EscalationLevel,
		"discovered_hosts":       snap.Hosts,
		"discovered_ports":       snap.Ports,
		"discovered_files":       snap.Files,
		"discovered_credentials": snap.Credentials,
		"metadata":               snap.Metadata,
	})
}

// CachedCount returns how many sessions are currently cached.
func (m *Manager) CachedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cache)
}

// Start launches the eviction worker. Stop cancels it and waits for exit.
func (m *Manager) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.evictionLoop(loopCtx)
	m.log.Info("Session eviction worker started", "ttl", m.ttl, "interval", evictionInterval)
}

// Stop terminates the eviction worker and waits for it to finish.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
	m.log.Info("Session eviction worker stopped")
}

func (m *Manager) evictionLoop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(evictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := m.evictExpired(time.Now().UTC()); evicted > 0 {
				m.log.Info("Evicted idle sessions", "count", evicted)
			}
		}
	}
}

// evictExpired drops cache entries idle past the TTL. Both maps are updated
// under the same lock so they never disagree. Evicted sessions stay in the
// store; the next Get rehydrates them.
func (m *Manager) evictExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, touched := range m.lastTouch {
		if now.Sub(touched) > m.ttl {
			delete(m.cache, id)
			delete(m.lastTouch, id)
			evicted++
		}
	}
	return evicted
}
