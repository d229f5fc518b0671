package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/feedmux/feedgate/internal/broadcast"
	"github.com/feedmux/feedgate/internal/model"
	"github.com/feedmux/feedgate/internal/snapcache"
	"github.com/feedmux/feedgate/internal/upstream"
)

// TenantLookup gates every subscribe and poll cycle.
type TenantLookup interface {
	GetTenant(id string) (model.Tenant, bool)
}

// UpdateSink receives every accepted update in addition to the key's
// listeners. Used by the history recorder. Implementations must not block.
type UpdateSink interface {
	HandleUpdate(update model.Update)
}

// UpdateSinkFunc is a function adapter for UpdateSink.
type UpdateSinkFunc func(model.Update)

func (f UpdateSinkFunc) HandleUpdate(u model.Update) { f(u) }

// Subscription errors surfaced synchronously to callers of Subscribe.
var (
	ErrNotStarted      = errors.New("subscription manager not started")
	ErrInvalidKey      = errors.New("invalid subscription key")
	ErrUnknownTenant   = errors.New("unknown tenant")
	ErrTenantSuspended = errors.New("tenant suspended")
)

// Config holds polling cadences and cache TTLs per resource kind.
type Config struct {
	TickCadence      time.Duration // Poll interval for ticks (default: 100ms)
	OrderBookCadence time.Duration // Poll interval for order books (default: 250ms)
	PositionCadence  time.Duration // Poll interval for positions (default: 100ms)

	// FailureBackoff multiplies the cadence after a failed poll; the next
	// success resets to the normal cadence (default: 10).
	FailureBackoff int

	// TickTTL bounds reuse of a cached tick across concurrent fetches for
	// the same key (default: 1s). Book and position fetches use TTL 0:
	// each of those keys is owned by exactly one loop.
	TickTTL time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TickCadence:      100 * time.Millisecond,
		OrderBookCadence: 250 * time.Millisecond,
		PositionCadence:  100 * time.Millisecond,
		FailureBackoff:   10,
		TickTTL:          time.Second,
	}
}

func (c Config) cadenceFor(kind model.ResourceKind) time.Duration {
	switch kind {
	case model.KindOrderBook:
		return c.OrderBookCadence
	case model.KindPosition:
		return c.PositionCadence
	default:
		return c.TickCadence
	}
}

func (c Config) ttlFor(kind model.ResourceKind) time.Duration {
	if kind == model.KindTick {
		return c.TickTTL
	}
	return 0
}

// keyEntry is the per-key registry slot: state machine, listener refcount,
// current loop handle, and the latest accepted update.
type keyEntry struct {
	key       model.Key
	state     keyState
	listeners int

	cancel context.CancelFunc
	done   chan struct{}

	last *model.Update
}

// Manager implements the subscription registry and loop lifecycle.
type Manager struct {
	cfg     Config
	adapter upstream.Adapter
	tenants TenantLookup
	cache   *snapcache.Cache
	bcast   *broadcast.Broadcaster
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[model.Key]*keyEntry
	subs    map[uuid.UUID]model.Key

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time
	sink      UpdateSink

	statsMu   sync.Mutex
	delivered int64
	cycles    int64
	failures  int64
}

// NewManager creates a Manager. The broadcaster is owned by the caller and
// shared with the downstream hub.
func NewManager(
	cfg Config,
	adapter upstream.Adapter,
	tenants TenantLookup,
	cache *snapcache.Cache,
	bcast *broadcast.Broadcaster,
	logger *slog.Logger,
) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:     cfg,
		adapter: adapter,
		tenants: tenants,
		cache:   cache,
		bcast:   bcast,
		logger:  logger,
		entries: make(map[model.Key]*keyEntry),
		subs:    make(map[uuid.UUID]model.Key),
	}
}

// SetUpdateSink attaches a sink for accepted updates. Must be called before
// Start.
func (m *Manager) SetUpdateSink(sink UpdateSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
}

// Start makes the manager accept subscriptions.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx != nil {
		return errors.New("already started")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.startedAt = time.Now()

	m.logger.Info("subscription manager started",
		"tick_cadence", m.cfg.TickCadence,
		"orderbook_cadence", m.cfg.OrderBookCadence,
		"position_cadence", m.cfg.PositionCadence,
	)
	return nil
}

// Stop cancels every polling loop and waits for them to wind down.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("subscription manager stopped")
		return nil
	case <-ctx.Done():
		m.logger.Warn("subscription manager stop timed out")
		return ctx.Err()
	}
}

// Subscribe registers a listener under key. The first listener for a key
// starts its polling loop; later ones attach to the running loop. The
// tenant named by the key must exist and be active. Safe for concurrent
// calls on the same key: the listener count and the start/stop decision are
// taken in one critical section.
func (m *Manager) Subscribe(key model.Key, listener broadcast.Listener) (uuid.UUID, error) {
	if !key.Valid() {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}

	t, ok := m.tenants.GetTenant(key.Tenant)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrUnknownTenant, key.Tenant)
	}
	if !t.Active() {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrTenantSuspended, key.Tenant)
	}

	id := uuid.New()

	m.mu.Lock()
	if m.ctx == nil {
		m.mu.Unlock()
		return uuid.Nil, ErrNotStarted
	}
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		return uuid.Nil, ErrNotStarted
	}

	e, exists := m.entries[key]
	switch {
	case !exists:
		e = &keyEntry{key: key, state: stateStarting, listeners: 1}
		m.entries[key] = e
		m.startLoopLocked(e, nil)

	case e.state == stateStopping:
		// A listener attached while the old loop is winding down: cancel
		// the teardown by replacing the loop. The fresh loop waits for the
		// old one's done channel before polling.
		old := e.done
		e.state = stateStarting
		e.listeners++
		m.startLoopLocked(e, old)

	default:
		e.listeners++
	}

	m.subs[id] = key
	// Registered before the lock drops so a racing Unsubscribe always finds
	// the broadcaster registration.
	m.bcast.Add(id, key, listener)
	m.mu.Unlock()

	m.logger.Debug("subscribed",
		"id", id,
		"key", key.String(),
	)
	return id, nil
}

// Unsubscribe removes a listener. When the key's listener count reaches
// zero the loop is signalled to stop and its cache entry evicted. Unknown
// ids are a no-op returning false.
func (m *Manager) Unsubscribe(id uuid.UUID) bool {
	m.mu.Lock()
	key, ok := m.subs[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.subs, id)

	e := m.entries[key]
	e.listeners--
	if e.listeners == 0 && e.state != stateStopping {
		e.state = stateStopping
		e.cancel()
		m.cache.Evict(key)
	}
	m.mu.Unlock()

	m.bcast.Remove(id)

	m.logger.Debug("unsubscribed",
		"id", id,
		"key", key.String(),
	)
	return true
}

// IsActive reports whether a polling loop currently serves key.
func (m *Manager) IsActive(key model.Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return ok && e.state != stateStopping
}

// ListActiveKeys returns the keys with live loops for one tenant, sorted.
func (m *Manager) ListActiveKeys(tenant string) []model.Key {
	m.mu.Lock()
	keys := make([]model.Key, 0)
	for k, e := range m.entries {
		if k.Tenant == tenant && e.state != stateStopping {
			keys = append(keys, k)
		}
	}
	m.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		return keys[i].Selector < keys[j].Selector
	})
	return keys
}

// GetSnapshot returns the latest accepted update for key, if any poll has
// succeeded since the loop started.
func (m *Manager) GetSnapshot(key model.Key) (model.Update, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.last == nil {
		return model.Update{}, false
	}
	return *e.last, true
}

// ServiceStats is the observability surface of the core.
type ServiceStats struct {
	ActiveSubscriptions int                        `json:"active_subscriptions"`
	ActiveKeys          int                        `json:"active_keys"`
	KeysByKind          map[model.ResourceKind]int `json:"keys_by_kind"`
	UpdatesDelivered    int64                      `json:"updates_delivered"`
	PollCycles          int64                      `json:"poll_cycles"`
	PollFailures        int64                      `json:"poll_failures"`
	UptimeSeconds       int64                      `json:"uptime_seconds"`
	Cache               snapcache.Stats            `json:"cache"`
	Broadcast           broadcast.Stats            `json:"broadcast"`
}

// GetServiceStats returns counters for the whole core.
func (m *Manager) GetServiceStats() ServiceStats {
	m.mu.Lock()
	stats := ServiceStats{
		ActiveSubscriptions: len(m.subs),
		KeysByKind:          make(map[model.ResourceKind]int),
	}
	for k, e := range m.entries {
		if e.state != stateStopping {
			stats.ActiveKeys++
			stats.KeysByKind[k.Kind]++
		}
	}
	if !m.startedAt.IsZero() {
		stats.UptimeSeconds = int64(time.Since(m.startedAt).Seconds())
	}
	m.mu.Unlock()

	m.statsMu.Lock()
	stats.UpdatesDelivered = m.delivered
	stats.PollCycles = m.cycles
	stats.PollFailures = m.failures
	m.statsMu.Unlock()

	stats.Cache = m.cache.Stats()
	stats.Broadcast = m.bcast.Stats()
	return stats
}

// startLoopLocked installs a fresh loop handle on e and launches its
// goroutine. Caller holds m.mu. waitFor, when non-nil, is the previous
// loop's done channel; the new loop blocks on it before its first poll.
func (m *Manager) startLoopLocked(e *keyEntry, waitFor chan struct{}) {
	ctx, cancel := context.WithCancel(m.ctx)
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done

	l := &pollLoop{
		m:       m,
		key:     e.key,
		cadence: m.cfg.cadenceFor(e.key.Kind),
		ttl:     m.cfg.ttlFor(e.key.Kind),
		backoff: m.cfg.FailureBackoff,
		done:    done,
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(done)
		if waitFor != nil {
			select {
			case <-waitFor:
			case <-ctx.Done():
				m.finishLoop(e, done)
				return
			}
		}
		l.run(ctx)
		m.finishLoop(e, done)
	}()
}

// finishLoop removes the key's registry slot once its loop has wound down,
// unless a newer loop has already replaced it.
func (m *Manager) finishLoop(e *keyEntry, done chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.entries[e.key]; ok && cur == e && e.done == done && e.listeners == 0 {
		delete(m.entries, e.key)
	}
}

// markPolling promotes Starting→Polling after the first successful poll.
func (m *Manager) markPolling(key model.Key, done chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && e.done == done && e.state == stateStarting {
		e.state = statePolling
	}
}

// storeUpdate records the latest accepted update for key, bumps the
// delivery counter, and feeds the sink.
func (m *Manager) storeUpdate(key model.Key, u model.Update) {
	m.mu.Lock()
	if e, ok := m.entries[key]; ok {
		e.last = &u
	}
	sink := m.sink
	m.mu.Unlock()

	m.statsMu.Lock()
	m.delivered++
	m.statsMu.Unlock()

	if sink != nil {
		sink.HandleUpdate(u)
	}
}

func (m *Manager) countCycle(failed bool) {
	m.statsMu.Lock()
	m.cycles++
	if failed {
		m.failures++
	}
	m.statsMu.Unlock()
}
