package broadcast

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/feedmux/feedgate/internal/model"
)

// Listener receives accepted updates for a key. Deliver runs on the
// listener's own drain goroutine; implementations may block without
// affecting other listeners.
type Listener interface {
	Deliver(update model.Update)
}

// ListenerFunc is a function adapter for Listener.
type ListenerFunc func(model.Update)

func (f ListenerFunc) Deliver(u model.Update) { f(u) }

// DefaultQueueSize is the per-listener delivery queue capacity.
const DefaultQueueSize = 64

// registration is one listener attached to a key. The mutex orders sends
// against close: Publish snapshots registrations outside the broadcaster
// lock, so a concurrent Remove may close the queue between the snapshot
// and the send.
type registration struct {
	key      model.Key
	listener Listener

	mu     sync.Mutex
	queue  chan model.Update
	closed bool
}

// send enqueues without blocking. A closed registration accepts nothing; a
// full queue drops the update for this listener only.
func (r *registration) send(u model.Update) (delivered, dropped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false, false
	}
	select {
	case r.queue <- u:
		return true, false
	default:
		return false, true
	}
}

// close stops further sends and lets the drain goroutine wind down once the
// queue is empty. Idempotent.
func (r *registration) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
}

// Broadcaster delivers updates to all listeners registered for a key.
// Delivery is best-effort, latest-value-wins: when a listener's queue is
// full its oldest pending update is not waited for, the new one is dropped
// and counted.
type Broadcaster struct {
	logger    *slog.Logger
	queueSize int

	mu     sync.RWMutex
	byID   map[uuid.UUID]*registration
	byKey  map[model.Key]map[uuid.UUID]*registration
	closed bool
	wg     sync.WaitGroup

	statsMu   sync.Mutex
	published int64
	delivered int64
	dropped   int64
	panics    int64
}

// New creates a Broadcaster.
func New(queueSize int, logger *slog.Logger) *Broadcaster {
	if queueSize < 1 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		logger:    logger,
		queueSize: queueSize,
		byID:      make(map[uuid.UUID]*registration),
		byKey:     make(map[model.Key]map[uuid.UUID]*registration),
	}
}

// Add registers a listener under key with the given id and starts its drain
// goroutine. Returns false if the broadcaster is closed.
func (b *Broadcaster) Add(id uuid.UUID, key model.Key, listener Listener) bool {
	reg := &registration{
		key:      key,
		queue:    make(chan model.Update, b.queueSize),
		listener: listener,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.byID[id] = reg
	if b.byKey[key] == nil {
		b.byKey[key] = make(map[uuid.UUID]*registration)
	}
	b.byKey[key][id] = reg
	b.wg.Add(1)
	b.mu.Unlock()

	go b.drain(reg)
	return true
}

// Remove detaches a listener and stops its drain goroutine once the queue is
// emptied. Returns false for unknown ids.
func (b *Broadcaster) Remove(id uuid.UUID) bool {
	b.mu.Lock()
	reg, ok := b.byID[id]
	if !ok {
		b.mu.Unlock()
		return false
	}
	delete(b.byID, id)
	delete(b.byKey[reg.key], id)
	if len(b.byKey[reg.key]) == 0 {
		delete(b.byKey, reg.key)
	}
	b.mu.Unlock()

	reg.close()
	return true
}

// Publish enqueues the update for every listener registered for key at call
// time. The listener set is snapshotted under the lock, so a listener
// removed mid-iteration is not delivered to and one added mid-iteration is
// not missed on the next publish.
func (b *Broadcaster) Publish(key model.Key, update model.Update) {
	b.mu.RLock()
	regs := make([]*registration, 0, len(b.byKey[key]))
	for _, reg := range b.byKey[key] {
		regs = append(regs, reg)
	}
	b.mu.RUnlock()

	var delivered, dropped int64
	for _, reg := range regs {
		d, full := reg.send(update)
		if d {
			delivered++
		}
		if full {
			dropped++
		}
	}

	b.statsMu.Lock()
	b.published++
	b.delivered += delivered
	b.dropped += dropped
	b.statsMu.Unlock()

	if dropped > 0 {
		b.logger.Debug("dropped updates for slow listeners",
			"key", key.String(),
			"dropped", dropped,
		)
	}
}

// Close detaches all listeners and waits for their queues to drain.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	regs := make([]*registration, 0, len(b.byID))
	for _, reg := range b.byID {
		regs = append(regs, reg)
	}
	b.byID = make(map[uuid.UUID]*registration)
	b.byKey = make(map[model.Key]map[uuid.UUID]*registration)
	b.mu.Unlock()

	for _, reg := range regs {
		reg.close()
	}
	b.wg.Wait()
}

// Stats contains delivery counters.
type Stats struct {
	Listeners int   `json:"listeners"`
	Published int64 `json:"published"`
	Delivered int64 `json:"delivered"`
	Dropped   int64 `json:"dropped"`
	Panics    int64 `json:"panics"`
}

// Stats returns a point-in-time view of delivery counters.
func (b *Broadcaster) Stats() Stats {
	b.mu.RLock()
	listeners := len(b.byID)
	b.mu.RUnlock()

	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return Stats{
		Listeners: listeners,
		Published: b.published,
		Delivered: b.delivered,
		Dropped:   b.dropped,
		Panics:    b.panics,
	}
}

// drain pumps a listener's queue until it is closed.
func (b *Broadcaster) drain(reg *registration) {
	defer b.wg.Done()
	for update := range reg.queue {
		b.deliver(reg, update)
	}
}

// deliver invokes the listener, isolating panics so a failing listener
// cannot kill its drain goroutine.
func (b *Broadcaster) deliver(reg *registration, update model.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.statsMu.Lock()
			b.panics++
			b.statsMu.Unlock()
			b.logger.Error("listener panicked",
				"key", reg.key.String(),
				"panic", r,
			)
		}
	}()
	reg.listener.Deliver(update)
}
