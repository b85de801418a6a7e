// Package eventbus implements the typed fan-out dispatcher (C4) described
// in spec §4.4: emit invokes synchronous handlers inline, dispatches
// asynchronous handlers on a bounded worker pool so emit never blocks,
// and taps every emit to update counters and a bounded recent-events ring
// consumed by the dashboard collaborator.
//
// Subscriber-set mutation safety is grounded on pkg/wss's routeMessage
// (subsMu.RLock() while iterating, drop-on-full for buffered delivery)
// and pkg/trader/streaming.Hub's register/unregister channel pattern.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EventType is one of the fixed event kinds in the catalog (spec §4.4).
type EventType string

const (
	ForecastTrigger       EventType = "FORECAST_TRIGGER"
	FetchModeEnter        EventType = "FETCH_MODE_ENTER"
	FetchModeExit         EventType = "FETCH_MODE_EXIT"
	ProviderFetch         EventType = "PROVIDER_FETCH"
	ForecastChanged       EventType = "FORECAST_CHANGED"
	FileDetected          EventType = "FILE_DETECTED"
	FileConfirmed         EventType = "FILE_CONFIRMED"
	DetectionWindowStart  EventType = "DETECTION_WINDOW_START"
	APIDataReceived       EventType = "API_DATA_RECEIVED"
	ForecastChange        EventType = "FORECAST_CHANGE"
	ForecastUpdated       EventType = "FORECAST_UPDATED"
	ForecastBatchUpdated  EventType = "FORECAST_BATCH_UPDATED"
	RateLimitHit          EventType = "RATE_LIMIT_HIT"
	EarlyTriggerMode      EventType = "EARLY_TRIGGER_MODE"
)

// Event is one payload dispatched on the bus.
type Event struct {
	Type      EventType
	Payload   any
	Timestamp time.Time
}

// Handler processes one event. A handler's error is logged; it never
// stops other handlers from running.
type Handler func(Event) error

// Unsubscribe removes a previously registered handler.
type Unsubscribe func()

const recentEventsRingSize = 100

type subscription struct {
	id      uint64
	handler Handler
	async   bool
}

// Bus is the process-wide singleton EventBus. Mutating operations
// (Subscribe/Unsubscribe) are serialized by an RWMutex; Emit holds only a
// read lock while copying the subscriber slice, tolerating concurrent
// mutation (copy-on-iterate).
type Bus struct {
	logger *zap.Logger

	mu     sync.RWMutex
	subs   map[EventType][]*subscription
	nextID uint64

	asyncCh chan asyncJob
	done    chan struct{}
	wg      sync.WaitGroup

	tapMu      sync.Mutex
	counters   map[EventType]uint64
	recent     [recentEventsRingSize]Event
	recentHead int
	recentLen  int
}

type asyncJob struct {
	handler Handler
	event   Event
}

// New constructs a Bus with the given number of async dispatch workers.
// workers <= 0 defaults to runtime.NumCPU()-equivalent of 4.
func New(logger *zap.Logger, workers int) *Bus {
	if workers <= 0 {
		workers = 4
	}
	b := &Bus{
		logger:   logger,
		subs:     make(map[EventType][]*subscription),
		asyncCh:  make(chan asyncJob, 1024),
		done:     make(chan struct{}),
		counters: make(map[EventType]uint64),
	}
	for i := 0; i < workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			for {
				select {
				case job := <-b.asyncCh:
					b.invoke(job.handler, job.event)
				default:
					return
				}
			}
		case job := <-b.asyncCh:
			b.invoke(job.handler, job.event)
		}
	}
}

// Close stops the async worker pool. In-flight synchronous emits are
// unaffected; queued async jobs already accepted are still drained.
func (b *Bus) Close() {
	close(b.done)
	b.wg.Wait()
}

// Subscribe registers handler for eventType, invoked synchronously and
// inline with Emit.
func (b *Bus) Subscribe(eventType EventType, handler Handler) Unsubscribe {
	return b.subscribe(eventType, handler, false)
}

// SubscribeAsync registers handler for eventType, dispatched on the
// worker pool so Emit never blocks on it.
func (b *Bus) SubscribeAsync(eventType EventType, handler Handler) Unsubscribe {
	return b.subscribe(eventType, handler, true)
}

func (b *Bus) subscribe(eventType EventType, handler Handler, async bool) Unsubscribe {
	id := atomic.AddUint64(&b.nextID, 1)
	sub := &subscription{id: id, handler: handler, async: async}

	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[eventType]
		for i, s := range list {
			if s.id == id {
				b.subs[eventType] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Emit dispatches event to every subscriber of event.Type. Synchronous
// handlers run inline before Emit returns; asynchronous handlers are
// hand off to the worker pool without blocking. The tap (counters +
// recent-events ring) always runs inline, regardless of handler type.
func (b *Bus) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	b.tap(event)

	b.mu.RLock()
	subs := b.subs[event.Type]
	// Copy so later Subscribe/Unsubscribe calls (possibly triggered by a
	// handler we're about to invoke) never race the slice we iterate.
	snapshot := make([]*subscription, len(subs))
	copy(snapshot, subs)
	b.mu.RUnlock()

	for _, sub := range snapshot {
		if sub.async {
			select {
			case b.asyncCh <- asyncJob{handler: sub.handler, event: event}:
			default:
				if b.logger != nil {
					b.logger.Warn("eventbus: async dispatch queue full, dropping handler invocation",
						zap.String("event_type", string(event.Type)))
				}
			}
			continue
		}
		b.invoke(sub.handler, event)
	}
}

func (b *Bus) invoke(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Error("eventbus: handler panicked",
				zap.String("event_type", string(event.Type)),
				zap.Any("recover", r))
		}
	}()
	if err := handler(event); err != nil && b.logger != nil {
		b.logger.Error("eventbus: handler returned error",
			zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func (b *Bus) tap(event Event) {
	b.tapMu.Lock()
	defer b.tapMu.Unlock()
	b.counters[event.Type]++
	b.recent[b.recentHead] = event
	b.recentHead = (b.recentHead + 1) % recentEventsRingSize
	if b.recentLen < recentEventsRingSize {
		b.recentLen++
	}
}

// Counters returns a shallow copy of the per-event-type emit counts.
func (b *Bus) Counters() map[EventType]uint64 {
	b.tapMu.Lock()
	defer b.tapMu.Unlock()
	out := make(map[EventType]uint64, len(b.counters))
	for k, v := range b.counters {
		out[k] = v
	}
	return out
}

// RecentEvents returns up to the last 100 emitted events, oldest first.
func (b *Bus) RecentEvents() []Event {
	b.tapMu.Lock()
	defer b.tapMu.Unlock()
	out := make([]Event, b.recentLen)
	start := (b.recentHead - b.recentLen + recentEventsRingSize) % recentEventsRingSize
	for i := 0; i < b.recentLen; i++ {
		out[i] = b.recent[(start+i)%recentEventsRingSize]
	}
	return out
}
