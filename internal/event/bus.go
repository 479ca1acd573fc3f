// Package event implements the in-process Event Bus: a bounded queue, a
// fixed worker pool, wildcard and filtered subscriptions, and a synchronous
// fast path.
package event

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sssolid/qorzen-sub001/pkg/plugin"
)

// busState tracks the bus's own Uninitialized -> Initialized -> Running ->
// Draining -> Stopped state machine.
type busState int32

const (
	stateUninitialized busState = iota
	stateInitialized
	stateRunning
	stateDraining
	stateStopped
)

// mainThreadEventTypes are dispatched on the main-thread executor whenever
// one is configured, regardless of the "ui/"/"log/" prefix rule.
var mainThreadEventTypes = map[string]bool{
	"monitoring/alert":  true,
	"plugin/error":      true,
	"plugin/loaded":     true,
	"plugin/unloaded":   true,
}

func requiresMainThread(eventType string) bool {
	if strings.HasPrefix(eventType, "ui/") || strings.HasPrefix(eventType, "log/") {
		return true
	}
	return mainThreadEventTypes[eventType]
}

type workItem struct {
	event plugin.Event
	subs  []plugin.Subscription
}

// Bus is the bounded-queue, worker-pool implementation of plugin.EventBus.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[string]plugin.Subscription // event type ("*" for wildcard) -> subscriber id -> Subscription

	queue          chan workItem
	queueCap       int
	publishTimeout atomic.Int64 // nanoseconds, mutable at runtime
	workerCount    int

	state  atomic.Int32
	stopCh chan struct{}
	wg     sync.WaitGroup

	mainThread plugin.MainThreadExecutor // nil if none configured
	logger     *zap.Logger
}

// Config holds the event_bus_manager.* settings.
type Config struct {
	MaxQueueSize   int
	PublishTimeout time.Duration
	ThreadPoolSize int
}

// DefaultConfig matches the documented defaults.
func DefaultConfig() Config {
	return Config{MaxQueueSize: 1000, PublishTimeout: 5 * time.Second, ThreadPoolSize: 4}
}

var _ plugin.EventBus = (*Bus)(nil)

// NewBus constructs a Bus in the Uninitialized state. Call Start before
// publishing or subscribing.
func NewBus(logger *zap.Logger, cfg Config, mainThread plugin.MainThreadExecutor) *Bus {
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = DefaultConfig().MaxQueueSize
	}
	if cfg.ThreadPoolSize <= 0 {
		cfg.ThreadPoolSize = DefaultConfig().ThreadPoolSize
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultConfig().PublishTimeout
	}

	b := &Bus{
		subs:       make(map[string]map[string]plugin.Subscription),
		queue:      make(chan workItem, cfg.MaxQueueSize),
		queueCap:   cfg.MaxQueueSize,
		workerCount: cfg.ThreadPoolSize,
		stopCh:     make(chan struct{}),
		mainThread: mainThread,
		logger:     logger,
	}
	b.publishTimeout.Store(int64(cfg.PublishTimeout))
	b.state.Store(int32(stateInitialized))
	return b
}

// Start transitions Initialized -> Running and spawns the worker pool.
func (b *Bus) Start() error {
	if !b.state.CompareAndSwap(int32(stateInitialized), int32(stateRunning)) {
		return fmt.Errorf("%w: bus already started", plugin.ErrAlreadyInitialized)
	}
	for i := 0; i < b.workerCount; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	b.logger.Info("event bus started", zap.Int("workers", b.workerCount), zap.Int("queue_capacity", b.queueCap))
	return nil
}

// SetPublishTimeout mutates the live publish timeout, the one setting
// allowed to change without a restart.
func (b *Bus) SetPublishTimeout(d time.Duration) {
	b.publishTimeout.Store(int64(d))
}

func (b *Bus) timeout() time.Duration {
	return time.Duration(b.publishTimeout.Load())
}

// Publish constructs an Event, snapshots matching subscriptions, and either
// dispatches inline (Synchronous()) or enqueues for the worker pool.
func (b *Bus) Publish(eventType, source string, payload map[string]any, opts ...plugin.PublishOption) (string, error) {
	if busState(b.state.Load()) != stateRunning {
		return "", plugin.ErrNotInitialized
	}

	correlationID, synchronous := plugin.ResolvePublishOptions(opts...)
	ev := plugin.Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		Timestamp:     time.Now(),
		Source:        source,
		Payload:       payload,
		CorrelationID: correlationID,
	}

	matched := b.matchingSubscriptions(ev)

	if synchronous {
		for _, sub := range matched {
			b.safeCall(sub, ev)
		}
		return ev.EventID, nil
	}

	item := workItem{event: ev, subs: matched}
	select {
	case b.queue <- item:
		return ev.EventID, nil
	default:
	}

	timer := time.NewTimer(b.timeout())
	defer timer.Stop()
	select {
	case b.queue <- item:
		return ev.EventID, nil
	case <-timer.C:
		return "", fmt.Errorf("%w: publish_timeout exceeded for event type %q", plugin.ErrQueueFull, eventType)
	}
}

// matchingSubscriptions snapshots the subscriber list under lock, then
// releases the lock before any handler runs.
func (b *Bus) matchingSubscriptions(ev plugin.Event) []plugin.Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []plugin.Subscription
	for _, sub := range b.subs[ev.EventType] {
		if sub.Matches(ev) {
			matched = append(matched, sub)
		}
	}
	for _, sub := range b.subs["*"] {
		if sub.Matches(ev) {
			matched = append(matched, sub)
		}
	}
	return matched
}

// worker drains the queue until stopped, draining what remains after a stop
// signal so Shutdown's drain window has a chance to empty the channel.
func (b *Bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case item := <-b.queue:
			b.dispatch(item)
		case <-b.stopCh:
			// Drain remaining buffered items without blocking further.
			for {
				select {
				case item := <-b.queue:
					b.dispatch(item)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) dispatch(item workItem) {
	for _, sub := range item.subs {
		sub := sub
		if requiresMainThread(item.event.EventType) && b.mainThread != nil {
			ev := item.event
			b.mainThread.RunOnMainThread(func() { b.safeCall(sub, ev) })
			continue
		}
		b.safeCall(sub, item.event)
	}
}

func (b *Bus) safeCall(sub plugin.Subscription, ev plugin.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("event_id", ev.EventID),
				zap.String("event_type", ev.EventType),
				zap.String("subscriber_id", sub.SubscriberID),
				zap.Any("panic", r),
			)
		}
	}()
	sub.Handler(ev)
}

// Subscribe registers a Subscription, generating a subscriber id if none was
// supplied via WithSubscriberID.
func (b *Bus) Subscribe(eventType string, handler plugin.EventHandler, opts ...plugin.SubscribeOption) (string, error) {
	id, filter := plugin.ResolveSubscribeOptions(opts...)
	if id == "" {
		id = uuid.NewString()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[eventType] == nil {
		b.subs[eventType] = make(map[string]plugin.Subscription)
	}
	b.subs[eventType][id] = plugin.Subscription{
		SubscriberID:   id,
		EventType:      eventType,
		Handler:        handler,
		FilterCriteria: filter,
	}
	return id, nil
}

// Unsubscribe removes subscriberID from eventType, or every event type it's
// registered under when eventType is empty.
func (b *Bus) Unsubscribe(subscriberID string, eventType string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := false
	if eventType != "" {
		if m, ok := b.subs[eventType]; ok {
			if _, ok := m[subscriberID]; ok {
				delete(m, subscriberID)
				removed = true
			}
		}
		return removed, nil
	}

	for _, m := range b.subs {
		if _, ok := m[subscriberID]; ok {
			delete(m, subscriberID)
			removed = true
		}
	}
	return removed, nil
}

// Status reports queue and subscription counters.
func (b *Bus) Status() plugin.BusStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	totals := make(map[string]int, len(b.subs))
	for evType, m := range b.subs {
		totals[evType] = len(m)
	}

	size := len(b.queue)
	return plugin.BusStatus{
		QueueSize:          size,
		QueueCapacity:       b.queueCap,
		QueueFull:          size >= b.queueCap,
		WorkerCount:        b.workerCount,
		SubscriptionTotals: totals,
	}
}

// Shutdown drains the queue for up to 5s, cancels workers, and clears
// subscriptions. Idempotent after the first successful call.
func (b *Bus) Shutdown(ctx context.Context) error {
	if !b.state.CompareAndSwap(int32(stateRunning), int32(stateDraining)) {
		return nil
	}

	drainDeadline := time.Now().Add(5 * time.Second)
	for len(b.queue) > 0 && time.Now().Before(drainDeadline) {
		select {
		case <-ctx.Done():
			break
		case <-time.After(10 * time.Millisecond):
		}
	}

	close(b.stopCh)
	b.wg.Wait()

	b.mu.Lock()
	b.subs = make(map[string]map[string]plugin.Subscription)
	b.mu.Unlock()

	b.state.Store(int32(stateStopped))
	b.logger.Info("event bus stopped")
	return nil
}
