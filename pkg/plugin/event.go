package plugin

import "time"

// Event is an immutable record published on the bus. Once constructed it is
// never mutated; workers may hold references to the same Event concurrently.
type Event struct {
	EventID       string
	EventType     string // slash-delimited, e.g. "plugin/loaded"
	Timestamp     time.Time
	Source        string
	Payload       map[string]any
	CorrelationID string // empty if unset
}

// EventHandler processes a dispatched event. Panics are recovered by the bus
// and never propagate to the publisher.
type EventHandler func(Event)

// Subscription records one subscriber's interest in events.
type Subscription struct {
	SubscriberID   string
	EventType      string // exact match, or "*" for wildcard
	Handler        EventHandler
	FilterCriteria map[string]any
}

// Matches reports whether the subscription matches the event: the event type
// equals the subscription's type or the subscription is wildcard, and every
// key in FilterCriteria is present in the event payload with an equal value.
func (s Subscription) Matches(e Event) bool {
	if s.EventType != "*" && s.EventType != e.EventType {
		return false
	}
	for k, want := range s.FilterCriteria {
		got, ok := e.Payload[k]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares primitive and simple composite payload values.
// Deep equality across custom types is intentionally not promised; callers
// needing richer comparison should encode a pre-digested field instead.
func valuesEqual(a, b any) bool {
	if a == b {
		return true
	}
	// Fall back to a slow structural compare for slices/maps, which are not
	// comparable with ==.
	return structEqual(a, b)
}

func structEqual(a, b any) bool {
	switch av := a.(type) {
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !valuesEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !valuesEqual(v, bvv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// EventBus is the contract plugins and core components use to publish and
// subscribe to events. See internal/event for the bounded-queue implementation.
type EventBus interface {
	// Publish constructs an Event and dispatches it, either inline
	// (synchronous) or via the worker pool. Returns the new event's id.
	Publish(eventType, source string, payload map[string]any, opts ...PublishOption) (string, error)

	// Subscribe registers a Subscription and returns its subscriber id
	// (generated if the caller did not supply one via WithSubscriberID).
	Subscribe(eventType string, handler EventHandler, opts ...SubscribeOption) (string, error)

	// Unsubscribe removes subscriberID from eventType, or from every event
	// type it's registered under if eventType is empty. Reports whether
	// anything was removed.
	Unsubscribe(subscriberID string, eventType string) (bool, error)

	// Status reports queue and subscription counters.
	Status() BusStatus
}

// BusStatus is a snapshot of Event Bus internals.
type BusStatus struct {
	QueueSize          int
	QueueCapacity      int
	QueueFull          bool
	WorkerCount        int
	SubscriptionTotals map[string]int // event type -> subscriber count
}

// PublishOption customizes a single Publish call.
type PublishOption func(*publishOptions)

type publishOptions struct {
	correlationID string
	synchronous   bool
}

// WithCorrelationID attaches a correlation id to the published event.
func WithCorrelationID(id string) PublishOption {
	return func(o *publishOptions) { o.correlationID = id }
}

// Synchronous bypasses the queue: the publisher's goroutine invokes every
// matching handler in order before Publish returns.
func Synchronous() PublishOption {
	return func(o *publishOptions) { o.synchronous = true }
}

// PublishOptions resolves a PublishOption slice; used by EventBus implementations.
func ResolvePublishOptions(opts ...PublishOption) (correlationID string, synchronous bool) {
	var o publishOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o.correlationID, o.synchronous
}

// SubscribeOption customizes a single Subscribe call.
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	subscriberID   string
	filterCriteria map[string]any
}

// WithSubscriberID supplies an explicit subscriber id instead of generating one.
func WithSubscriberID(id string) SubscribeOption {
	return func(o *subscribeOptions) { o.subscriberID = id }
}

// WithFilter restricts delivery to events whose payload matches every key/value pair.
func WithFilter(criteria map[string]any) SubscribeOption {
	return func(o *subscribeOptions) { o.filterCriteria = criteria }
}

// ResolveSubscribeOptions resolves a SubscribeOption slice; used by EventBus implementations.
func ResolveSubscribeOptions(opts ...SubscribeOption) (subscriberID string, filterCriteria map[string]any) {
	var o subscribeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o.subscriberID, o.filterCriteria
}
