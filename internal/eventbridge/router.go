package eventbridge

import (
	"context"
	"strings"
	"sync"
)

const (
	defaultSubscriberCapacity = 100
	defaultBacklogLimit       = 50
	defaultDedupeWindow       = 1024
)

// BusOption customizes Bus construction.
type BusOption func(*Bus)

// Bus delivers orchestrator events to subscribers keyed by event name, with
// buffering for names nobody listens to yet, deduplication by event ID and
// bounded channels.
type Bus struct {
	mu           sync.RWMutex
	subscribers  map[string]map[*subscriber]struct{}
	backlog      map[string][]Event
	recentIDs    map[string]struct{}
	recentOrder  []string
	channelSize  int
	backlogLimit int
	dedupeWindow int
	closed       bool
	logger       Logger
}

// Subscription represents an active subscription.
type Subscription struct {
	Events <-chan Event
	cancel func()
}

// Close terminates the subscription.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// NewBus constructs a bus with sane defaults.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subscribers:  map[string]map[*subscriber]struct{}{},
		backlog:      map[string][]Event{},
		recentIDs:    map[string]struct{}{},
		recentOrder:  make([]string, 0, defaultDedupeWindow),
		channelSize:  defaultSubscriberCapacity,
		backlogLimit: defaultBacklogLimit,
		dedupeWindow: defaultDedupeWindow,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// BusWithLogger injects a logger for drop/diagnostic messages.
func BusWithLogger(logger Logger) BusOption {
	return func(b *Bus) {
		b.logger = logger
	}
}

// BusWithSubscriberCapacity overrides the buffered channel size per subscriber.
func BusWithSubscriberCapacity(cap int) BusOption {
	return func(b *Bus) {
		if cap > 0 {
			b.channelSize = cap
		}
	}
}

// BusWithBacklogLimit overrides the backlog size for pre-subscription buffering.
func BusWithBacklogLimit(limit int) BusOption {
	return func(b *Bus) {
		if limit > 0 {
			b.backlogLimit = limit
		}
	}
}

// BusWithDedupeWindow controls how many recent event IDs are retained.
func BusWithDedupeWindow(size int) BusOption {
	return func(b *Bus) {
		if size > 0 {
			b.dedupeWindow = size
		}
	}
}

// Subscribe registers for events with the given name, or Wildcard for all.
// Events buffered for that name before anyone subscribed are replayed first.
func (b *Bus) Subscribe(name string) Subscription {
	key := normalizeName(name)
	sub := newSubscriber(b.channelSize, b.logger)
	var backlog []Event
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.close()
		return Subscription{Events: sub.channel()}
	}
	if b.subscribers[key] == nil {
		b.subscribers[key] = map[*subscriber]struct{}{}
	}
	b.subscribers[key][sub] = struct{}{}
	if key == Wildcard {
		for name, queued := range b.backlog {
			backlog = append(backlog, queued...)
			delete(b.backlog, name)
		}
	} else if existing := b.backlog[key]; len(existing) > 0 {
		backlog = append(backlog, existing...)
		delete(b.backlog, key)
	}
	b.mu.Unlock()
	for _, event := range backlog {
		sub.deliver(event)
	}
	return Subscription{
		Events: sub.channel(),
		cancel: func() {
			b.removeSubscriber(key, sub)
		},
	}
}

// Emit satisfies the Emitter interface.
func (b *Bus) Emit(ctx context.Context, event Event) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	event.Normalize()
	if err := event.Validate(); err != nil {
		return err
	}
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrBusClosed
	}
	b.Route(event)
	return nil
}

// Route delivers the event to subscribers or buffers it when no subscriber exists.
func (b *Bus) Route(event Event) {
	if event.ID != "" && b.isDuplicate(event.ID) {
		return
	}
	key := normalizeName(event.Name)
	if key == "" {
		return
	}
	b.mu.RLock()
	subs := b.snapshotSubscribers(key)
	subs = append(subs, b.snapshotSubscribers(Wildcard)...)
	b.mu.RUnlock()
	if len(subs) == 0 {
		b.bufferEvent(key, event)
		return
	}
	for _, sub := range subs {
		sub.deliver(event)
	}
}

// Close closes every subscription channel and rejects further events.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for key, subs := range b.subscribers {
		for sub := range subs {
			sub.close()
		}
		delete(b.subscribers, key)
	}
	b.backlog = map[string][]Event{}
}

func (b *Bus) snapshotSubscribers(key string) []*subscriber {
	live := b.subscribers[key]
	if len(live) == 0 {
		return nil
	}
	items := make([]*subscriber, 0, len(live))
	for sub := range live {
		items = append(items, sub)
	}
	return items
}

func (b *Bus) removeSubscriber(key string, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs := b.subscribers[key]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.subscribers, key)
		}
	}
	sub.close()
}

func (b *Bus) bufferEvent(key string, event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	queue := b.backlog[key]
	if len(queue) >= b.backlogLimit {
		queue = queue[1:]
		if b.logger != nil {
			b.logger.Printf("eventbridge: backlog drop for %s (limit %d)", key, b.backlogLimit)
		}
	}
	queue = append(queue, event)
	b.backlog[key] = queue
}

func (b *Bus) isDuplicate(eventID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.recentIDs[eventID]; ok {
		return true
	}
	b.recentIDs[eventID] = struct{}{}
	b.recentOrder = append(b.recentOrder, eventID)
	if len(b.recentOrder) > b.dedupeWindow {
		oldest := b.recentOrder[0]
		b.recentOrder = b.recentOrder[1:]
		delete(b.recentIDs, oldest)
	}
	return false
}

func normalizeName(name string) string {
	return strings.TrimSpace(name)
}

type subscriber struct {
	ch      chan Event
	logger  Logger
	closed  bool
	closeMu sync.Mutex
}

func newSubscriber(capacity int, logger Logger) *subscriber {
	if capacity <= 0 {
		capacity = defaultSubscriberCapacity
	}
	return &subscriber{
		ch:     make(chan Event, capacity),
		logger: logger,
	}
}

func (s *subscriber) channel() <-chan Event {
	return s.ch
}

// deliver holds closeMu for the whole send so close cannot race it.
// Delivery order always matches routing order. On overflow a non-critical
// event is dropped on arrival; a critical one evicts the oldest queued event.
func (s *subscriber) deliver(event Event) {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- event:
		return
	default:
	}
	if !isCriticalEvent(event.Name) {
		s.logDrop(event, "queue overflow:incoming")
		return
	}
	select {
	case oldest := <-s.ch:
		s.logDrop(oldest, "queue overflow")
	default:
	}
	s.ch <- event
}

func (s *subscriber) logDrop(event Event, reason string) {
	if s.logger == nil {
		return
	}
	s.logger.Printf("eventbridge: dropped %s (%s)", event.Name, reason)
}

func (s *subscriber) close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

func isCriticalEvent(name string) bool {
	return name == EventModeFailed || name == EventModeCompleted
}
