// Package kb holds recently fetched element sets so that serve mode does not
// hit the tracking-data provider on every request.
package kb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/signalsfoundry/satloc/internal/logging"
	"github.com/signalsfoundry/satloc/internal/observability"
	"github.com/signalsfoundry/satloc/model"
)

// DefaultTTL is how long a fetched element set is served without refreshing.
// CelesTrak republishes GP data a few times a day.
const DefaultTTL = 2 * time.Hour

// Cache lookup results recorded on satloc_cache_lookups_total.
const (
	LookupHit   = "hit"
	LookupMiss  = "miss"
	LookupStale = "stale"
)

// ErrNoFetcher is returned by Elements when the store has no upstream.
var ErrNoFetcher = errors.New("kb: no fetcher configured")

// Fetcher retrieves an element set from upstream.
type Fetcher interface {
	Fetch(ctx context.Context, catalogNumber uint32) (model.ElementSet, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, catalogNumber uint32) (model.ElementSet, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, catalogNumber uint32) (model.ElementSet, error) {
	return f(ctx, catalogNumber)
}

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventElementsRefreshed EventType = iota
	EventElementsEvicted
)

func (t EventType) String() string {
	switch t {
	case EventElementsRefreshed:
		return "refreshed"
	case EventElementsEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type     EventType
	Elements model.ElementSet
}

type entry struct {
	elements model.ElementSet
	storedAt time.Time
}

// KnowledgeBase is an in-memory, thread-safe element set store with
// TTL-based freshness.
type KnowledgeBase struct {
	mu      sync.RWMutex
	entries map[uint32]entry
	subs    map[int]func(Event)
	nextSub int

	group   singleflight.Group
	fetcher Fetcher
	ttl     time.Duration
	now     func() time.Time
	log     logging.Logger
	metrics *observability.TrackCollector
}

// Option customises a KnowledgeBase.
type Option func(*KnowledgeBase)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(d time.Duration) Option {
	return func(kb *KnowledgeBase) {
		if d > 0 {
			kb.ttl = d
		}
	}
}

// WithClock replaces the wall clock used for freshness checks.
func WithClock(now func() time.Time) Option {
	return func(kb *KnowledgeBase) {
		if now != nil {
			kb.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l logging.Logger) Option {
	return func(kb *KnowledgeBase) {
		if l != nil {
			kb.log = l
		}
	}
}

// WithMetrics records cache lookups on m.
func WithMetrics(m *observability.TrackCollector) Option {
	return func(kb *KnowledgeBase) { kb.metrics = m }
}

// NewKnowledgeBase constructs an empty KB backed by fetcher. fetcher may be
// nil when the store is only filled through Put.
func NewKnowledgeBase(fetcher Fetcher, opts ...Option) *KnowledgeBase {
	kb := &KnowledgeBase{
		entries: make(map[uint32]entry),
		subs:    make(map[int]func(Event)),
		fetcher: fetcher,
		ttl:     DefaultTTL,
		now:     time.Now,
		log:     logging.Noop(),
	}
	for _, opt := range opts {
		opt(kb)
	}
	return kb
}

// TTL returns the configured freshness window.
func (kb *KnowledgeBase) TTL() time.Duration { return kb.ttl }

// Put stores es and notifies subscribers.
func (kb *KnowledgeBase) Put(es model.ElementSet) {
	kb.mu.Lock()
	kb.entries[es.CatalogNumber] = entry{elements: es, storedAt: kb.now()}
	subs := kb.snapshotSubs()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventElementsRefreshed, Elements: es})
}

// Get returns the stored set for catalogNumber if it is still fresh.
func (kb *KnowledgeBase) Get(catalogNumber uint32) (model.ElementSet, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	e, ok := kb.entries[catalogNumber]
	if !ok || kb.expired(e) {
		return model.ElementSet{}, false
	}
	return e.elements, true
}

// Len reports how many sets are held, fresh or not.
func (kb *KnowledgeBase) Len() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.entries)
}

// Invalidate drops the set for catalogNumber. It reports whether one was held.
func (kb *KnowledgeBase) Invalidate(catalogNumber uint32) bool {
	kb.mu.Lock()
	e, ok := kb.entries[catalogNumber]
	if ok {
		delete(kb.entries, catalogNumber)
	}
	subs := kb.snapshotSubs()
	kb.mu.Unlock()

	if ok {
		notify(subs, Event{Type: EventElementsEvicted, Elements: e.elements})
	}
	return ok
}

// Elements returns a fresh element set for catalogNumber, fetching it when
// absent or expired. Concurrent callers for the same number share a single
// upstream fetch. When a refresh fails and an expired set is held, the
// expired set is returned.
func (kb *KnowledgeBase) Elements(ctx context.Context, catalogNumber uint32) (model.ElementSet, error) {
	kb.mu.RLock()
	e, held := kb.entries[catalogNumber]
	fresh := held && !kb.expired(e)
	kb.mu.RUnlock()

	switch {
	case fresh:
		kb.metrics.IncCacheLookup(LookupHit)
		return e.elements, nil
	case held:
		kb.metrics.IncCacheLookup(LookupStale)
	default:
		kb.metrics.IncCacheLookup(LookupMiss)
	}

	if kb.fetcher == nil {
		return model.ElementSet{}, ErrNoFetcher
	}

	key := strconv.FormatUint(uint64(catalogNumber), 10)
	// The shared fetch outlives any single caller's cancellation.
	ch := kb.group.DoChan(key, func() (any, error) {
		es, err := kb.fetcher.Fetch(context.WithoutCancel(ctx), catalogNumber)
		if err != nil {
			return nil, err
		}
		kb.Put(es)
		return es, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return model.ElementSet{}, ctx.Err()
	case res = <-ch:
	}

	if res.Err != nil {
		if held {
			logging.FromContext(ctx, kb.log).Warn(ctx, "refresh failed; serving expired element set",
				logging.Uint32("catalog_number", catalogNumber),
				logging.Time("stored_at", e.storedAt),
				logging.Err(res.Err),
			)
			return e.elements, nil
		}
		return model.ElementSet{}, res.Err
	}

	es, ok := res.Val.(model.ElementSet)
	if !ok {
		return model.ElementSet{}, fmt.Errorf("kb: unexpected fetch result %T", res.Val)
	}
	return es, nil
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextSub
	kb.nextSub++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

func (kb *KnowledgeBase) expired(e entry) bool {
	return kb.now().Sub(e.storedAt) >= kb.ttl
}

// snapshotSubs must be called with kb.mu held.
func (kb *KnowledgeBase) snapshotSubs() []func(Event) {
	subs := make([]func(Event), 0, len(kb.subs))
	for _, fn := range kb.subs {
		subs = append(subs, fn)
	}
	return subs
}

// notify runs outside the lock so subscribers may call back into the KB.
func notify(subs []func(Event), ev Event) {
	for _, sub := range subs {
		sub(ev)
	}
}
