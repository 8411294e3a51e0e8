// Package realtime keeps subscribers consistent with the order documents in
// the backing store: an initial snapshot, then a fresh snapshot after every
// relevant change.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/kiwari-pos/ordering/internal/order"
	"github.com/kiwari-pos/ordering/internal/store"
	"github.com/rs/zerolog/log"
)

// retryInterval paces re-reads after the store reports an error. The store
// client owns reconnection; this only keeps the subscription alive.
const retryInterval = 2 * time.Second

// Filter selects which orders a subscription sees.
type Filter struct {
	userID string
}

// ForUser selects the orders placed by userID (the customer's own orders).
func ForUser(userID string) Filter { return Filter{userID: userID} }

// AllOrders selects every order (the staff view).
func AllOrders() Filter { return Filter{} }

// UserID is empty for the all-orders filter.
func (f Filter) UserID() string { return f.userID }

func (f Filter) storeFilter() store.Filter { return store.Filter{UserID: f.userID} }

func (f Filter) String() string {
	if f.userID == "" {
		return "all"
	}
	return "user:" + f.userID
}

// Callback receives a full snapshot. Calls for one subscription never overlap.
type Callback func(orders []order.Order)

// Broker fans order changes out to any number of independent subscriptions.
type Broker struct {
	orders store.OrderStore
	feed   store.Feed
}

// NewBroker creates a Broker reading from orders and following feed.
func NewBroker(orders store.OrderStore, feed store.Feed) *Broker {
	return &Broker{orders: orders, feed: feed}
}

// Subscribe starts delivering snapshots matching filter to cb and returns a
// function that detaches it. The returned function is safe to call more
// than once. It waits for a callback already in progress, so no callback
// runs once it returns; it must therefore not be called from inside cb.
func (b *Broker) Subscribe(filter Filter, cb Callback) (unsubscribe func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		broker: b,
		filter: filter,
		cb:     cb,
		docs:   make(map[string]order.Order),
	}

	var once sync.Once
	unsubscribe = func() {
		once.Do(func() {
			sub.stop()
			cancel()
			log.Debug().Stringer("filter", filter).Msg("realtime: unsubscribed")
		})
	}

	go sub.run(ctx)
	return unsubscribe
}

type subscription struct {
	broker *Broker
	filter Filter
	cb     Callback

	// mu is held across the stopped check and the callback.
	mu      sync.Mutex
	stopped bool

	// docs and ids are only touched by the run goroutine.
	docs map[string]order.Order
	ids  []string
}

func (s *subscription) run(ctx context.Context) {
	// Listen before reading the snapshot so nothing committed in between
	// is missed; replays are dropped by the version check in apply.
	changes := s.listen(ctx)
	if changes == nil {
		return
	}
	if !s.loadSnapshot(ctx) {
		return
	}
	s.deliver()

	for {
		select {
		case <-ctx.Done():
			return
		case o, ok := <-changes:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				log.Warn().Stringer("filter", s.filter).Msg("realtime: change feed closed, re-listening")
				if changes = s.listen(ctx); changes == nil {
					return
				}
				continue
			}
			if s.apply(o) {
				s.deliver()
			}
		}
	}
}

// listen opens the change feed, retrying while the store is unavailable.
// It returns nil only when ctx is done.
func (s *subscription) listen(ctx context.Context) <-chan order.Order {
	for {
		changes, err := s.broker.feed.Listen(ctx)
		if err == nil {
			return changes
		}
		log.Error().Err(err).Stringer("filter", s.filter).Msg("realtime: listen for order changes")
		if !sleep(ctx, retryInterval) {
			return nil
		}
	}
}

func (s *subscription) loadSnapshot(ctx context.Context) bool {
	for {
		orders, err := s.broker.orders.ListOrders(ctx, s.filter.storeFilter())
		if err == nil {
			for _, o := range orders {
				s.docs[o.ID] = o
				s.ids = append(s.ids, o.ID)
			}
			return true
		}
		log.Error().Err(err).Stringer("filter", s.filter).Msg("realtime: read order snapshot")
		if !sleep(ctx, retryInterval) {
			return false
		}
	}
}

// apply merges a changed document and reports whether the view changed.
// A document never moves back to an older version.
func (s *subscription) apply(o order.Order) bool {
	if !s.filter.storeFilter().Matches(&o) {
		return false
	}
	prev, seen := s.docs[o.ID]
	if seen && prev.Version >= o.Version {
		return false
	}
	s.docs[o.ID] = o
	if !seen {
		// New documents are the newest; keep the store's newest-first order.
		s.ids = append([]string{o.ID}, s.ids...)
	}
	return true
}

// stop blocks until an in-flight callback returns and prevents new ones.
func (s *subscription) stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *subscription) deliver() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	out := make([]order.Order, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, store.Clone(s.docs[id]))
	}
	// The per-user store query is not ordered; sort it here.
	if s.filter.userID != "" {
		store.SortNewestFirst(out)
	}
	s.cb(out)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
