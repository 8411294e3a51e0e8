package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/kiwari-pos/ordering/internal/order"
)

// Memory is an in-process OrderStore, Feed and Catalog. It backs
// development runs and tests.
type Memory struct {
	mu        sync.RWMutex
	orders    map[string]order.Order
	seq       []string
	foods     map[string]order.Food
	listeners map[*listener]struct{}
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		orders:    make(map[string]order.Order),
		foods:     make(map[string]order.Food),
		listeners: make(map[*listener]struct{}),
	}
}

func (m *Memory) InsertOrder(ctx context.Context, o order.Order) (order.Order, error) {
	if err := ctx.Err(); err != nil {
		return order.Order{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	o = Clone(o)
	o.ID = uuid.NewString()
	o.GuestToken = ""
	o.Version = 1
	m.orders[o.ID] = o
	m.seq = append(m.seq, o.ID)
	m.publish(o)
	return Clone(o), nil
}

func (m *Memory) GetOrder(ctx context.Context, id string) (order.Order, error) {
	if err := ctx.Err(); err != nil {
		return order.Order{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return Clone(o), nil
}

func (m *Memory) ListOrders(ctx context.Context, f Filter) ([]order.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]order.Order, 0)
	for _, id := range m.seq {
		o := m.orders[id]
		if f.Matches(&o) {
			out = append(out, Clone(o))
		}
	}
	// Like an un-indexed document query, a per-user read comes back in
	// insertion order; only the full listing is sorted.
	if f.UserID == "" {
		SortNewestFirst(out)
	}
	return out, nil
}

func (m *Memory) UpdateOrder(ctx context.Context, id string, u order.Update) (order.Order, error) {
	if err := ctx.Err(); err != nil {
		return order.Order{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	apply(&o, u)
	m.orders[id] = o
	m.publish(o)
	return Clone(o), nil
}

// Listen registers a change listener. Deliveries never block writers.
func (m *Memory) Listen(ctx context.Context) (<-chan order.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l := newListener()
	m.mu.Lock()
	m.listeners[l] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.listeners, l)
		m.mu.Unlock()
		l.close()
	}()
	go l.pump()
	return l.out, nil
}

// publish must be called with mu held.
func (m *Memory) publish(o order.Order) {
	for l := range m.listeners {
		l.push(Clone(o))
	}
}

func (m *Memory) ListFoods(ctx context.Context) ([]order.Food, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]order.Food, 0, len(m.foods))
	for _, f := range m.foods {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *Memory) GetFood(ctx context.Context, id string) (order.Food, error) {
	if err := ctx.Err(); err != nil {
		return order.Food{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.foods[id]
	if !ok {
		return order.Food{}, order.ErrNotFound
	}
	return f, nil
}

func (m *Memory) CreateFood(ctx context.Context, f order.Food) (order.Food, error) {
	if err := ctx.Err(); err != nil {
		return order.Food{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	m.foods[f.ID] = f
	return f, nil
}
