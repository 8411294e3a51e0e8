package store

import (
	"sync"

	"github.com/kiwari-pos/ordering/internal/order"
)

// listener buffers changes without bound so a slow subscriber never stalls
// a writer, and forwards them in order.
type listener struct {
	mu     sync.Mutex
	queue  []order.Order
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
	out    chan order.Order
}

func newListener() *listener {
	return &listener{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan order.Order),
	}
}

func (l *listener) push(o order.Order) {
	l.mu.Lock()
	l.queue = append(l.queue, o)
	l.mu.Unlock()
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *listener) close() {
	l.once.Do(func() { close(l.done) })
}

func (l *listener) pump() {
	defer close(l.out)
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, o := range batch {
			select {
			case l.out <- o:
			case <-l.done:
				return
			}
		}

		select {
		case <-l.signal:
		case <-l.done:
			return
		}
	}
}
