package supervisor

import (
	"sync"
	"time"
)

// Event describes a connection state notification.
type Event struct {
	State   State
	Address string
	At      time.Time
}

// Watcher receives state notifications. The first event is the state at the time Watch
// was called. A watcher that falls behind by more than its buffer misses events.
type Watcher struct {
	raw   chan interface{}
	out   chan Event
	quit  chan struct{}
	once  sync.Once
	unsub func(chan interface{})
}

func newWatcher(raw chan interface{}, unsub func(chan interface{})) *Watcher {
	w := &Watcher{
		raw:   raw,
		out:   make(chan Event),
		quit:  make(chan struct{}),
		unsub: unsub,
	}
	go w.forward()
	return w
}

// C returns the event channel. It is closed after Close or when the supervisor stops.
func (w *Watcher) C() <-chan Event {
	return w.out
}

// Close stops the watcher.
func (w *Watcher) Close() {
	w.once.Do(func() {
		close(w.quit)
		w.unsub(w.raw)
	})
}

func (w *Watcher) forward() {
	defer close(w.out)
	for v := range w.raw {
		ev, ok := v.(Event)
		if !ok {
			continue
		}
		select {
		case w.out <- ev:
		case <-w.quit:
		}
	}
}
