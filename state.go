package steris

import "sync"

// Observable is a last-value cache with a subscriber list. New subscribers receive
// the current value immediately, then every subsequent value in registration order.
// There is no buffering or replay beyond the latest value: a subscriber that joins
// after a value was published only sees the latest one.
type Observable[T any] struct {
	mu   sync.Mutex
	last T
	subs []chan T
}

// NewObservable creates an Observable seeded with an initial value.
func NewObservable[T any](initial T) *Observable[T] {
	return &Observable[T]{last: initial}
}

// Get returns the current value.
func (o *Observable[T]) Get() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// Set stores a new value and publishes it to all current subscribers in
// registration order. A subscriber that is not keeping up has the value dropped
// rather than blocking the publisher.
func (o *Observable[T]) Set(value T) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.last = value
	for _, sub := range o.subs {
		select {
		case sub <- value:
		default:
		}
	}
}

// Subscribe registers a new observer. The returned channel is primed with the
// current value before Subscribe returns. The cancel function removes the
// subscription and closes the channel.
func (o *Observable[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 16)

	o.mu.Lock()
	ch <- o.last
	o.subs = append(o.subs, ch)
	o.mu.Unlock()

	cancel := func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, sub := range o.subs {
			if sub == ch {
				o.subs = append(o.subs[:i], o.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}

	return ch, cancel
}
