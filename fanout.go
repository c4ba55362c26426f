package media

import (
	"context"
	"sync"
)

// fanout copies every value read from a source to any number of sinks.
// Each sink is a bounded channel; a slow sink loses its oldest values
// rather than stalling the others.
type fanout[T any] struct {
	mu     sync.Mutex
	sinks  map[chan T]struct{}
	size   int
	closed bool
}

func newFanout[T any](size int) *fanout[T] {
	return &fanout[T]{sinks: make(map[chan T]struct{}), size: max(size, 1)}
}

// add registers a sink. On a closed fanout the returned channel is already
// closed.
func (f *fanout[T]) add() (<-chan T, func()) {
	ch := make(chan T, f.size)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return ch, func() {}
	}
	f.sinks[ch] = struct{}{}
	return ch, func() { f.remove(ch) }
}

func (f *fanout[T]) remove(ch chan T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sinks[ch]; ok {
		delete(f.sinks, ch)
		close(ch)
	}
}

func (f *fanout[T]) publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.sinks {
		for {
			select {
			case ch <- v:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// close closes every sink. Further publishes are dropped.
func (f *fanout[T]) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for ch := range f.sinks {
		delete(f.sinks, ch)
		close(ch)
	}
}

// pump reads from read until it fails or ctx is done, publishing every value.
// The fanout is closed on return.
func (f *fanout[T]) pump(ctx context.Context, read func(context.Context) (T, error)) error {
	defer f.close()
	for {
		v, err := read(ctx)
		if err != nil {
			return err
		}
		f.publish(v)
	}
}

// recv reads the next value from a sink.
func recv[T any](ctx context.Context, ch <-chan T) (T, error) {
	select {
	case v, ok := <-ch:
		if !ok {
			var zero T
			return zero, ErrTrackEnded
		}
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
