package booking

import (
	"context"
	"sync"
)

// =============================================================================
// RANGE LOCKER - Advisory lock over overlapping date ranges
// =============================================================================

// RangeLocker serializes holders of overlapping date ranges. Disjoint
// ranges proceed in parallel.
type RangeLocker struct {
	mu      sync.Mutex
	held    map[uint64]DateRange
	next    uint64
	changed chan struct{}
}

func NewRangeLocker() *RangeLocker {
	return &RangeLocker{
		held:    make(map[uint64]DateRange),
		changed: make(chan struct{}),
	}
}

// Lock blocks until no held range overlaps r, then holds r. The returned
// func releases it. A cancelled or expired ctx yields a TransientError.
func (l *RangeLocker) Lock(ctx context.Context, r DateRange) (func(), error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	for {
		l.mu.Lock()
		if !l.overlapsLocked(r) {
			id := l.next
			l.next++
			l.held[id] = r
			l.mu.Unlock()

			var once sync.Once
			return func() { once.Do(func() { l.release(id) }) }, nil
		}
		wait := l.changed
		l.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, &TransientError{Op: "lock " + r.String(), Err: ctx.Err()}
		}
	}
}

func (l *RangeLocker) overlapsLocked(r DateRange) bool {
	for _, h := range l.held {
		if h.Overlaps(r) {
			return true
		}
	}
	return false
}

func (l *RangeLocker) release(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.held, id)
	close(l.changed)
	l.changed = make(chan struct{})
}

// Held returns the number of ranges currently held.
func (l *RangeLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}
