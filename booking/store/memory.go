// Package store provides in-memory booking store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/stay-booking/booking"
	"github.com/warp/stay-booking/factory"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	reservations map[booking.ReservationID]booking.Reservation
	parameters   map[string]booking.ParameterRecord
}

// NewMemory returns an empty ledger with the default parameters seeded,
// as the SQLite store does on first open.
func NewMemory() *Memory {
	m := &Memory{}
	m.reset()
	return m
}

func (m *Memory) FindOverlapping(_ context.Context, start, end booking.Date) ([]booking.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return findOverlapping(m.reservations, start, end), nil
}

func (m *Memory) Insert(_ context.Context, r booking.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return insert(m.reservations, r)
}

func (m *Memory) UpdateStatus(_ context.Context, r booking.Reservation, from booking.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return updateStatus(m.reservations, r, from)
}

func (m *Memory) Get(_ context.Context, id booking.ReservationID) (*booking.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reservations[id]
	if !ok {
		return nil, booking.ErrReservationNotFound
	}
	return &r, nil
}

func (m *Memory) List(_ context.Context, filter booking.ReservationFilter) ([]booking.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []booking.Reservation
	for _, r := range m.reservations {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	sortByArrival(out)
	return out, nil
}

// WithTx runs fn with exclusive access. Writes are staged and applied only
// if fn returns nil.
func (m *Memory) WithTx(ctx context.Context, fn func(booking.ReservationStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	staged := make(map[booking.ReservationID]booking.Reservation, len(m.reservations))
	for id, r := range m.reservations {
		staged[id] = r
	}
	if err := fn(&memoryTx{reservations: staged}); err != nil {
		return err
	}
	m.reservations = staged
	return nil
}

// memoryTx works on a staged copy. The parent lock is already held.
type memoryTx struct {
	reservations map[booking.ReservationID]booking.Reservation
}

func (t *memoryTx) FindOverlapping(_ context.Context, start, end booking.Date) ([]booking.Reservation, error) {
	return findOverlapping(t.reservations, start, end), nil
}

func (t *memoryTx) Insert(_ context.Context, r booking.Reservation) error {
	return insert(t.reservations, r)
}

func (t *memoryTx) UpdateStatus(_ context.Context, r booking.Reservation, from booking.Status) error {
	return updateStatus(t.reservations, r, from)
}

func (t *memoryTx) Get(_ context.Context, id booking.ReservationID) (*booking.Reservation, error) {
	r, ok := t.reservations[id]
	if !ok {
		return nil, booking.ErrReservationNotFound
	}
	return &r, nil
}

func (t *memoryTx) List(_ context.Context, filter booking.ReservationFilter) ([]booking.Reservation, error) {
	var out []booking.Reservation
	for _, r := range t.reservations {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	sortByArrival(out)
	return out, nil
}

// =============================================================================
// PARAMETERS
// =============================================================================

func (m *Memory) LoadParameters(_ context.Context) ([]booking.ParameterRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]booking.ParameterRecord, 0, len(m.parameters))
	for _, p := range m.parameters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) SaveParameters(_ context.Context, records []booking.ParameterRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range records {
		m.parameters[p.Key] = p
	}
	return nil
}

// Reset drops every reservation and restores the default parameters.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reset()
	return nil
}

func (m *Memory) reset() {
	m.reservations = make(map[booking.ReservationID]booking.Reservation)
	m.parameters = make(map[string]booking.ParameterRecord)
	for _, p := range factory.RecordsFromParameters(booking.DefaultParameters()) {
		m.parameters[p.Key] = p
	}
}

// =============================================================================
// HELPERS - Caller holds the lock
// =============================================================================

func findOverlapping(all map[booking.ReservationID]booking.Reservation, start, end booking.Date) []booking.Reservation {
	window := booking.DateRange{Start: start, End: end}
	var out []booking.Reservation
	for _, r := range all {
		if r.Blocking() && r.Range().Overlaps(window) {
			out = append(out, r)
		}
	}
	sortByArrival(out)
	return out
}

func insert(all map[booking.ReservationID]booking.Reservation, r booking.Reservation) error {
	if _, exists := all[r.ID]; exists {
		return fmt.Errorf("reservation %s already exists", r.ID)
	}
	all[r.ID] = r
	return nil
}

func updateStatus(all map[booking.ReservationID]booking.Reservation, r booking.Reservation, from booking.Status) error {
	current, ok := all[r.ID]
	if !ok {
		return booking.ErrReservationNotFound
	}
	if current.Status != from {
		return booking.ErrConcurrentModification
	}
	all[r.ID] = r
	return nil
}

func sortByArrival(rs []booking.Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].ArrivalDate.Equal(rs[j].ArrivalDate) {
			return rs[i].ArrivalDate.Before(rs[j].ArrivalDate)
		}
		return rs[i].CreatedAt.Before(rs[j].CreatedAt)
	})
}
