/*
store.go - Persistence interfaces for reservations and parameters

PURPOSE:
  Defines the boundary between the booking engine and durable storage.
  Reading and writing the ledger is the only operation in the engine that
  blocks; everything else is pure computation.

KEY INTERFACES:
  ReservationStore: Overlap queries, insert, status compare-and-swap
  TxStore:          ReservationStore with atomic read-validate-write
  ParameterStore:   Key-typed system parameter records
  ParameterSource:  Resolved Parameters snapshot for the service

STATUS UPDATES:
  UpdateStatus is a compare-and-swap on (id, status). If the stored status
  is no longer the expected one, the write is rejected with
  ErrConcurrentModification. This gives Confirm/Cancel row-level atomicity
  without range locks.

IMPLEMENTATIONS:
  - booking/store/memory.go: In-memory for tests and development
  - store/sqlite/sqlite.go:  SQLite

SEE ALSO:
  - service.go: Uses TxStore for create
  - factory/parameters.go: Turns ParameterRecords into Parameters
*/
package booking

import "context"

// =============================================================================
// RESERVATION STORE
// =============================================================================

// ReservationFilter narrows List. Zero value lists everything.
type ReservationFilter struct {
	Statuses      []Status
	ArrivalBefore *Date
}

// Matches reports whether r passes the filter.
func (f ReservationFilter) Matches(r Reservation) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if r.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ArrivalBefore != nil && !r.ArrivalDate.Before(*f.ArrivalBefore) {
		return false
	}
	return true
}

type ReservationStore interface {
	// FindOverlapping returns non-cancelled reservations whose
	// [ArrivalDate, DepartureDate] intersects [start, end].
	FindOverlapping(ctx context.Context, start, end Date) ([]Reservation, error)

	// Insert persists a new reservation.
	Insert(ctx context.Context, r Reservation) error

	// UpdateStatus replaces the lifecycle fields of r if the stored status
	// still equals from. Returns ErrConcurrentModification otherwise.
	UpdateStatus(ctx context.Context, r Reservation, from Status) error

	// Get returns ErrReservationNotFound for unknown ids.
	Get(ctx context.Context, id ReservationID) (*Reservation, error)

	// List returns reservations ordered by arrival date.
	List(ctx context.Context, filter ReservationFilter) ([]Reservation, error)
}

// TxStore wraps ReservationStore with transaction support.
type TxStore interface {
	ReservationStore

	// WithTx executes fn within a transaction.
	// If fn returns error, nothing fn wrote is kept.
	WithTx(ctx context.Context, fn func(ReservationStore) error) error
}

// =============================================================================
// PARAMETER STORE - Key-typed records
// =============================================================================

type ParameterType string

const (
	ParamInteger ParameterType = "integer"
	ParamBoolean ParameterType = "boolean"
	ParamString  ParameterType = "string"
)

// ParameterRecord is one stored parameter. Value is the textual form.
type ParameterRecord struct {
	Key   string
	Type  ParameterType
	Value string
}

type ParameterStore interface {
	LoadParameters(ctx context.Context) ([]ParameterRecord, error)
	SaveParameters(ctx context.Context, records []ParameterRecord) error
}

// ParameterSource yields the current snapshot.
type ParameterSource interface {
	Parameters(ctx context.Context) (Parameters, error)
}

// StaticParameters serves a fixed snapshot.
type StaticParameters Parameters

func (p StaticParameters) Parameters(context.Context) (Parameters, error) {
	params := Parameters(p)
	if err := params.Validate(); err != nil {
		return Parameters{}, err
	}
	return params, nil
}
