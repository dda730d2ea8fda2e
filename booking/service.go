/*
service.go - Reservation lifecycle

PURPOSE:
  Orchestrates the only writes to the ledger: create, confirm, cancel.
  The pure engines (availability, validation, pricing) are called from
  here with a fresh parameter snapshot on every operation.

STATE MACHINE:
  requested -> confirmed
  requested -> cancelled
  confirmed -> cancelled
  cancelled is terminal.

CREATE - The critical operation:
  1. Lock the candidate's [arrival, departure] range (RangeLocker)
  2. Open a store transaction
  3. Re-read overlapping reservations and recompute availability
  4. Validate (all rules) and price
  5. Insert as requested

  Two creates touching overlapping dates never run steps 3-5 at the same
  time, so at most one of two conflicting requests succeeds. A failed
  create writes nothing.

CONFIRM / CANCEL:
  Only need row-level atomicity: UpdateStatus is a compare-and-swap on the
  current status. Cancelling frees dates, which is safe alongside creates.

ERRORS:
  - *ValidationErrors     candidate rejected (full list)
  - *InvalidStateError    illegal transition
  - *TransientError       contention or timeout, retry is safe
  - *ConfigurationError   parameters unusable

SEE ALSO:
  - lock.go: RangeLocker
  - store.go: TxStore
*/
package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Store  TxStore
	Params ParameterSource
	Locker *RangeLocker

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

func NewService(store TxStore, params ParameterSource) *Service {
	return &Service{
		Store:  store,
		Params: params,
		Locker: NewRangeLocker(),
		Now:    time.Now,
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Service) parameters(ctx context.Context) (Parameters, error) {
	params, err := s.Params.Parameters(ctx)
	if err != nil {
		return Parameters{}, asTransient("load parameters", err)
	}
	return params, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Availability computes the free/busy signal for [from, to].
func (s *Service) Availability(ctx context.Context, from, to Date) (Availability, error) {
	if _, err := NewAvailabilityWindow(from, to); err != nil {
		return nil, err
	}
	params, err := s.parameters(ctx)
	if err != nil {
		return nil, err
	}
	existing, err := s.Store.FindOverlapping(ctx, from, to)
	if err != nil {
		return nil, asTransient("find overlapping", err)
	}
	return ComputeAvailability(existing, from, to, params)
}

// Quote prices c and reports whether it would currently validate. Nothing
// is written.
func (s *Service) Quote(ctx context.Context, c Candidate) (PriceBreakdown, ValidationResult, error) {
	params, err := s.parameters(ctx)
	if err != nil {
		return PriceBreakdown{}, ValidationResult{}, err
	}

	var availability Availability
	if lockable(c) {
		existing, err := s.Store.FindOverlapping(ctx, c.ArrivalDate, c.DepartureDate)
		if err != nil {
			return PriceBreakdown{}, ValidationResult{}, asTransient("find overlapping", err)
		}
		availability, err = ComputeAvailability(existing, c.ArrivalDate, c.DepartureDate, params)
		if err != nil {
			return PriceBreakdown{}, ValidationResult{}, err
		}
	}

	return Price(c, params), Validate(c, availability, params, s.now()), nil
}

func (s *Service) Get(ctx context.Context, id ReservationID) (*Reservation, error) {
	r, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, asTransient("get reservation", err)
	}
	return r, nil
}

func (s *Service) List(ctx context.Context, filter ReservationFilter) ([]Reservation, error) {
	rs, err := s.Store.List(ctx, filter)
	if err != nil {
		return nil, asTransient("list reservations", err)
	}
	return rs, nil
}

// =============================================================================
// CREATE
// =============================================================================

// lockable reports whether c has an ordered range no longer than
// MaxStayNights, the only stays worth locking and reading for.
func lockable(c Candidate) bool {
	if c.ArrivalDate.IsZero() || c.DepartureDate.IsZero() || !c.ArrivalDate.Before(c.DepartureDate) {
		return false
	}
	return c.Nights() <= MaxStayNights
}

type CreateInput struct {
	Candidate
	Client Client
}

type CreateResult struct {
	Reservation Reservation
	Price       PriceBreakdown
}

// Create validates and persists a new reservation in requested state.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	params, err := s.parameters(ctx)
	if err != nil {
		return nil, err
	}

	c := in.Candidate
	if !lockable(c) {
		// No sane range to lock or read; report every rule that fails on its own.
		return nil, Validate(c, nil, params, s.now()).Err()
	}

	unlock, err := s.Locker.Lock(ctx, c.Range())
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *CreateResult
	err = s.Store.WithTx(ctx, func(tx ReservationStore) error {
		existing, err := tx.FindOverlapping(ctx, c.ArrivalDate, c.DepartureDate)
		if err != nil {
			return fmt.Errorf("find overlapping: %w", err)
		}

		availability, err := ComputeAvailability(existing, c.ArrivalDate, c.DepartureDate, params)
		if err != nil {
			return err
		}
		if err := Validate(c, availability, params, s.now()).Err(); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		price := Price(c, params)
		now := s.now().UTC()
		r := Reservation{
			ID:              ReservationID(uuid.NewString()),
			Candidate:       c,
			Client:          in.Client,
			Status:          StatusRequested,
			EstimatedAmount: price.Total,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.Insert(ctx, r); err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}

		result = &CreateResult{Reservation: r, Price: price}
		return nil
	})
	if err != nil {
		return nil, asTransient("create reservation", err)
	}

	log.Printf("[Booking] reservation %s requested: %s %s -> %s %s, %d adults, %d children, estimate %s",
		result.Reservation.ID, c.ArrivalDate, c.ArrivalBlock, c.DepartureDate, c.DepartureBlock,
		c.Adults, c.Children, result.Price.Total)
	return result, nil
}

// =============================================================================
// CONFIRM
// =============================================================================

// ConfirmInput carries the administrator's decisions. Nil fields keep the
// reservation's values; a nil FinalAmount re-prices the stay.
type ConfirmInput struct {
	FinalAmount      *decimal.Decimal
	Adults           *int
	Children         *int
	DepositAmount    *decimal.Decimal
	DepositReference string
}

// Confirm moves a requested reservation to confirmed.
func (s *Service) Confirm(ctx context.Context, id ReservationID, in ConfirmInput) (*Reservation, error) {
	params, err := s.parameters(ctx)
	if err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusRequested {
		return nil, &InvalidStateError{ID: id, From: current.Status, Action: "confirm"}
	}

	updated := *current
	adjusted := false
	if in.Adults != nil {
		updated.Adults = *in.Adults
		adjusted = true
	}
	if in.Children != nil {
		updated.Children = *in.Children
		adjusted = true
	}

	var verrs []ValidationError
	if adjusted {
		verrs = append(verrs, ValidateParty(updated.Candidate, params)...)
	}
	if in.FinalAmount != nil && in.FinalAmount.IsNegative() {
		verrs = append(verrs, ValidationError{Rule: RuleAmount, Message: "final amount must not be negative"})
	}
	if in.DepositAmount != nil && in.DepositAmount.IsNegative() {
		verrs = append(verrs, ValidationError{Rule: RuleAmount, Message: "deposit amount must not be negative"})
	}
	if len(verrs) > 0 {
		return nil, &ValidationErrors{Errors: verrs}
	}

	final := Price(updated.Candidate, params).Total
	if in.FinalAmount != nil {
		final = in.FinalAmount.Round(0)
	}

	now := s.now().UTC()
	updated.Status = StatusConfirmed
	updated.FinalAmount = &final
	updated.DepositAmount = in.DepositAmount
	updated.DepositReference = strings.TrimSpace(in.DepositReference)
	updated.ConfirmedAt = &now
	updated.UpdatedAt = now

	if err := s.updateStatus(ctx, updated, StatusRequested, "confirm"); err != nil {
		return nil, err
	}

	log.Printf("[Booking] reservation %s confirmed: final %s", id, final)
	return &updated, nil
}

// =============================================================================
// CANCEL
// =============================================================================

type CancelResult struct {
	Reservation    Reservation
	RefundEligible bool
}

// RefundEligible reports whether cancelling on today is early enough:
// days until arrival >= CancellationRefundableDays.
func RefundEligible(arrival, today Date, params Parameters) bool {
	return DaysBetween(today, arrival) >= params.CancellationRefundableDays
}

// Cancel moves a requested or confirmed reservation to cancelled and
// records refund eligibility. No money moves here.
func (s *Service) Cancel(ctx context.Context, id ReservationID, reason string) (*CancelResult, error) {
	params, err := s.parameters(ctx)
	if err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == StatusCancelled {
		return nil, &InvalidStateError{ID: id, From: current.Status, Action: "cancel"}
	}

	now := s.now()
	eligible := RefundEligible(current.ArrivalDate, params.Today(now), params)

	updated := *current
	cancelledAt := now.UTC()
	updated.Status = StatusCancelled
	updated.CancellationReason = strings.TrimSpace(reason)
	updated.RefundEligible = &eligible
	updated.CancelledAt = &cancelledAt
	updated.UpdatedAt = cancelledAt

	if err := s.updateStatus(ctx, updated, current.Status, "cancel"); err != nil {
		return nil, err
	}

	log.Printf("[Booking] reservation %s cancelled from %s (refund eligible: %t)", id, current.Status, eligible)
	return &CancelResult{Reservation: updated, RefundEligible: eligible}, nil
}

// updateStatus runs the compare-and-swap and, when it loses, reports the
// state the winner left behind.
func (s *Service) updateStatus(ctx context.Context, r Reservation, from Status, action string) error {
	err := s.Store.UpdateStatus(ctx, r, from)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConcurrentModification) {
		if latest, getErr := s.Store.Get(ctx, r.ID); getErr == nil && latest.Status != from {
			return &InvalidStateError{ID: r.ID, From: latest.Status, Action: action}
		}
	}
	return asTransient(action+" reservation", err)
}

// =============================================================================
// EXPIRY
// =============================================================================

// ExpiredReason is recorded on requests cancelled by ExpireStale.
const ExpiredReason = "expired: not confirmed before arrival"

// ExpireStale cancels requested reservations whose arrival date has passed
// without confirmation. Returns the number cancelled.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	params, err := s.parameters(ctx)
	if err != nil {
		return 0, err
	}

	today := params.Today(s.now())
	stale, err := s.List(ctx, ReservationFilter{
		Statuses:      []Status{StatusRequested},
		ArrivalBefore: &today,
	})
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, r := range stale {
		if _, err := s.Cancel(ctx, r.ID, ExpiredReason); err != nil {
			if errors.Is(err, ErrInvalidState) {
				// Confirmed or cancelled since the list was read.
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}
