package booking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stay-booking/booking"
	"github.com/warp/stay-booking/booking/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestService(t *testing.T) (*booking.Service, *fixedClock) {
	t.Helper()
	return newTestServiceWithStore(t, store.NewMemory())
}

func newTestServiceWithStore(t *testing.T, s booking.TxStore) (*booking.Service, *fixedClock) {
	t.Helper()
	clock := &fixedClock{now: testNow}
	svc := booking.NewService(s, booking.StaticParameters(booking.DefaultParameters()))
	svc.Now = clock.Now
	return svc, clock
}

func createInput(c booking.Candidate) booking.CreateInput {
	return booking.CreateInput{
		Candidate: c,
		Client: booking.Client{
			Name:  "Scout Group 12",
			Email: "leader@example.com",
		},
	}
}

func marchStay() booking.Candidate {
	return stay(date(3, 10), booking.BlockNight, date(3, 12), booking.BlockMorning, 20, 0)
}

func mustCreate(t *testing.T, svc *booking.Service, c booking.Candidate) booking.Reservation {
	t.Helper()
	result, err := svc.Create(context.Background(), createInput(c))
	require.NoError(t, err)
	return result.Reservation
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_Success(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// WHEN
	result, err := svc.Create(ctx, createInput(marchStay()))

	// THEN: Stored as requested with the computed estimate
	require.NoError(t, err)
	r := result.Reservation
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, booking.StatusRequested, r.Status)
	assert.True(t, r.EstimatedAmount.Equal(decimal.NewFromInt(800000)))
	assert.Nil(t, r.FinalAmount)
	assert.Equal(t, testNow.UTC(), r.CreatedAt)

	stored, err := svc.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Scout Group 12", stored.Client.Name)

	// AND: The dates are now held
	a, err := svc.Availability(ctx, date(3, 10), date(3, 12))
	require.NoError(t, err)
	assert.False(t, a.FullyAvailable())
}

func TestCreate_ValidationFailureWritesNothing(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// GIVEN: Too few adults for one night
	c := stay(date(3, 10), booking.BlockNight, date(3, 11), booking.BlockMorning, 5, 0)

	// WHEN
	_, err := svc.Create(ctx, createInput(c))

	// THEN
	var verrs *booking.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.True(t, verrs.HasRule(booking.RuleMinNights))
	assert.True(t, verrs.HasRule(booking.RuleMinAdults))

	all, err := svc.List(ctx, booking.ReservationFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreate_MalformedRangeReportsRules(t *testing.T) {
	svc, _ := newTestService(t)

	c := stay(date(3, 12), booking.BlockNight, date(3, 10), booking.BlockMorning, 20, 0)
	_, err := svc.Create(context.Background(), createInput(c))

	var verrs *booking.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.True(t, verrs.HasRule(booking.RuleArrivalBeforeDeparture))
	assert.Equal(t, 0, svc.Locker.Held())
}

func TestCreate_OverlongStayRejectedWithoutLocking(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// GIVEN: A departure four centuries out
	c := stay(date(3, 10), booking.BlockNight, booking.NewDate(2426, time.March, 10), booking.BlockMorning, 20, 0)

	// WHEN
	_, err := svc.Create(ctx, createInput(c))

	// THEN: Rejected on length, no lock held, nothing written
	var verrs *booking.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.True(t, verrs.HasRule(booking.RuleMaxNights))
	assert.Equal(t, 0, svc.Locker.Held())

	all, err := svc.List(ctx, booking.ReservationFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)

	// AND: Ordinary bookings still go through
	mustCreate(t, svc, marchStay())
}

func TestCreate_OverlapRejected(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, marchStay())

	// WHEN: A second stay overlaps by one night
	_, err := svc.Create(context.Background(), createInput(
		stay(date(3, 11), booking.BlockNight, date(3, 14), booking.BlockMorning, 20, 0)))

	// THEN
	assert.ErrorIs(t, err, booking.ErrDateUnavailable)
}

func TestCreate_ConcurrentIdenticalRequests(t *testing.T) {
	// GIVEN: Two clients racing for the same dates
	svc, _ := newTestService(t)
	ctx := context.Background()

	const workers = 2
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make([]error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, results[i] = svc.Create(ctx, createInput(marchStay()))
		}(i)
	}

	// WHEN
	close(start)
	wg.Wait()

	// THEN: Exactly one wins and the other sees the conflict
	succeeded, conflicted := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, booking.ErrDateUnavailable):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)

	requested, err := svc.List(ctx, booking.ReservationFilter{Statuses: []booking.Status{booking.StatusRequested}})
	require.NoError(t, err)
	assert.Len(t, requested, 1)
}

func TestCreate_ConcurrentOverlappingBurst(t *testing.T) {
	// GIVEN: Many overlapping stays submitted at once
	svc, _ := newTestService(t)
	ctx := context.Background()

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			c := stay(date(3, 10+offset%3), booking.BlockNight, date(3, 13+offset%3), booking.BlockMorning, 20, 0)
			if _, err := svc.Create(ctx, createInput(c)); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	// THEN: Every pair of stays overlaps, so exactly one is kept
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, svc.Locker.Held())
}

func TestCreate_DisjointStaysBothAccepted(t *testing.T) {
	svc, _ := newTestService(t)

	mustCreate(t, svc, marchStay())
	mustCreate(t, svc, stay(date(3, 20), booking.BlockNight, date(3, 22), booking.BlockMorning, 20, 0))

	all, err := svc.List(context.Background(), booking.ReservationFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0].ArrivalDate.Before(all[1].ArrivalDate))
}

func TestCreate_CancelledContextIsTransient(t *testing.T) {
	svc, _ := newTestService(t)

	// GIVEN: Another create holds the range
	unlock, err := svc.Locker.Lock(context.Background(), marchStay().Range())
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// WHEN
	_, err = svc.Create(ctx, createInput(marchStay()))

	// THEN
	assert.True(t, booking.IsRetryable(err), "got %v", err)
}

// =============================================================================
// QUOTE / AVAILABILITY
// =============================================================================

func TestQuote_DoesNotWrite(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	price, result, err := svc.Quote(ctx, marchStay())

	require.NoError(t, err)
	assert.True(t, result.Valid())
	assert.True(t, price.Total.Equal(decimal.NewFromInt(800000)))

	all, err := svc.List(ctx, booking.ReservationFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestQuote_ReportsConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, marchStay())

	_, result, err := svc.Quote(context.Background(), marchStay())

	require.NoError(t, err)
	assert.False(t, result.Valid())
	assert.NotEmpty(t, result.Conflicts())
}

func TestQuote_OverlongStay(t *testing.T) {
	svc, _ := newTestService(t)
	c := stay(date(3, 10), booking.BlockNight, booking.NewDate(9999, time.December, 30), booking.BlockMorning, 20, 0)

	price, result, err := svc.Quote(context.Background(), c)

	require.NoError(t, err)
	assert.Equal(t, []booking.Rule{booking.RuleMaxNights}, rules(result))
	assert.Equal(t, booking.DaysBetween(c.ArrivalDate, c.DepartureDate), price.Nights)
}

func TestAvailability_InvalidRange(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Availability(context.Background(), date(3, 12), date(3, 10))
	assert.ErrorIs(t, err, booking.ErrInvalidRange)

	_, err = svc.Availability(context.Background(), booking.NewDate(2, time.January, 1), booking.NewDate(9999, time.December, 31))
	assert.ErrorIs(t, err, booking.ErrInvalidRange)
}

// =============================================================================
// CONFIRM
// =============================================================================

func TestConfirm_DefaultsFinalAmountToPrice(t *testing.T) {
	svc, _ := newTestService(t)
	r := mustCreate(t, svc, marchStay())

	confirmed, err := svc.Confirm(context.Background(), r.ID, booking.ConfirmInput{})

	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.FinalAmount)
	assert.True(t, confirmed.FinalAmount.Equal(decimal.NewFromInt(800000)))
	assert.NotNil(t, confirmed.ConfirmedAt)
}

func TestConfirm_WithAdjustments(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	r := mustCreate(t, svc, marchStay())

	adults, children := 22, 3
	final := decimal.NewFromInt(750000)
	deposit := decimal.NewFromInt(200000)

	confirmed, err := svc.Confirm(ctx, r.ID, booking.ConfirmInput{
		FinalAmount:      &final,
		Adults:           &adults,
		Children:         &children,
		DepositAmount:    &deposit,
		DepositReference: "  TRX-001 ",
	})

	require.NoError(t, err)
	assert.Equal(t, 22, confirmed.Adults)
	assert.Equal(t, 3, confirmed.Children)
	assert.True(t, confirmed.FinalAmount.Equal(final))
	assert.True(t, confirmed.DepositAmount.Equal(deposit))
	assert.Equal(t, "TRX-001", confirmed.DepositReference)

	stored, err := svc.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, stored.Status)
	assert.Equal(t, 22, stored.Adults)
}

func TestConfirm_InvalidAdjustment(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	r := mustCreate(t, svc, marchStay())

	adults := 5
	negative := decimal.NewFromInt(-1)
	_, err := svc.Confirm(ctx, r.ID, booking.ConfirmInput{Adults: &adults, FinalAmount: &negative})

	var verrs *booking.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.True(t, verrs.HasRule(booking.RuleMinAdults))
	assert.True(t, verrs.HasRule(booking.RuleAmount))

	// Still requested
	stored, err := svc.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusRequested, stored.Status)
}

func TestConfirm_IllegalTransitions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	confirmed := mustCreate(t, svc, marchStay())
	_, err := svc.Confirm(ctx, confirmed.ID, booking.ConfirmInput{})
	require.NoError(t, err)

	// Confirming twice
	_, err = svc.Confirm(ctx, confirmed.ID, booking.ConfirmInput{})
	var stateErr *booking.InvalidStateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, booking.StatusConfirmed, stateErr.From)

	// Confirming a cancelled reservation
	cancelled := mustCreate(t, svc, stay(date(4, 1), booking.BlockNight, date(4, 3), booking.BlockMorning, 20, 0))
	_, err = svc.Cancel(ctx, cancelled.ID, "")
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, cancelled.ID, booking.ConfirmInput{})
	assert.ErrorIs(t, err, booking.ErrInvalidState)
}

func TestConfirm_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Confirm(context.Background(), "missing", booking.ConfirmInput{})

	assert.True(t, booking.IsNotFound(err))
}

// =============================================================================
// CANCEL
// =============================================================================

func TestCancel_RefundBoundary(t *testing.T) {
	// GIVEN: Today is Jan 10 and the refund window is 15 days
	svc, _ := newTestService(t)
	ctx := context.Background()

	// WHEN: Cancelling a stay 15 days ahead, then one 14 days ahead
	exactly := mustCreate(t, svc, stay(date(1, 25), booking.BlockNight, date(1, 27), booking.BlockMorning, 20, 0))
	onTime, err := svc.Cancel(ctx, exactly.ID, "plans changed")
	require.NoError(t, err)

	dayLate := mustCreate(t, svc, stay(date(1, 24), booking.BlockNight, date(1, 26), booking.BlockMorning, 20, 0))
	late, err := svc.Cancel(ctx, dayLate.ID, "plans changed")
	require.NoError(t, err)

	// THEN: 15 days ahead is eligible, 14 is not
	assert.True(t, onTime.RefundEligible)
	assert.False(t, late.RefundEligible)
	require.NotNil(t, onTime.Reservation.RefundEligible)
	assert.True(t, *onTime.Reservation.RefundEligible)
	assert.Equal(t, "plans changed", onTime.Reservation.CancellationReason)
}

func TestCancel_FreesDates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	r := mustCreate(t, svc, marchStay())

	_, err := svc.Cancel(ctx, r.ID, "")
	require.NoError(t, err)

	a, err := svc.Availability(ctx, date(3, 10), date(3, 12))
	require.NoError(t, err)
	assert.True(t, a.FullyAvailable())

	// The same dates can be booked again
	mustCreate(t, svc, marchStay())
}

func TestCancel_ConfirmedReservation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	r := mustCreate(t, svc, marchStay())
	_, err := svc.Confirm(ctx, r.ID, booking.ConfirmInput{})
	require.NoError(t, err)

	result, err := svc.Cancel(ctx, r.ID, "weather")

	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, result.Reservation.Status)
	assert.NotNil(t, result.Reservation.FinalAmount)
}

func TestCancel_Twice(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	r := mustCreate(t, svc, marchStay())

	_, err := svc.Cancel(ctx, r.ID, "")
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, r.ID, "")

	assert.ErrorIs(t, err, booking.ErrInvalidState)
	assert.True(t, booking.IsClientError(err))
}

func TestRefundEligible(t *testing.T) {
	params := booking.DefaultParameters()
	today := date(1, 10)

	assert.True(t, booking.RefundEligible(date(1, 25), today, params))
	assert.False(t, booking.RefundEligible(date(1, 24), today, params))
	assert.False(t, booking.RefundEligible(today, today, params))

	params.CancellationRefundableDays = 0
	assert.True(t, booking.RefundEligible(today, today, params))
}

// =============================================================================
// EXPIRY
// =============================================================================

func TestExpireStale(t *testing.T) {
	// GIVEN: One requested and one confirmed stay arriving Jan 20
	svc, clock := newTestService(t)
	ctx := context.Background()

	stale := mustCreate(t, svc, stay(date(1, 20), booking.BlockNight, date(1, 22), booking.BlockMorning, 20, 0))
	kept := mustCreate(t, svc, stay(date(1, 25), booking.BlockNight, date(1, 27), booking.BlockMorning, 20, 0))
	_, err := svc.Confirm(ctx, kept.ID, booking.ConfirmInput{})
	require.NoError(t, err)
	future := mustCreate(t, svc, stay(date(2, 20), booking.BlockNight, date(2, 22), booking.BlockMorning, 20, 0))

	// WHEN: The clock passes both arrivals
	clock.Set(time.Date(2026, time.January, 26, 9, 0, 0, 0, time.UTC))
	n, err := svc.ExpireStale(ctx)

	// THEN: Only the unconfirmed past request is cancelled
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := svc.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, got.Status)
	assert.Equal(t, booking.ExpiredReason, got.CancellationReason)

	got, err = svc.Get(ctx, kept.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, got.Status)

	got, err = svc.Get(ctx, future.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusRequested, got.Status)

	// Running again finds nothing
	n, err = svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
