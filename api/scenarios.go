/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Populates the ledger with realistic bookings so the calendar, quote,
  and lifecycle endpoints can be explored without hand-entering data.
  Every stay is created through booking.Service, so scenarios obey the
  same rules and pricing as real requests.

AVAILABLE SCENARIOS:
  empty:             Default parameters, no reservations
  busy-season:       Requested, confirmed, and cancelled stays over the next weeks
  same-day-turnover: Buffer off, two groups swapping on the same date
  strict-minimums:   Three-night minimum and smaller groups

HOW SCENARIOS WORK:
  1. Reset the store (reservations and parameters)
  2. Apply parameter overrides, if any
  3. Create stays relative to today in the property timezone
  4. Confirm or cancel some of them

USAGE VIA API:
  GET    /api/scenarios
  POST   /api/scenarios/load                {"scenario_id": "busy-season"}

NOTE:
  Scenarios wipe the database. The routes are only mounted when the
  server runs with DEMO_SCENARIOS=true.

SEE ALSO:
  - handlers.go: Handler and error helpers
  - booking/service.go: Create, Confirm, Cancel
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/stay-booking/booking"
	"github.com/warp/stay-booking/factory"
)

// Resetter wipes the store back to its initial state.
type Resetter interface {
	Reset(ctx context.Context) error
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "empty",
		Name:        "Empty Calendar",
		Description: "Default parameters and no reservations",
	},
	{
		ID:          "busy-season",
		Name:        "Busy Season",
		Description: "Requested, confirmed, and cancelled stays over the next six weeks",
	},
	{
		ID:          "same-day-turnover",
		Name:        "Same-Day Turnover",
		Description: "Half-day buffer disabled, one group leaves the morning another arrives",
	},
	{
		ID:          "strict-minimums",
		Name:        "Strict Minimums",
		Description: "Three-night minimum with 10-adult groups",
	},
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the loaded scenario, or null.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	loaders := map[string]func(context.Context) error{
		"empty":             func(context.Context) error { return nil },
		"busy-season":       h.loadBusySeasonScenario,
		"same-day-turnover": h.loadSameDayTurnoverScenario,
		"strict-minimums":   h.loadStrictMinimumsScenario,
	}
	load, ok := loaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	h.currentScenario = ""
	if err := h.Demo.Reset(ctx); err != nil {
		writeServiceError(w, "Failed to reset database", err)
		return
	}
	if err := load(ctx); err != nil {
		writeServiceError(w, fmt.Sprintf("Failed to load scenario %s", req.ScenarioID), err)
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// demoStay describes one booking relative to a base date.
type demoStay struct {
	client   string
	offset   int
	nights   int
	lateExit bool
	adults   int
	children int
	status   booking.Status
	deposit  int64
}

func (h *Handler) loadBusySeasonScenario(ctx context.Context) error {
	return h.createStays(ctx, 14, []demoStay{
		{client: "Scout Group 12", offset: 0, nights: 2, adults: 22, children: 8, status: booking.StatusConfirmed, deposit: 200000},
		{client: "Riverside Parish", offset: 5, nights: 3, adults: 30, status: booking.StatusRequested},
		{client: "Mountain Club", offset: 10, nights: 2, lateExit: true, adults: 20, children: 2, status: booking.StatusConfirmed},
		{client: "Family Reunion", offset: 15, nights: 2, adults: 25, children: 20, status: booking.StatusCancelled},
		{client: "Choir Retreat", offset: 21, nights: 4, adults: 40, status: booking.StatusRequested},
	})
}

func (h *Handler) loadSameDayTurnoverScenario(ctx context.Context) error {
	if err := h.applyParameters(ctx, map[string]any{booking.KeyBufferHalfDay: false}); err != nil {
		return err
	}
	return h.createStays(ctx, 7, []demoStay{
		{client: "Departing Group", offset: 0, nights: 2, adults: 20, status: booking.StatusConfirmed},
		{client: "Arriving Group", offset: 2, nights: 2, adults: 24, children: 6, status: booking.StatusRequested},
	})
}

func (h *Handler) loadStrictMinimumsScenario(ctx context.Context) error {
	err := h.applyParameters(ctx, map[string]any{
		booking.KeyMinNights: float64(3),
		booking.KeyMinAdults: float64(10),
	})
	if err != nil {
		return err
	}
	return h.createStays(ctx, 10, []demoStay{
		{client: "Book Club", offset: 0, nights: 3, adults: 12, status: booking.StatusRequested},
	})
}

func (h *Handler) applyParameters(ctx context.Context, values map[string]any) error {
	records, err := factory.RecordsFromValues(values)
	if err != nil {
		return err
	}
	_, err = h.Params.Update(ctx, records)
	return err
}

// createStays books each stay starting lead days from today. Arrivals are
// at night and departures in the morning unless lateExit is set.
func (h *Handler) createStays(ctx context.Context, lead int, stays []demoStay) error {
	params, err := h.Params.Parameters(ctx)
	if err != nil {
		return err
	}
	base := params.Today(h.Service.Now()).AddDays(lead)

	for _, s := range stays {
		arrival := base.AddDays(s.offset)
		departureBlock := booking.BlockMorning
		if s.lateExit {
			departureBlock = booking.BlockNight
		}

		result, err := h.Service.Create(ctx, booking.CreateInput{
			Candidate: booking.Candidate{
				ArrivalDate:    arrival,
				ArrivalBlock:   booking.BlockNight,
				DepartureDate:  arrival.AddDays(s.nights),
				DepartureBlock: departureBlock,
				Adults:         s.adults,
				Children:       s.children,
			},
			Client: booking.Client{
				Name:         s.client,
				Email:        fmt.Sprintf("contact+%d@example.com", s.offset),
				Organization: s.client,
			},
		})
		if err != nil {
			return fmt.Errorf("create %s: %w", s.client, err)
		}
		id := result.Reservation.ID

		switch s.status {
		case booking.StatusConfirmed:
			in := booking.ConfirmInput{}
			if s.deposit > 0 {
				deposit := decimal.NewFromInt(s.deposit)
				in.DepositAmount = &deposit
				in.DepositReference = "DEMO-" + string(id)[:8]
			}
			if _, err := h.Service.Confirm(ctx, id, in); err != nil {
				return fmt.Errorf("confirm %s: %w", s.client, err)
			}
		case booking.StatusCancelled:
			if _, err := h.Service.Cancel(ctx, id, "changed plans"); err != nil {
				return fmt.Errorf("cancel %s: %w", s.client, err)
			}
		}
	}
	return nil
}
