/*
handlers_test.go - HTTP tests for the booking API

Tests for:
- Reservation lifecycle over HTTP (create, confirm, cancel)
- Status mapping (400, 404, 409, 422, 503)
- Availability and quote endpoints
- Parameter read/update
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stay-booking/booking"
	"github.com/warp/stay-booking/factory"
	"github.com/warp/stay-booking/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var testNow = time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC)

type testServer struct {
	router  http.Handler
	service *booking.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	params := factory.NewParameterProvider(store)
	service := booking.NewService(store, params)
	service.Now = func() time.Time { return testNow }

	return &testServer{
		router:  NewRouter(NewHandler(service, params), nil),
		service: service,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func createRequest(arrival, arrivalBlock, departure, departureBlock string, adults, children int) CreateReservationRequest {
	return CreateReservationRequest{
		StayRequest: StayRequest{
			ArrivalDate:    arrival,
			ArrivalBlock:   arrivalBlock,
			DepartureDate:  departure,
			DepartureBlock: departureBlock,
			Adults:         adults,
			Children:       children,
		},
		Client: ClientDTO{
			Name:  "Scout Group 12",
			Email: "leader@example.com",
		},
	}
}

func (ts *testServer) create(t *testing.T) ReservationDTO {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/reservations",
		createRequest("2026-03-10", "night", "2026-03-12", "morning", 20, 0))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[CreateReservationResponse](t, rec).Reservation
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreateReservation_Created(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/reservations",
		createRequest("2026-03-10", "night", "2026-03-12", "morning", 20, 0))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "800000", resp["estimated_amount"])

	res := resp["reservation"].(map[string]any)
	assert.Equal(t, "requested", res["status"])
	assert.Equal(t, "2026-03-10", res["arrival_date"])
	assert.Equal(t, float64(2), res["nights"])
	assert.NotEmpty(t, res["id"])
}

func TestCreateReservation_RulesViolated(t *testing.T) {
	ts := newTestServer(t)

	// GIVEN: One night, too few adults
	rec := ts.do(t, http.MethodPost, "/api/reservations",
		createRequest("2026-03-10", "night", "2026-03-11", "morning", 5, 0))

	// THEN: 422 with every violated rule
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeBody[ValidationErrorResponse](t, rec)
	var got []string
	for _, e := range resp.Errors {
		got = append(got, e.Rule)
	}
	assert.ElementsMatch(t, []string{"min_nights", "min_adults"}, got)
}

func TestCreateReservation_Conflict(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t)

	rec := ts.do(t, http.MethodPost, "/api/reservations",
		createRequest("2026-03-11", "night", "2026-03-13", "morning", 20, 0))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeBody[ValidationErrorResponse](t, rec)
	require.NotEmpty(t, resp.Errors)
	assert.Equal(t, "date_unavailable", resp.Errors[0].Rule)
	assert.NotEmpty(t, resp.Errors[0].Date)
	assert.NotEmpty(t, resp.Errors[0].Block)
}

func TestCreateReservation_BadInput(t *testing.T) {
	ts := newTestServer(t)

	missingEmail := createRequest("2026-03-10", "night", "2026-03-12", "morning", 20, 0)
	missingEmail.Client.Email = ""

	badBlock := createRequest("2026-03-10", "noon", "2026-03-12", "morning", 20, 0)
	badDate := createRequest("10/03/2026", "night", "2026-03-12", "morning", 20, 0)
	negative := createRequest("2026-03-10", "night", "2026-03-12", "morning", 20, -1)

	cases := map[string]any{
		"malformed json": `{"arrival_date": `,
		"missing email":  missingEmail,
		"bad block":      badBlock,
		"bad date":       badDate,
		"negative count": negative,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/reservations", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

// =============================================================================
// READ
// =============================================================================

func TestGetReservation(t *testing.T) {
	ts := newTestServer(t)
	created := ts.create(t)

	rec := ts.do(t, http.MethodGet, "/api/reservations/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decodeBody[ReservationResponse](t, rec).Reservation.ID)

	rec = ts.do(t, http.MethodGet, "/api/reservations/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListReservations(t *testing.T) {
	ts := newTestServer(t)
	created := ts.create(t)

	rec := ts.do(t, http.MethodGet, "/api/reservations?status=requested", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]ReservationDTO](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	rec = ts.do(t, http.MethodGet, "/api/reservations?status=confirmed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]ReservationDTO](t, rec))

	rec = ts.do(t, http.MethodGet, "/api/reservations?status=pending", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAvailability(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t)

	rec := ts.do(t, http.MethodGet, "/api/availability?from=2026-03-09&to=2026-03-13", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[AvailabilityResponse](t, rec)
	require.Len(t, resp.Dates, 5)
	assert.Equal(t, DateBlockDTO{Date: "2026-03-09", MorningAvailable: true, NightAvailable: true}, resp.Dates[0])
	assert.Equal(t, DateBlockDTO{Date: "2026-03-10", MorningAvailable: false, NightAvailable: false}, resp.Dates[1])
	assert.Equal(t, DateBlockDTO{Date: "2026-03-13", MorningAvailable: true, NightAvailable: true}, resp.Dates[4])
}

func TestGetAvailability_BadRange(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/availability?from=2026-03-13&to=2026-03-09", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/availability?from=2026-03-13", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/availability?from=0002-01-01&to=9999-12-31", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateReservation_OverlongStay(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/reservations",
		createRequest("2026-03-10", "night", "2426-03-10", "morning", 20, 0))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeBody[ValidationErrorResponse](t, rec)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "max_nights", resp.Errors[0].Rule)
}

func TestQuote(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/quote", StayRequest{
		ArrivalDate: "2026-03-10", ArrivalBlock: "night",
		DepartureDate: "2026-03-12", DepartureBlock: "night",
		Adults: 20, Children: 4,
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, resp["valid"])
	price := resp["price"].(map[string]any)
	assert.Equal(t, "1100000", price["total"])
	assert.Equal(t, float64(1), price["half_days"])

	// Nothing was written
	rec = ts.do(t, http.MethodGet, "/api/reservations", nil)
	assert.Empty(t, decodeBody[[]ReservationDTO](t, rec))
}

// =============================================================================
// CONFIRM / CANCEL
// =============================================================================

func TestConfirmReservation(t *testing.T) {
	ts := newTestServer(t)
	created := ts.create(t)

	// WHEN: Confirming with an agreed price
	rec := ts.do(t, http.MethodPost, "/api/reservations/"+created.ID+"/confirm",
		`{"final_amount": 750000, "deposit_amount": "200000", "deposit_reference": "TRX-9"}`)

	// THEN
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[map[string]any](t, rec)["reservation"].(map[string]any)
	assert.Equal(t, "confirmed", res["status"])
	assert.Equal(t, "750000", res["final_amount"])
	assert.Equal(t, "200000", res["deposit_amount"])
	assert.Equal(t, "TRX-9", res["deposit_reference"])

	// AND: Confirming again is a conflict
	rec = ts.do(t, http.MethodPost, "/api/reservations/"+created.ID+"/confirm", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestConfirmReservation_EmptyBody(t *testing.T) {
	ts := newTestServer(t)
	created := ts.create(t)

	rec := ts.do(t, http.MethodPost, "/api/reservations/"+created.ID+"/confirm", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[map[string]any](t, rec)["reservation"].(map[string]any)
	assert.Equal(t, "800000", res["final_amount"])
}

func TestConfirmReservation_InvalidAdjustment(t *testing.T) {
	ts := newTestServer(t)
	created := ts.create(t)

	rec := ts.do(t, http.MethodPost, "/api/reservations/"+created.ID+"/confirm", `{"adults": 70}`)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeBody[ValidationErrorResponse](t, rec)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "max_people", resp.Errors[0].Rule)
}

func TestCancelReservation(t *testing.T) {
	ts := newTestServer(t)
	created := ts.create(t)

	rec := ts.do(t, http.MethodPost, "/api/reservations/"+created.ID+"/cancel", CancelReservationRequest{Reason: "weather"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[CancelReservationResponse](t, rec)
	assert.True(t, resp.RefundEligible)
	assert.Equal(t, "cancelled", resp.Reservation.Status)
	assert.Equal(t, "weather", resp.Reservation.CancellationReason)

	// Cancelling again is a conflict, unknown ids are not found
	rec = ts.do(t, http.MethodPost, "/api/reservations/"+created.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/reservations/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// PARAMETERS
// =============================================================================

func TestParameters_GetAndUpdate(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/parameters", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decodeBody[ParametersDTO](t, rec).MinNights)

	rec = ts.do(t, http.MethodPut, "/api/parameters", `{"min_nights": 3, "buffer_half_day": false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[ParametersDTO](t, rec)
	assert.Equal(t, 3, updated.MinNights)
	assert.False(t, updated.BufferHalfDay)

	// The next booking sees the new minimum
	rec = ts.do(t, http.MethodPost, "/api/reservations",
		createRequest("2026-03-10", "night", "2026-03-12", "morning", 20, 0))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestParameters_RejectsInvalidUpdate(t *testing.T) {
	ts := newTestServer(t)

	for _, body := range []string{
		`{"min_nights": 0}`,
		`{"min_nights": "three"}`,
		`{"unknown": 1}`,
		`{}`,
		`not json`,
	} {
		rec := ts.do(t, http.MethodPut, "/api/parameters", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	rec := ts.do(t, http.MethodGet, "/api/parameters", nil)
	assert.Equal(t, 2, decodeBody[ParametersDTO](t, rec).MinNights)
}

// =============================================================================
// MISC
// =============================================================================

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[HealthResponse](t, rec).Status)
}

func TestWriteServiceError_Mapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"transient", &booking.TransientError{Op: "insert", Err: context.DeadlineExceeded}, http.StatusServiceUnavailable},
		{"invalid state", &booking.InvalidStateError{ID: "r1", From: booking.StatusCancelled, Action: "confirm"}, http.StatusConflict},
		{"not found", booking.ErrReservationNotFound, http.StatusNotFound},
		{"invalid range", &booking.InvalidRangeError{}, http.StatusBadRequest},
		{"validation", &booking.ValidationErrors{Errors: []booking.ValidationError{{Rule: booking.RuleMinNights}}}, http.StatusUnprocessableEntity},
		{"configuration", &booking.ConfigurationError{Key: "min_nights", Reason: "bad"}, http.StatusInternalServerError},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, "failed", tt.err)
			assert.Equal(t, tt.status, rec.Code)
			assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json"))
		})
	}

	rec := httptest.NewRecorder()
	writeServiceError(rec, "failed", &booking.TransientError{Op: "insert", Err: context.Canceled})
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}
