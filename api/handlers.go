/*
handlers.go - HTTP API handlers for the stay booking engine

PURPOSE:
  Exposes the booking service via REST API. Handles HTTP request/response,
  JSON serialization, request-shape validation, and delegates to the
  booking service.

ENDPOINTS:
  Availability:
    GET    /api/availability?from=&to=        Free/busy per date and block

  Reservations:
    GET    /api/reservations?status=          List reservations
    POST   /api/reservations                  Create (requested)
    GET    /api/reservations/{id}             Get one
    POST   /api/reservations/{id}/confirm     requested -> confirmed
    POST   /api/reservations/{id}/cancel      requested|confirmed -> cancelled

  Pricing:
    POST   /api/quote                         Price + validation, no write

  Parameters:
    GET    /api/parameters                    Current snapshot
    PUT    /api/parameters                    Partial update, validated

  Health:
    GET    /api/health

  Scenarios (DEMO_SCENARIOS=true only):
    GET    /api/scenarios                     List demo scenarios
    GET    /api/scenarios/current             Loaded scenario
    POST   /api/scenarios/load                Reset and load one

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed body, shape validation, invalid date range
  - 404: Reservation not found
  - 409: Illegal lifecycle transition
  - 422: Booking rules violated (full list in "errors")
  - 503: Transient storage failure, Retry-After set
  - 500: Parameters unusable, internal errors

SECURITY NOTE:
  No authentication or authorization. Confirm, cancel, and parameter
  edits are administrator actions and must sit behind a gateway that
  enforces that.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scenarios.go: Demo scenario loaders
  - booking/service.go: Lifecycle operations
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/warp/stay-booking/booking"
	"github.com/warp/stay-booking/factory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *booking.Service
	Params  *factory.ParameterProvider

	// Demo enables the scenario endpoints when set.
	Demo Resetter

	validate *validator.Validate

	// Serializes scenario loads and tracks the loaded one
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler.
func NewHandler(service *booking.Service, params *factory.ParameterProvider) *Handler {
	return &Handler{
		Service:  service,
		Params:   params,
		validate: validator.New(),
	}
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports liveness.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// =============================================================================
// AVAILABILITY
// =============================================================================

// GetAvailability returns one entry per date in [from, to].
// GET /api/availability?from=2026-03-01&to=2026-03-31
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	from, err := booking.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid 'from' date, expected YYYY-MM-DD", err)
		return
	}
	to, err := booking.ParseDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid 'to' date, expected YYYY-MM-DD", err)
		return
	}

	availability, err := h.Service.Availability(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, "Failed to compute availability", err)
		return
	}

	dates := make([]DateBlockDTO, len(availability))
	for i, s := range availability {
		dates[i] = DateBlockDTO{
			Date:             s.Date.String(),
			MorningAvailable: s.MorningAvailable,
			NightAvailable:   s.NightAvailable,
		}
	}

	writeJSON(w, http.StatusOK, AvailabilityResponse{
		From:  from.String(),
		To:    to.String(),
		Dates: dates,
	})
}

// =============================================================================
// RESERVATIONS
// =============================================================================

// ListReservations returns reservations, optionally filtered by status.
// GET /api/reservations?status=requested,confirmed
func (h *Handler) ListReservations(w http.ResponseWriter, r *http.Request) {
	var filter booking.ReservationFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := booking.Status(strings.TrimSpace(s))
			if !status.Valid() {
				writeError(w, http.StatusBadRequest, "Invalid status: "+string(status), nil)
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	reservations, err := h.Service.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, "Failed to list reservations", err)
		return
	}

	dtos := make([]ReservationDTO, len(reservations))
	for i, res := range reservations {
		dtos[i] = toReservationDTO(res)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetReservation returns a single reservation.
// GET /api/reservations/{id}
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	id := booking.ReservationID(chi.URLParam(r, "id"))

	res, err := h.Service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, "Failed to get reservation", err)
		return
	}
	writeJSON(w, http.StatusOK, ReservationResponse{Reservation: toReservationDTO(*res)})
}

// CreateReservation validates and stores a new requested reservation.
// POST /api/reservations
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req CreateReservationRequest
	if !h.decode(w, r, &req) {
		return
	}

	candidate, err := req.candidate()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid stay dates", err)
		return
	}

	result, err := h.Service.Create(r.Context(), booking.CreateInput{
		Candidate: candidate,
		Client:    req.Client.client(),
	})
	if err != nil {
		writeServiceError(w, "Failed to create reservation", err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateReservationResponse{
		Reservation:     toReservationDTO(result.Reservation),
		EstimatedAmount: result.Price.Total,
		Price:           toPriceDTO(result.Price),
	})
}

// ConfirmReservation moves a requested reservation to confirmed.
// POST /api/reservations/{id}/confirm
func (h *Handler) ConfirmReservation(w http.ResponseWriter, r *http.Request) {
	id := booking.ReservationID(chi.URLParam(r, "id"))

	var req ConfirmReservationRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	res, err := h.Service.Confirm(r.Context(), id, booking.ConfirmInput{
		FinalAmount:      req.FinalAmount,
		Adults:           req.Adults,
		Children:         req.Children,
		DepositAmount:    req.DepositAmount,
		DepositReference: req.DepositReference,
	})
	if err != nil {
		writeServiceError(w, "Failed to confirm reservation", err)
		return
	}
	writeJSON(w, http.StatusOK, ReservationResponse{Reservation: toReservationDTO(*res)})
}

// CancelReservation cancels a requested or confirmed reservation.
// POST /api/reservations/{id}/cancel
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	id := booking.ReservationID(chi.URLParam(r, "id"))

	var req CancelReservationRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	result, err := h.Service.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		writeServiceError(w, "Failed to cancel reservation", err)
		return
	}
	writeJSON(w, http.StatusOK, CancelReservationResponse{
		Reservation:    toReservationDTO(result.Reservation),
		RefundEligible: result.RefundEligible,
	})
}

// =============================================================================
// QUOTE
// =============================================================================

// Quote prices a stay and reports whether it would be accepted right now.
// POST /api/quote
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req StayRequest
	if !h.decode(w, r, &req) {
		return
	}

	candidate, err := req.candidate()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid stay dates", err)
		return
	}

	price, result, err := h.Service.Quote(r.Context(), candidate)
	if err != nil {
		writeServiceError(w, "Failed to quote stay", err)
		return
	}
	writeJSON(w, http.StatusOK, QuoteResponse{
		Price:  toPriceDTO(price),
		Valid:  result.Valid(),
		Errors: toValidationErrorDTOs(result.Errors),
	})
}

// =============================================================================
// PARAMETERS
// =============================================================================

// GetParameters returns the current parameter snapshot.
// GET /api/parameters
func (h *Handler) GetParameters(w http.ResponseWriter, r *http.Request) {
	params, err := h.Params.Parameters(r.Context())
	if err != nil {
		writeServiceError(w, "Failed to load parameters", err)
		return
	}
	writeJSON(w, http.StatusOK, toParametersDTO(params))
}

// UpdateParameters applies a partial update such as {"min_nights": 3}.
// PUT /api/parameters
func (h *Handler) UpdateParameters(w http.ResponseWriter, r *http.Request) {
	var values map[string]any
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(values) == 0 {
		writeError(w, http.StatusBadRequest, "No parameters to update", nil)
		return
	}

	records, err := factory.RecordsFromValues(values)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid parameters", err)
		return
	}

	params, err := h.Params.Update(r.Context(), records)
	if err != nil {
		if errors.Is(err, booking.ErrConfiguration) {
			writeError(w, http.StatusBadRequest, "Invalid parameters", err)
			return
		}
		writeServiceError(w, "Failed to update parameters", err)
		return
	}
	writeJSON(w, http.StatusOK, toParametersDTO(params))
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a JSON body and checks its shape. On failure it writes the
// 400 response and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// decodeOptional is decode for endpoints whose body may be empty.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// writeServiceError maps booking errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, message string, err error) {
	var verrs *booking.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusUnprocessableEntity, ValidationErrorResponse{
			Error:  "Reservation rejected",
			Errors: toValidationErrorDTOs(verrs.Errors),
		})
	case errors.Is(err, booking.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, message, err)
	case booking.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Reservation not found", err)
	case errors.Is(err, booking.ErrInvalidState):
		writeError(w, http.StatusConflict, message, err)
	case booking.IsRetryable(err):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
