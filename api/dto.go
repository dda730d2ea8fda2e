/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the booking model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Response wrappers

TYPES:
  Availability:
    AvailabilityResponse, DateBlockDTO

  Reservations:
    CreateReservationRequest, ConfirmReservationRequest,
    CancelReservationRequest, ReservationDTO, ClientDTO

  Pricing:
    QuoteResponse, PriceDTO

  Scenarios:
    LoadScenarioRequest, ScenarioDTO

  Errors:
    ErrorResponse, ValidationErrorResponse, ValidationErrorDTO

VALIDATION:
  Request shape (required fields, date layout, block names, non-negative
  counts, email) is checked with go-playground/validator struct tags before
  anything reaches the booking service. Business rules (minimum nights,
  party size, conflicts) are the service's job and come back as 422.

SEE ALSO:
  - handlers.go: Uses these types
  - booking/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/stay-booking/booking"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ClientDTO carries contact details, in requests and responses.
type ClientDTO struct {
	Name         string `json:"name" validate:"required,max=200"`
	Email        string `json:"email" validate:"required,email"`
	Phone        string `json:"phone,omitempty" validate:"max=50"`
	Organization string `json:"organization,omitempty" validate:"max=200"`
	Notes        string `json:"notes,omitempty" validate:"max=2000"`
}

// StayRequest is the candidate stay shared by create and quote.
type StayRequest struct {
	ArrivalDate    string `json:"arrival_date" validate:"required,datetime=2006-01-02"`
	ArrivalBlock   string `json:"arrival_block" validate:"required,oneof=morning night"`
	DepartureDate  string `json:"departure_date" validate:"required,datetime=2006-01-02"`
	DepartureBlock string `json:"departure_block" validate:"required,oneof=morning night"`
	Adults         int    `json:"adults" validate:"min=0"`
	Children       int    `json:"children" validate:"min=0"`
}

// CreateReservationRequest is the body of POST /api/reservations.
type CreateReservationRequest struct {
	StayRequest
	Client ClientDTO `json:"client"`
}

// ConfirmReservationRequest is the body of POST /api/reservations/{id}/confirm.
// Every field is optional.
type ConfirmReservationRequest struct {
	FinalAmount      *decimal.Decimal `json:"final_amount,omitempty"`
	Adults           *int             `json:"adults,omitempty" validate:"omitempty,min=0"`
	Children         *int             `json:"children,omitempty" validate:"omitempty,min=0"`
	DepositAmount    *decimal.Decimal `json:"deposit_amount,omitempty"`
	DepositReference string           `json:"deposit_reference,omitempty" validate:"max=200"`
}

// CancelReservationRequest is the body of POST /api/reservations/{id}/cancel.
type CancelReservationRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// candidate converts a shape-valid request into the booking type.
func (s StayRequest) candidate() (booking.Candidate, error) {
	arrival, err := booking.ParseDate(s.ArrivalDate)
	if err != nil {
		return booking.Candidate{}, err
	}
	departure, err := booking.ParseDate(s.DepartureDate)
	if err != nil {
		return booking.Candidate{}, err
	}
	return booking.Candidate{
		ArrivalDate:    arrival,
		ArrivalBlock:   booking.Block(s.ArrivalBlock),
		DepartureDate:  departure,
		DepartureBlock: booking.Block(s.DepartureBlock),
		Adults:         s.Adults,
		Children:       s.Children,
	}, nil
}

func (c ClientDTO) client() booking.Client {
	return booking.Client{
		Name:         c.Name,
		Email:        c.Email,
		Phone:        c.Phone,
		Organization: c.Organization,
		Notes:        c.Notes,
	}
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// DateBlockDTO is the availability of one calendar date.
type DateBlockDTO struct {
	Date             string `json:"date"`
	MorningAvailable bool   `json:"morning_available"`
	NightAvailable   bool   `json:"night_available"`
}

// AvailabilityResponse is returned by GET /api/availability.
type AvailabilityResponse struct {
	From  string         `json:"from"`
	To    string         `json:"to"`
	Dates []DateBlockDTO `json:"dates"`
}

// ReservationDTO represents a reservation in API responses.
type ReservationDTO struct {
	ID             string    `json:"id"`
	Status         string    `json:"status"`
	ArrivalDate    string    `json:"arrival_date"`
	ArrivalBlock   string    `json:"arrival_block"`
	DepartureDate  string    `json:"departure_date"`
	DepartureBlock string    `json:"departure_block"`
	Nights         int       `json:"nights"`
	Adults         int       `json:"adults"`
	Children       int       `json:"children"`
	Client         ClientDTO `json:"client"`

	EstimatedAmount  decimal.Decimal  `json:"estimated_amount"`
	FinalAmount      *decimal.Decimal `json:"final_amount,omitempty"`
	DepositAmount    *decimal.Decimal `json:"deposit_amount,omitempty"`
	DepositReference string           `json:"deposit_reference,omitempty"`
	ConfirmedAt      string           `json:"confirmed_at,omitempty"`

	CancellationReason string `json:"cancellation_reason,omitempty"`
	RefundEligible     *bool  `json:"refund_eligible,omitempty"`
	CancelledAt        string `json:"cancelled_at,omitempty"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// PriceDTO is the monetary breakdown of a stay.
type PriceDTO struct {
	Nights        int             `json:"nights"`
	FullDays      int             `json:"full_days"`
	HalfDays      int             `json:"half_days"`
	AdultSubtotal decimal.Decimal `json:"adult_subtotal"`
	ChildSubtotal decimal.Decimal `json:"child_subtotal"`
	Total         decimal.Decimal `json:"total"`
}

// CreateReservationResponse is returned by POST /api/reservations.
type CreateReservationResponse struct {
	Reservation     ReservationDTO  `json:"reservation"`
	EstimatedAmount decimal.Decimal `json:"estimated_amount"`
	Price           PriceDTO        `json:"price"`
}

// ReservationResponse wraps a single reservation.
type ReservationResponse struct {
	Reservation ReservationDTO `json:"reservation"`
}

// CancelReservationResponse is returned by POST /api/reservations/{id}/cancel.
type CancelReservationResponse struct {
	Reservation    ReservationDTO `json:"reservation"`
	RefundEligible bool           `json:"refund_eligible"`
}

// QuoteResponse is returned by POST /api/quote.
type QuoteResponse struct {
	Price  PriceDTO             `json:"price"`
	Valid  bool                 `json:"valid"`
	Errors []ValidationErrorDTO `json:"errors"`
}

// ParametersDTO is the typed view of the system parameters.
type ParametersDTO struct {
	AdultPricePerDay           decimal.Decimal `json:"adult_price_per_day"`
	ChildPricePerDay           decimal.Decimal `json:"child_price_per_day"`
	MinAdults                  int             `json:"min_adults"`
	MaxTotalPeople             int             `json:"max_total_people"`
	MinNights                  int             `json:"min_nights"`
	BufferHalfDay              bool            `json:"buffer_half_day"`
	MaxChildAge                int             `json:"max_child_age"`
	CancellationRefundableDays int             `json:"cancellation_refundable_days"`
	Timezone                   string          `json:"timezone"`
}

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ValidationErrorDTO is one violated booking rule.
type ValidationErrorDTO struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
	Date    string `json:"date,omitempty"`
	Block   string `json:"block,omitempty"`
}

// ValidationErrorResponse lists every violated rule, never truncated.
type ValidationErrorResponse struct {
	Error  string               `json:"error"`
	Errors []ValidationErrorDTO `json:"errors"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toReservationDTO(r booking.Reservation) ReservationDTO {
	return ReservationDTO{
		ID:             string(r.ID),
		Status:         string(r.Status),
		ArrivalDate:    r.ArrivalDate.String(),
		ArrivalBlock:   string(r.ArrivalBlock),
		DepartureDate:  r.DepartureDate.String(),
		DepartureBlock: string(r.DepartureBlock),
		Nights:         r.Nights(),
		Adults:         r.Adults,
		Children:       r.Children,
		Client: ClientDTO{
			Name:         r.Client.Name,
			Email:        r.Client.Email,
			Phone:        r.Client.Phone,
			Organization: r.Client.Organization,
			Notes:        r.Client.Notes,
		},
		EstimatedAmount:    r.EstimatedAmount,
		FinalAmount:        r.FinalAmount,
		DepositAmount:      r.DepositAmount,
		DepositReference:   r.DepositReference,
		ConfirmedAt:        formatTimePtr(r.ConfirmedAt),
		CancellationReason: r.CancellationReason,
		RefundEligible:     r.RefundEligible,
		CancelledAt:        formatTimePtr(r.CancelledAt),
		CreatedAt:          r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          r.UpdatedAt.Format(time.RFC3339),
	}
}

func toPriceDTO(p booking.PriceBreakdown) PriceDTO {
	return PriceDTO{
		Nights:        p.Nights,
		FullDays:      p.FullDays,
		HalfDays:      p.HalfDays,
		AdultSubtotal: p.AdultSubtotal,
		ChildSubtotal: p.ChildSubtotal,
		Total:         p.Total,
	}
}

func toParametersDTO(p booking.Parameters) ParametersDTO {
	return ParametersDTO{
		AdultPricePerDay:           p.AdultPricePerDay,
		ChildPricePerDay:           p.ChildPricePerDay,
		MinAdults:                  p.MinAdults,
		MaxTotalPeople:             p.MaxTotalPeople,
		MinNights:                  p.MinNights,
		BufferHalfDay:              p.BufferHalfDay,
		MaxChildAge:                p.MaxChildAge,
		CancellationRefundableDays: p.CancellationRefundableDays,
		Timezone:                   p.Timezone,
	}
}

func toValidationErrorDTOs(errs []booking.ValidationError) []ValidationErrorDTO {
	out := make([]ValidationErrorDTO, len(errs))
	for i, e := range errs {
		out[i] = ValidationErrorDTO{
			Rule:    string(e.Rule),
			Message: e.Message,
			Block:   string(e.Block),
		}
		if e.Date != nil {
			out[i].Date = e.Date.String()
		}
	}
	return out
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
