package booking

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SYSTEM PARAMETERS - Admin-editable settings, read as a snapshot
// =============================================================================

// Parameter keys as stored by the parameter repository.
const (
	KeyAdultPricePerDay           = "adult_price_per_day"
	KeyChildPricePerDay           = "child_price_per_day"
	KeyMinAdults                  = "min_adults"
	KeyMaxTotalPeople             = "max_total_people"
	KeyMinNights                  = "min_nights"
	KeyBufferHalfDay              = "buffer_half_day"
	KeyMaxChildAge                = "max_child_age"
	KeyCancellationRefundableDays = "cancellation_refundable_days"
	KeyTimezone                   = "timezone"
)

// Parameters is an immutable snapshot passed into every pure call.
// Nothing in this package reads parameters from ambient state.
type Parameters struct {
	AdultPricePerDay           decimal.Decimal
	ChildPricePerDay           decimal.Decimal
	MinAdults                  int
	MaxTotalPeople             int
	MinNights                  int
	BufferHalfDay              bool
	MaxChildAge                int
	CancellationRefundableDays int
	Timezone                   string

	location *time.Location
}

// DefaultParameters returns the seeded values.
func DefaultParameters() Parameters {
	return Parameters{
		AdultPricePerDay:           decimal.NewFromInt(20000),
		ChildPricePerDay:           decimal.NewFromInt(10000),
		MinAdults:                  20,
		MaxTotalPeople:             60,
		MinNights:                  2,
		BufferHalfDay:              true,
		MaxChildAge:                12,
		CancellationRefundableDays: 15,
		Timezone:                   "UTC",
		location:                   time.UTC,
	}
}

// Validate checks the snapshot is usable and resolves the timezone.
func (p *Parameters) Validate() error {
	switch {
	case p.AdultPricePerDay.IsNegative():
		return &ConfigurationError{Key: KeyAdultPricePerDay, Reason: "must not be negative"}
	case p.ChildPricePerDay.IsNegative():
		return &ConfigurationError{Key: KeyChildPricePerDay, Reason: "must not be negative"}
	case p.MinAdults < 0:
		return &ConfigurationError{Key: KeyMinAdults, Reason: "must not be negative"}
	case p.MaxTotalPeople < 1:
		return &ConfigurationError{Key: KeyMaxTotalPeople, Reason: "must be at least 1"}
	case p.MinNights < 1:
		return &ConfigurationError{Key: KeyMinNights, Reason: "must be at least 1"}
	case p.MaxChildAge < 0:
		return &ConfigurationError{Key: KeyMaxChildAge, Reason: "must not be negative"}
	case p.CancellationRefundableDays < 0:
		return &ConfigurationError{Key: KeyCancellationRefundableDays, Reason: "must not be negative"}
	}

	tz := p.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return &ConfigurationError{Key: KeyTimezone, Reason: err.Error()}
	}
	p.Timezone = tz
	p.location = loc
	return nil
}

// Location returns the property timezone, UTC if unresolved.
func (p Parameters) Location() *time.Location {
	if p.location != nil {
		return p.location
	}
	if loc, err := time.LoadLocation(p.Timezone); err == nil && p.Timezone != "" {
		return loc
	}
	return time.UTC
}

// Today returns the current date at the property.
func (p Parameters) Today(now time.Time) Date {
	return DateOf(now, p.Location())
}
