/*
validator.go - Business rules for a candidate stay

PURPOSE:
  Decides whether a candidate can be booked against a given availability
  snapshot and parameter set. Every rule is evaluated; the result lists all
  violations so a caller can show them at once.

RULES (in evaluation order):
  1. arrival_before_departure  arrival date strictly before departure date
  2. min_nights                departure - arrival >= MinNights
     max_nights                departure - arrival <= MaxStayNights
  3. min_adults                adults >= MinAdults
  4. max_people                adults + children <= MaxTotalPeople
  5. party_size                counts non-negative, at least one guest
  6. date_unavailable          every slot the stay holds is free
  7. date_in_past              arrival is not before today at the property
  8. invalid_block             blocks are morning or night

  Children are validated in aggregate only; guest ages are not tracked.
  Rule 6 is skipped for stays longer than MaxStayNights.

STATE:
  None. Validate is a pure function and safe to call concurrently.

SEE ALSO:
  - availability.go: Produces the snapshot checked by rule 6
  - errors.go: ValidationError / DateUnavailableError
*/
package booking

import (
	"fmt"
	"time"
)

// MaxStayNights is the longest stay accepted.
const MaxStayNights = 365

// ValidationResult is Valid when Errors is empty.
type ValidationResult struct {
	Errors []ValidationError
}

func (r ValidationResult) Valid() bool { return len(r.Errors) == 0 }

// Err returns nil when valid, otherwise a *ValidationErrors.
func (r ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	return &ValidationErrors{Errors: r.Errors}
}

// Conflicts returns the date/block conflicts in the result.
func (r ValidationResult) Conflicts() []DateUnavailableError {
	var out []DateUnavailableError
	for _, v := range r.Errors {
		if v.Rule == RuleDateUnavailable && v.Date != nil {
			out = append(out, DateUnavailableError{Date: *v.Date, Block: v.Block})
		}
	}
	return out
}

// Validate checks c against availability and params. now is converted to
// a date in the property timezone for the past-date rule.
func Validate(c Candidate, availability Availability, params Parameters, now time.Time) ValidationResult {
	var errs []ValidationError
	add := func(rule Rule, format string, args ...any) {
		errs = append(errs, ValidationError{Rule: rule, Message: fmt.Sprintf(format, args...)})
	}

	blocksValid := c.ArrivalBlock.Valid() && c.DepartureBlock.Valid()
	datesValid := !c.ArrivalDate.IsZero() && !c.DepartureDate.IsZero()

	// 1. Ordering
	if !datesValid || !c.ArrivalDate.Before(c.DepartureDate) {
		add(RuleArrivalBeforeDeparture, "arrival date %s must be before departure date %s",
			c.ArrivalDate, c.DepartureDate)
	}

	// 2. Stay length
	nights := c.Nights()
	if !datesValid || nights < params.MinNights {
		add(RuleMinNights, "stay of %d nights is shorter than the minimum of %d", nights, params.MinNights)
	}
	if datesValid && nights > MaxStayNights {
		add(RuleMaxNights, "stay of %d nights is longer than the maximum of %d", nights, MaxStayNights)
	}

	// 3-5. Party
	errs = append(errs, ValidateParty(c, params)...)

	// 6. Conflicts. Only meaningful when the stay itself is well formed.
	if datesValid && blocksValid && c.ArrivalDate.Before(c.DepartureDate) && nights <= MaxStayNights {
		for _, slot := range Occupancy(c, false) {
			state, ok := availability.Lookup(slot.Date)
			if ok && state.Available(slot.Block) {
				continue
			}
			conflict := &DateUnavailableError{Date: slot.Date, Block: slot.Block}
			errs = append(errs, conflict.AsValidationError())
		}
	}

	// 7. Past dates
	if datesValid {
		today := params.Today(now)
		if c.ArrivalDate.Before(today) {
			add(RuleDateInPast, "arrival date %s is before today (%s)", c.ArrivalDate, today)
		}
	}

	// 8. Blocks
	if !blocksValid {
		add(RuleInvalidBlock, "arrival and departure blocks must be morning or night, got %q and %q",
			c.ArrivalBlock, c.DepartureBlock)
	}

	return ValidationResult{Errors: errs}
}

// ValidateParty applies the occupancy rules (min adults, max people, party
// size) on their own. Used again when an administrator adjusts occupancy.
func ValidateParty(c Candidate, params Parameters) []ValidationError {
	var errs []ValidationError
	add := func(rule Rule, format string, args ...any) {
		errs = append(errs, ValidationError{Rule: rule, Message: fmt.Sprintf(format, args...)})
	}

	if c.Adults < params.MinAdults {
		add(RuleMinAdults, "at least %d adults are required, got %d", params.MinAdults, c.Adults)
	}
	if c.People() > params.MaxTotalPeople {
		add(RuleMaxPeople, "party of %d exceeds the maximum of %d people", c.People(), params.MaxTotalPeople)
	}
	if c.Adults < 0 || c.Children < 0 {
		add(RulePartySize, "guest counts must not be negative")
	} else if c.People() < 1 {
		add(RulePartySize, "at least one guest is required")
	}
	return errs
}
