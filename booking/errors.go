/*
errors.go - Error taxonomy for the booking engine

PURPOSE:
  All error types in one place. The pure components (availability,
  validation, pricing) only fail on malformed input. The lifecycle service
  is the one place that tells retryable failures from terminal ones.

ERROR CATEGORIES:
  1. Input errors       - InvalidRangeError, ValidationErrors
  2. Lifecycle errors   - InvalidStateError, ErrReservationNotFound
  3. Storage errors     - TransientError (safe to retry)
  4. Configuration      - ConfigurationError (fatal, cannot price/validate)

USAGE:
  var verrs *booking.ValidationErrors
  if errors.As(err, &verrs) {
      for _, v := range verrs.Errors { ... }
  }
  if booking.IsRetryable(err) { ... }

SEE ALSO:
  - validator.go: Produces ValidationErrors
  - service.go: Produces InvalidStateError and TransientError
*/
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRange is returned when a date range ends before it starts.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrValidation is returned when a candidate violates one or more rules.
	ErrValidation = errors.New("reservation validation failed")

	// ErrDateUnavailable is returned when a requested block is already taken.
	ErrDateUnavailable = errors.New("date unavailable")

	// ErrInvalidState is returned for an illegal lifecycle transition.
	ErrInvalidState = errors.New("invalid reservation state")

	// ErrTransient is returned on storage contention or timeout.
	ErrTransient = errors.New("transient storage failure")

	// ErrConfiguration is returned when system parameters are missing or malformed.
	ErrConfiguration = errors.New("invalid system parameters")

	// ErrReservationNotFound is returned when a referenced reservation doesn't exist.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrConcurrentModification is returned when a status compare-and-swap loses a race.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidRangeError reports a malformed [Start, End] range.
type InvalidRangeError struct {
	Start  Date
	End    Date
	Reason string
}

func (e *InvalidRangeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid date range: %s to %s: %s", e.Start, e.End, e.Reason)
	}
	return fmt.Sprintf("invalid date range: %s to %s", e.Start, e.End)
}

func (e *InvalidRangeError) Unwrap() error { return ErrInvalidRange }

// Rule identifies the business rule a ValidationError violates.
type Rule string

const (
	RuleArrivalBeforeDeparture Rule = "arrival_before_departure"
	RuleMinNights              Rule = "min_nights"
	RuleMaxNights              Rule = "max_nights"
	RuleMinAdults              Rule = "min_adults"
	RuleMaxPeople              Rule = "max_people"
	RulePartySize              Rule = "party_size"
	RuleDateUnavailable        Rule = "date_unavailable"
	RuleDateInPast             Rule = "date_in_past"
	RuleInvalidBlock           Rule = "invalid_block"
	RuleAmount                 Rule = "amount"
)

// ValidationError is a single violated rule. Date and Block are set only
// for RuleDateUnavailable.
type ValidationError struct {
	Rule    Rule
	Message string
	Date    *Date
	Block   Block
}

func (e ValidationError) Error() string { return string(e.Rule) + ": " + e.Message }

// DateUnavailableError is the conflict subset of ValidationError.
type DateUnavailableError struct {
	Date  Date
	Block Block
}

func (e *DateUnavailableError) Error() string {
	return fmt.Sprintf("date unavailable: %s %s", e.Date, e.Block)
}

func (e *DateUnavailableError) Unwrap() error { return ErrDateUnavailable }

// AsValidationError converts the conflict into a list entry.
func (e *DateUnavailableError) AsValidationError() ValidationError {
	d := e.Date
	return ValidationError{
		Rule:    RuleDateUnavailable,
		Message: fmt.Sprintf("%s %s is not available", e.Date, e.Block),
		Date:    &d,
		Block:   e.Block,
	}
}

// ValidationErrors is the full list of violated rules. Never truncated.
type ValidationErrors struct {
	Errors []ValidationError
}

func (e *ValidationErrors) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, v := range e.Errors {
		msgs[i] = v.Error()
	}
	return "reservation validation failed: " + strings.Join(msgs, "; ")
}

// Unwrap exposes ErrValidation always, and ErrDateUnavailable when any
// entry is a date conflict.
func (e *ValidationErrors) Unwrap() []error {
	errs := []error{ErrValidation}
	if e.HasRule(RuleDateUnavailable) {
		errs = append(errs, ErrDateUnavailable)
	}
	return errs
}

func (e *ValidationErrors) HasRule(rule Rule) bool {
	for _, v := range e.Errors {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

// InvalidStateError reports a transition that the lifecycle forbids.
type InvalidStateError struct {
	ID     ReservationID
	From   Status
	Action string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s reservation %s in state %s", e.Action, e.ID, e.From)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// TransientError wraps a storage failure that is safe to retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() []error { return []error{ErrTransient, e.Err} }

// ConfigurationError reports a missing or malformed system parameter.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("system parameter %q: %s", e.Key, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidState)
}

// IsNotFound returns true if the error indicates a missing reservation.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrReservationNotFound)
}

// asTransient turns context expiry into a TransientError and leaves other
// errors untouched.
func asTransient(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransient) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, ErrConcurrentModification) {
		return &TransientError{Op: op, Err: err}
	}
	return err
}
