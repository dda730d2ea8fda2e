/*
Package booking provides the availability and pricing engine for a single
bookable property.

PURPOSE:
  Guests request multi-night stays; an operator confirms or cancels them.
  This package owns the parts with algorithmic weight: deriving per-day
  availability from the reservation ledger, validating a candidate stay,
  pricing it, and committing it without double booking.

KEY CONCEPTS IN THIS FILE (types.go):
  - Block: one of the two daily cutovers (morning 08:00, night 20:00)
  - Status: requested -> confirmed -> cancelled lifecycle states
  - Candidate: a proposed stay (dates, blocks, party size)
  - Reservation: a persisted stay with contact and lifecycle fields

HALF-DAY TIMELINE:
  Every date has two slots, morning then night. A stay occupies every slot
  from its arrival slot to its departure slot inclusive:

    arrive 10/03 night, depart 10/05 morning

    date   | 10/03 | 10/04 | 10/05
    morning|   .   |   X   |   X
    night  |   X   |   X   |   .

SEE ALSO:
  - availability.go: Per-date free/busy computation
  - validator.go: Business rules for a candidate
  - pricing.go: Full-day / half-day pricing
  - service.go: Create / Confirm / Cancel lifecycle
*/
package booking

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BLOCK - Arrival/departure cutover within a day
// =============================================================================

type Block string

const (
	BlockMorning Block = "morning"
	BlockNight   Block = "night"
)

// Cutover hours for each block, in the property timezone.
const (
	MorningHour = 8
	NightHour   = 20
)

func ParseBlock(s string) (Block, error) {
	b := Block(s)
	if !b.Valid() {
		return "", fmt.Errorf("invalid block %q (use morning or night)", s)
	}
	return b, nil
}

func (b Block) Valid() bool { return b == BlockMorning || b == BlockNight }

// Other returns the opposite block of the same day.
func (b Block) Other() Block {
	if b == BlockMorning {
		return BlockNight
	}
	return BlockMorning
}

// Hour returns the cutover hour of the block.
func (b Block) Hour() int {
	if b == BlockNight {
		return NightHour
	}
	return MorningHour
}

// index orders the blocks within a day: morning=0, night=1.
func (b Block) index() int {
	if b == BlockNight {
		return 1
	}
	return 0
}

func (b *Block) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseBlock(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// =============================================================================
// STATUS - Reservation lifecycle
// =============================================================================

type Status string

const (
	StatusRequested Status = "requested"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	return s == StatusRequested || s == StatusConfirmed || s == StatusCancelled
}

// Blocking reports whether a reservation in this status holds its dates.
func (s Status) Blocking() bool { return s != StatusCancelled }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ReservationID string

// =============================================================================
// CANDIDATE - A proposed stay, before it is persisted
// =============================================================================

type Candidate struct {
	ArrivalDate    Date
	ArrivalBlock   Block
	DepartureDate  Date
	DepartureBlock Block
	Adults         int
	Children       int
}

// Nights is the calendar-day difference. Blocks never change it.
func (c Candidate) Nights() int { return DaysBetween(c.ArrivalDate, c.DepartureDate) }

// People is the total party size.
func (c Candidate) People() int { return c.Adults + c.Children }

// Range returns the inclusive date range touched by the stay.
func (c Candidate) Range() DateRange {
	return DateRange{Start: c.ArrivalDate, End: c.DepartureDate}
}

// =============================================================================
// RESERVATION - Persisted stay
// =============================================================================

// Client holds contact details. Owned by the reservation, never shared.
type Client struct {
	Name         string
	Email        string
	Phone        string
	Organization string
	Notes        string
}

type Reservation struct {
	ID ReservationID
	Candidate
	Client Client
	Status Status

	EstimatedAmount decimal.Decimal
	FinalAmount     *decimal.Decimal

	// Set on confirmation
	DepositAmount    *decimal.Decimal
	DepositReference string
	ConfirmedAt      *time.Time

	// Set on cancellation
	CancellationReason string
	RefundEligible     *bool
	CancelledAt        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Blocking reports whether the reservation holds its dates.
func (r Reservation) Blocking() bool { return r.Status.Blocking() }
