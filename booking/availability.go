/*
availability.go - Per-date free/busy computation

PURPOSE:
  Answers "which arrival/departure windows are still free?" for a date
  range. Availability is never stored: it is recomputed from the ledger on
  every query, so it cannot drift from the reservations that cause it.

SLOT MODEL:
  Each date contributes two slots to a single half-day timeline:

    ... | D-1 morning | D-1 night | D morning | D night | D+1 morning | ...

  A non-cancelled reservation holds every slot from its arrival slot to its
  departure slot, inclusive. That gives the three cases:
    - interior date:   both blocks busy
    - arrival date:    the arrival block (a morning arrival also holds night)
    - departure date:  the departure block (a night departure also holds morning)

BUFFER HALF-DAY:
  With BufferHalfDay enabled, a stay also holds the turnover slot on its
  boundary days: the morning before a night arrival and the night after a
  morning departure. Consequence:

    stay A departs D morning, stay B arrives D night
      buffer off: compatible (same-day turnover)
      buffer on:  conflict (A's buffer holds D night)

  A night departure followed by a next-day morning arrival is always
  compatible: the 12 hours between them are the turnover window.

COMPLEXITY:
  O(days x reservations) with reservations pre-filtered to the range.
  Volume per property is small, nothing is cached. A query window is capped
  at MaxAvailabilityDays.

SEE ALSO:
  - validator.go: Checks a candidate's slots against this output
  - service.go: Recomputes availability inside the create transaction
*/
package booking

import "fmt"

// MaxAvailabilityDays caps a single availability query. It covers the
// longest stay with room to spare.
const MaxAvailabilityDays = 2 * 366

// =============================================================================
// DATE BLOCK STATE
// =============================================================================

// DateBlockState is the free/busy signal for one date.
type DateBlockState struct {
	Date             Date
	MorningAvailable bool
	NightAvailable   bool
}

// Available returns the flag for the given block.
func (s DateBlockState) Available(b Block) bool {
	if b == BlockNight {
		return s.NightAvailable
	}
	return s.MorningAvailable
}

func (s *DateBlockState) occupy(b Block) {
	if b == BlockNight {
		s.NightAvailable = false
	} else {
		s.MorningAvailable = false
	}
}

// =============================================================================
// AVAILABILITY - Ordered list of states with lookup
// =============================================================================

type Availability []DateBlockState

// Lookup returns the state for d. ok is false if d is outside the list.
func (a Availability) Lookup(d Date) (DateBlockState, bool) {
	if len(a) == 0 {
		return DateBlockState{}, false
	}
	i := DaysBetween(a[0].Date, d)
	if i >= 0 && i < len(a) && a[i].Date.Equal(d) {
		return a[i], true
	}
	// Not contiguous; fall back to a scan.
	for _, s := range a {
		if s.Date.Equal(d) {
			return s, true
		}
	}
	return DateBlockState{}, false
}

// FullyAvailable reports whether every block in the list is free.
func (a Availability) FullyAvailable() bool {
	for _, s := range a {
		if !s.MorningAvailable || !s.NightAvailable {
			return false
		}
	}
	return true
}

// =============================================================================
// SLOTS - Half-day timeline positions
// =============================================================================

// Slot is a position on the half-day timeline.
type Slot struct {
	Date  Date
	Block Block
}

func slotIndex(d Date, b Block) int64 {
	return d.epochDay()*2 + int64(b.index())
}

func slotAt(i int64) Slot {
	day := i / 2
	if i < 0 && i%2 != 0 {
		day--
	}
	block := BlockMorning
	if i-day*2 == 1 {
		block = BlockNight
	}
	return Slot{Date: NewDate(1970, 1, 1).AddDays(int(day)), Block: block}
}

// Occupancy returns the slots a stay holds, in timeline order. With buffer
// set, the same-day turnover slots are included.
func Occupancy(c Candidate, buffer bool) []Slot {
	first := slotIndex(c.ArrivalDate, c.ArrivalBlock)
	last := slotIndex(c.DepartureDate, c.DepartureBlock)
	if buffer {
		if c.ArrivalBlock == BlockNight {
			first--
		}
		if c.DepartureBlock == BlockMorning {
			last++
		}
	}

	var slots []Slot
	for i := first; i <= last; i++ {
		slots = append(slots, slotAt(i))
	}
	return slots
}

// =============================================================================
// COMPUTE AVAILABILITY
// =============================================================================

// NewAvailabilityWindow is NewDateRange limited to MaxAvailabilityDays.
func NewAvailabilityWindow(start, end Date) (DateRange, error) {
	rng, err := NewDateRange(start, end)
	if err != nil {
		return DateRange{}, err
	}
	if rng.Len() > MaxAvailabilityDays {
		return DateRange{}, &InvalidRangeError{
			Start:  start,
			End:    end,
			Reason: fmt.Sprintf("spans %d days, at most %d allowed", rng.Len(), MaxAvailabilityDays),
		}
	}
	return rng, nil
}

// ComputeAvailability returns one DateBlockState per date in [start, end],
// ascending. Cancelled reservations are ignored. Reservations outside the
// range are harmless; callers usually pass the result of FindOverlapping.
func ComputeAvailability(reservations []Reservation, start, end Date, params Parameters) (Availability, error) {
	rng, err := NewAvailabilityWindow(start, end)
	if err != nil {
		return nil, err
	}

	days := rng.Days()
	out := make(Availability, len(days))
	for i, d := range days {
		out[i] = DateBlockState{Date: d, MorningAvailable: true, NightAvailable: true}
	}

	for _, r := range reservations {
		if !r.Blocking() || !r.Range().Overlaps(rng) {
			continue
		}
		for _, slot := range Occupancy(r.Candidate, params.BufferHalfDay) {
			if !rng.Contains(slot.Date) {
				continue
			}
			out[DaysBetween(rng.Start, slot.Date)].occupy(slot.Block)
		}
	}

	return out, nil
}
