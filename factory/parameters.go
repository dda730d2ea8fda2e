/*
Package factory converts stored system parameters into booking snapshots.

PURPOSE:
  System parameters live in storage as key/type/value records so an
  administrator can edit them without a deploy. The factory turns those
  records into a typed booking.Parameters snapshot and rejects anything
  missing or malformed with a ConfigurationError. Stores seed every key
  from RecordsFromParameters(booking.DefaultParameters()).

RECORD SHAPE:
  key                           type     example
  adult_price_per_day           integer  20000
  child_price_per_day           integer  10000
  min_adults                    integer  20
  max_total_people              integer  60
  min_nights                    integer  2
  buffer_half_day               boolean  true
  max_child_age                 integer  12
  cancellation_refundable_days  integer  15
  timezone                      string   America/Santiago

USAGE:
  provider := factory.NewParameterProvider(store)
  params, err := provider.Parameters(ctx)

  // From admin edits
  records, err := factory.RecordsFromValues(map[string]any{"min_nights": 3})

SEE ALSO:
  - booking/params.go: Parameters snapshot
  - booking/store.go: ParameterStore interface
*/
package factory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/stay-booking/booking"
)

// =============================================================================
// SCHEMA
// =============================================================================

// Schema maps every known key to its type.
var Schema = map[string]booking.ParameterType{
	booking.KeyAdultPricePerDay:           booking.ParamInteger,
	booking.KeyChildPricePerDay:           booking.ParamInteger,
	booking.KeyMinAdults:                  booking.ParamInteger,
	booking.KeyMaxTotalPeople:             booking.ParamInteger,
	booking.KeyMinNights:                  booking.ParamInteger,
	booking.KeyBufferHalfDay:              booking.ParamBoolean,
	booking.KeyMaxChildAge:                booking.ParamInteger,
	booking.KeyCancellationRefundableDays: booking.ParamInteger,
	booking.KeyTimezone:                   booking.ParamString,
}

// =============================================================================
// RECORDS -> PARAMETERS
// =============================================================================

// ParametersFromRecords builds a validated snapshot. Every Schema key must
// be present; unknown keys are ignored. A later record for the same key wins.
func ParametersFromRecords(records []booking.ParameterRecord) (booking.Parameters, error) {
	var p booking.Parameters
	seen := make(map[string]bool, len(Schema))

	for _, r := range records {
		want, known := Schema[r.Key]
		if !known {
			continue
		}
		seen[r.Key] = true
		if r.Type != "" && r.Type != want {
			return booking.Parameters{}, &booking.ConfigurationError{
				Key:    r.Key,
				Reason: fmt.Sprintf("stored as %s, expected %s", r.Type, want),
			}
		}
		if err := apply(&p, r.Key, want, strings.TrimSpace(r.Value)); err != nil {
			return booking.Parameters{}, err
		}
	}

	if missing := missingKeys(seen); len(missing) > 0 {
		return booking.Parameters{}, &booking.ConfigurationError{Key: missing[0], Reason: "missing"}
	}

	if err := p.Validate(); err != nil {
		return booking.Parameters{}, err
	}
	return p, nil
}

// missingKeys lists Schema keys absent from seen, sorted.
func missingKeys(seen map[string]bool) []string {
	var missing []string
	for key := range Schema {
		if !seen[key] {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}

func apply(p *booking.Parameters, key string, typ booking.ParameterType, value string) error {
	switch typ {
	case booking.ParamInteger:
		n, err := strconv.Atoi(value)
		if err != nil {
			return &booking.ConfigurationError{Key: key, Reason: fmt.Sprintf("invalid integer %q", value)}
		}
		switch key {
		case booking.KeyAdultPricePerDay:
			p.AdultPricePerDay = decimal.NewFromInt(int64(n))
		case booking.KeyChildPricePerDay:
			p.ChildPricePerDay = decimal.NewFromInt(int64(n))
		case booking.KeyMinAdults:
			p.MinAdults = n
		case booking.KeyMaxTotalPeople:
			p.MaxTotalPeople = n
		case booking.KeyMinNights:
			p.MinNights = n
		case booking.KeyMaxChildAge:
			p.MaxChildAge = n
		case booking.KeyCancellationRefundableDays:
			p.CancellationRefundableDays = n
		}

	case booking.ParamBoolean:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return &booking.ConfigurationError{Key: key, Reason: fmt.Sprintf("invalid boolean %q", value)}
		}
		if key == booking.KeyBufferHalfDay {
			p.BufferHalfDay = b
		}

	case booking.ParamString:
		if key == booking.KeyTimezone {
			if value == "" {
				return &booking.ConfigurationError{Key: key, Reason: "must not be empty"}
			}
			p.Timezone = value
		}
	}
	return nil
}

// =============================================================================
// PARAMETERS -> RECORDS
// =============================================================================

// RecordsFromParameters is the inverse of ParametersFromRecords, used to
// seed storage.
func RecordsFromParameters(p booking.Parameters) []booking.ParameterRecord {
	integer := func(key string, n int64) booking.ParameterRecord {
		return booking.ParameterRecord{Key: key, Type: booking.ParamInteger, Value: strconv.FormatInt(n, 10)}
	}
	return []booking.ParameterRecord{
		integer(booking.KeyAdultPricePerDay, p.AdultPricePerDay.IntPart()),
		integer(booking.KeyChildPricePerDay, p.ChildPricePerDay.IntPart()),
		integer(booking.KeyMinAdults, int64(p.MinAdults)),
		integer(booking.KeyMaxTotalPeople, int64(p.MaxTotalPeople)),
		integer(booking.KeyMinNights, int64(p.MinNights)),
		{Key: booking.KeyBufferHalfDay, Type: booking.ParamBoolean, Value: strconv.FormatBool(p.BufferHalfDay)},
		integer(booking.KeyMaxChildAge, int64(p.MaxChildAge)),
		integer(booking.KeyCancellationRefundableDays, int64(p.CancellationRefundableDays)),
		{Key: booking.KeyTimezone, Type: booking.ParamString, Value: p.Timezone},
	}
}

// RecordsFromValues converts admin-supplied JSON values into typed records.
// Numbers arrive as float64 from encoding/json and must be whole.
func RecordsFromValues(values map[string]any) ([]booking.ParameterRecord, error) {
	var records []booking.ParameterRecord
	for key, raw := range values {
		typ, known := Schema[key]
		if !known {
			return nil, &booking.ConfigurationError{Key: key, Reason: "unknown parameter"}
		}

		var value string
		switch typ {
		case booking.ParamInteger:
			f, ok := raw.(float64)
			if !ok || f != float64(int64(f)) {
				return nil, &booking.ConfigurationError{Key: key, Reason: "must be an integer"}
			}
			value = strconv.FormatInt(int64(f), 10)
		case booking.ParamBoolean:
			b, ok := raw.(bool)
			if !ok {
				return nil, &booking.ConfigurationError{Key: key, Reason: "must be a boolean"}
			}
			value = strconv.FormatBool(b)
		case booking.ParamString:
			s, ok := raw.(string)
			if !ok {
				return nil, &booking.ConfigurationError{Key: key, Reason: "must be a string"}
			}
			value = s
		}
		records = append(records, booking.ParameterRecord{Key: key, Type: typ, Value: value})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records, nil
}

// =============================================================================
// PROVIDER - booking.ParameterSource backed by a ParameterStore
// =============================================================================

// ParameterProvider reads the store on every call; parameters are small
// and an edit must be visible to the next booking.
type ParameterProvider struct {
	Store booking.ParameterStore
}

func NewParameterProvider(store booking.ParameterStore) *ParameterProvider {
	return &ParameterProvider{Store: store}
}

func (pp *ParameterProvider) Parameters(ctx context.Context) (booking.Parameters, error) {
	records, err := pp.Store.LoadParameters(ctx)
	if err != nil {
		return booking.Parameters{}, fmt.Errorf("load parameters: %w", err)
	}
	return ParametersFromRecords(records)
}

// Update validates the merged result before saving, so a bad edit never
// reaches storage.
func (pp *ParameterProvider) Update(ctx context.Context, records []booking.ParameterRecord) (booking.Parameters, error) {
	current, err := pp.Store.LoadParameters(ctx)
	if err != nil {
		return booking.Parameters{}, fmt.Errorf("load parameters: %w", err)
	}

	merged, err := ParametersFromRecords(append(current, records...))
	if err != nil {
		return booking.Parameters{}, err
	}
	if err := pp.Store.SaveParameters(ctx, records); err != nil {
		return booking.Parameters{}, fmt.Errorf("save parameters: %w", err)
	}
	return merged, nil
}
