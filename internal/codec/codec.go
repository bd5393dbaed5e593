// Package codec converts between the string values carried by filter
// parameters and form posts and the typed values handed to the SQL
// layer. One bidirectional codec exists per scalar kind; the filter,
// projection and mutation paths all go through this table so a value
// round-trips identically everywhere.
package codec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"dbadmin/internal/metadata"
)

// ErrUnsupportedKind marks a kind the codec table has no entry for.
// Hitting it means broken registration, so callers treat it as a
// configuration error rather than a bad value.
var ErrUnsupportedKind = errors.New("unsupported kind")

const (
	dateLayout     = "2006-01-02"
	timeLayout     = "15:04:05"
	timeTZLayout   = "15:04:05Z07:00"
	dateTimeLayout = "2006-01-02 15:04:05"
)

var (
	timeLayouts = []string{"15:04:05.999999999", "15:04:05", "15:04"}

	timeTZLayouts = []string{"15:04:05.999999999Z07:00", "15:04:05Z07:00", "15:04Z07:00"}

	dateTimeLayouts = []string{
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
	}

	dateTimeTZLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05Z07:00",
	}
)

// IsNullToken reports whether the raw value denotes SQL NULL: empty
// after trimming, or the word "null" in any case.
func IsNullToken(value string) bool {
	trimmed := strings.TrimSpace(value)
	return trimmed == "" || strings.EqualFold(trimmed, "null")
}

// Parse converts a raw string into the typed value for the kind. Null
// tokens yield (nil, nil). Bit kinds carry declared lengths on the
// attribute and go through ParseBits; Parse handles the implicit
// single-bit form only.
func Parse(kind metadata.Kind, value string) (any, error) {
	if IsNullToken(value) {
		return nil, nil
	}
	value = strings.TrimSpace(value)

	switch kind {
	case metadata.KindInt16:
		v, err := strconv.ParseInt(value, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("parse %s %q: %w", kind, value, err)
		}
		return int16(v), nil
	case metadata.KindInt32:
		v, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("parse %s %q: %w", kind, value, err)
		}
		return int32(v), nil
	case metadata.KindInt64:
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s %q: %w", kind, value, err)
		}
		return v, nil
	case metadata.KindFloat32:
		v, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return nil, fmt.Errorf("parse %s %q: %w", kind, value, err)
		}
		return float32(v), nil
	case metadata.KindFloat64:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s %q: %w", kind, value, err)
		}
		return v, nil
	case metadata.KindDecimal:
		d, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("parse %s %q: %w", kind, value, err)
		}
		return d, nil
	case metadata.KindString:
		return value, nil
	case metadata.KindBool:
		// Lenient on purpose: anything that is not "true" is false.
		return strings.EqualFold(value, "true"), nil
	case metadata.KindUUID:
		u, err := uuid.Parse(value)
		if err != nil {
			return nil, fmt.Errorf("parse %s %q: %w", kind, value, err)
		}
		return u, nil
	case metadata.KindDate:
		t, err := time.Parse(dateLayout, value)
		if err != nil {
			return nil, fmt.Errorf("parse %s %q: %w", kind, value, err)
		}
		return t, nil
	case metadata.KindTime:
		return parseLayouts(kind, value, timeLayouts)
	case metadata.KindTimeTZ:
		return parseLayouts(kind, value, timeTZLayouts)
	case metadata.KindDateTime:
		return parseLayouts(kind, value, dateTimeLayouts)
	case metadata.KindDateTimeTZ:
		return parseLayouts(kind, value, dateTimeTZLayouts)
	case metadata.KindInstant:
		t, err := parseLayouts(kind, value, dateTimeTZLayouts)
		if err != nil {
			return nil, err
		}
		return t.(time.Time).UTC(), nil
	case metadata.KindBytes:
		b, err := hex.DecodeString(value)
		if err != nil {
			return nil, fmt.Errorf("parse %s %q: %w", kind, value, err)
		}
		return b, nil
	case metadata.KindBit:
		return ParseBits(value, 0, false)
	case metadata.KindBitVarying:
		return ParseBits(value, 0, true)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
}

func parseLayouts(kind metadata.Kind, value string, layouts []string) (any, error) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("parse %s %q: unrecognized format", kind, value)
}

// ParseBits validates a bit-string value against the declared length.
// Fixed-length columns accept up to length 0/1 digits. Varying
// columns accept any 0/1 run up to length (unbounded when length is
// zero). An implicit single bit (fixed, length zero) additionally
// accepts true/false, mapped to "1"/"0".
func ParseBits(value string, length int, varying bool) (any, error) {
	if IsNullToken(value) {
		return nil, nil
	}
	value = strings.TrimSpace(value)

	if !varying && length == 0 {
		switch strings.ToLower(value) {
		case "true", "1":
			return "1", nil
		case "false", "0":
			return "0", nil
		}
		return nil, fmt.Errorf("parse bit %q: want 0, 1, true or false", value)
	}

	for _, r := range value {
		if r != '0' && r != '1' {
			return nil, fmt.Errorf("parse bit string %q: only 0 and 1 allowed", value)
		}
	}
	if varying {
		if length > 0 && len(value) > length {
			return nil, fmt.Errorf("parse bit string %q: longer than %d", value, length)
		}
		return value, nil
	}
	if len(value) > length {
		return nil, fmt.Errorf("parse bit string %q: longer than %d", value, length)
	}
	return value, nil
}

// Normalize adjusts a parsed value before it reaches SQL. Temporal
// kinds lose their seconds so filter comparisons match what the UI
// displays; everything else passes through.
func Normalize(kind metadata.Kind, value any) any {
	if value == nil {
		return nil
	}
	if kind.IsTemporal() {
		if t, ok := value.(time.Time); ok {
			return t.Truncate(time.Minute)
		}
	}
	return value
}

// Format renders a typed value back into its display string. Nil
// renders empty. Bytes render upper-case hex.
func Format(kind metadata.Kind, value any) string {
	if value == nil {
		return ""
	}
	switch kind {
	case metadata.KindBytes:
		if b, ok := value.([]byte); ok {
			return strings.ToUpper(hex.EncodeToString(b))
		}
	case metadata.KindDate:
		if t, ok := value.(time.Time); ok {
			return t.Format(dateLayout)
		}
	case metadata.KindTime:
		if t, ok := value.(time.Time); ok {
			return t.Format(timeLayout)
		}
	case metadata.KindTimeTZ:
		if t, ok := value.(time.Time); ok {
			return t.Format(timeTZLayout)
		}
	case metadata.KindDateTime:
		if t, ok := value.(time.Time); ok {
			return t.Format(dateTimeLayout)
		}
	case metadata.KindDateTimeTZ:
		if t, ok := value.(time.Time); ok {
			return t.Format(time.RFC3339)
		}
	case metadata.KindInstant:
		if t, ok := value.(time.Time); ok {
			return t.UTC().Format(time.RFC3339)
		}
	case metadata.KindDecimal:
		if d, ok := value.(decimal.Decimal); ok {
			return d.String()
		}
	case metadata.KindUUID:
		if u, ok := value.(uuid.UUID); ok {
			return u.String()
		}
	}
	return fmt.Sprint(value)
}
