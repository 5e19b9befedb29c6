package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrorRecordNotFound = errors.New("record not found")

// ParseAmountCents normalizes the amount shapes seen on the wire into integer
// cents. Legacy producers send decimal strings ("105.50") or JSON numbers;
// decimal parsing avoids float rounding on money.
//
// Unit rule for strings: a decimal point marks a rupee amount ("105.00" is
// 10500 cents), a bare integer string is already cents. The unit follows the
// written form, never the numeric value.
func ParseAmountCents(value any) (int64, error) {
	switch v := value.(type) {
	case nil:
		return 0, errors.New("amount is missing")
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return decimal.NewFromFloat(v).Round(0).IntPart(), nil
	case json.Number:
		return ParseAmountCents(string(v))
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, errors.New("empty amount string")
		}
		dec, err := decimal.NewFromString(s)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", s, err)
		}
		if strings.Contains(s, ".") {
			return dec.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
		}
		return dec.IntPart(), nil
	default:
		return 0, fmt.Errorf("unsupported amount type %T", value)
	}
}
