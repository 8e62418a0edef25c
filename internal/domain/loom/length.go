package loom

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidLength = errors.New("invalid length")

// LengthInput accepts a length sent either as a JSON number or a string,
// where a string may use a comma as decimal separator.
type LengthInput struct {
	Raw string
	Set bool
}

func (l *LengthInput) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*l = LengthInput{}
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw = s
	}
	*l = LengthInput{Raw: strings.TrimSpace(raw), Set: true}
	return nil
}

// Present reports whether a non-blank value was supplied.
func (l LengthInput) Present() bool {
	return l.Set && l.Raw != ""
}

// ParseLength parses a non-negative length rounded to centimetres.
func ParseLength(raw string) (decimal.Decimal, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidLength)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidLength, raw)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative", ErrInvalidLength)
	}
	return d.Round(2), nil
}

// LenientLength parses like ParseLength but maps anything invalid to zero.
func LenientLength(raw string) decimal.Decimal {
	d, err := ParseLength(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}
