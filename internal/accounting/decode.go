package accounting

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/interteks/loomtrack/internal/domain/loom"
)

// UnmarshalJSON accepts controller payloads as they are sent in the field:
// counters and timestamps may be fractional or quoted, and unreadable
// values count as zero. Only a malformed document or a non-object
// stateSeconds is an error.
func (r *Report) UnmarshalJSON(b []byte) error {
	var wire struct {
		LoomID       json.RawMessage            `json:"loomId"`
		Timestamp    json.RawMessage            `json:"timestamp"`
		ActiveState  json.RawMessage            `json:"activeState"`
		StateSeconds map[string]json.RawMessage `json:"stateSeconds"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}

	out := Report{
		LoomID:      looseString(wire.LoomID),
		ActiveState: looseString(wire.ActiveState),
	}
	if ts, ok := looseNumber(wire.Timestamp); ok {
		out.Timestamp = &ts
	}
	if wire.StateSeconds != nil {
		var states loom.StateSeconds
		for key, raw := range wire.StateSeconds {
			v, _ := looseNumber(raw)
			states.Set(loom.ActiveState(key), int64(v))
		}
		out.StateSeconds = &states
	}
	*r = out
	return nil
}

// looseNumber reads a JSON number or numeric string. ok is false for
// absent, null, non-numeric and non-finite values.
func looseNumber(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, false
		}
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// looseString returns strings as is and numbers in their literal form.
func looseString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
