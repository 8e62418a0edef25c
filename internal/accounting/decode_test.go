package accounting

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interteks/loomtrack/internal/domain/loom"
)

func TestReportDecodingIsLenient(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		ts     *float64
		states loom.StateSeconds
	}{
		{
			name:   "fractional counter",
			body:   `{"loomId":"L1","timestamp":1710054000,"stateSeconds":{"running":100.5}}`,
			ts:     ts(1710054000),
			states: loom.StateSeconds{Running: 100},
		},
		{
			name:   "quoted counter",
			body:   `{"loomId":"L1","stateSeconds":{"running":"100","weft-stop":" 7 "}}`,
			states: loom.StateSeconds{Running: 100, WeftStop: 7},
		},
		{
			name:   "quoted timestamp",
			body:   `{"loomId":"L1","timestamp":"1710054000","stateSeconds":{}}`,
			ts:     ts(1710054000),
			states: loom.StateSeconds{},
		},
		{
			name:   "garbage values become zero",
			body:   `{"loomId":"L1","timestamp":"soon","stateSeconds":{"running":"oops","warp-stop":true,"manual-stop":null,"general-fault":"NaN"}}`,
			states: loom.StateSeconds{},
		},
		{
			name:   "unknown keys ignored",
			body:   `{"loomId":"L1","stateSeconds":{"running":5,"end-of-yarn":9,"idle":3}}`,
			states: loom.StateSeconds{Running: 5},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var r Report
			require.NoError(t, json.Unmarshal([]byte(tc.body), &r))
			assert.Equal(t, "L1", r.LoomID)
			assert.Equal(t, tc.ts, r.Timestamp)
			require.NotNil(t, r.StateSeconds)
			assert.Equal(t, tc.states, *r.StateSeconds)
			assert.NoError(t, Validate(r))
		})
	}
}

func TestReportDecodingKeepsRequiredFields(t *testing.T) {
	var r Report
	require.NoError(t, json.Unmarshal([]byte(`{"loomId":42,"activeState":"running"}`), &r))
	assert.Equal(t, "42", r.LoomID)
	assert.Equal(t, "running", r.ActiveState)
	assert.Nil(t, r.StateSeconds)
	assert.ErrorIs(t, Validate(r), ErrValidation)

	assert.Error(t, json.Unmarshal([]byte(`{"loomId":"L1","stateSeconds":12}`), &r))
	assert.Error(t, json.Unmarshal([]byte(`{"loomId":`), &r))
}
