package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, yamlText string) *Scenario {
	t.Helper()
	scenario, err := ParseScenario([]byte(yamlText))
	require.NoError(t, err)
	return scenario
}

func TestRun_AppendAndDeliver(t *testing.T) {
	scenario := mustParse(t, `
name: append_deliver
description: Records appended after subscribing are delivered in order
steps:
  - subscribe: s
    from: 0
  - append: 1
  - append: 2
  - append: 3
assertions:
  - type: delivered
    subscriber: s
    positions: [0, 1, 2]
  - type: final_position
    position: 3
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, int64(3), result.Position)

	var visible []int64
	for _, e := range result.Trace {
		if e.Type == EventVisible {
			visible = append(visible, e.Position)
			assert.Len(t, e.Checksum, 64)
		}
	}
	assert.Equal(t, []int64{0, 1, 2}, visible)
}

func TestRun_PositionAnchorsSubscription(t *testing.T) {
	scenario := mustParse(t, `
name: anchor
description: A subscription at an append's position sees exactly that record first
steps:
  - append: first
  - append: second
  - subscribe: late
    from: 1
  - await: late
    count: 1
assertions:
  - type: delivered
    subscriber: late
    positions: [1]
  - type: trace_order
    keys: ["visible@1", "subscribe late@1", "deliver late@1"]
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "second", result.Trace[len(result.Trace)-1].Payload)
}

func TestRun_CorruptRawLineSkipped(t *testing.T) {
	scenario := mustParse(t, `
name: corrupt
description: A checksum mismatch is delivered as an error and reading continues
steps:
  - subscribe: s
    from: 0
  - append_raw: '{"c":"00","e":1,"h":"x","n":"00","p":1,"t":1}'
  - await: s
    count: 1
  - append: ok
assertions:
  - type: delivered
    subscriber: s
    positions: [0, 1]
  - type: trace_count
    event: deliver
    code: CHECKSUM_ERROR
    count: 1
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_FailedAssertionsReported(t *testing.T) {
	scenario := mustParse(t, `
name: failing
description: Assertions that do not hold are reported, not returned as errors
steps:
  - append: 1
assertions:
  - type: final_position
    position: 7
  - type: offset
    group: nobody
    next: 1
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "position 7")
	assert.Contains(t, result.Errors[1], "no offset committed")
}

func TestRun_StepErrors(t *testing.T) {
	tests := []struct {
		name    string
		steps   string
		wantErr string
	}{
		{
			name:    "unknown subscriber",
			steps:   "  - unsubscribe: ghost\n",
			wantErr: `unknown subscriber "ghost"`,
		},
		{
			name:    "unknown drain",
			steps:   "  - off_drain: ghost\n",
			wantErr: `unknown drain "ghost"`,
		},
		{
			name:    "duplicate subscriber",
			steps:   "  - subscribe: a\n  - subscribe: a\n",
			wantErr: `subscriber "a" already exists`,
		},
		{
			name:    "commit for unknown subscriber",
			steps:   "  - commit: g\n    subscriber: ghost\n",
			wantErr: `unknown subscriber "ghost"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario := mustParse(t, "name: x\ndescription: x\nsteps:\n"+tt.steps+
				"assertions:\n  - type: final_position\n    position: 0\n")
			_, err := Run(scenario)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRun_CommitUsesSubscriptionStart(t *testing.T) {
	scenario := mustParse(t, `
name: commit_start
description: A subscriber that has received nothing commits its starting position
steps:
  - subscribe: s
    from: 4
  - commit: g
    subscriber: s
assertions:
  - type: offset
    group: g
    next: 4
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, map[string]int64{"g": 4}, result.Offsets)
}
