package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lightState string

const (
	red    lightState = "red"
	green  lightState = "green"
	yellow lightState = "yellow"
	off    lightState = "off"
)

var lights = NewMachine("light", map[lightState][]lightState{
	red:    {green},
	green:  {yellow},
	yellow: {red, off},
})

func TestMachine_Transition(t *testing.T) {
	tests := []struct {
		name    string
		from    lightState
		to      lightState
		wantErr bool
	}{
		{"listed transition", red, green, false},
		{"one of several targets", yellow, off, false},
		{"unlisted transition", red, yellow, true},
		{"self transition", green, green, true},
		{"from terminal state", off, red, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := lights.Transition(tt.from, tt.to)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.from, got)

				var invalid *InvalidTransitionError
				require.True(t, errors.As(err, &invalid))
				assert.Equal(t, "light", invalid.Entity)
				assert.Equal(t, string(tt.from), invalid.From)
				assert.Equal(t, string(tt.to), invalid.To)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, got)
		})
	}
}

func TestMachine_IsTerminal(t *testing.T) {
	assert.True(t, lights.IsTerminal(off))
	assert.False(t, lights.IsTerminal(red))
}

func TestReconciliationConflict_Error(t *testing.T) {
	c := &ReconciliationConflict{
		Entity:     "overtime",
		RecordID:   "abc",
		EmployeeID: "EMP001",
		Date:       time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		State:      "approved",
	}
	assert.Equal(t, `overtime abc for EMP001 on 2024-01-15 is frozen in state "approved"`, c.Error())
}
