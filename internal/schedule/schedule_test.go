package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekday(t *testing.T) {
	assert.Equal(t, "Sunday", Weekday(time.Sunday))
	assert.Equal(t, "Saturday", Weekday(time.Saturday))
	assert.Equal(t, "", Weekday(time.Weekday(9)))

	labels := WeekdayLabels()
	labels[0] = "changed"
	assert.Equal(t, "Sunday", Weekday(time.Sunday))
}

func TestDefaultWindows(t *testing.T) {
	ws := DefaultWindows()
	require.Len(t, ws, 3)
	assert.Equal(t, []string{"morning", "afternoon", "evening"}, ws.Names())

	ws[0].StartHour = 0
	assert.Equal(t, 8, DefaultWindows()[0].StartHour)
}

func TestWindowContains(t *testing.T) {
	w := Window{Name: "morning", StartHour: 8, EndHour: 12}
	assert.False(t, w.Contains(7))
	assert.True(t, w.Contains(8))
	assert.True(t, w.Contains(11))
	assert.False(t, w.Contains(12))
}

func TestNewWindows(t *testing.T) {
	tests := []struct {
		name    string
		windows []Window
		wantErr string
	}{
		{
			name:    "crosses midnight",
			windows: []Window{{Name: "night", StartHour: 22, EndHour: 2}},
			wantErr: "crossing midnight",
		},
		{
			name:    "empty span",
			windows: []Window{{Name: "noon", StartHour: 12, EndHour: 12}},
			wantErr: "crossing midnight",
		},
		{
			name:    "end hour past 24",
			windows: []Window{{Name: "late", StartHour: 20, EndHour: 25}},
			wantErr: "end hour",
		},
		{
			name:    "negative start",
			windows: []Window{{Name: "early", StartHour: -1, EndHour: 4}},
			wantErr: "start hour",
		},
		{
			name:    "missing name",
			windows: []Window{{StartHour: 1, EndHour: 4}},
			wantErr: "name is empty",
		},
		{
			name: "duplicate",
			windows: []Window{
				{Name: "a", StartHour: 1, EndHour: 4},
				{Name: "a", StartHour: 5, EndHour: 6},
			},
			wantErr: "duplicate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWindows(tt.windows...)
			var windowErr *InvalidWindowError
			require.ErrorAs(t, err, &windowErr)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewWindowsDefaultsLabel(t *testing.T) {
	ws, err := NewWindows(Window{Name: "dawn", StartHour: 5, EndHour: 7}, Window{Name: "all-day", StartHour: 0, EndHour: 24})
	require.NoError(t, err)
	assert.Equal(t, "dawn", ws[0].Label)

	w, ok := ws.Lookup("all-day")
	require.True(t, ok)
	assert.True(t, w.Contains(23))
}
