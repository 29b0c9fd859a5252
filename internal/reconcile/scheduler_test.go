package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/docindex/internal/errdefs"
)

func TestNextRun(t *testing.T) {
	loc := time.FixedZone("test", 2*3600)

	tests := []struct {
		name  string
		now   time.Time
		clock string
		want  time.Time
	}{
		{
			name:  "later today",
			now:   time.Date(2026, 3, 10, 1, 30, 0, 0, loc),
			clock: "03:00",
			want:  time.Date(2026, 3, 10, 3, 0, 0, 0, loc),
		},
		{
			name:  "already passed",
			now:   time.Date(2026, 3, 10, 4, 0, 0, 0, loc),
			clock: "03:00",
			want:  time.Date(2026, 3, 11, 3, 0, 0, 0, loc),
		},
		{
			name:  "exactly now moves to tomorrow",
			now:   time.Date(2026, 3, 10, 3, 0, 0, 0, loc),
			clock: "03:00",
			want:  time.Date(2026, 3, 11, 3, 0, 0, 0, loc),
		},
		{
			name:  "default clock",
			now:   time.Date(2026, 3, 10, 12, 0, 0, 0, loc),
			clock: "",
			want:  time.Date(2026, 3, 11, 3, 0, 0, 0, loc),
		},
		{
			name:  "month rollover",
			now:   time.Date(2026, 1, 31, 23, 59, 0, 0, loc),
			clock: "22:15",
			want:  time.Date(2026, 2, 1, 22, 15, 0, 0, loc),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextRun(tt.now, tt.clock)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
		})
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("07:45")
	require.NoError(t, err)
	assert.Equal(t, 7, h)
	assert.Equal(t, 45, m)

	for _, bad := range []string{"7", "25:00", "12:60", "noon"} {
		_, _, err := ParseClock(bad)
		assert.ErrorIs(t, err, errdefs.ErrInvalidInput, bad)
	}
}

func TestNewScheduler_InvalidClock(t *testing.T) {
	_, err := NewScheduler(nil, "99:99", nil)
	assert.Error(t, err)
}
