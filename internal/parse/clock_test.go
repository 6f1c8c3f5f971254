package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		expected  Clock
		expectErr bool
	}{
		{name: "Hour and minute", raw: "09:00", expected: Clock{Hour: 9}},
		{name: "Single digit hour", raw: "9:30", expected: Clock{Hour: 9, Minute: 30}},
		{name: "With seconds", raw: "14:30:15", expected: Clock{Hour: 14, Minute: 30, Second: 15}},
		{name: "Surrounding spaces", raw: "  23:59 ", expected: Clock{Hour: 23, Minute: 59}},
		{name: "Hour out of range", raw: "24:00", expectErr: true},
		{name: "Minute out of range", raw: "10:60", expectErr: true},
		{name: "Missing minutes", raw: "10", expectErr: true},
		{name: "Garbage", raw: "ten thirty", expectErr: true},
		{name: "Empty", raw: "", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := ParseClock(tc.raw)
			if tc.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.expected, parsed)
			}
		})
	}
}

func TestClock_OrderingAndArithmetic(t *testing.T) {
	nine := Clock{Hour: 9}
	assert.True(t, nine.Before(Clock{Hour: 9, Minute: 1}))
	assert.False(t, nine.Before(nine))
	assert.Equal(t, Clock{Hour: 9, Minute: 30}, nine.Add(30*time.Minute))
	assert.Equal(t, "09:30", nine.Add(30*time.Minute).String())
	assert.Equal(t, "09:00:05", nine.Add(5*time.Second).String())
}

func TestParseDateAndClockOn(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	d, err := ParseDate("2030-03-15", seoul)
	require.NoError(t, err)

	start := Clock{Hour: 9}.On(d)
	assert.Equal(t, time.Date(2030, 3, 15, 0, 0, 0, 0, time.UTC), start.UTC())
	assert.Equal(t, "2030-03-15", FormatDate(start, seoul))
	assert.Equal(t, Clock{Hour: 9}, ClockOf(start.UTC(), seoul))

	_, err = ParseDate("15/03/2030", seoul)
	assert.Error(t, err)
}

func TestStartOfDay(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	// 20:00 UTC on the 14th is already the 15th in Seoul.
	got := StartOfDay(time.Date(2030, 3, 14, 20, 0, 0, 0, time.UTC), seoul)
	assert.Equal(t, "2030-03-15", got.Format(DateLayout))
	assert.Equal(t, 0, got.Hour())
}
