package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLocation(t *testing.T) {
	loc := LoadLocation("")
	require.NotNil(t, loc)

	_, offset := time.Date(2024, 1, 1, 12, 0, 0, 0, loc).Zone()
	assert.Equal(t, 5*3600+1800, offset)

	assert.Equal(t, time.UTC, LoadLocation("Not/AZone"))
}

func TestFixedClock(t *testing.T) {
	start := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
	c := NewFixedClock(start)

	assert.Equal(t, start, c.Now())
	c.Advance(90 * time.Minute)
	assert.Equal(t, "10:30", FormatClock(c.Now()))
}

func TestDayBoundaries(t *testing.T) {
	ts := time.Date(2024, 3, 11, 15, 4, 5, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), StartOfDay(ts))
	assert.Equal(t, "2024-03-11", FormatDate(EndOfDay(ts)))
	assert.False(t, IsWeekend(ts))
	assert.True(t, IsWeekend(time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-03-11", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 11, d.Day())

	_, err = ParseDate("11.03.2024", time.UTC)
	assert.Error(t, err)
}
