package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesu/settlement-engine/engine"
)

// =============================================================================
// MONTH ARITHMETIC TESTS
// =============================================================================

func TestAddMonths_EndOfMonthClamp(t *testing.T) {
	// GIVEN: A start date on the 31st
	// WHEN: Adding one month into a shorter month
	// THEN: The day clamps to the last day of the target month

	jan31 := engine.NewDate(2025, time.January, 31)
	assert.Equal(t, "2025-02-28", jan31.AddMonths(1).String())

	mar31 := engine.NewDate(2025, time.March, 31)
	assert.Equal(t, "2025-04-30", mar31.AddMonths(1).String())
}

func TestAddMonths_LeapYear(t *testing.T) {
	jan31 := engine.NewDate(2024, time.January, 31)
	assert.Equal(t, "2024-02-29", jan31.AddMonths(1).String())
}

func TestAddMonths_TermMaturity(t *testing.T) {
	// An 8-month term starting April 1, 2025 matures December 1, 2025.
	start := engine.NewDate(2025, time.April, 1)
	assert.Equal(t, "2025-12-01", start.AddMonths(8).String())
}

func TestAddMonths_YearRollover(t *testing.T) {
	nov := engine.NewDate(2025, time.November, 15)
	assert.Equal(t, "2026-02-15", nov.AddMonths(3).String())

	feb := engine.NewDate(2025, time.February, 10)
	assert.Equal(t, "2024-12-10", feb.AddMonths(-2).String())
}

// =============================================================================
// PARSING AND FORMATTING TESTS
// =============================================================================

func TestParseDate_Roundtrip(t *testing.T) {
	d, err := engine.ParseDate("2025-12-01")
	require.NoError(t, err)
	assert.Equal(t, "2025-12-01", d.String())
	assert.Equal(t, "20251201", d.Compact())
	assert.Equal(t, 2025, d.Year())
}

func TestParseDate_Invalid(t *testing.T) {
	_, err := engine.ParseDate("12/01/2025")
	assert.Error(t, err)
}

// =============================================================================
// COMPARISON TESTS
// =============================================================================

func TestDate_AfterOrEqual(t *testing.T) {
	eventDate := engine.NewDate(2025, time.December, 31)

	assert.False(t, engine.NewDate(2025, time.December, 30).AfterOrEqual(eventDate))
	assert.True(t, eventDate.AfterOrEqual(eventDate))
	assert.True(t, engine.NewDate(2026, time.January, 5).AfterOrEqual(eventDate))
}
