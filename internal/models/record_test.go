package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepPrefix(t *testing.T) {
	assert.Equal(t, "emp", StepPrefix(AccountTypeEmployee))
	assert.Equal(t, "stu", StepPrefix(AccountTypeStudent))
	assert.Equal(t, "", StepPrefix("contractor"))
	assert.Equal(t, "", StepPrefix(""))
}

func TestFirstStep(t *testing.T) {
	assert.Equal(t, "emp-1", FirstStep(AccountTypeEmployee))
	assert.Equal(t, "stu-1", FirstStep(AccountTypeStudent))
}

func TestParseStepDate(t *testing.T) {
	got, err := ParseStepDate("2024-01-02T15-04")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 15, 4, 0, 0, time.UTC), got)
}

func TestParseStepDate_RejectsOtherLayouts(t *testing.T) {
	for _, s := range []string{"", "2024-01-02", "2024-01-02T15:04", "02/01/2024"} {
		_, err := ParseStepDate(s)
		assert.Error(t, err, "layout %q should be rejected", s)
	}
}

func TestFormatStepDate_RoundTrip(t *testing.T) {
	in := time.Date(2026, 6, 29, 8, 30, 0, 0, time.UTC)
	s := FormatStepDate(in)
	assert.Equal(t, "2026-06-29T08-30", s)

	back, err := ParseStepDate(s)
	require.NoError(t, err)
	assert.True(t, in.Equal(back))
}

func TestFormatStepDate_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("PST", -8*3600)
	in := time.Date(2026, 1, 1, 16, 0, 0, 0, loc)
	assert.Equal(t, "2026-01-02T00-00", FormatStepDate(in))
}
