package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePacific(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantUTC    time.Time
		wantOffset int
	}{
		{"daylight time", "2024-06-05 12:00:00.000000", time.Date(2024, 6, 5, 19, 0, 0, 0, time.UTC), -7 * 3600},
		{"standard time", "2024-01-15 08:15:30.500000", time.Date(2024, 1, 15, 16, 15, 30, 500_000_000, time.UTC), -8 * 3600},
		{"no fraction", "2024-01-15 08:15:30", time.Date(2024, 1, 15, 16, 15, 30, 0, time.UTC), -8 * 3600},
		{"fall-back picks later instant", "2024-11-03 01:30:00.000000", time.Date(2024, 11, 3, 9, 30, 0, 0, time.UTC), -8 * 3600},
		{"fall-back boundary", "2024-11-03 01:00:00.000000", time.Date(2024, 11, 3, 9, 0, 0, 0, time.UTC), -8 * 3600},
		{"just after fall-back", "2024-11-03 02:00:00.000000", time.Date(2024, 11, 3, 10, 0, 0, 0, time.UTC), -8 * 3600},
		{"just before spring-forward", "2024-03-10 01:59:59.000000", time.Date(2024, 3, 10, 9, 59, 59, 0, time.UTC), -8 * 3600},
		{"just after spring-forward", "2024-03-10 03:00:00.000000", time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC), -7 * 3600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolvePacific(tt.text)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.wantUTC), "got %s want %s", got.UTC(), tt.wantUTC)
			assert.Equal(t, Pacific(), got.Location())
			_, offset := got.Zone()
			assert.Equal(t, tt.wantOffset, offset)
		})
	}
}

func TestResolvePacific_FallBackIsDeterministic(t *testing.T) {
	first, err := ResolvePacific("2024-11-03 01:30:00.000000")
	require.NoError(t, err)
	for range 50 {
		again, err := ResolvePacific("2024-11-03 01:30:00.000000")
		require.NoError(t, err)
		assert.True(t, first.Equal(again))
	}
}

func TestResolvePacific_SpringForwardGap(t *testing.T) {
	for _, text := range []string{
		"2024-03-10 02:30:00.000000",
		"2024-03-10 02:00:00.000000",
		"2023-03-12 02:59:59.999999",
	} {
		t.Run(text, func(t *testing.T) {
			_, err := ResolvePacific(text)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidLocalTime)

			var ilt *InvalidLocalTimeError
			require.ErrorAs(t, err, &ilt)
			assert.Equal(t, text, ilt.Text)
			assert.Contains(t, err.Error(), "invalid for Pacific timezone")
		})
	}
}

func TestResolvePacific_Malformed(t *testing.T) {
	for _, text := range []string{"", "2024-06-05", "2024-06-05T12:00:00", "yesterday"} {
		_, err := ResolvePacific(text)
		require.Error(t, err, text)
		assert.NotErrorIs(t, err, ErrInvalidLocalTime)
	}
}
