package signature_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/once/pkg/once/signature"
)

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2024, 3, 9, 7, 5, 4, 123456789, time.UTC)
	assert.Equal(t, "20240309070504123456", signature.FormatTimestamp(ts))

	local := ts.In(time.FixedZone("UTC+2", 2*60*60))
	assert.Equal(t, "20240309070504123456", signature.FormatTimestamp(local))
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 3, 9, 7, 5, 4, 123456000, time.UTC)

	got, err := signature.ParseTimestamp("20240309070504123456")
	require.NoError(t, err)
	assert.True(t, want.Equal(got))

	got, err = signature.ParseTimestamp("202403090705041")
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 3, 9, 7, 5, 4, 100000000, time.UTC).Equal(got))

	for _, bad := range []string{"", "2024", "20240309070504", "2024030907050412345678", "2024030907050x123456", "20241309070504123456", "20240309070504-12345"} {
		_, err := signature.ParseTimestamp(bad)
		assert.ErrorIs(t, err, signature.ErrInvalidTimestamp, bad)
	}
}

func TestValidateTimestampWindow(t *testing.T) {
	now := time.Date(2024, 3, 9, 7, 5, 4, 500000000, time.UTC)
	tolerance := 5 * time.Second

	tests := []struct {
		name string
		ts   time.Time
		want bool
	}{
		{"now", now, true},
		{"at the tolerance edge", now.Add(-tolerance), true},
		{"just past tolerance", now.Add(-tolerance - time.Microsecond), false},
		{"a second past tolerance", now.Add(-tolerance - time.Second), false},
		{"one microsecond in the future", now.Add(time.Microsecond), false},
		{"one second in the future", now.Add(time.Second), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := signature.ValidateTimestamp(signature.FormatTimestamp(tt.ts), now, tolerance)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.False(t, signature.ValidateTimestamp("not-a-timestamp", now, tolerance))
}

func TestSignerCheckTimestamp(t *testing.T) {
	now := time.Date(2024, 3, 9, 7, 5, 4, 0, time.UTC)
	s := signature.New(signature.WithClock(func() time.Time { return now }))

	assert.NoError(t, s.CheckTimestamp(signature.FormatTimestamp(now.Add(-time.Second))))
	assert.ErrorIs(t, s.CheckTimestamp(""), signature.ErrMissingTimestamp)
	assert.ErrorIs(t, s.CheckTimestamp("garbage"), signature.ErrInvalidTimestamp)
	assert.ErrorIs(t, s.CheckTimestamp(signature.FormatTimestamp(now.Add(-10*time.Second))), signature.ErrTimestampOutOfWindow)
	assert.ErrorIs(t, s.CheckTimestamp(signature.FormatTimestamp(now.Add(time.Second))), signature.ErrTimestampOutOfWindow)
}
