package loyalty_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stampcard/loyalty"
)

func TestParseDayMonth(t *testing.T) {
	tests := []struct {
		in    string
		day   int
		month time.Month
	}{
		{"10/03", 10, time.March},
		{" 4/7 ", 4, time.July},
		{"03-10", 10, time.March},
		{"1990-12-25", 25, time.December},
		{"29/02", 29, time.February},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := loyalty.ParseDayMonth(tt.in)
			require.NoError(t, err)
			require.NotNil(t, d)
			assert.Equal(t, tt.day, d.Day)
			assert.Equal(t, tt.month, d.Month)
		})
	}
}

func TestParseDayMonth_Empty(t *testing.T) {
	d, err := loyalty.ParseDayMonth("   ")
	assert.NoError(t, err)
	assert.Nil(t, d)
}

func TestParseDayMonth_Invalid(t *testing.T) {
	for _, in := range []string{"31/02", "00/01", "12/13", "march 10", "1/2/3", "aa/bb", "2023-02-30"} {
		_, err := loyalty.ParseDayMonth(in)
		assert.ErrorIs(t, err, loyalty.ErrInvalidArgument, in)
	}
}

func TestDayMonth_String(t *testing.T) {
	assert.Equal(t, "04/07", loyalty.DayMonth{Day: 4, Month: time.July}.String())
}
