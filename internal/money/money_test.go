package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain integer", in: "100", want: "100.0000"},
		{name: "two places", in: "99.50", want: "99.5000"},
		{name: "rounds extra places", in: "1.23456", want: "1.2346"},
		{name: "zero", in: "0", want: "0.0000"},
		{name: "negative rejected", in: "-5", wantErr: true},
		{name: "garbage rejected", in: "ten rupees", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, Format(got))
		})
	}
}

func TestDeposit(t *testing.T) {
	rent := MustParse("100.00")
	assert.Equal(t, "25.0000", Format(Deposit(rent)))

	// Odd rent amounts round to 4 places.
	rent = MustParse("99.99")
	assert.Equal(t, "24.9975", Format(Deposit(rent)))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(12500), MinorUnits(MustParse("125.00")))
	assert.Equal(t, int64(1), MinorUnits(MustParse("0.01")))
	assert.Equal(t, int64(0), MinorUnits(Zero()))
}
