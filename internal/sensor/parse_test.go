package sensor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCurrency(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"$1,000,000", 1_000_000, false},
		{"$100", 100, false},
		{"500", 500, false},
		{" $2,500 ", 2500, false},
		{"", 0, true},
		{"$", 0, true},
		{"$1oo", 0, true},
		{"$1.50", 0, true},
		{"-5", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseCurrency(tt.in)
		if tt.wantErr {
			require.Error(t, err, "ParseCurrency(%q)", tt.in)
			continue
		}
		require.NoError(t, err, "ParseCurrency(%q)", tt.in)
		require.Equal(t, tt.want, got)
	}
}

func TestParseOdds(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"1 in 1,469,394", 1_469_394, false},
		{"1,469,394", 1_469_394, false},
		{"1 in 3.85", 3.85, false},
		{"120", 120, false},
		{"", 0, true},
		{"1 in ", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseOdds(tt.in)
		if tt.wantErr {
			require.Error(t, err, "ParseOdds(%q)", tt.in)
			continue
		}
		require.NoError(t, err, "ParseOdds(%q)", tt.in)
		require.Equal(t, tt.want, got)
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"4,500", 4500, false},
		{"0", 0, false},
		{" 12 ", 12, false},
		{"", 0, true},
		{"-3", 0, true},
		{"many", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseCount(tt.in)
		if tt.wantErr {
			require.Error(t, err, "ParseCount(%q)", tt.in)
			continue
		}
		require.NoError(t, err, "ParseCount(%q)", tt.in)
		require.Equal(t, tt.want, got)
	}
}

func TestDigitsOnly(t *testing.T) {
	require.Equal(t, "996", digitsOnly("Game #996"))
	require.Equal(t, "", digitsOnly("no digits"))
	require.Equal(t, "1024", digitsOnly(" 10-24 "))
}
