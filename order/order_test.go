package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in        string
		want      Action
		supported bool
		wantErr   bool
	}{
		{"BUY_TO_OPEN", BuyToOpen, true, false},
		{"buy_to_open", BuyToOpen, true, false},
		{" open ", BuyToOpen, true, false},
		{"SELL_TO_CLOSE", SellToClose, true, false},
		{"close", SellToClose, true, false},
		{"BUY_TO_CLOSE", BuyToClose, false, false},
		{"sell_to_open", SellToOpen, false, false},
		{"HOLD", ActionUnknown, false, true},
		{"", ActionUnknown, false, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseAction(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.supported, got.Supported())
		})
	}
}

func TestActionString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "BUY_TO_OPEN", BuyToOpen.String())
	assert.Equal(t, "SELL_TO_CLOSE", SellToClose.String())
	assert.Equal(t, "Action(42)", Action(42).String())
}

func TestParseOptionType(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"CALL", "call", "Call", "c"} {
		got, err := ParseOptionType(in)
		require.NoError(t, err, in)
		assert.Equal(t, Call, got)
	}
	for _, in := range []string{"PUT", "put", " P "} {
		got, err := ParseOptionType(in)
		require.NoError(t, err, in)
		assert.Equal(t, Put, got)
	}

	_, err := ParseOptionType("STRADDLE")
	assert.ErrorContains(t, err, "must be CALL or PUT")
	assert.False(t, OptionType("call").Valid())
}

func TestParseExpiration(t *testing.T) {
	t.Parallel()

	got, err := ParseExpiration("")
	require.NoError(t, err)
	assert.Equal(t, ZeroDTE, got)

	got, err = ParseExpiration("7dte")
	require.NoError(t, err)
	assert.Equal(t, SevenDTE, got)

	_, err = ParseExpiration("30DTE")
	assert.Error(t, err)
}

func TestIntentNormalized(t *testing.T) {
	t.Parallel()

	in := Intent{Ticker: " tsla "}
	assert.Equal(t, "TSLA", in.Normalized().Ticker)
	assert.Equal(t, " tsla ", in.Ticker)
}
