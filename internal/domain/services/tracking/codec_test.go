package tracking

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trxgate/trxgate/internal/domain/entities"
)

func TestEncodeAmount(t *testing.T) {
	t.Run("embeds code in trailing digits", func(t *testing.T) {
		amount := decimal.RequireFromString("2.85")

		encoded, err := EncodeAmount(amount, 321, entities.CurrencyTRX)

		require.NoError(t, err)
		assert.Equal(t, "2.850321", encoded.StringFixed(6))
	})

	t.Run("integral amount still gets full precision", func(t *testing.T) {
		amount := decimal.NewFromInt(3)

		encoded, err := EncodeAmount(amount, 500, entities.CurrencyTRX)

		require.NoError(t, err)
		assert.Equal(t, "3.000500", encoded.StringFixed(6))
	})

	t.Run("overwrites existing trailing digits", func(t *testing.T) {
		amount := decimal.RequireFromString("7.123456")

		encoded, err := EncodeAmount(amount, 999, entities.CurrencyTRX)

		require.NoError(t, err)
		assert.Equal(t, "7.123999", encoded.StringFixed(6))
	})

	t.Run("zero-pads short codes", func(t *testing.T) {
		amount := decimal.RequireFromString("1.5")

		encoded, err := EncodeAmount(amount, 7, entities.CurrencyTRX)

		require.NoError(t, err)
		assert.Equal(t, "1.500007", encoded.StringFixed(6))
	})

	t.Run("rejects codes that do not fit", func(t *testing.T) {
		amount := decimal.RequireFromString("1.5")

		_, err := EncodeAmount(amount, 1234, entities.CurrencyTRX)
		assert.Error(t, err)

		_, err = EncodeAmount(amount, -1, entities.CurrencyTRX)
		assert.Error(t, err)
	})

	t.Run("rejects currencies without fixed precision", func(t *testing.T) {
		_, err := EncodeAmount(decimal.NewFromInt(1), 100, entities.CurrencyIRT)
		assert.Error(t, err)
	})
}

func TestDecodeAmount(t *testing.T) {
	t.Run("recovers the embedded code", func(t *testing.T) {
		amount := decimal.RequireFromString("2.850321")

		code, err := DecodeAmount(amount, entities.CurrencyTRX)

		require.NoError(t, err)
		assert.Equal(t, 321, code)
	})

	t.Run("round-trips through encode", func(t *testing.T) {
		for _, code := range []int{100, 321, 500, 999} {
			encoded, err := EncodeAmount(decimal.RequireFromString("12.3456"), code, entities.CurrencyTRX)
			require.NoError(t, err)

			decoded, err := DecodeAmount(encoded, entities.CurrencyTRX)
			require.NoError(t, err)
			assert.Equal(t, code, decoded)
		}
	})

	t.Run("reads zero code from a bare amount", func(t *testing.T) {
		code, err := DecodeAmount(decimal.NewFromInt(5), entities.CurrencyTRX)

		require.NoError(t, err)
		assert.Equal(t, 0, code)
	})
}
