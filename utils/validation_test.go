package utils

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/x402-paywall/types"
)

func TestParsePrice(t *testing.T) {
	for _, in := range []string{"$0.01", "0.01", " $0.01 ", "$0.010"} {
		d, err := ParsePrice(in)
		require.NoError(t, err, in)
		assert.Equal(t, "0.01", d.String(), in)
	}

	for _, in := range []string{"", "$", "abc", "$-1"} {
		_, err := ParsePrice(in)
		assert.Error(t, err, in)
	}
}

func TestParseAmountWithDecimals(t *testing.T) {
	v, err := ParseAmountWithDecimals("0.01", 6)
	require.NoError(t, err)
	assert.Equal(t, "10000", v.String())

	v, err = ParseAmountWithDecimals("100", 6)
	require.NoError(t, err)
	assert.Equal(t, "100000000", v.String())

	_, err = ParseAmountWithDecimals("0.0000001", 6)
	assert.Error(t, err)

	_, err = ParseAmountWithDecimals("1", -1)
	assert.Error(t, err)
}

func TestConvertDecimals(t *testing.T) {
	assert.Equal(t, "1", ConvertDecimals(big.NewInt(10000), 6, 2).String())
	assert.Equal(t, "10000", ConvertDecimals(big.NewInt(1), 2, 6).String())
	assert.Equal(t, "7", ConvertDecimals(big.NewInt(7), 2, 2).String())
	assert.Equal(t, "0", ConvertDecimals(big.NewInt(9999), 6, 2).String())
}

func TestFormatAmountFromBigInt(t *testing.T) {
	assert.Equal(t, "0.01", FormatAmountFromBigInt(big.NewInt(1), 2))
	assert.Equal(t, "0.010000", FormatAmountFromBigInt(big.NewInt(10000), 6))
}

func TestValidateAddressForNetwork(t *testing.T) {
	good := "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
	assert.NoError(t, ValidateAddressForNetwork(good, types.NetworkBaseSepolia))
	assert.Error(t, ValidateAddressForNetwork("", types.NetworkBaseSepolia))
	assert.Error(t, ValidateAddressForNetwork("209693Bc6afc0C5328bA36FaF03C514EF312287C", types.NetworkBaseSepolia))
	assert.Error(t, ValidateAddressForNetwork("0x1234", types.NetworkBaseSepolia))
	assert.Error(t, ValidateAddressForNetwork(good, "solana:devnet"))
}

func TestSameAddress(t *testing.T) {
	assert.True(t, SameAddress("0xABCdef", "0xabcDEF", types.NetworkBaseSepolia))
	assert.False(t, SameAddress("0xabc", "0xabd", types.NetworkBaseSepolia))
	assert.False(t, SameAddress("Abc", "abc", "solana:devnet"))
}

func TestValidateNetworkAndScheme(t *testing.T) {
	assert.NoError(t, ValidateNetwork("eip155:84532"))
	assert.Error(t, ValidateNetwork("base-sepolia"))
	assert.Error(t, ValidateNetwork(""))

	assert.NoError(t, ValidatePaymentScheme("exact"))
	assert.Error(t, ValidatePaymentScheme("upto"))
}

func TestParsePaymentRequirements(t *testing.T) {
	req, err := ParsePaymentRequirements([]byte(`{"scheme":"exact","network":"eip155:84532","amount":"10000",` +
		`"asset":"0x036CbD53842c5426634e7929541eC2318f3dCF7e","payTo":"0xabc","maxTimeoutSeconds":300}`))
	require.NoError(t, err)
	assert.Equal(t, "10000", req.Amount)

	_, err = ParsePaymentRequirements([]byte(`{"scheme":"exact"}`))
	assert.True(t, types.IsCode(err, types.ErrInvalidRequirements))

	_, err = ParsePaymentRequirements([]byte(`nope`))
	assert.True(t, types.IsCode(err, types.ErrInvalidRequirements))
}
