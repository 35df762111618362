package utils

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/vitwit/x402-paywall/types"
)

var caip2Pattern = regexp.MustCompile(`^[-a-z0-9]{3,8}:[-_a-zA-Z0-9]{1,32}$`)

// ValidateAmount checks if an amount string is a valid non-negative decimal
func ValidateAmount(amount string) (*decimal.Decimal, error) {
	if amount == "" {
		return nil, fmt.Errorf("amount cannot be empty")
	}

	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}

	if dec.IsNegative() {
		return nil, fmt.Errorf("amount cannot be negative")
	}

	return &dec, nil
}

// ParsePrice parses a money string such as "$0.01" or "0.01" into a decimal.
func ParsePrice(price string) (*decimal.Decimal, error) {
	s := strings.TrimSpace(price)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	dec, err := ValidateAmount(s)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", price, err)
	}
	return dec, nil
}

// ValidateBigInt checks if a string is a valid base-10 big integer
func ValidateBigInt(value string) (*big.Int, error) {
	if value == "" {
		return nil, fmt.Errorf("value cannot be empty")
	}

	bigInt := new(big.Int)
	_, success := bigInt.SetString(value, 10)
	if !success {
		return nil, fmt.Errorf("invalid big integer format")
	}

	return bigInt, nil
}

// ValidateAddressForNetwork validates an address for a CAIP-2 network
func ValidateAddressForNetwork(address string, network types.Network) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	switch {
	case network.IsEVM():
		if !strings.HasPrefix(address, "0x") {
			return fmt.Errorf("EVM address must start with 0x")
		}
		if !common.IsHexAddress(address) {
			return fmt.Errorf("EVM address must be 20 bytes of hex")
		}
	default:
		return fmt.Errorf("unsupported network for address validation: %s", network)
	}

	return nil
}

// SameAddress compares two addresses of the given network, ignoring EVM letter case.
func SameAddress(a, b string, network types.Network) bool {
	if network.IsEVM() {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// ValidateNetwork checks that network is a well formed CAIP-2 identifier
func ValidateNetwork(network string) error {
	if !caip2Pattern.MatchString(network) {
		return fmt.Errorf("invalid CAIP-2 network: %q", network)
	}
	return nil
}

// ValidatePaymentScheme checks if a payment scheme is supported
func ValidatePaymentScheme(scheme string) error {
	if types.PaymentScheme(scheme) == types.SchemeExact {
		return nil
	}
	return fmt.Errorf("unsupported payment scheme: %s", scheme)
}

// ConvertDecimals converts an amount from one decimal precision to another.
// Narrowing truncates toward zero.
func ConvertDecimals(amount *big.Int, fromDecimals, toDecimals int) *big.Int {
	if fromDecimals == toDecimals {
		return new(big.Int).Set(amount)
	}

	result := new(big.Int).Set(amount)

	if fromDecimals > toDecimals {
		divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(fromDecimals-toDecimals)), nil)
		result.Quo(result, divisor)
	} else {
		multiplier := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(toDecimals-fromDecimals)), nil)
		result.Mul(result, multiplier)
	}

	return result
}

// ParseAmountWithDecimals converts a decimal amount to atomic units with the given decimals.
// Amounts finer than the precision are rejected rather than rounded.
func ParseAmountWithDecimals(amount string, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, fmt.Errorf("decimals cannot be negative")
	}
	dec, err := ValidateAmount(amount)
	if err != nil {
		return nil, err
	}

	scaled := dec.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}

	return scaled.BigInt(), nil
}

// FormatAmountFromBigInt formats a big.Int amount to decimal string with specified decimals
func FormatAmountFromBigInt(amount *big.Int, decimals int) string {
	dec := decimal.NewFromBigInt(amount, -int32(decimals))
	return dec.StringFixed(int32(decimals))
}
