// Package encoding converts x402 payloads to and from their base64 JSON header form.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/vitwit/x402-paywall/types"
)

func encode(v interface{}, what string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", what, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func decode(encoded string, v interface{}, what string) error {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("failed to decode base64 %s: %w", what, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", what, err)
	}
	return nil
}

// EncodePayment converts a PaymentPayload to the PAYMENT-SIGNATURE header value.
func EncodePayment(payment types.PaymentPayload) (string, error) {
	return encode(payment, "payment")
}

// DecodePayment parses a PAYMENT-SIGNATURE (or X-PAYMENT) header value.
func DecodePayment(encoded string) (types.PaymentPayload, error) {
	var payment types.PaymentPayload
	err := decode(encoded, &payment, "payment")
	return payment, err
}

// EncodePaymentRequired converts a 402 body to the PAYMENT-REQUIRED header value.
func EncodePaymentRequired(required types.PaymentRequired) (string, error) {
	return encode(required, "payment required")
}

func DecodePaymentRequired(encoded string) (types.PaymentRequired, error) {
	var required types.PaymentRequired
	err := decode(encoded, &required, "payment required")
	return required, err
}

// EncodeSettlement converts a SettleResponse to the PAYMENT-RESPONSE header value.
func EncodeSettlement(settlement types.SettleResponse) (string, error) {
	return encode(settlement, "settlement")
}

func DecodeSettlement(encoded string) (types.SettleResponse, error) {
	var settlement types.SettleResponse
	err := decode(encoded, &settlement, "settlement")
	return settlement, err
}
