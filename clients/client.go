// Package clients holds the external collaborators of the paywall: the x402
// facilitator that verifies and settles payments and the payment processor that
// issues deposit addresses.
package clients

import (
	"context"

	"github.com/vitwit/x402-paywall/types"
)

// Facilitator verifies payment proofs against chain state and settles them.
type Facilitator interface {
	Verify(ctx context.Context, payload types.PaymentPayload, requirements types.PaymentRequirements) (*types.VerifyResponse, error)
	Settle(ctx context.Context, payload types.PaymentPayload, requirements types.PaymentRequirements) (*types.SettleResponse, error)
	Supported(ctx context.Context) (*types.SupportedResponse, error)
}

// DepositIntentRequest asks the processor for a fresh deposit address.
// Amount is in the currency's minor unit (cents for usd).
type DepositIntentRequest struct {
	Amount   int64
	Currency string
	// Network selects the deposit address entry, e.g. "base".
	Network string
}

// DepositIntent is a processor record expecting an incoming crypto payment.
type DepositIntent struct {
	ID             string
	Amount         int64
	Currency       string
	DepositAddress string
}

// Processor creates deposit intents. Calls are not idempotent: every call
// creates a new chargeable intent, so callers must not retry blindly.
type Processor interface {
	CreateDepositIntent(ctx context.Context, req DepositIntentRequest) (*DepositIntent, error)
}
