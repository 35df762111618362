// Package schemes defines the server side contract of an x402 payment scheme.
package schemes

import (
	"context"

	"github.com/vitwit/x402-paywall/types"
)

// Server is implemented by a payment scheme registered for a network.
type Server interface {
	// Scheme returns the scheme tag, e.g. "exact".
	Scheme() string

	// ParsePrice converts a human price into an amount of the network's asset.
	ParsePrice(price types.Price, network types.Network) (types.AssetAmount, error)

	// EnhancePaymentRequirements merges facilitator advertised data into requirements.
	EnhancePaymentRequirements(
		ctx context.Context,
		requirements types.PaymentRequirements,
		supported types.SupportedKind,
	) (types.PaymentRequirements, error)

	// CheckPayload performs structural checks that need no chain access.
	// It returns nil when the facilitator should be asked, or a rejection.
	CheckPayload(payload types.PaymentPayload, requirements types.PaymentRequirements) *types.VerifyResponse
}
