package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// StripeAppInfo identifies this server to Stripe.
var StripeAppInfo = &stripe.AppInfo{
	Name:    "stripe-samples/machine-payments",
	URL:     "https://github.com/stripe-samples/machine-payments",
	Version: "1.0.0",
}

// StripeProcessor issues crypto deposit addresses through Stripe PaymentIntents.
type StripeProcessor struct {
	create func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

var _ Processor = (*StripeProcessor)(nil)

// NewStripeProcessor builds a processor authenticated with secretKey.
func NewStripeProcessor(secretKey string) (*StripeProcessor, error) {
	if secretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}
	stripe.SetAppInfo(StripeAppInfo)
	sc := client.New(secretKey, nil)
	return &StripeProcessor{create: sc.PaymentIntents.New}, nil
}

// CreateDepositIntent creates and confirms a crypto PaymentIntent and returns its
// deposit address for req.Network. It performs exactly one API call.
func (s *StripeProcessor) CreateDepositIntent(ctx context.Context, req DepositIntentRequest) (*DepositIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount),
		Currency:           stripe.String(req.Currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"crypto"}),
		PaymentMethodData: &stripe.PaymentIntentPaymentMethodDataParams{
			Type: stripe.String("crypto"),
		},
		Confirm: stripe.Bool(true),
	}
	params.Context = ctx
	// crypto deposit mode is a beta option not modelled by the typed params
	params.AddExtra("payment_method_options[crypto][mode]", "custom")

	pi, err := s.create(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}
	if pi.LastResponse == nil {
		return nil, fmt.Errorf("payment intent %s: %w", pi.ID, ErrDepositDetailsMissing)
	}

	address, err := DepositAddressFromIntent(pi.LastResponse.RawJSON, req.Network)
	if err != nil {
		return nil, fmt.Errorf("payment intent %s: %w", pi.ID, err)
	}

	return &DepositIntent{
		ID:             pi.ID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		DepositAddress: address,
	}, nil
}

type intentNextAction struct {
	NextAction *struct {
		CryptoCollectDepositDetails *struct {
			DepositAddresses map[string]struct {
				Address string `json:"address"`
			} `json:"deposit_addresses"`
		} `json:"crypto_collect_deposit_details"`
	} `json:"next_action"`
}

// DepositAddressFromIntent reads
// next_action.crypto_collect_deposit_details.deposit_addresses[network].address
// from a raw PaymentIntent body.
func DepositAddressFromIntent(raw []byte, network string) (string, error) {
	var body intentNextAction
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDepositDetailsMissing, err)
	}
	if body.NextAction == nil || body.NextAction.CryptoCollectDepositDetails == nil {
		return "", ErrDepositDetailsMissing
	}
	entry, ok := body.NextAction.CryptoCollectDepositDetails.DepositAddresses[network]
	if !ok || entry.Address == "" {
		return "", ErrDepositDetailsMissing
	}
	return entry.Address, nil
}
