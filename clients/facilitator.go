package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	cbx402 "github.com/coinbase/x402/go"
	cbhttp "github.com/coinbase/x402/go/http"

	"github.com/vitwit/x402-paywall/types"
)

// DefaultFacilitatorURL is the public x402.org testnet facilitator.
const DefaultFacilitatorURL = "https://x402.org/facilitator"

// FacilitatorClient adapts a coinbase x402 facilitator client to Facilitator.
// Payloads cross the boundary as JSON bytes and responses are decoded into
// this module's types.
type FacilitatorClient struct {
	// BaseURL is the facilitator root, e.g. "https://x402.org/facilitator".
	BaseURL string

	VerifyTimeout time.Duration
	SettleTimeout time.Duration

	inner cbx402.FacilitatorClient
}

var _ Facilitator = (*FacilitatorClient)(nil)

// NewFacilitatorClient returns an HTTP client for url. authorization, when set,
// is sent verbatim as the Authorization header on every call.
func NewFacilitatorClient(url, authorization string) *FacilitatorClient {
	if url == "" {
		url = DefaultFacilitatorURL
	}
	url = strings.TrimRight(url, "/")

	cfg := &cbhttp.FacilitatorConfig{URL: url}
	if authorization != "" {
		cfg.AuthProvider = staticAuth(authorization)
	}
	return WrapFacilitator(url, cbhttp.NewHTTPFacilitatorClient(cfg))
}

// WrapFacilitator adapts inner with default timeouts.
func WrapFacilitator(baseURL string, inner cbx402.FacilitatorClient) *FacilitatorClient {
	return &FacilitatorClient{
		BaseURL:       baseURL,
		VerifyTimeout: 10 * time.Second,
		SettleTimeout: 60 * time.Second,
		inner:         inner,
	}
}

// staticAuth sends the same Authorization header to every endpoint.
type staticAuth string

func (a staticAuth) GetAuthHeaders(context.Context) (cbhttp.AuthHeaders, error) {
	h := map[string]string{"Authorization": string(a)}
	return cbhttp.AuthHeaders{Verify: h, Settle: h, Supported: h}, nil
}

// Verify asks the facilitator whether payload satisfies requirements.
func (c *FacilitatorClient) Verify(
	ctx context.Context,
	payload types.PaymentPayload,
	requirements types.PaymentRequirements,
) (*types.VerifyResponse, error) {
	payloadBytes, requirementsBytes, err := marshalPair(payload, requirements)
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := withDefaultTimeout(ctx, c.VerifyTimeout)
	defer cancel()

	raw, callErr := c.inner.Verify(reqCtx, payloadBytes, requirementsBytes)
	if raw == nil {
		return nil, classify(callErr, ErrVerificationFailed)
	}

	// an invalid verdict may arrive together with an error; the verdict wins
	var resp types.VerifyResponse
	if err := convert(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode verify response: %w", err)
	}
	if callErr != nil && resp.IsValid {
		return nil, classify(callErr, ErrVerificationFailed)
	}
	if resp.Payer == "" {
		resp.Payer = payerOf(payload)
	}
	return &resp, nil
}

// Settle asks the facilitator to execute a verified payment on chain.
func (c *FacilitatorClient) Settle(
	ctx context.Context,
	payload types.PaymentPayload,
	requirements types.PaymentRequirements,
) (*types.SettleResponse, error) {
	payloadBytes, requirementsBytes, err := marshalPair(payload, requirements)
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := withDefaultTimeout(ctx, c.SettleTimeout)
	defer cancel()

	raw, callErr := c.inner.Settle(reqCtx, payloadBytes, requirementsBytes)
	if raw == nil {
		return nil, classify(callErr, ErrSettlementFailed)
	}

	var resp types.SettleResponse
	if err := convert(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode settle response: %w", err)
	}
	if callErr != nil && resp.Success {
		return nil, classify(callErr, ErrSettlementFailed)
	}
	return &resp, nil
}

// Supported lists the payment kinds the facilitator accepts.
func (c *FacilitatorClient) Supported(ctx context.Context) (*types.SupportedResponse, error) {
	reqCtx, cancel := withDefaultTimeout(ctx, c.VerifyTimeout)
	defer cancel()

	raw, err := c.inner.GetSupported(reqCtx)
	if err != nil {
		return nil, classify(err, errors.New("supported request failed"))
	}

	var supported types.SupportedResponse
	if err := convert(raw, &supported); err != nil {
		return nil, fmt.Errorf("failed to decode supported response: %w", err)
	}
	return &supported, nil
}

func marshalPair(payload types.PaymentPayload, requirements types.PaymentRequirements) ([]byte, []byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal payment payload: %w", err)
	}
	requirementsBytes, err := json.Marshal(requirements)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal payment requirements: %w", err)
	}
	return payloadBytes, requirementsBytes, nil
}

// convert re-decodes src into dst through its JSON form.
func convert(src, dst interface{}) error {
	b, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// classify wraps transport failures and timeouts with ErrFacilitatorUnavailable
// and everything else with base.
func classify(err, base error) error {
	if err == nil {
		return fmt.Errorf("%w: empty response", base)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrFacilitatorUnavailable, err)
	}
	return fmt.Errorf("%w: %w", base, err)
}

// withDefaultTimeout applies d only when ctx carries no deadline of its own.
func withDefaultTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// payerOf reads authorization.from from an EVM proof.
func payerOf(payload types.PaymentPayload) string {
	var evm types.EVMPayload
	if err := json.Unmarshal(payload.Payload, &evm); err != nil {
		return ""
	}
	return evm.Authorization.From
}
