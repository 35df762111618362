// Package payto decides which deposit address a request should pay into.
//
// A request that already carries a payment proof is matched against the
// address the client committed to. A request without one is given a freshly
// minted deposit address from the payment processor.
package payto

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vitwit/x402-paywall/clients"
	"github.com/vitwit/x402-paywall/logger"
	"github.com/vitwit/x402-paywall/metrics"
	"github.com/vitwit/x402-paywall/middleware"
	"github.com/vitwit/x402-paywall/types"
	"github.com/vitwit/x402-paywall/utils"
)

const (
	DefaultPrice          types.Price = "$0.01"
	DefaultDecimals                   = 6
	DefaultCurrency                   = "usd"
	DefaultDepositNetwork             = "base"
)

// fiatDecimals is the precision of the processor's minor unit.
const fiatDecimals = 2

type proofRecipient struct {
	Payload struct {
		Authorization struct {
			To interface{} `json:"to"`
		} `json:"authorization"`
	} `json:"payload"`
}

// ExtractAddress returns the lowercased payload.authorization.to of a base64
// payment header, or "" when the header does not carry one.
func ExtractAddress(header string) string {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return ""
	}

	var proof proofRecipient
	if err := json.Unmarshal(raw, &proof); err != nil {
		return ""
	}

	to, ok := proof.Payload.Authorization.To.(string)
	if !ok || to == "" {
		return ""
	}
	return strings.ToLower(to)
}

// MinorUnits converts an amount with decimals fractional digits into cents,
// rounding half up.
func MinorUnits(atomic int64, decimals int) (int64, error) {
	if decimals < fiatDecimals {
		return 0, fmt.Errorf("decimals must be at least %d, got %d", fiatDecimals, decimals)
	}
	if atomic < 0 {
		return 0, fmt.Errorf("amount must not be negative, got %d", atomic)
	}

	return decimal.New(atomic, int32(fiatDecimals-decimals)).Round(0).IntPart(), nil
}

// Resolver implements the pay-to policy on top of a payment processor.
type Resolver struct {
	processor      clients.Processor
	price          types.Price
	decimals       int
	currency       string
	depositNetwork string
	logger         logger.Logger
	metrics        metrics.Recorder

	// amount is the charge in the processor's minor unit.
	amount int64
}

type Option func(*Resolver)

func WithPrice(p types.Price) Option {
	return func(r *Resolver) { r.price = p }
}

// WithDecimals sets the precision the price is first expressed in.
func WithDecimals(d int) Option {
	return func(r *Resolver) { r.decimals = d }
}

func WithCurrency(c string) Option {
	return func(r *Resolver) { r.currency = c }
}

// WithDepositNetwork selects the processor's deposit address entry.
func WithDepositNetwork(n string) Option {
	return func(r *Resolver) { r.depositNetwork = n }
}

func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithMetrics(m metrics.Recorder) Option {
	return func(r *Resolver) {
		if m != nil {
			r.metrics = m
		}
	}
}

// NewResolver creates a resolver and prices the deposit intents it will request.
func NewResolver(processor clients.Processor, opts ...Option) (*Resolver, error) {
	if processor == nil {
		return nil, types.NewError(types.ErrConfigError, "payment processor is required", nil)
	}

	r := &Resolver{
		processor:      processor,
		price:          DefaultPrice,
		decimals:       DefaultDecimals,
		currency:       DefaultCurrency,
		depositNetwork: DefaultDepositNetwork,
		logger:         logger.NoopLogger{},
		metrics:        metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}

	amount, err := chargeAmount(r.price, r.decimals)
	if err != nil {
		return nil, types.NewError(types.ErrConfigError, "invalid deposit price", err)
	}
	if amount <= 0 {
		return nil, types.NewError(types.ErrConfigError,
			fmt.Sprintf("deposit price %s rounds to zero minor units", r.price), nil)
	}
	r.amount = amount
	return r, nil
}

func chargeAmount(price types.Price, decimals int) (int64, error) {
	dec, err := utils.ParsePrice(string(price))
	if err != nil {
		return 0, err
	}
	atomic, err := utils.ParseAmountWithDecimals(dec.String(), decimals)
	if err != nil {
		return 0, err
	}
	if !atomic.IsInt64() {
		return 0, fmt.Errorf("price %s is out of range", price)
	}
	return MinorUnits(atomic.Int64(), decimals)
}

// Amount returns the charge in minor units requested for each new intent.
func (r *Resolver) Amount() int64 {
	return r.amount
}

// Resolve returns the address rc should pay into. For a request with a payment
// header it never fails and returns "" when no address can be read. Otherwise
// it creates exactly one deposit intent.
func (r *Resolver) Resolve(ctx context.Context, rc types.RequestContext) (string, error) {
	if header := rc.PaymentHeader(); header != "" {
		return ExtractAddress(header), nil
	}
	return r.mint(ctx)
}

// PayTo exposes Resolve as a dynamic pay-to callback.
func (r *Resolver) PayTo() middleware.DynamicPayTo {
	return r.Resolve
}

func (r *Resolver) mint(ctx context.Context) (string, error) {
	labels := map[string]string{"network": r.depositNetwork}

	start := time.Now()
	intent, err := r.processor.CreateDepositIntent(ctx, clients.DepositIntentRequest{
		Amount:   r.amount,
		Currency: r.currency,
		Network:  r.depositNetwork,
	})
	r.metrics.ObserveLatency(metrics.EventIntentCreated, time.Since(start), labels)

	if err != nil {
		r.metrics.IncCounter(metrics.EventIntentFailed, labels)
		r.logger.Error("failed to create deposit intent", map[string]any{"error": err})
		if errors.Is(err, clients.ErrDepositDetailsMissing) {
			return "", types.NewError(types.ErrProcessorError, "deposit address unavailable", err)
		}
		return "", types.NewError(types.ErrProcessorError, "failed to create deposit intent", err)
	}
	r.metrics.IncCounter(metrics.EventIntentCreated, labels)

	r.logger.Info("created payment intent", map[string]any{
		"intent_id": intent.ID,
		"amount":    "$" + decimal.New(intent.Amount, -fiatDecimals).StringFixed(fiatDecimals),
		"pay_to":    intent.DepositAddress,
	})
	return intent.DepositAddress, nil
}
