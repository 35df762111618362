// Package x402 is the resource server side of the x402 payment protocol: it
// turns prices into payment requirements and verifies and settles proofs
// through a facilitator.
package x402

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vitwit/x402-paywall/clients"
	"github.com/vitwit/x402-paywall/logger"
	"github.com/vitwit/x402-paywall/metrics"
	"github.com/vitwit/x402-paywall/schemes"
	"github.com/vitwit/x402-paywall/settlement"
	"github.com/vitwit/x402-paywall/types"
	"github.com/vitwit/x402-paywall/utils"
	"github.com/vitwit/x402-paywall/verification"
)

// DefaultMaxTimeoutSeconds bounds how long a payment authorization stays valid.
const DefaultMaxTimeoutSeconds = 300

// ResourceServer holds the registered schemes and the facilitator they settle through.
// Register is called during setup; afterwards the server is safe for concurrent use.
type ResourceServer struct {
	facilitator clients.Facilitator
	verifier    *verification.VerificationService
	settler     *settlement.SettlementService

	logger  logger.Logger
	metrics metrics.Recorder
	timeout time.Duration

	mu        sync.RWMutex
	schemes   map[types.Network]map[string]schemes.Server
	supported *types.SupportedResponse
}

// New creates a resource server backed by facilitator.
func New(facilitator clients.Facilitator, opts ...Option) *ResourceServer {
	rs := &ResourceServer{
		facilitator: facilitator,
		logger:      logger.NoopLogger{},
		metrics:     metrics.NoopRecorder{},
		timeout:     60 * time.Second,
		schemes:     make(map[types.Network]map[string]schemes.Server),
	}
	for _, opt := range opts {
		opt(rs)
	}

	rs.verifier = verification.NewVerificationService(facilitator, rs.timeout, rs.logger, rs.metrics)
	rs.settler = settlement.NewSettlementService(facilitator, rs.timeout, rs.logger, rs.metrics)
	return rs
}

// Register adds scheme for network.
func (rs *ResourceServer) Register(network types.Network, scheme schemes.Server) *ResourceServer {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	byScheme, ok := rs.schemes[network]
	if !ok {
		byScheme = make(map[string]schemes.Server)
		rs.schemes[network] = byScheme
	}
	byScheme[scheme.Scheme()] = scheme
	return rs
}

// Initialize fetches and caches the facilitator's supported kinds. Requirements
// are still built without them when the facilitator cannot be reached.
func (rs *ResourceServer) Initialize(ctx context.Context) error {
	supported, err := rs.facilitator.Supported(ctx)
	if err != nil {
		rs.logger.Warn("failed to fetch facilitator supported kinds", map[string]any{"error": err})
		return fmt.Errorf("failed to initialize resource server: %w", err)
	}

	rs.mu.Lock()
	rs.supported = supported
	rs.mu.Unlock()

	for _, kind := range rs.Supported() {
		if _, ok := supported.Find(kind.Scheme, types.Network(kind.Network)); !ok {
			rs.logger.Warn("facilitator does not advertise registered kind", map[string]any{
				"scheme":  kind.Scheme,
				"network": kind.Network,
			})
		}
	}
	return nil
}

func (rs *ResourceServer) scheme(network types.Network, name string) (schemes.Server, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	byScheme, ok := rs.schemes[network]
	if !ok {
		return nil, types.NewError(types.ErrUnsupportedNetwork, fmt.Sprintf("unsupported network: %s", network), nil)
	}
	s, ok := byScheme[name]
	if !ok {
		return nil, types.NewError(types.ErrUnsupportedScheme, fmt.Sprintf("unsupported scheme %s on %s", name, network), nil)
	}
	return s, nil
}

// BuildRequirements prices a payment option for payTo.
func (rs *ResourceServer) BuildRequirements(
	ctx context.Context,
	scheme string,
	network types.Network,
	price types.Price,
	payTo string,
	maxTimeoutSeconds int,
) (types.PaymentRequirements, error) {
	s, err := rs.scheme(network, scheme)
	if err != nil {
		return types.PaymentRequirements{}, err
	}

	if err := utils.ValidateAddressForNetwork(payTo, network); err != nil {
		return types.PaymentRequirements{}, types.NewError(types.ErrInvalidRequirements, "invalid payTo", err)
	}

	amount, err := s.ParsePrice(price, network)
	if err != nil {
		return types.PaymentRequirements{}, err
	}

	if maxTimeoutSeconds <= 0 {
		maxTimeoutSeconds = DefaultMaxTimeoutSeconds
	}

	req := types.PaymentRequirements{
		Scheme:            scheme,
		Network:           network.String(),
		Amount:            amount.Amount,
		Asset:             amount.Asset,
		PayTo:             payTo,
		MaxTimeoutSeconds: maxTimeoutSeconds,
		Extra:             amount.Extra,
	}

	rs.mu.RLock()
	kind, ok := rs.supported.Find(scheme, network)
	rs.mu.RUnlock()
	if ok {
		if req, err = s.EnhancePaymentRequirements(ctx, req, kind); err != nil {
			return types.PaymentRequirements{}, err
		}
	}

	if err := req.Validate(); err != nil {
		return types.PaymentRequirements{}, types.NewError(types.ErrInvalidRequirements, "invalid payment requirements", err)
	}
	return req, nil
}

// FindMatchingRequirement returns the requirement the payload claims to pay.
// Scheme and network must be equal; payTo is compared case-insensitively.
func (rs *ResourceServer) FindMatchingRequirement(
	payload types.PaymentPayload,
	requirements []types.PaymentRequirements,
) (types.PaymentRequirements, bool) {
	accepted := payload.Accepted
	for _, req := range requirements {
		if req.Scheme == accepted.Scheme &&
			req.Network == accepted.Network &&
			strings.EqualFold(req.PayTo, accepted.PayTo) {
			return req, true
		}
	}
	return types.PaymentRequirements{}, false
}

// Verify verifies a payment against requirements
func (rs *ResourceServer) Verify(
	ctx context.Context,
	payload types.PaymentPayload,
	requirements types.PaymentRequirements,
) (*types.VerifyResponse, error) {
	s, err := rs.scheme(types.Network(requirements.Network), requirements.Scheme)
	if err != nil {
		return nil, err
	}
	return rs.verifier.Verify(ctx, s, payload, requirements)
}

// Settle settles a payment transaction
func (rs *ResourceServer) Settle(
	ctx context.Context,
	payload types.PaymentPayload,
	requirements types.PaymentRequirements,
) (*types.SettleResponse, error) {
	if _, err := rs.scheme(types.Network(requirements.Network), requirements.Scheme); err != nil {
		return nil, err
	}
	return rs.settler.Settle(ctx, payload, requirements)
}

// Supported lists the registered scheme and network pairs.
func (rs *ResourceServer) Supported() []types.SupportedKind {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	kinds := make([]types.SupportedKind, 0, len(rs.schemes))
	for network, byScheme := range rs.schemes {
		for name := range byScheme {
			kinds = append(kinds, types.SupportedKind{
				X402Version: types.ProtocolVersion,
				Scheme:      name,
				Network:     network.String(),
			})
		}
	}
	return kinds
}

// IsNetworkSupported checks if a network is supported
func (rs *ResourceServer) IsNetworkSupported(network types.Network) bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.schemes[network]) > 0
}

// Version information
const Version = "1.0.0"

// GetVersion returns version information
func GetVersion() map[string]interface{} {
	return map[string]interface{}{
		"library_version":  Version,
		"protocol_version": types.ProtocolVersion,
		"supported_networks": []string{
			types.NetworkBase.String(),
			types.NetworkBaseSepolia.String(),
		},
		"supported_schemes": []string{
			types.SchemeExact.String(),
		},
	}
}
