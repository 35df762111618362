package verification

import (
	"context"
	"time"

	"github.com/vitwit/x402-paywall/clients"
	"github.com/vitwit/x402-paywall/logger"
	"github.com/vitwit/x402-paywall/metrics"
	"github.com/vitwit/x402-paywall/schemes"
	"github.com/vitwit/x402-paywall/types"
)

// Verifier interface defines the contract for payment verification
type Verifier interface {
	Verify(
		ctx context.Context,
		scheme schemes.Server,
		payload types.PaymentPayload,
		requirements types.PaymentRequirements,
	) (*types.VerifyResponse, error)
}

// VerificationService checks payment proofs locally and then with the facilitator.
type VerificationService struct {
	facilitator clients.Facilitator
	timeout     time.Duration
	logger      logger.Logger
	metrics     metrics.Recorder
}

var _ Verifier = (*VerificationService)(nil)

// NewVerificationService creates a new verification service
func NewVerificationService(
	facilitator clients.Facilitator,
	timeout time.Duration,
	log logger.Logger,
	rec metrics.Recorder,
) *VerificationService {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &VerificationService{
		facilitator: facilitator,
		timeout:     timeout,
		logger:      log,
		metrics:     rec,
	}
}

// QuickVerify performs the scheme's structural checks without contacting the facilitator.
func (s *VerificationService) QuickVerify(
	scheme schemes.Server,
	payload types.PaymentPayload,
	requirements types.PaymentRequirements,
) *types.VerifyResponse {
	if payload.X402Version != types.ProtocolVersion {
		return &types.VerifyResponse{
			IsValid:        false,
			InvalidReason:  types.ReasonInvalidPayload,
			InvalidMessage: "unsupported x402Version",
		}
	}
	return scheme.CheckPayload(payload, requirements)
}

// Verify verifies a payment against requirements. A rejected proof is reported
// in the response; err is reserved for failures to reach a verdict.
func (s *VerificationService) Verify(
	ctx context.Context,
	scheme schemes.Server,
	payload types.PaymentPayload,
	requirements types.PaymentRequirements,
) (*types.VerifyResponse, error) {
	labels := map[string]string{"network": requirements.Network}

	if resp := s.QuickVerify(scheme, payload, requirements); resp != nil {
		labels["outcome"] = "rejected"
		s.metrics.IncCounter(metrics.EventVerify, labels)
		s.logger.Debug("payment rejected before facilitator", map[string]any{
			"reason": resp.InvalidReason,
			"error":  resp.InvalidMessage,
		})
		return resp, nil
	}

	verifyCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.facilitator.Verify(verifyCtx, payload, requirements)
	s.metrics.ObserveLatency(metrics.EventVerify, time.Since(start), labels)

	if err != nil {
		labels["outcome"] = "error"
		s.metrics.IncCounter(metrics.EventVerify, labels)
		return nil, types.NewError(types.ErrVerificationFailed, "facilitator verify failed", err)
	}

	if resp.IsValid {
		labels["outcome"] = "valid"
	} else {
		labels["outcome"] = "invalid"
		s.logger.Info("facilitator rejected payment", map[string]any{
			"reason": resp.InvalidReason,
			"payer":  resp.Payer,
		})
	}
	s.metrics.IncCounter(metrics.EventVerify, labels)

	return resp, nil
}
