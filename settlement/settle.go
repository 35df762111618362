package settlement

import (
	"context"
	"time"

	"github.com/vitwit/x402-paywall/clients"
	"github.com/vitwit/x402-paywall/logger"
	"github.com/vitwit/x402-paywall/metrics"
	"github.com/vitwit/x402-paywall/types"
)

// Settler interface defines the contract for payment settlement
type Settler interface {
	Settle(
		ctx context.Context,
		payload types.PaymentPayload,
		requirements types.PaymentRequirements,
	) (*types.SettleResponse, error)
}

// SettlementService settles verified payments through the facilitator.
type SettlementService struct {
	facilitator clients.Facilitator
	timeout     time.Duration
	logger      logger.Logger
	metrics     metrics.Recorder
}

var _ Settler = (*SettlementService)(nil)

// NewSettlementService creates a new settlement service
func NewSettlementService(
	facilitator clients.Facilitator,
	timeout time.Duration,
	log logger.Logger,
	rec metrics.Recorder,
) *SettlementService {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &SettlementService{
		facilitator: facilitator,
		timeout:     timeout,
		logger:      log,
		metrics:     rec,
	}
}

// Settle settles a payment transaction
func (s *SettlementService) Settle(
	ctx context.Context,
	payload types.PaymentPayload,
	requirements types.PaymentRequirements,
) (*types.SettleResponse, error) {
	settleCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	labels := map[string]string{"network": requirements.Network}

	start := time.Now()
	resp, err := s.facilitator.Settle(settleCtx, payload, requirements)
	s.metrics.ObserveLatency(metrics.EventSettle, time.Since(start), labels)

	if err != nil {
		labels["outcome"] = "error"
		s.metrics.IncCounter(metrics.EventSettle, labels)
		return nil, types.NewError(types.ErrSettlementFailed, "facilitator settle failed", err)
	}

	if resp.Network == "" {
		resp.Network = requirements.Network
	}

	if resp.Success {
		labels["outcome"] = "success"
		s.logger.Info("payment settled", map[string]any{
			"transaction": resp.Transaction,
			"network":     resp.Network,
			"payer":       resp.Payer,
		})
	} else {
		labels["outcome"] = "failed"
		s.logger.Warn("settlement unsuccessful", map[string]any{
			"reason":  resp.ErrorReason,
			"network": resp.Network,
		})
	}
	s.metrics.IncCounter(metrics.EventSettle, labels)

	return resp, nil
}
