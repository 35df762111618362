// Package middleware gates gin routes behind x402 payments.
package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vitwit/x402-paywall/encoding"
	"github.com/vitwit/x402-paywall/logger"
	"github.com/vitwit/x402-paywall/metrics"
	"github.com/vitwit/x402-paywall/types"
)

const (
	HeaderPaymentRequired = "PAYMENT-REQUIRED"
	HeaderPaymentResponse = "PAYMENT-RESPONSE"
	HeaderRequestID       = "X-Request-ID"
)

// PaymentContextKey is the gin context key holding the *types.VerifyResponse of a paid request.
const PaymentContextKey = "x402_payment"

var errNoPaymentOptions = errors.New("no payment option could be priced")

// resolveError marks a failure of a pay-to callback.
type resolveError struct{ err error }

func (e *resolveError) Error() string { return "resolve payTo: " + e.err.Error() }
func (e *resolveError) Unwrap() error { return e.err }

// X402Payment returns middleware enforcing cfg. It panics if cfg is invalid.
func X402Payment(cfg Config) gin.HandlerFunc {
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NoopLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NoopRecorder{}
	}

	p := &paywall{cfg: cfg, routes: compileRoutes(cfg.Routes)}
	return p.handle
}

type paywall struct {
	cfg    Config
	routes []route
}

func (p *paywall) handle(c *gin.Context) {
	route, ok := matchRoute(p.routes, c.Request.Method, c.Request.URL.Path)
	if !ok {
		c.Next()
		return
	}

	requestID := uuid.NewString()
	c.Header(HeaderRequestID, requestID)
	log := p.cfg.Logger.With(map[string]any{
		"request_id": requestID,
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
	})

	ctx := c.Request.Context()
	rc := types.RequestContext{
		Method: c.Request.Method,
		Path:   c.Request.URL.Path,
		Header: c.Request.Header,
	}
	resource := resourceInfo(c.Request, route)

	header := rc.PaymentHeader()
	if header == "" {
		log.Info("no payment header provided", nil)
		p.challenge(c, log, route, resource, rc, "Payment required")
		return
	}

	payload, err := encoding.DecodePayment(header)
	if err != nil {
		log.Warn("invalid payment header", map[string]any{"error": err})
		p.challenge(c, log, route, resource, rc, "Invalid payment header")
		return
	}

	requirements, err := p.requirements(ctx, log, route, rc)
	if err != nil && !errors.Is(err, errNoPaymentOptions) {
		p.fail(c, log, err)
		return
	}
	if len(requirements) == 0 {
		log.Warn("payment address could not be resolved from payment header", nil)
		p.challenge(c, log, route, resource, rc, "Payment address could not be resolved")
		return
	}

	requirement, ok := p.cfg.Server.FindMatchingRequirement(payload, requirements)
	if !ok {
		log.Warn("no matching requirement", map[string]any{
			"scheme":  payload.Accepted.Scheme,
			"network": payload.Accepted.Network,
		})
		p.challenge(c, log, route, resource, rc, "No matching payment requirement")
		return
	}
	labels := map[string]string{"network": requirement.Network}

	log.Info("verifying payment", map[string]any{
		"scheme":  requirement.Scheme,
		"network": requirement.Network,
		"pay_to":  requirement.PayTo,
	})
	verifyResp, err := p.cfg.Server.Verify(ctx, payload, requirement)
	if err != nil {
		log.Error("facilitator verification failed", map[string]any{"error": err})
		p.abort(c, http.StatusServiceUnavailable, "Payment verification failed")
		return
	}
	if !verifyResp.IsValid {
		log.Warn("payment verification failed", map[string]any{"reason": verifyResp.InvalidReason})
		p.challenge(c, log, route, resource, rc, verifyResp.InvalidReason)
		return
	}
	log.Info("payment verified", map[string]any{"payer": verifyResp.Payer})

	if !p.cfg.VerifyOnly {
		settleResp, err := p.cfg.Server.Settle(ctx, payload, requirement)
		if err != nil {
			log.Error("settlement failed", map[string]any{"error": err})
			p.abort(c, http.StatusServiceUnavailable, "Payment settlement failed")
			return
		}
		if !settleResp.Success {
			log.Warn("settlement unsuccessful", map[string]any{"reason": settleResp.ErrorReason})
			p.challenge(c, log, route, resource, rc, settleResp.ErrorReason)
			return
		}

		if encoded, err := encoding.EncodeSettlement(*settleResp); err != nil {
			log.Warn("failed to add payment response header", map[string]any{"error": err})
		} else {
			c.Header(HeaderPaymentResponse, encoded)
		}
	}

	p.cfg.Metrics.IncCounter(metrics.EventPaid, labels)
	c.Set(PaymentContextKey, verifyResp)
	c.Next()
}

// requirements prices every option of route for rc. Options whose address
// cannot be resolved are left out.
func (p *paywall) requirements(
	ctx context.Context,
	log logger.Logger,
	route RouteConfig,
	rc types.RequestContext,
) ([]types.PaymentRequirements, error) {
	out := make([]types.PaymentRequirements, 0, len(route.Accepts))
	for _, opt := range route.Accepts {
		payTo := opt.PayTo
		if opt.PayToFunc != nil {
			addr, err := opt.PayToFunc(ctx, rc)
			if err != nil {
				return nil, &resolveError{err: err}
			}
			payTo = addr
		}
		if payTo == "" {
			continue
		}

		req, err := p.cfg.Server.BuildRequirements(ctx, opt.Scheme, types.Network(opt.Network), opt.Price, payTo, opt.MaxTimeoutSeconds)
		if err != nil {
			if opt.PayToFunc != nil && types.IsCode(err, types.ErrInvalidRequirements) {
				log.Warn("skipping payment option", map[string]any{"error": err, "pay_to": payTo})
				continue
			}
			return nil, err
		}
		out = append(out, req)
	}
	if len(out) == 0 {
		return nil, errNoPaymentOptions
	}
	return out, nil
}

// challenge answers 402 with freshly resolved requirements.
func (p *paywall) challenge(
	c *gin.Context,
	log logger.Logger,
	route RouteConfig,
	resource *types.ResourceInfo,
	rc types.RequestContext,
	reason string,
) {
	requirements, err := p.requirements(c.Request.Context(), log, route, rc.WithoutPayment())
	if err != nil {
		p.fail(c, log, err)
		return
	}

	body := types.PaymentRequired{
		X402Version: types.ProtocolVersion,
		Error:       reason,
		Resource:    resource,
		Accepts:     requirements,
	}

	encoded, err := encoding.EncodePaymentRequired(body)
	if err != nil {
		p.fail(c, log, err)
		return
	}

	for _, req := range requirements {
		p.cfg.Metrics.IncCounter(metrics.EventChallenge, map[string]string{"network": req.Network})
	}
	c.Header(HeaderPaymentRequired, encoded)
	c.AbortWithStatusJSON(http.StatusPaymentRequired, body)
}

func (p *paywall) fail(c *gin.Context, log logger.Logger, err error) {
	var re *resolveError
	if errors.As(err, &re) {
		p.cfg.Metrics.IncCounter(metrics.EventResolveFailure, nil)
		log.Error("failed to resolve payment address", map[string]any{"error": re.err})
		p.abort(c, http.StatusInternalServerError, "Failed to resolve payment address")
		return
	}
	log.Error("failed to build payment requirements", map[string]any{"error": err})
	p.abort(c, http.StatusInternalServerError, "Failed to build payment requirements")
}

func (p *paywall) abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"x402Version": types.ProtocolVersion,
		"error":       msg,
	})
}

func resourceInfo(r *http.Request, route RouteConfig) *types.ResourceInfo {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	description := route.Description
	if description == "" {
		description = "Payment required for " + r.URL.Path
	}
	return &types.ResourceInfo{
		URL:         scheme + "://" + r.Host + r.URL.RequestURI(),
		Description: description,
		MimeType:    route.MimeType,
	}
}

// GetPaymentFromContext returns the verified payment of a paid request, or nil.
func GetPaymentFromContext(c *gin.Context) *types.VerifyResponse {
	value, exists := c.Get(PaymentContextKey)
	if !exists {
		return nil
	}
	resp, ok := value.(*types.VerifyResponse)
	if !ok {
		return nil
	}
	return resp
}
