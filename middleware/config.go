package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/vitwit/x402-paywall/logger"
	"github.com/vitwit/x402-paywall/metrics"
	"github.com/vitwit/x402-paywall/types"
	"github.com/vitwit/x402-paywall/utils"
)

// DynamicPayTo picks the receiving address for a request. Returning "" with a nil
// error means no address could be determined for this request.
type DynamicPayTo func(ctx context.Context, rc types.RequestContext) (string, error)

// PaymentOption is one way a route can be paid for.
type PaymentOption struct {
	Scheme  string      `validate:"required,paymentscheme"`
	Price   types.Price `validate:"required,price"`
	Network string      `validate:"required,caip2"`

	// PayTo is a fixed receiving address. PayToFunc, when set, takes precedence.
	PayTo     string
	PayToFunc DynamicPayTo

	MaxTimeoutSeconds int `validate:"gte=0"`
}

type PaymentOptions []PaymentOption

// RouteConfig describes a protected route.
type RouteConfig struct {
	Accepts     PaymentOptions `validate:"required,min=1,dive"`
	Description string
	MimeType    string
}

// RoutesConfig maps "METHOD /path" (or just "/path" for any method) to its payment config.
type RoutesConfig map[string]RouteConfig

// PaymentServer builds requirements and verifies and settles payments.
// *x402.ResourceServer implements it.
type PaymentServer interface {
	BuildRequirements(
		ctx context.Context,
		scheme string,
		network types.Network,
		price types.Price,
		payTo string,
		maxTimeoutSeconds int,
	) (types.PaymentRequirements, error)
	FindMatchingRequirement(payload types.PaymentPayload, requirements []types.PaymentRequirements) (types.PaymentRequirements, bool)
	Verify(ctx context.Context, payload types.PaymentPayload, requirements types.PaymentRequirements) (*types.VerifyResponse, error)
	Settle(ctx context.Context, payload types.PaymentPayload, requirements types.PaymentRequirements) (*types.SettleResponse, error)
}

type Config struct {
	Routes RoutesConfig  `validate:"required,min=1,dive"`
	Server PaymentServer `validate:"required"`

	Logger  logger.Logger
	Metrics metrics.Recorder

	// VerifyOnly skips settlement.
	VerifyOnly bool
}

// Validate checks the route table.
func (c Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return types.NewError(types.ErrConfigError, "invalid middleware config", err)
	}
	for key, route := range c.Routes {
		if _, _, err := parseRouteKey(key); err != nil {
			return types.NewError(types.ErrConfigError, "invalid route", err)
		}
		for i, opt := range route.Accepts {
			if opt.PayTo == "" && opt.PayToFunc == nil {
				return types.NewError(types.ErrConfigError,
					fmt.Sprintf("route %q option %d: payTo or payToFunc is required", key, i), nil)
			}
		}
	}
	return nil
}

func parseRouteKey(key string) (method, path string, err error) {
	key = strings.TrimSpace(key)
	if m, p, ok := strings.Cut(key, " "); ok {
		method, path = strings.ToUpper(m), strings.TrimSpace(p)
	} else {
		path = key
	}
	if !strings.HasPrefix(path, "/") {
		return "", "", fmt.Errorf("route %q: path must start with /", key)
	}
	return method, path, nil
}

type route struct {
	method string
	path   string
	config RouteConfig
}

func compileRoutes(routes RoutesConfig) []route {
	out := make([]route, 0, len(routes))
	for key, cfg := range routes {
		method, path, err := parseRouteKey(key)
		if err != nil {
			continue
		}
		out = append(out, route{method: method, path: path, config: cfg})
	}
	return out
}

func matchRoute(routes []route, method, path string) (RouteConfig, bool) {
	var fallback *route
	for i := range routes {
		r := &routes[i]
		if r.path != path {
			continue
		}
		if r.method == method {
			return r.config, true
		}
		if r.method == "" {
			fallback = r
		}
	}
	if fallback != nil {
		return fallback.config, true
	}
	return RouteConfig{}, false
}
