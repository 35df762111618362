// Package api wires the HTTP surface of the paywall.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	x402 "github.com/vitwit/x402-paywall"
	"github.com/vitwit/x402-paywall/logger"
	"github.com/vitwit/x402-paywall/metrics"
	"github.com/vitwit/x402-paywall/middleware"
	"github.com/vitwit/x402-paywall/types"
)

const PaidRoute = "/paid"

type Deps struct {
	Server middleware.PaymentServer
	PayTo  middleware.DynamicPayTo

	Network types.Network
	Price   types.Price

	Logger  logger.Logger
	Metrics metrics.Recorder
	// Gatherer backs /metrics; the endpoint is not mounted when nil.
	Gatherer prometheus.Gatherer

	VerifyOnly bool
}

// Routes returns the payment table for the protected endpoints.
func Routes(d Deps) middleware.RoutesConfig {
	return middleware.RoutesConfig{
		http.MethodGet + " " + PaidRoute: {
			Accepts: middleware.PaymentOptions{{
				Scheme:    types.SchemeExact.String(),
				Price:     d.Price,
				Network:   d.Network.String(),
				PayToFunc: d.PayTo,
			}},
			Description: "Data retrieval endpoint",
			MimeType:    "application/json",
		},
	}
}

// NewRouter builds the gin engine.
func NewRouter(d Deps) (*gin.Engine, error) {
	if d.Logger == nil {
		d.Logger = logger.NoopLogger{}
	}

	cfg := middleware.Config{
		Routes:     Routes(d),
		Server:     d.Server,
		Logger:     d.Logger,
		Metrics:    d.Metrics,
		VerifyOnly: d.VerifyOnly,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(d.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": x402.Version})
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	paid := r.Group("/", middleware.X402Payment(cfg))
	paid.GET(PaidRoute, getPaid)

	return r, nil
}

func getPaid(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"foo": "bar"})
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request", map[string]any{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
	}
}
