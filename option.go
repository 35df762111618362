package x402

import (
	"time"

	"github.com/vitwit/x402-paywall/logger"
	"github.com/vitwit/x402-paywall/metrics"
)

type Option func(*ResourceServer)

func WithLogger(l logger.Logger) Option {
	return func(rs *ResourceServer) {
		if l != nil {
			rs.logger = l
		}
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(rs *ResourceServer) {
		if r != nil {
			rs.metrics = r
		}
	}
}

// WithTimeout bounds each verify and settle call.
func WithTimeout(t time.Duration) Option {
	return func(rs *ResourceServer) {
		if t > 0 {
			rs.timeout = t
		}
	}
}
