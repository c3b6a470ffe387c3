package server

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/fundledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/fundledger/internal/observability/metrics"
	"go.uber.org/zap"
)

const rateLimitReasonOrgRate = "org-rate"

// LedgerWriteRateLimit bounds recording calls per organization.
func (s *Server) LedgerWriteRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || !s.limiter.Enabled() {
			c.Next()
			return
		}

		orgID := orgIDFromGin(c)
		endpoint := normalizeRateLimitEndpoint(c)
		ctx := c.Request.Context()

		result, err := s.limiter.AllowOrg(ctx, orgID.String())
		if err != nil {
			logger.WithContext(ctx, s.log).Warn("ledger write rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if result.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		}
		if !result.Allowed {
			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			denyLedgerWriteRateLimit(c, s.log, endpoint, orgID.String(), rateLimitReasonOrgRate, s.obsMetrics)
			return
		}

		c.Next()
	}
}

func denyLedgerWriteRateLimit(c *gin.Context, base *zap.Logger, endpoint, orgID, reason string, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.WithContext(ctx, base).Warn("ledger write rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
	)
	recordRateLimitDenied(ctx, endpoint, orgID, reason, metrics)

	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

func recordRateLimitDenied(ctx context.Context, endpoint, orgID, reason string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(ctx, orgID, endpoint, reason)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
