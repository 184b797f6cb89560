package router

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/sirupsen/logrus"

	"github.com/pH0enix46/EMR/pkg/metrics"
)

var throttledBody, _ = sonic.Marshal(map[string]string{"error": "Too many requests"})

// rateLimitStage throttles sensitive paths per client IP. Store failures and
// timeouts let the request through.
func (p *Pipeline) rateLimitStage(ctx context.Context, req *Request) *Outcome {
	if p.limiter == nil || !p.table.IsRateLimited(req.Path) {
		return nil
	}

	if p.limiterTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.limiterTimeout)
		defer cancel()
	}

	decision, err := p.limiter.Check(ctx, req.ClientIP)
	if err != nil {
		metrics.RateLimitChecks.WithLabelValues("error").Inc()
		entry := p.logger.WithError(err).WithFields(logrus.Fields{
			"client_ip": req.ClientIP,
			"path":      req.Path,
		})
		if errors.Is(err, context.Canceled) {
			entry.Debug("Rate limit check abandoned")
		} else {
			entry.Error("Rate limit check failed, allowing request")
		}
		return nil
	}

	h := http.Header{}
	for k, v := range decision.Headers() {
		h.Set(k, v)
	}

	if decision.Allowed {
		metrics.RateLimitChecks.WithLabelValues("allowed").Inc()
		h.Del("X-RateLimit-Reset")
		return &Outcome{Action: Continue, Header: h}
	}

	metrics.RateLimitChecks.WithLabelValues("denied").Inc()
	retryAfter := decision.RetryAfter(p.clock.Now())
	h.Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))

	return &Outcome{
		Action:      Respond,
		Reason:      ReasonRateLimited,
		StatusCode:  http.StatusTooManyRequests,
		Body:        throttledBody,
		ContentType: "application/json",
		Header:      h,
	}
}
