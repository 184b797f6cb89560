package router

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pH0enix46/EMR/pkg/metrics"
	"github.com/pH0enix46/EMR/pkg/policy"
	"github.com/pH0enix46/EMR/pkg/ratelimit"
)

// Stage names, in evaluation order.
const (
	StageFilter    = "filter"
	StageCanonical = "canonical"
	StageRateLimit = "ratelimit"
	StageAuth      = "auth"
	StageTenant    = "tenant"
)

// Stage is one decision step. Decide returns nil to fall through, a
// Continue outcome to fall through while carrying headers, or any other
// outcome to stop the pipeline.
type Stage struct {
	Name   string
	Decide func(ctx context.Context, req *Request) *Outcome
}

// Pipeline runs the edge stages for each request. It is safe for concurrent
// use; the table is never mutated after construction.
type Pipeline struct {
	table          *policy.Table
	limiter        ratelimit.Limiter
	limiterTimeout time.Duration
	logger         *logrus.Logger
	clock          ratelimit.Clock
	stages         []Stage
}

type Option func(*Pipeline)

// WithClock sets the clock used for Retry-After.
func WithClock(c ratelimit.Clock) Option {
	return func(p *Pipeline) {
		p.clock = c
	}
}

// New builds the pipeline. A nil limiter disables throttling.
func New(table *policy.Table, limiter ratelimit.Limiter, limiterTimeout time.Duration, logger *logrus.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	p := &Pipeline{
		table:          table,
		limiter:        limiter,
		limiterTimeout: limiterTimeout,
		logger:         logger,
		clock:          ratelimit.SystemClock{},
	}
	for _, opt := range opts {
		opt(p)
	}

	// Rate limiting and auth must run before any rewrite.
	p.stages = []Stage{
		{Name: StageFilter, Decide: p.filterStage},
		{Name: StageCanonical, Decide: p.canonicalStage},
		{Name: StageRateLimit, Decide: p.rateLimitStage},
		{Name: StageAuth, Decide: p.authStage},
		{Name: StageTenant, Decide: p.tenantStage},
	}
	return p
}

// Stages returns the stage names in evaluation order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name
	}
	return names
}

// Table returns the policy table the pipeline decides with.
func (p *Pipeline) Table() *policy.Table {
	return p.table
}

// Run evaluates req and returns the finished outcome. It never returns nil.
func (p *Pipeline) Run(ctx context.Context, req *Request) *Outcome {
	carried := http.Header{}
	var out *Outcome

	for _, s := range p.stages {
		o := s.Decide(ctx, req)
		if o == nil {
			continue
		}
		o.Stage = s.Name
		if o.Action == Continue {
			mergeHeader(carried, o.Header)
			continue
		}
		out = o
		break
	}

	if out == nil {
		out = &Outcome{Action: Continue, Reason: ReasonPassThrough}
	}

	if out.Action == Skip {
		metrics.EdgeDecisions.WithLabelValues(out.Stage, out.Action.String(), out.Reason).Inc()
		return out
	}

	if out.Header == nil {
		out.Header = http.Header{}
	}
	for k, v := range carried {
		if _, ok := out.Header[k]; !ok {
			out.Header[k] = v
		}
	}
	p.finish(req, out)

	metrics.EdgeDecisions.WithLabelValues(out.Stage, out.Action.String(), out.Reason).Inc()

	if out.Action != Continue {
		p.logger.WithFields(logrus.Fields{
			"stage":     out.Stage,
			"action":    out.Action.String(),
			"reason":    out.Reason,
			"path":      req.Path,
			"host":      req.Host,
			"client_ip": req.ClientIP,
			"status":    out.StatusCode,
			"location":  out.Location,
			"rewrite":   out.RewriteURL(),
		}).Debug("Edge decision")
	}

	return out
}
