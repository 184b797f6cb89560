package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pH0enix46/EMR/pkg/policy"
	"github.com/pH0enix46/EMR/pkg/ratelimit"
)

type failingLimiter struct {
	calls int
}

func (f *failingLimiter) Check(ctx context.Context, key string) (*ratelimit.Decision, error) {
	f.calls++
	return nil, ratelimit.ErrStoreUnavailable
}

type slowLimiter struct{}

func (slowLimiter) Check(ctx context.Context, key string) (*ratelimit.Decision, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newTestPipeline(t *testing.T, limiter ratelimit.Limiter, opts ...Option) *Pipeline {
	t.Helper()
	logger, _ := test.NewNullLogger()
	return New(policy.Default(), limiter, 50*time.Millisecond, logger, opts...)
}

func newRequest(method, target string, cookies ...*http.Cookie) *Request {
	r := httptest.NewRequest(method, target, nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	return FromHTTP(r)
}

func TestPipelineStageOrder(t *testing.T) {
	p := newTestPipeline(t, nil)
	assert.Equal(t, []string{StageFilter, StageCanonical, StageRateLimit, StageAuth, StageTenant}, p.Stages())
}

func TestPipelineSkipsAssets(t *testing.T) {
	p := newTestPipeline(t, nil)

	for _, path := range []string{"/_next/static/chunk.js", "/favicon.ico", "/robots.txt", "/images/logo.png"} {
		out := p.Run(context.Background(), newRequest(http.MethodGet, "http://example.com"+path))
		assert.Equal(t, Skip, out.Action, path)
		assert.Empty(t, out.Header, path)
		assert.Empty(t, out.Cookies, path)
	}
}

func TestPipelinePreflight(t *testing.T) {
	limiter := &failingLimiter{}
	p := newTestPipeline(t, limiter)

	// Protected and rate-limited paths still answer preflights directly.
	for _, path := range []string{"/api/patients", "/admin/users", "/dashboard"} {
		out := p.Run(context.Background(), newRequest(http.MethodOptions, "http://superadmin.example.com"+path))
		require.Equal(t, Respond, out.Action, path)
		assert.Equal(t, StageFilter, out.Stage)
		assert.Equal(t, http.StatusNoContent, out.StatusCode)
		assert.Equal(t, "http://localhost:3000", out.Header.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", out.Header.Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "Content-Type, Authorization", out.Header.Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "86400", out.Header.Get("Access-Control-Max-Age"))
		assert.Empty(t, out.Path)
	}
	assert.Zero(t, limiter.calls)
}

func TestPipelineCanonicalRedirects(t *testing.T) {
	p := newTestPipeline(t, nil)

	out := p.Run(context.Background(), newRequest(http.MethodGet, "http://example.com/home?ref=mail"))
	require.Equal(t, Redirect, out.Action)
	assert.Equal(t, http.StatusPermanentRedirect, out.StatusCode)
	assert.Equal(t, "/?ref=mail", out.Location)
	assert.Equal(t, ReasonRedirectRule, out.Reason)

	out = p.Run(context.Background(), newRequest(http.MethodGet, "http://example.com/patients/"))
	require.Equal(t, Redirect, out.Action)
	assert.Equal(t, http.StatusPermanentRedirect, out.StatusCode)
	assert.Equal(t, "/patients", out.Location)
	assert.Equal(t, ReasonTrailingSlash, out.Reason)

	out = p.Run(context.Background(), newRequest(http.MethodGet, "http://example.com/"))
	assert.NotEqual(t, Redirect, out.Action)
}

func TestPipelineRateLimitWindow(t *testing.T) {
	start := time.Unix(1700000000, 0)
	clock := ratelimit.NewFixedClock(start)
	limiter := ratelimit.NewMemoryLimiter(10, time.Minute, 0).WithClock(clock)
	defer limiter.Close()

	p := newTestPipeline(t, limiter, WithClock(clock))

	req := func() *Outcome {
		r := newRequest(http.MethodPost, "http://example.com/api/patients")
		r.ClientIP = "203.0.113.7"
		return p.Run(context.Background(), r)
	}

	for i := 0; i < 10; i++ {
		out := req()
		require.NotEqual(t, Respond, out.Action, "request %d", i+1)
		assert.Equal(t, "10", out.Header.Get("X-RateLimit-Limit"))
		clock.Advance(time.Second)
	}

	out := req()
	require.Equal(t, Respond, out.Action)
	assert.Equal(t, StageRateLimit, out.Stage)
	assert.Equal(t, http.StatusTooManyRequests, out.StatusCode)
	assert.JSONEq(t, `{"error":"Too many requests"}`, string(out.Body))
	assert.Equal(t, "application/json", out.ContentType)
	assert.Equal(t, "50", out.Header.Get("Retry-After"))
	assert.Equal(t, "0", out.Header.Get("X-RateLimit-Remaining"))
	assert.Equal(t, "http://localhost:3000", out.Header.Get("Access-Control-Allow-Origin"))

	// Paths outside the limited set are never throttled.
	out = p.Run(context.Background(), newRequest(http.MethodGet, "http://example.com/patients"))
	assert.NotEqual(t, Respond, out.Action)

	clock.Set(start.Add(time.Minute + time.Second))
	out = req()
	assert.NotEqual(t, Respond, out.Action)
}

func TestPipelineRateLimitFailsOpen(t *testing.T) {
	logger, hook := test.NewNullLogger()
	limiter := &failingLimiter{}
	p := New(policy.Default(), limiter, 50*time.Millisecond, logger)

	out := p.Run(context.Background(), newRequest(http.MethodPost, "http://example.com/api/patients"))
	assert.Equal(t, Continue, out.Action)
	assert.Equal(t, 1, limiter.calls)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	err, ok := hook.LastEntry().Data[logrus.ErrorKey].(error)
	require.True(t, ok)
	assert.True(t, errors.Is(err, ratelimit.ErrStoreUnavailable))
}

func TestPipelineRateLimitTimeoutFailsOpen(t *testing.T) {
	p := newTestPipeline(t, slowLimiter{})

	start := time.Now()
	out := p.Run(context.Background(), newRequest(http.MethodGet, "http://example.com/login"))
	assert.Equal(t, Continue, out.Action)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPipelineLoginRedirect(t *testing.T) {
	p := newTestPipeline(t, nil)

	out := p.Run(context.Background(), newRequest(http.MethodGet, "http://example.com/dashboard/patients?id=42&tab=notes"))
	require.Equal(t, Redirect, out.Action)
	assert.Equal(t, StageAuth, out.Stage)
	assert.Equal(t, http.StatusTemporaryRedirect, out.StatusCode)
	assert.Equal(t, "/login?callbackUrl=%2Fdashboard%2Fpatients%3Fid%3D42%26tab%3Dnotes", out.Location)
}

func TestPipelineForbiddenRewrite(t *testing.T) {
	p := newTestPipeline(t, nil)
	token := &http.Cookie{Name: TokenCookie, Value: "abc"}

	out := p.Run(context.Background(), newRequest(http.MethodGet, "http://example.com/admin/users?page=2",
		token, &http.Cookie{Name: RoleCookie, Value: "doctor"}))
	require.Equal(t, Rewrite, out.Action)
	assert.Equal(t, ReasonForbidden, out.Reason)
	assert.Equal(t, "/403", out.RewriteURL())
	assert.Equal(t, "DENY", out.Header.Get("X-Frame-Options"))

	out = p.Run(context.Background(), newRequest(http.MethodGet, "http://example.com/admin/users",
		token, &http.Cookie{Name: RoleCookie, Value: "admin"}))
	assert.NotEqual(t, ReasonForbidden, out.Reason)
}

func TestPipelineAuthenticatedVisitorLeavesLogin(t *testing.T) {
	p := newTestPipeline(t, nil)

	out := p.Run(context.Background(), newRequest(http.MethodGet, "http://example.com/login",
		&http.Cookie{Name: TokenCookie, Value: "abc"}))
	require.Equal(t, Redirect, out.Action)
	assert.Equal(t, "/dashboard", out.Location)
	assert.Equal(t, http.StatusTemporaryRedirect, out.StatusCode)
}

func TestPipelineTenantRewrite(t *testing.T) {
	p := newTestPipeline(t, nil)
	token := &http.Cookie{Name: TokenCookie, Value: "abc"}

	tests := []struct {
		name       string
		target     string
		wantAction Action
		wantURL    string
		wantTenant string
	}{
		{"superadmin root", "http://superadmin.example.com/", Rewrite, "/superadmin/dashboard", "/superadmin"},
		{"superadmin localhost root", "http://superadmin.localhost:3000/", Rewrite, "/superadmin/dashboard", "/superadmin"},
		{"clinic root", "http://clinic.example.com/", Rewrite, "/medical/dashboard", "/medical"},
		{"bare domain root", "http://example.com/", Rewrite, "/medical/dashboard", "/medical"},
		{"bare domain page", "http://example.com/patients", Continue, "", ""},
		{"clinic page with query", "http://clinic.example.com/patients?id=1", Rewrite, "/medical/patients?id=1", "/medical"},
		{"already prefixed", "http://superadmin.example.com/superadmin/dashboard", Continue, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := p.Run(context.Background(), newRequest(http.MethodGet, tt.target, token))
			require.Equal(t, tt.wantAction, out.Action)
			if tt.wantAction == Rewrite {
				assert.Equal(t, tt.wantURL, out.RewriteURL())
				assert.Equal(t, tt.wantTenant, out.Tenant)
				assert.Equal(t, StageTenant, out.Stage)
			}
		})
	}
}

func TestPipelineSharedPagesNeverRewritten(t *testing.T) {
	p := newTestPipeline(t, nil)
	token := &http.Cookie{Name: TokenCookie, Value: "abc"}

	tests := []struct {
		target  string
		cookies []*http.Cookie
	}{
		{"http://superadmin.example.com/login", nil},
		{"http://superadmin.example.com/register", nil},
		{"http://clinic.example.com/login", nil},
		{"http://superadmin.localhost:3000/register", nil},
		{"http://superadmin.example.com/403", []*http.Cookie{token}},
		{"http://clinic.example.com/404", []*http.Cookie{token}},
		{"http://example.com/403", nil},
	}

	for _, tt := range tests {
		out := p.Run(context.Background(), newRequest(http.MethodGet, tt.target, tt.cookies...))
		assert.Equal(t, Continue, out.Action, tt.target)
		assert.Empty(t, out.Path, tt.target)
		assert.Empty(t, out.Tenant, tt.target)
	}
}

func TestPipelineTrailingSlashKeepsEncoding(t *testing.T) {
	p := newTestPipeline(t, nil)

	out := p.Run(context.Background(), newRequest(http.MethodGet, "http://example.com/a%3Fb/?x=1"))
	require.Equal(t, Redirect, out.Action)
	assert.Equal(t, "/a%3Fb?x=1", out.Location)

	out = p.Run(context.Background(), newRequest(http.MethodGet, "http://example.com/files/a%2Fb/"))
	require.Equal(t, Redirect, out.Action)
	assert.Equal(t, "/files/a%2Fb", out.Location)
}

func TestPipelineTrailingSlashNeverLeavesSite(t *testing.T) {
	p := newTestPipeline(t, nil)

	for _, target := range []string{
		"http://example.com/%5Cevil.com/",
		"http://example.com/%5cevil.com/",
		"http://example.com//evil.com/",
		"http://example.com/%2Fevil.com/",
	} {
		out := p.Run(context.Background(), newRequest(http.MethodGet, target))
		assert.NotEqual(t, Redirect, out.Action, target)
		assert.Empty(t, out.Location, target)
	}
}

func TestPipelineTenantRewriteKeepsEncoding(t *testing.T) {
	p := newTestPipeline(t, nil)

	out := p.Run(context.Background(), newRequest(http.MethodGet, "http://clinic.example.com/files/a%3Fb%2Fc?x=1"))
	require.Equal(t, Rewrite, out.Action)
	assert.Equal(t, "/medical/files/a?b/c", out.Path)
	assert.Equal(t, "/medical/files/a%3Fb%2Fc", out.RawPath)
	assert.Equal(t, "/medical/files/a%3Fb%2Fc?x=1", out.RewriteURL())

	out = p.Run(context.Background(), newRequest(http.MethodGet, "http://clinic.example.com/patients?id=1"))
	require.Equal(t, Rewrite, out.Action)
	assert.Empty(t, out.RawPath)
}

func TestPipelineFinisherHeaders(t *testing.T) {
	p := newTestPipeline(t, nil)

	out := p.Run(context.Background(), newRequest(http.MethodGet, "http://example.com/api/patients"))
	assert.Equal(t, Continue, out.Action)
	assert.Equal(t, "http://localhost:3000", out.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, contentSecurityPolicy, out.Header.Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", out.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "max-age=31536000; includeSubDomains", out.Header.Get("Strict-Transport-Security"))

	out = p.Run(context.Background(), newRequest(http.MethodGet, "http://example.com/patients"))
	assert.Empty(t, out.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "DENY", out.Header.Get("X-Frame-Options"))
}

func TestPipelineLocaleCookie(t *testing.T) {
	p := newTestPipeline(t, nil)

	r := httptest.NewRequest(http.MethodGet, "http://example.com/patients", nil)
	r.Header.Set("Accept-Language", "fr-CA,fr;q=0.9,en;q=0.8")
	out := p.Run(context.Background(), FromHTTP(r))
	require.Len(t, out.Cookies, 1)
	assert.Equal(t, LocaleCookie, out.Cookies[0].Name)
	assert.Equal(t, "fr", out.Cookies[0].Value)
	assert.Equal(t, "/", out.Cookies[0].Path)
	assert.Equal(t, 31536000, out.Cookies[0].MaxAge)

	out = p.Run(context.Background(), newRequest(http.MethodGet, "http://example.com/patients",
		&http.Cookie{Name: LocaleCookie, Value: "de"}))
	assert.Empty(t, out.Cookies)
}

func TestPreferredLanguage(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", "en"},
		{"en-US,en;q=0.9", "en"},
		{"DE", "de"},
		{"pt-BR", "pt"},
		{"fil;q=0.7", "fil"},
		{"*", "en"},
		{"x1-ab", "en"},
		{"  es ; q=1", "es"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, PreferredLanguage(tt.header), tt.header)
	}
}
