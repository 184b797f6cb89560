package router

import (
	"net/http"
)

// Action tells the transport what to do with a request.
type Action int

const (
	// Continue passes the request on unchanged, plus finisher headers.
	Continue Action = iota
	// Skip passes the request on with no modification at all.
	Skip
	// Respond answers directly from the edge (preflight, throttling).
	Respond
	// Redirect sends the browser elsewhere.
	Redirect
	// Rewrite serves a different path while the browser URL stays the same.
	Rewrite
)

func (a Action) String() string {
	switch a {
	case Continue:
		return "continue"
	case Skip:
		return "skip"
	case Respond:
		return "respond"
	case Redirect:
		return "redirect"
	case Rewrite:
		return "rewrite"
	default:
		return "unknown"
	}
}

// Reasons recorded on outcomes for logs and metrics.
const (
	ReasonAsset         = "asset"
	ReasonPreflight     = "preflight"
	ReasonRedirectRule  = "redirect_rule"
	ReasonTrailingSlash = "trailing_slash"
	ReasonRateLimited   = "rate_limited"
	ReasonLoginRequired = "login_required"
	ReasonForbidden     = "forbidden"
	ReasonAuthenticated = "authenticated"
	ReasonTenant        = "tenant"
	ReasonPassThrough   = "pass_through"
)

// Outcome is the decision of one pipeline pass.
type Outcome struct {
	Action Action
	Stage  string
	Reason string

	// Respond and Redirect
	StatusCode  int
	Location    string
	Body        []byte
	ContentType string

	// Rewrite. RawPath is the escaped form of Path, empty when they match.
	Path    string
	RawPath string
	Query   string

	// Tenant is the resolved tenant prefix, empty when the tenant stage did
	// not run.
	Tenant string

	Header  http.Header
	Cookies []*http.Cookie
}

// Terminal reports whether the edge answers the request itself.
func (o *Outcome) Terminal() bool {
	return o.Action == Respond || o.Action == Redirect
}

// EscapedPath returns the rewritten path in its wire encoding.
func (o *Outcome) EscapedPath() string {
	if o.RawPath != "" {
		return o.RawPath
	}
	return o.Path
}

// RewriteURL returns the escaped rewritten path including its query string.
func (o *Outcome) RewriteURL() string {
	if o.Query == "" {
		return o.EscapedPath()
	}
	return o.EscapedPath() + "?" + o.Query
}

func mergeHeader(dst, src http.Header) {
	for k, v := range src {
		dst[k] = append([]string(nil), v...)
	}
}
