package router

import (
	"context"
	"net/http"
	"strings"
)

const (
	corsAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization"
	corsMaxAge       = "86400"
)

// filterStage skips static assets and answers CORS preflights.
func (p *Pipeline) filterStage(_ context.Context, req *Request) *Outcome {
	if p.table.IsAsset(req.Path) {
		return &Outcome{Action: Skip, Reason: ReasonAsset}
	}

	if req.Method == http.MethodOptions {
		h := http.Header{}
		h.Set("Access-Control-Allow-Origin", p.table.AllowedOrigin)
		h.Set("Access-Control-Allow-Methods", corsAllowMethods)
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Max-Age", corsMaxAge)
		return &Outcome{
			Action:     Respond,
			Reason:     ReasonPreflight,
			StatusCode: http.StatusNoContent,
			Header:     h,
		}
	}

	return nil
}

// canonicalStage applies configured redirects and strips trailing slashes.
func (p *Pipeline) canonicalStage(_ context.Context, req *Request) *Outcome {
	if r, ok := p.table.FindRedirect(req.Path); ok {
		status := http.StatusTemporaryRedirect
		if r.Permanent {
			status = http.StatusPermanentRedirect
		}
		return &Outcome{
			Action:     Redirect,
			Reason:     ReasonRedirectRule,
			StatusCode: status,
			Location:   withQuery(r.Destination, req.RawQuery),
		}
	}

	if p.table.StripTrailingSlash && len(req.Path) > 1 && strings.HasSuffix(req.Path, "/") {
		trimmed := strings.TrimRight(req.escapedPath(), "/")
		if trimmed == "" {
			trimmed = "/"
		}
		// Browsers read "//host" and "/\host" as another origin.
		if isSchemeRelative(trimmed) || isSchemeRelative(strings.TrimRight(req.Path, "/")) {
			return nil
		}
		return &Outcome{
			Action:     Redirect,
			Reason:     ReasonTrailingSlash,
			StatusCode: http.StatusPermanentRedirect,
			Location:   withQuery(trimmed, req.RawQuery),
		}
	}

	return nil
}

func isSchemeRelative(path string) bool {
	return strings.HasPrefix(path, "//") || strings.HasPrefix(path, "/\\")
}

func withQuery(path, rawQuery string) string {
	if rawQuery == "" {
		return path
	}
	if strings.Contains(path, "?") {
		return path + "&" + rawQuery
	}
	return path + "?" + rawQuery
}
