package router

import (
	"net/http"
	"strings"
)

const (
	contentSecurityPolicy = "default-src 'self'; script-src 'self' 'unsafe-inline' 'unsafe-eval'; style-src 'self' 'unsafe-inline';"
	hstsPolicy            = "max-age=31536000; includeSubDomains"
	localeMaxAge          = 31536000
	defaultLocale         = "en"
)

// finish attaches CORS, security headers and the locale cookie to out.
func (p *Pipeline) finish(req *Request, out *Outcome) {
	if out.Header == nil {
		out.Header = http.Header{}
	}
	h := out.Header

	if p.table.IsAPI(req.Path) && p.table.AllowedOrigin != "" {
		h.Set("Access-Control-Allow-Origin", p.table.AllowedOrigin)
	}

	h.Set("Content-Security-Policy", contentSecurityPolicy)
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Strict-Transport-Security", hstsPolicy)

	if _, ok := req.Cookies[LocaleCookie]; !ok {
		out.Cookies = append(out.Cookies, &http.Cookie{
			Name:   LocaleCookie,
			Value:  PreferredLanguage(req.Header.Get("Accept-Language")),
			Path:   "/",
			MaxAge: localeMaxAge,
		})
	}
}

// PreferredLanguage returns the primary language subtag of the first
// Accept-Language entry, lower-cased, or "en".
func PreferredLanguage(acceptLanguage string) string {
	first := strings.Split(acceptLanguage, ",")[0]
	first = strings.Split(first, ";")[0]
	lang := strings.ToLower(strings.TrimSpace(strings.Split(first, "-")[0]))

	if len(lang) < 2 || len(lang) > 3 {
		return defaultLocale
	}
	for _, c := range lang {
		if c < 'a' || c > 'z' {
			return defaultLocale
		}
	}
	return lang
}
