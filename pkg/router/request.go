package router

import (
	"net/http"
	"strings"
)

// Cookie names shared with the login UI and the page renderer.
const (
	TokenCookie  = "_token"
	RoleCookie   = "_role"
	LocaleCookie = "NEXT_LOCALE"
)

const defaultClientIP = "127.0.0.1"

// Request is the immutable view of an inbound request the stages decide on.
type Request struct {
	Method string
	// Path is decoded and used for matching. EscapedPath keeps the wire
	// encoding and is what any Location or forwarded URI is built from.
	Path        string
	EscapedPath string
	RawQuery    string
	Host        string
	ClientIP    string
	Cookies     map[string]string
	Header      http.Header
}

// Session is what the router knows about the caller: two cookies taken at
// face value. Nothing here is verified.
type Session struct {
	Token string
	Role  string
}

func (s Session) Authenticated() bool {
	return s.Token != ""
}

// FromHTTP snapshots r. Unparseable cookies are dropped by net/http and
// therefore read as absent.
func FromHTTP(r *http.Request) *Request {
	cookies := make(map[string]string)
	for _, c := range r.Cookies() {
		if _, seen := cookies[c.Name]; !seen {
			cookies[c.Name] = c.Value
		}
	}

	host := r.Host
	if host == "" {
		host = r.Header.Get("Host")
	}

	return &Request{
		Method:      r.Method,
		Path:        r.URL.Path,
		EscapedPath: r.URL.EscapedPath(),
		RawQuery:    r.URL.RawQuery,
		Host:        host,
		ClientIP:    ClientIP(r.Header),
		Cookies:     cookies,
		Header:      r.Header.Clone(),
	}
}

// ClientIP returns the first X-Forwarded-For entry, or loopback when the
// header is absent. Behind more than one proxy the first entry is client
// controlled.
func ClientIP(h http.Header) string {
	xff := h.Get("X-Forwarded-For")
	if xff == "" {
		return defaultClientIP
	}
	first := strings.TrimSpace(strings.Split(xff, ",")[0])
	if first == "" {
		return defaultClientIP
	}
	return first
}

// Session returns the session cookies carried by the request.
func (r *Request) Session() Session {
	return Session{
		Token: r.Cookies[TokenCookie],
		Role:  r.Cookies[RoleCookie],
	}
}

// PathWithQuery returns the browser-visible path, still escaped, including
// the query string.
func (r *Request) PathWithQuery() string {
	path := r.escapedPath()
	if r.RawQuery == "" {
		return path
	}
	return path + "?" + r.RawQuery
}

func (r *Request) escapedPath() string {
	if r.EscapedPath == "" {
		return r.Path
	}
	return r.EscapedPath
}
