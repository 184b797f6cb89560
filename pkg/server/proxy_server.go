package server

import (
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/pH0enix46/EMR/internal/middleware"
	"github.com/pH0enix46/EMR/pkg/cache"
	"github.com/pH0enix46/EMR/pkg/config"
	"github.com/pH0enix46/EMR/pkg/metrics"
	"github.com/pH0enix46/EMR/pkg/router"
)

// Hop-by-hop headers are never forwarded in either direction.
var hopByHopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Proxy-Connection":    true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

var forwardFailedBody = fastJSONMarshal(map[string]string{"error": "Failed to forward request"})

type ProxyServer struct {
	*BaseServer
	edge     *middleware.EdgeMiddleware
	client   *fasthttp.Client
	upstream string
	rewrites []config.ExternalRewrite
}

func NewProxyServer(config *config.Config, cache *cache.Cache, logger *logrus.Logger, pipeline *router.Pipeline) *ProxyServer {
	s := &ProxyServer{
		BaseServer: NewBaseServer(config, cache, logger, config.Server.ProxyPort),
		edge:       middleware.NewEdgeMiddleware(logger, pipeline),
		client:     newUpstreamClient(config.Upstream),
		upstream:   strings.TrimRight(config.Upstream.URL, "/"),
		rewrites:   config.Upstream.ExternalRewrites,
	}
	s.setupRoutes()
	return s
}

func (s *ProxyServer) setupRoutes() {
	// System routes answer before the edge pipeline sees the request
	s.router.Use(func(c *gin.Context) {
		switch c.Request.URL.Path {
		case "/__/health":
			c.JSON(http.StatusOK, gin.H{
				"status": "ok",
				"time":   time.Now().Format(time.RFC3339),
			})
			c.Abort()
			return
		case "/__/ping":
			c.JSON(http.StatusOK, gin.H{
				"message": "pong",
			})
			c.Abort()
			return
		}
		c.Next()
	})

	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.NewMetricsMiddleware(s.logger).MetricsMiddleware())
	s.router.Use(s.edge.Handle())

	// Every page and API path belongs to the upstream renderer
	s.router.NoRoute(s.HandleForward)
}

func (s *ProxyServer) Run() error {
	return s.runServer()
}

// HandleForward relays the (possibly rewritten) request to the renderer, or
// to an external origin when the browser path matches an external rewrite.
func (s *ProxyServer) HandleForward(c *gin.Context) {
	start := time.Now()

	// Escaped forms throughout, so %2F and %3F reach the upstream intact.
	path := c.Request.URL.EscapedPath()
	visiblePath := path
	if p := c.GetString(middleware.OriginalPathContextKey); p != "" {
		visiblePath = p
	}
	targetURL := s.targetURL(visiblePath, path, c.Request.URL.RawQuery)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.logger.WithError(err).Error("Failed to read request body")
		c.Data(http.StatusBadGateway, "application/json", forwardFailedBody)
		return
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(targetURL)
	req.Header.SetMethod(c.Request.Method)

	for k, v := range c.Request.Header {
		if hopByHopHeaders[k] || k == "Content-Length" {
			continue
		}
		for _, val := range v {
			req.Header.Add(k, val)
		}
	}
	req.Header.Set("X-Forwarded-Host", c.Request.Host)
	req.Header.Set("X-Forwarded-For", forwardedFor(c.Request))

	if len(body) > 0 {
		req.SetBody(body)
	}

	s.logger.WithFields(logrus.Fields{
		"method": c.Request.Method,
		"url":    targetURL,
	}).Debug("Forwarding request")

	if err := s.client.Do(req, resp); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"url":        targetURL,
			"request_id": c.GetString(middleware.RequestIDContextKey),
		}).Error("Failed to forward request")
		c.Data(http.StatusBadGateway, "application/json", forwardFailedBody)
		return
	}

	tenant := c.GetString(middleware.TenantContextKey)
	if tenant == "" {
		tenant = "none"
	}
	metrics.EdgeRequestLatency.WithLabelValues(tenant, "upstream").
		Observe(float64(time.Since(start).Milliseconds()))

	s.copyResponseHeaders(c.Writer.Header(), &resp.Header)
	c.Status(resp.StatusCode())
	if _, err := c.Writer.Write(resp.Body()); err != nil {
		s.logger.WithError(err).Debug("Failed to write response body")
	}
}

// targetURL resolves where a request goes. External rewrites match on the
// browser-visible path; everything else goes to the renderer at the
// rewritten path.
func (s *ProxyServer) targetURL(visiblePath, path, rawQuery string) string {
	target := s.upstream + path
	for _, r := range s.rewrites {
		if visiblePath == r.Source || strings.HasPrefix(visiblePath, strings.TrimRight(r.Source, "/")+"/") {
			target = strings.TrimRight(r.Destination, "/") + strings.TrimPrefix(visiblePath, strings.TrimRight(r.Source, "/"))
			break
		}
	}
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target
}

// copyResponseHeaders adds upstream headers that the edge has not already set.
func (s *ProxyServer) copyResponseHeaders(dst http.Header, src *fasthttp.ResponseHeader) {
	edgeSet := make(map[string]bool, len(dst))
	for k := range dst {
		edgeSet[k] = true
	}

	src.VisitAll(func(key, value []byte) {
		k := http.CanonicalHeaderKey(string(key))
		switch {
		case hopByHopHeaders[k], k == "Content-Length", k == "X-Powered-By":
			return
		case k == "Set-Cookie":
			dst.Add(k, string(value))
		case edgeSet[k]:
			return
		default:
			dst.Add(k, string(value))
		}
	})
}

func forwardedFor(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if prior := r.Header.Get("X-Forwarded-For"); prior != "" {
		return prior + ", " + ip
	}
	return ip
}
