package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pH0enix46/EMR/pkg/router"
)

type EdgeMiddleware struct {
	logger   *logrus.Logger
	pipeline *router.Pipeline
}

func NewEdgeMiddleware(logger *logrus.Logger, pipeline *router.Pipeline) *EdgeMiddleware {
	return &EdgeMiddleware{
		logger:   logger,
		pipeline: pipeline,
	}
}

// Handle runs the edge pipeline and applies its outcome to the gin context.
func (m *EdgeMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Only the edge may claim a rewrite.
		c.Request.Header.Del(OriginalPathHeader)

		req := router.FromHTTP(c.Request)
		out := m.pipeline.Run(c.Request.Context(), req)
		c.Set(OutcomeContextKey, out)

		if out.Action == router.Skip {
			c.Next()
			return
		}

		applyHeaders(c, out)

		switch out.Action {
		case router.Respond:
			if len(out.Body) > 0 {
				c.Data(out.StatusCode, out.ContentType, out.Body)
				c.Abort()
				return
			}
			c.AbortWithStatus(out.StatusCode)

		case router.Redirect:
			c.Redirect(out.StatusCode, out.Location)
			c.Abort()

		case router.Rewrite:
			m.logger.WithFields(logrus.Fields{
				"from":   req.PathWithQuery(),
				"to":     out.RewriteURL(),
				"reason": out.Reason,
			}).Debug("Rewriting request")

			c.Request.Header.Set(OriginalPathHeader, req.EscapedPath)
			c.Request.URL.Path = out.Path
			c.Request.URL.RawPath = out.RawPath
			c.Request.URL.RawQuery = out.Query
			c.Request.RequestURI = out.RewriteURL()

			c.Set(OriginalPathContextKey, req.EscapedPath)
			if out.Tenant != "" {
				c.Set(TenantContextKey, out.Tenant)
			}
			c.Next()

		default:
			c.Next()
		}
	}
}

func applyHeaders(c *gin.Context, out *router.Outcome) {
	h := c.Writer.Header()
	for k, v := range out.Header {
		h[k] = v
	}
	for _, ck := range out.Cookies {
		http.SetCookie(c.Writer, ck)
	}
}
