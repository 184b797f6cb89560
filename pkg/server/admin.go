package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/pH0enix46/EMR/pkg/cache"
	"github.com/pH0enix46/EMR/pkg/config"
	"github.com/pH0enix46/EMR/pkg/metrics"
	"github.com/pH0enix46/EMR/pkg/version"
)

const storePingTimeout = 2 * time.Second

type AdminServer struct {
	*BaseServer
}

func NewAdminServer(config *config.Config, cache *cache.Cache, logger *logrus.Logger) *AdminServer {
	s := &AdminServer{
		BaseServer: NewBaseServer(config, cache, logger, config.Server.AdminPort),
	}
	s.setupRoutes()
	return s
}

func (s *AdminServer) setupRoutes() {
	s.router.GET("/health", s.health)
	s.router.GET("/version", s.getVersion)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))
	s.router.GET("/policy", s.getPolicy)
}

func (s *AdminServer) Run() error {
	return s.runServer()
}

func (s *AdminServer) health(c *gin.Context) {
	resp := gin.H{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
		"mode":   s.config.Mode,
	}

	if s.cache == nil {
		resp["ratelimit_store"] = "disabled"
		c.JSON(http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storePingTimeout)
	defer cancel()

	// Store outages report degraded, not unhealthy.
	if err := s.cache.Ping(ctx); err != nil {
		s.logger.WithError(err).Warn("Rate limit store unreachable")
		resp["status"] = "degraded"
		resp["ratelimit_store"] = "unreachable"
		c.JSON(http.StatusOK, resp)
		return
	}

	resp["ratelimit_store"] = "ok"
	c.JSON(http.StatusOK, resp)
}

func (s *AdminServer) getVersion(c *gin.Context) {
	c.Data(http.StatusOK, "application/json", fastJSONMarshal(version.GetInfo()))
}

// getPolicy returns the effective policy table after defaults and overrides.
// With ?format=yaml the output can be pasted under "policy:" in config.yaml.
func (s *AdminServer) getPolicy(c *gin.Context) {
	if c.Query("format") == "yaml" {
		out, err := yaml.Marshal(s.config.Policy)
		if err != nil {
			s.logger.WithError(err).Error("Failed to render policy")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render policy"})
			return
		}
		c.Data(http.StatusOK, "application/yaml", out)
		return
	}
	c.Data(http.StatusOK, "application/json", fastJSONMarshal(s.config.Policy))
}
