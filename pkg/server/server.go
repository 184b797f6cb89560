package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pH0enix46/EMR/pkg/cache"
	"github.com/pH0enix46/EMR/pkg/config"
)

// Server interface defines the common behavior for all servers
type Server interface {
	Run() error
	Shutdown(ctx context.Context) error
}

type BaseServer struct {
	config     *config.Config
	cache      *cache.Cache
	logger     *logrus.Logger
	router     *gin.Engine
	httpServer *http.Server
}

func init() {
	// Set Gin mode to release by default
	gin.SetMode(gin.ReleaseMode)
	// Disable Gin's default logging globally
	gin.DefaultWriter = io.Discard
}

// NewBaseServer creates a gin engine listening on port. cache may be nil when
// no shared store is configured.
func NewBaseServer(config *config.Config, cache *cache.Cache, logger *logrus.Logger, port int) *BaseServer {
	router := gin.New()

	// Trailing slashes are handled by the edge pipeline
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false

	router.Use(gin.Recovery())

	return &BaseServer{
		config: config,
		cache:  cache,
		logger: logger,
		router: router,
		httpServer: &http.Server{
			Addr:              net.JoinHostPort(config.Server.Host, strconv.Itoa(port)),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *BaseServer) Router() *gin.Engine {
	return s.router
}

// runServer blocks until the server stops. A graceful shutdown is not an error.
func (s *BaseServer) runServer() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *BaseServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
