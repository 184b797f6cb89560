package server

import (
	"time"

	"github.com/valyala/fasthttp"

	"github.com/pH0enix46/EMR/pkg/config"
)

func newUpstreamClient(cfg config.UpstreamConfig) *fasthttp.Client {
	return &fasthttp.Client{
		MaxConnsPerHost:          cfg.MaxConnsPerHost,
		ReadTimeout:              cfg.Timeout,
		WriteTimeout:             cfg.Timeout,
		MaxIdleConnDuration:      90 * time.Second,
		NoDefaultUserAgentHeader: true,
		// Forward paths exactly as the browser encoded them
		DisablePathNormalizing:   true,
	}
}
