package observability

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Status is the connection summary served on /health.
type Status struct {
	State      string `json:"state"`
	Connected  bool   `json:"connected"`
	ServerCVID int32  `json:"server_cvid,omitempty"`
	SID        int32  `json:"sid,omitempty"`
	Error      string `json:"error,omitempty"`
}

type StatusFunc func() Status

// NewRouter serves /metrics from g and /health from status. /health answers
// 503 while the connection is not established.
func NewRouter(g prometheus.Gatherer, logger zerolog.Logger, status StatusFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))

	r.GET("/health", func(c *gin.Context) {
		st := status()
		code := http.StatusOK
		if !st.Connected {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, st)
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
	return r
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logger.Debug()
		if status >= 500 && status != http.StatusServiceUnavailable {
			event = logger.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("http_request")
	}
}
