// Package statusapi exposes an optional, read-only HTTP surface over a
// running copy's aggregate status: a JSON snapshot endpoint, a Prometheus
// metrics endpoint, and the Swagger UI route. Only the /status handler
// carries swag annotations, and no generated swag document is registered,
// so the UI has no API document to load. It is never required for a
// bare copy invocation — it exists only when --status-addr is set, built
// on the gin/Prometheus/swaggo trio otherwise idle in this toolkit's
// dependency stack.
package statusapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/xcpkit/xcp/internal/status"
)

// StatusSnapshot is the JSON shape served at GET /status.
//
// @Description aggregate progress of the running copy invocation
type StatusSnapshot struct {
	BytesCopied int64  `json:"bytes_transferred"`
	TotalBytes  int64  `json:"total_bytes"`
	Percent     float64 `json:"percent"`
	Error       string `json:"error,omitempty"`
}

// Server wraps a gin engine exposing /status, /metrics, and /swagger over
// an Aggregator's published snapshots.
type Server struct {
	agg    *status.Aggregator
	http   *http.Server
	engine *gin.Engine
}

// New builds a Server bound to addr, reading snapshots from agg. Call
// Start to begin serving and Shutdown to stop.
func New(addr string, agg *status.Aggregator) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{agg: agg, engine: engine}

	engine.GET("/status", s.handleStatus)
	engine.GET("/metrics", gin.WrapH(newMetricsHandler(agg)))
	engine.GET("/swagger/*any", httpSwagger.WrapHandler)

	s.http = &http.Server{Addr: addr, Handler: engine}
	return s
}

// handleStatus godoc
// @Summary      Current copy progress
// @Description  Returns the most recently published aggregate progress snapshot.
// @Produce      json
// @Success      200 {object} StatusSnapshot
// @Router       /status [get]
func (s *Server) handleStatus(c *gin.Context) {
	snap := s.agg.Snapshot()
	resp := StatusSnapshot{
		BytesCopied: snap.BytesCopied,
		TotalBytes:  snap.TotalBytes,
	}
	if snap.TotalBytes > 0 {
		resp.Percent = float64(snap.BytesCopied) / float64(snap.TotalBytes) * 100
	}
	if snap.FirstError != nil {
		resp.Error = snap.FirstError.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// Start begins serving in the background; errors other than
// http.ErrServerClosed are sent on the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
