package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/steveyiyo/voxrelay/internal/config"
	"github.com/steveyiyo/voxrelay/internal/core/session"
	"github.com/steveyiyo/voxrelay/internal/http/handlers"
	"github.com/steveyiyo/voxrelay/internal/metrics"
	"github.com/steveyiyo/voxrelay/pkg/ws"
)

// Deps are what the router serves.
type Deps struct {
	Sessions *session.Service
	Metrics  *metrics.Metrics
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

func NewRouter(cfg config.Config, d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), d.Metrics.GinMiddleware())

	hub := ws.NewHub()
	sh := handlers.NewSessionsHandler(d.Sessions, cfg.Scheme(), cfg.Host())
	mh := handlers.NewMessagesHandler(d.Sessions)
	wsh := handlers.NewStreamHandler(hub, d.Sessions)

	api := r.Group("/v1")
	api.POST("/sessions", sh.Create)
	api.GET("/sessions/:id/summary", sh.Summary)
	api.DELETE("/sessions/:id", sh.Delete)
	api.GET("/sessions/:id/messages", mh.List)
	api.DELETE("/sessions/:id/messages", mh.Clear)
	api.DELETE("/sessions/:id/messages/:msgID", mh.DeleteOne)
	api.POST("/sessions/:id/prompt", mh.Prompt)
	r.GET("/v1/stream", wsh.WS)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "streams": hub.Len()})
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}
	return r
}
