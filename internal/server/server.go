// Package server exposes a moodboard over HTTP and a websocket state stream
// for a browser front end.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/manash/moodboard/internal/image"
	"github.com/manash/moodboard/internal/moodboard"
)

const (
	maxBody         = 1 << 20
	shutdownTimeout = 10 * time.Second
)

type Deps struct {
	Board       *moodboard.Board
	Saver       *image.Saver
	Log         *logrus.Logger
	CORSOrigins []string
}

// NewRouter builds the gin engine. ctx bounds websocket streams.
func NewRouter(ctx context.Context, deps *Deps) *gin.Engine {
	log := deps.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	r := gin.New()
	r.SetTrustedProxies(nil) //nolint:errcheck // nil always succeeds.
	r.Use(requestID(log))
	r.Use(accessLog(log))
	r.Use(gin.Recovery())
	r.Use(maxBodySize(maxBody))
	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: deps.CORSOrigins,
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Content-Type"},
			MaxAge:       time.Hour,
		}))
	}
	r.Use(prometheusMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := &handler{
		ctx:     ctx,
		board:   deps.Board,
		saver:   deps.Saver,
		log:     log,
		origins: deps.CORSOrigins,
	}
	api := r.Group("/api")
	api.GET("/health", h.health)
	api.GET("/state", h.state)
	api.GET("/models", h.listModels)
	api.GET("/image", h.currentImage)
	api.POST("/input", h.setInput)
	api.POST("/submit", h.submit)
	api.POST("/region", h.setRegion)
	api.POST("/region/overlay", h.overlay)
	api.POST("/history/:id/select", h.selectVersion)
	api.POST("/history/panel", h.setPanel)
	api.POST("/autoplay", h.toggleAutoPlay)
	api.POST("/model", h.setModel)
	api.POST("/reasoning", h.setReasoning)
	api.GET("/ws", h.stream)

	return r
}

type Server struct {
	srv *http.Server
	log *logrus.Logger
}

func New(addr string, handler http.Handler, log *logrus.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.WithField("addr", s.srv.Addr).Info("listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.log.Info("shutting down")
		return s.srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
