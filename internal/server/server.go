// Package server exposes the application over HTTP: translation endpoints,
// sequence operations, camera controls and a websocket event stream.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/silentapp/silent/internal/app"
	"github.com/silentapp/silent/internal/config"
	"github.com/silentapp/silent/internal/sequence"
)

// Server is the HTTP front of the application.
type Server struct {
	cfg    *config.Config
	app    *app.App
	log    *logrus.Entry
	engine *gin.Engine
	hub    *Hub
	httpd  *http.Server
	start  time.Time
}

// New builds the router and wires the event stream.
func New(cfg *config.Config, application *app.App, log *logrus.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(log))

	s := &Server{
		cfg:    cfg,
		app:    application,
		log:    log.WithField("component", "server"),
		engine: engine,
		hub:    NewHub(log),
		start:  time.Now(),
	}
	s.routes()

	application.SetOnPrediction(func(ev app.PredictionEvent) {
		s.hub.Broadcast(gin.H{"type": "prediction", "data": ev})
	})
	application.Sequence().SetOnChange(func(entries []sequence.Entry) {
		s.hub.Broadcast(gin.H{
			"type": "sequence",
			"data": gin.H{
				"entries": entries,
				"text":    application.Sequence().Render(),
			},
		})
	})
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleServiceHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api")
	{
		api.GET("/health", s.handleBackendHealth)
		api.GET("/models", s.handleModels)
		api.POST("/load_model/:dataset", s.handleLoadModel)

		api.POST("/predict", s.handlePredict)
		api.POST("/predict/batch", s.handlePredictBatch)

		api.GET("/sequence", s.handleSequenceGet)
		api.POST("/sequence/space", s.handleSequenceSpace)
		api.POST("/sequence/undo", s.handleSequenceUndo)
		api.POST("/sequence/clear", s.handleSequenceClear)
		api.DELETE("/sequence", s.handleSequenceClear)

		api.POST("/language", s.handleLanguage)

		camera := api.Group("/camera")
		{
			camera.POST("/start", s.handleCameraStart)
			camera.POST("/stop", s.handleCameraStop)
			camera.POST("/capture", s.handleCameraCapture)
			camera.POST("/timer", s.handleCameraTimer)
			camera.POST("/auto", s.handleCameraAuto)
			camera.POST("/mirror", s.handleCameraMirror)
			camera.GET("/status", s.handleCameraStatus)
		}

		api.GET("/stream", gin.WrapH(s.hub))
	}
}

// ServeHTTP implements http.Handler, mainly for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// ListenAndServe blocks serving HTTP until Shutdown or a listen error.
func (s *Server) ListenAndServe() error {
	s.httpd = &http.Server{
		Addr:              s.cfg.ServerAddress(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.WithField("addr", s.httpd.Addr).Info("http server listening")
	return s.httpd.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpd == nil {
		return nil
	}
	return s.httpd.Shutdown(ctx)
}

// requestLogger logs one structured line per request.
func requestLogger(log *logrus.Logger) gin.HandlerFunc {
	entry := log.WithField("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Info("request handled")
	}
}
