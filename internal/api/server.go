// Package api exposes manuals and rule queries over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ludolens/internal/assistant"
	"ludolens/internal/models"
	"ludolens/internal/pipeline"
	"ludolens/internal/providers"
)

type ManualService interface {
	Upload(ctx context.Context, gameName string, data []byte, fileName string) (models.Manual, error)
	Get(ctx context.Context, id string) (models.Manual, error)
	List(ctx context.Context) ([]models.Manual, error)
	Delete(ctx context.Context, id string) (bool, error)
	JobProgress(ctx context.Context, id string) (pipeline.Progress, error)
}

type RuleAssistant interface {
	AnswerWithImage(ctx context.Context, manualID string, image providers.Image, question string) (assistant.Answer, error)
	AnswerWithText(ctx context.Context, manualID, question string) (assistant.Answer, error)
	StreamText(ctx context.Context, manualID, question string) (assistant.Stream, error)
}

type IndexChecker interface {
	IsIndexed(ctx context.Context, manualID string) (bool, error)
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	MaxUploadBytes int64
	CORSOrigins    []string
	ServiceName    string
	Version        string
}

type Server struct {
	manuals   ManualService
	assistant RuleAssistant
	index     IndexChecker
	db        Pinger
	opts      Options
	log       *slog.Logger
}

func NewServer(manuals ManualService, asst RuleAssistant, index IndexChecker, db Pinger, opts Options, log *slog.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "ludolens"
	}
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		manuals:   manuals,
		assistant: asst,
		index:     index,
		db:        db,
		opts:      opts,
		log:       log.With("component", "api"),
	}
}

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		requestID(),
		tracing(s.opts.ServiceName),
		requestLogger(s.log),
		corsMiddleware(s.opts.CORSOrigins),
	)

	r.GET("/health", s.handleHealth)
	r.GET("/", s.handleIndex)

	// Multipart overhead on top of the file itself.
	bodyLimit := s.opts.MaxUploadBytes + 1<<20

	api := r.Group("/api")
	manuals := api.Group("/manuals")
	manuals.POST("", bodySizeLimit(bodyLimit), s.handleUpload)
	manuals.GET("", s.handleListManuals)
	manuals.GET("/:id", s.handleGetManual)
	manuals.DELETE("/:id", s.handleDeleteManual)
	manuals.GET("/:id/job", s.handleJobProgress)

	query := api.Group("/query")
	query.POST("", bodySizeLimit(bodyLimit), s.handleQueryImage)
	query.POST("/text", s.handleQueryText)
	query.POST("/text/stream", s.handleQueryTextStream)

	r.NoRoute(func(c *gin.Context) {
		writeErr(c, http.StatusNotFound, errRouteNotFound)
	})
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	status, code := "ok", http.StatusOK
	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			s.log.Warn("health check database ping", "error", err)
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	c.JSON(code, gin.H{"status": status, "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) handleIndex(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "LudoLens API - AI rules assistant for tabletop games",
		"version": s.opts.Version,
		"endpoints": gin.H{
			"health": "GET /health",
			"manuals": gin.H{
				"upload": "POST /api/manuals",
				"list":   "GET /api/manuals",
				"get":    "GET /api/manuals/:id",
				"delete": "DELETE /api/manuals/:id",
				"job":    "GET /api/manuals/:id/job",
			},
			"query": gin.H{
				"image":      "POST /api/query",
				"text":       "POST /api/query/text",
				"textStream": "POST /api/query/text/stream",
			},
		},
	})
}
