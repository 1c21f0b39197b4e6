package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agenthands/docgraph/internal/cache"
	"github.com/agenthands/docgraph/internal/core/model"
	"github.com/agenthands/docgraph/internal/ingest"
	"github.com/agenthands/docgraph/internal/logger"
	"github.com/agenthands/docgraph/internal/parser"
)

type Ingester interface {
	Submit(doc model.Document, raw []byte) error
	Status(documentID string) (ingest.Status, bool)
}

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type Server struct {
	Ingest         Ingester
	Health         HealthChecker
	MaxUploadBytes int64

	parsers *parser.Registry
}

func NewServer(ing Ingester, health HealthChecker, maxUploadBytes int64) *Server {
	return &Server{
		Ingest:         ing,
		Health:         health,
		MaxUploadBytes: maxUploadBytes,
		parsers:        parser.NewRegistry(),
	}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.POST("/documents", s.UploadDocument)
	r.GET("/documents/:id", s.GetDocument)
	r.GET("/health", s.HealthCheck)

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("[HTTP] request", "method", c.Request.Method, "path", c.FullPath(),
			"status", c.Writer.Status(), "took", time.Since(start))
	}
}

// UploadDocument accepts a multipart "file" field and queues it for ingestion.
// An optional "document_id" form field reprocesses an existing document.
func (s *Server) UploadDocument(c *gin.Context) {
	if s.MaxUploadBytes > 0 {
		if c.Request.ContentLength > s.MaxUploadBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.MaxUploadBytes)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing file"})
		return
	}

	id := c.PostForm("document_id")
	if id != "" && !cache.ValidID(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid document_id"})
		return
	}

	fileType := parser.TypeOf(header.Filename)
	if _, err := s.parsers.Lookup(fileType); err != nil {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
		return
	}

	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable file"})
		return
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable file"})
		return
	}

	if id == "" {
		id = model.NewDocumentID()
	}
	doc := model.Document{
		ID:         id,
		Filename:   header.Filename,
		FileType:   fileType,
		FileSize:   int64(len(raw)),
		Status:     model.StatusPending,
		UploadedAt: time.Now().UTC(),
	}

	if err := s.Ingest.Submit(doc, raw); err != nil {
		if errors.Is(err, ingest.ErrAlreadyProcessing) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		logger.Error("[HTTP] failed to queue document", "document_id", doc.ID, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to queue document"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"document_id": doc.ID, "status": doc.Status})
}

func (s *Server) GetDocument(c *gin.Context) {
	st, ok := s.Ingest.Status(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown document"})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if err := s.Health.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
