package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"trade-journal-bot/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// JournalReader is the read-only journal surface exposed over HTTP.
type JournalReader interface {
	ListEntries(ctx context.Context, userID int64, limit int) ([]domain.TradeEntry, error)
	Suggest(ctx context.Context, userID int64, fieldKey string, topN int) ([]domain.FieldOption, error)
}

type Handler struct {
	tracer  trace.Tracer
	journal JournalReader
}

func New(tracer trace.Tracer, journal JournalReader) *Handler {
	return &Handler{tracer: tracer, journal: journal}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/api/entries", h.GetEntries)
	r.GET("/api/suggestions", h.GetSuggestions)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) GetEntries(c *gin.Context) {
	if h.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-entries")
	defer span.End()

	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int64("user_id", userID))

	limit := 50
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
			return
		}
		limit = n
	}

	entries, err := h.journal.ListEntries(ctx, userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *Handler) GetSuggestions(c *gin.Context) {
	if h.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-suggestions")
	defer span.End()

	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	fieldKey := strings.ToLower(strings.TrimSpace(c.Query("field")))
	if _, known := domain.ParseField(fieldKey); !known {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown field: " + fieldKey})
		return
	}
	span.SetAttributes(attribute.String("field", fieldKey))

	topN := 0
	if raw := strings.TrimSpace(c.Query("top")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "top must be a positive integer"})
			return
		}
		topN = n
	}

	options, err := h.journal.Suggest(ctx, userID, fieldKey, topN)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"field": fieldKey, "options": options})
}

func parseUserID(c *gin.Context) (int64, bool) {
	raw := strings.TrimSpace(c.Query("user_id"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id must be a positive integer"})
		return 0, false
	}
	return id, true
}
