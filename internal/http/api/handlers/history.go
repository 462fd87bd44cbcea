package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/demystify-app/demystify-api/internal/analysis"
	"github.com/demystify-app/demystify-api/internal/apierror"
	"github.com/demystify-app/demystify-api/internal/auth"
	"github.com/demystify-app/demystify-api/internal/models"
	"github.com/demystify-app/demystify-api/internal/store"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// HistoryHandler serves a user's analysis history.
type HistoryHandler struct {
	history *store.HistoryStore
	debug   bool
}

// NewHistoryHandler constructs a HistoryHandler.
func NewHistoryHandler(history *store.HistoryStore, debug bool) *HistoryHandler {
	return &HistoryHandler{history: history, debug: debug}
}

// historyItem is the JSON shape of one record.
type historyItem struct {
	ID               uint64   `json:"id"`
	OriginalText     string   `json:"original_text"`
	Steps            []string `json:"steps"`
	Ambiguities      []string `json:"ambiguities"`
	Questions        []string `json:"questions"`
	ProcessingTimeMS int64    `json:"processing_time_ms"`
	Cached           bool     `json:"cached"`
	CreatedAt        string   `json:"created_at"`
}

func toHistoryItem(row *models.Analysis) historyItem {
	return historyItem{
		ID:               row.ID,
		OriginalText:     row.OriginalText,
		Steps:            analysis.DecodeList(row.Steps),
		Ambiguities:      analysis.DecodeList(row.Ambiguities),
		Questions:        analysis.DecodeList(row.Questions),
		ProcessingTimeMS: row.ProcessingTimeMS,
		Cached:           row.Cached,
		CreatedAt:        row.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// List returns one page of the current user's history, newest first.
func (h *HistoryHandler) List(c *gin.Context) {
	user := auth.CurrentUser(c)
	limit, errLimit := queryInt(c, "limit", defaultHistoryLimit)
	offset, errOffset := queryInt(c, "offset", 0)
	if errLimit != nil || errOffset != nil || limit < 1 || limit > maxHistoryLimit || offset < 0 {
		apierror.Respond(c, apierror.Validation("Invalid pagination").
			WithDetail("limit must be between 1 and 100 and offset must not be negative"), h.debug)
		return
	}

	rows, total, errList := h.history.ListByUser(c.Request.Context(), user.ID, limit, offset)
	if errList != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "Error loading history", errList), h.debug)
		return
	}
	items := make([]historyItem, 0, len(rows))
	for i := range rows {
		items = append(items, toHistoryItem(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"total":   total,
		"limit":   limit,
		"offset":  offset,
		"history": items,
	})
}

// Get returns one record owned by the current user.
func (h *HistoryHandler) Get(c *gin.Context) {
	row, ok := h.owned(c, "view")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toHistoryItem(row))
}

// Delete removes one record owned by the current user.
func (h *HistoryHandler) Delete(c *gin.Context) {
	row, ok := h.owned(c, "delete")
	if !ok {
		return
	}
	if errDelete := h.history.Delete(c.Request.Context(), row.ID); errDelete != nil {
		if errors.Is(errDelete, store.ErrNotFound) {
			apierror.Respond(c, apierror.NotFound("Analysis not found"), h.debug)
			return
		}
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "Error deleting analysis", errDelete), h.debug)
		return
	}
	log.WithFields(log.Fields{"user_id": row.UserID, "analysis_id": row.ID, "action": "delete_history"}).Info("user action")
	c.JSON(http.StatusOK, gin.H{"message": "Analysis deleted"})
}

// owned loads the :id record and checks it belongs to the current user.
func (h *HistoryHandler) owned(c *gin.Context, verb string) (*models.Analysis, bool) {
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || id == 0 {
		apierror.Respond(c, apierror.Validation("Invalid id"), h.debug)
		return nil, false
	}
	row, errGet := h.history.Get(c.Request.Context(), id)
	if errors.Is(errGet, store.ErrNotFound) {
		apierror.Respond(c, apierror.NotFound("Analysis not found"), h.debug)
		return nil, false
	}
	if errGet != nil {
		apierror.Respond(c, apierror.Wrap(apierror.KindInternal, "Error loading analysis", errGet), h.debug)
		return nil, false
	}
	if user := auth.CurrentUser(c); user == nil || row.UserID != user.ID {
		apierror.Respond(c, apierror.Forbidden("You do not have permission to "+verb+" this analysis"), h.debug)
		return nil, false
	}
	return row, true
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
