package handlers

import (
	"net/http"

	"github.com/demystify-app/demystify-api/internal/analysis"
	"github.com/demystify-app/demystify-api/internal/apierror"
	"github.com/demystify-app/demystify-api/internal/auth"
	"github.com/gin-gonic/gin"
)

// AnalyzeHandler serves the task breakdown endpoint.
type AnalyzeHandler struct {
	svc   *analysis.Service
	debug bool
}

// NewAnalyzeHandler constructs an AnalyzeHandler.
func NewAnalyzeHandler(svc *analysis.Service, debug bool) *AnalyzeHandler {
	return &AnalyzeHandler{svc: svc, debug: debug}
}

type analyzeRequest struct {
	Text string `json:"text"`
}

// Analyze breaks the submitted text into steps, ambiguities and questions.
func (h *AnalyzeHandler) Analyze(c *gin.Context) {
	var body analyzeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apierror.Respond(c, apierror.Validation("Invalid JSON body").WithDetail(errBind.Error()), h.debug)
		return
	}
	var userID uint64
	if user := auth.CurrentUser(c); user != nil {
		userID = user.ID
	}
	resp, errAnalyze := h.svc.Analyze(c.Request.Context(), userID, body.Text)
	if errAnalyze != nil {
		apierror.Respond(c, errAnalyze, h.debug)
		return
	}
	c.JSON(http.StatusOK, resp)
}
