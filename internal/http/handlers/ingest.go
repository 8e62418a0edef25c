package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/interteks/loomtrack/internal/accounting"
	"github.com/interteks/loomtrack/internal/http/response"
	"github.com/interteks/loomtrack/internal/services"
)

type IngestHandler struct {
	ingest services.IngestService
}

func NewIngestHandler(ingest services.IngestService) *IngestHandler {
	return &IngestHandler{ingest: ingest}
}

// POST /ingest
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req accounting.Report
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}
	c.Set("loom_id", req.LoomID)
	res, err := h.ingest.Ingest(c.Request.Context(), services.SourceHTTP, req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"loomId":      res.LoomID,
		"activeState": res.ActiveState,
		"cumulative":  res.Cumulative,
		"delta":       res.Delta,
	})
}
