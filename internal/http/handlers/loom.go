package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/interteks/loomtrack/internal/http/response"
	"github.com/interteks/loomtrack/internal/services"
)

type LoomHandler struct {
	meta services.MetaService
}

func NewLoomHandler(meta services.MetaService) *LoomHandler {
	return &LoomHandler{meta: meta}
}

// GET /api/looms
func (h *LoomHandler) List(c *gin.Context) {
	items, err := h.meta.List(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"items": items})
}

// POST /api/looms
func (h *LoomHandler) Upsert(c *gin.Context) {
	var req services.MetaInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}
	c.Set("loom_id", req.LoomID)
	meta, err := h.meta.Upsert(c.Request.Context(), req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"loomId": meta.LoomID, "meta": meta})
}

// POST /api/looms/cut-length
func (h *LoomHandler) CutLength(c *gin.Context) {
	var req services.CutLengthInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}
	c.Set("loom_id", req.LoomID)
	res, err := h.meta.CutLength(c.Request.Context(), req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"loomId":          res.LoomID,
		"orderedLength":   res.OrderedLength,
		"deliveredLength": res.DeliveredLength,
		"remainingLength": res.RemainingLength,
		"mode":            res.Mode,
	})
}
