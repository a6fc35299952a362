package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/secondbrain-backend/internal/http/response"
	"github.com/yungbote/secondbrain-backend/internal/services"
)

type TagHandler struct {
	tags services.TagService
}

func NewTagHandler(tags services.TagService) *TagHandler {
	return &TagHandler{tags: tags}
}

// GET /api/tags
func (h *TagHandler) ListTags(c *gin.Context) {
	tags, err := h.tags.List(requestCtx(c))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"tags": tags})
}

// PATCH /api/tags/:id
// body: { "name": "..." }
func (h *TagHandler) RenameTag(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	tag, err := h.tags.Rename(requestCtx(c), id, req.Name)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"tag": tag})
}

// DELETE /api/tags/:id
func (h *TagHandler) DeleteTag(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := h.tags.Delete(requestCtx(c), id); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
