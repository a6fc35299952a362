package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/secondbrain-backend/internal/http/response"
	"github.com/yungbote/secondbrain-backend/internal/services"
)

type ItemHandler struct {
	items services.ItemService
}

func NewItemHandler(items services.ItemService) *ItemHandler {
	return &ItemHandler{items: items}
}

// POST /api/items
// body: { "url": "...", "title": "...", "note": "...", "tags": ["..."] }
func (h *ItemHandler) CreateItem(c *gin.Context) {
	var req services.CreateItemInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.items.Create(requestCtx(c), req)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	if res.Existing {
		response.RespondOK(c, res)
		return
	}
	response.RespondCreated(c, res)
}

// GET /api/items?status=&tag=&category=&source=&favorite=&archived=&q=&sort=&limit=&offset=
func (h *ItemHandler) ListItems(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}
	favorite, ok := queryBool(c, "favorite")
	if !ok {
		return
	}
	archived, ok := queryBool(c, "archived")
	if !ok {
		return
	}
	page, err := h.items.List(requestCtx(c), services.ListItemsInput{
		Status:   c.Query("status"),
		Tag:      c.Query("tag"),
		Category: c.Query("category"),
		Source:   c.Query("source"),
		Favorite: favorite,
		Archived: archived,
		Query:    c.Query("q"),
		Sort:     c.Query("sort"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, page)
}

// GET /api/items/:id
func (h *ItemHandler) GetItem(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	item, err := h.items.Get(requestCtx(c), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"item": item})
}

// PATCH /api/items/:id
func (h *ItemHandler) UpdateItem(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req services.UpdateItemInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	item, err := h.items.Update(requestCtx(c), id, req)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"item": item})
}

// DELETE /api/items/:id
func (h *ItemHandler) DeleteItem(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := h.items.Delete(requestCtx(c), id); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/items/:id/reprocess
func (h *ItemHandler) ReprocessItem(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	res, err := h.items.Reprocess(requestCtx(c), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

// POST /api/items/:id/review
func (h *ItemHandler) ReviewItem(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	res, err := h.items.Review(requestCtx(c), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// GET /api/review/queue?limit=
func (h *ItemHandler) ReviewQueue(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 20)
	if !ok {
		return
	}
	items, err := h.items.ReviewQueue(requestCtx(c), limit)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"items": items})
}
