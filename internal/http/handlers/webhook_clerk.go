package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/secondbrain-backend/internal/http/response"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
	"github.com/yungbote/secondbrain-backend/internal/services"
)

const maxWebhookBytes = 1 << 20

type ClerkWebhookHandler struct {
	log  *logger.Logger
	sync services.ClerkSyncService
}

func NewClerkWebhookHandler(log *logger.Logger, sync services.ClerkSyncService) *ClerkWebhookHandler {
	return &ClerkWebhookHandler{log: log.With("handler", "ClerkWebhookHandler"), sync: sync}
}

// POST /api/webhooks/clerk
func (h *ClerkWebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	headers := services.SvixHeaders{
		ID:        c.GetHeader("svix-id"),
		Timestamp: c.GetHeader("svix-timestamp"),
		Signature: c.GetHeader("svix-signature"),
	}
	if err := h.sync.Verify(headers, body); err != nil {
		if errors.Is(err, services.ErrBadSignature) {
			response.RespondError(c, http.StatusUnauthorized, "bad_signature", err)
			return
		}
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.sync.Handle(c.Request.Context(), body)
	if err != nil {
		h.log.Error("clerk webhook failed", "svix_id", headers.ID, "error", err)
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, res)
}
