package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/secondbrain-backend/internal/http/response"
	"github.com/yungbote/secondbrain-backend/internal/services"
)

type UserHandler struct {
	users services.UserService
	// inboxDomain builds the forwarding address shown to the user.
	inboxDomain string
}

func NewUserHandler(users services.UserService, inboxDomain string) *UserHandler {
	return &UserHandler{users: users, inboxDomain: inboxDomain}
}

func (h *UserHandler) inboxAddress(token string) string {
	if h.inboxDomain == "" || token == "" {
		return ""
	}
	return "save+" + token + "@" + h.inboxDomain
}

// GET /api/me
func (h *UserHandler) GetMe(c *gin.Context) {
	me, err := h.users.GetMe(requestCtx(c))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"me": me, "inbox_address": h.inboxAddress(me.User.InboxToken)})
}

// PATCH /api/me
// body: { "timezone": "Europe/Berlin" }
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req services.UpdateMeInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	u, err := h.users.UpdateMe(requestCtx(c), req)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"user": u})
}

// POST /api/me/inbox-token
func (h *UserHandler) RotateInboxToken(c *gin.Context) {
	u, err := h.users.RotateInboxToken(requestCtx(c))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"user": u, "inbox_address": h.inboxAddress(u.InboxToken)})
}

// GET /api/me/badges
func (h *UserHandler) Badges(c *gin.Context) {
	board, err := h.users.Badges(requestCtx(c))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, board)
}

// GET /api/me/xp?limit=
func (h *UserHandler) RecentXP(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 20)
	if !ok {
		return
	}
	events, err := h.users.RecentXP(requestCtx(c), limit)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"events": events})
}
