package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/secondbrain-backend/internal/http/response"
	"github.com/yungbote/secondbrain-backend/internal/pkg/dbctx"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
	"github.com/yungbote/secondbrain-backend/internal/services"
)

const maxInboundBytes = 10 << 20

type EmailWebhookHandler struct {
	log    *logger.Logger
	ingest services.EmailIngestService
	secret string
}

// NewEmailWebhookHandler rejects every request when secret is empty.
func NewEmailWebhookHandler(log *logger.Logger, ingest services.EmailIngestService, secret string) *EmailWebhookHandler {
	return &EmailWebhookHandler{
		log:    log.With("handler", "EmailWebhookHandler"),
		ingest: ingest,
		secret: secret,
	}
}

// POST /api/webhooks/email?token=
// Accepts inbound-parse multipart forms (from, to, subject, text, html,
// headers) or a JSON InboundEmail.
func (h *EmailWebhookHandler) Receive(c *gin.Context) {
	token := c.Query("token")
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) != 1 {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("invalid webhook token"))
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxInboundBytes)

	msg, err := bindInbound(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.ingest.Ingest(dbctx.Context{Ctx: c.Request.Context()}, msg)
	if err != nil {
		h.log.Warn("inbound e-mail rejected", "from", msg.From, "error", err)
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, res)
}

func bindInbound(c *gin.Context) (services.InboundEmail, error) {
	var msg services.InboundEmail
	if strings.HasPrefix(c.ContentType(), "application/json") {
		if err := c.ShouldBindJSON(&msg); err != nil {
			return msg, err
		}
		return msg, nil
	}
	if err := c.Request.ParseMultipartForm(maxInboundBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return msg, err
	}
	if c.Request.PostForm == nil {
		if err := c.Request.ParseForm(); err != nil {
			return msg, err
		}
	}
	form := c.Request.PostForm
	msg.From = form.Get("from")
	msg.Subject = form.Get("subject")
	msg.Text = form.Get("text")
	msg.HTML = form.Get("html")
	msg.MessageID = form.Get("message_id")
	for _, to := range form["to"] {
		if to = strings.TrimSpace(to); to != "" {
			msg.To = append(msg.To, to)
		}
	}
	if raw := form.Get("headers"); raw != "" {
		applyRawHeaders(&msg, raw)
	}
	if msg.From == "" && len(msg.To) == 0 {
		return msg, errors.New("missing from and to")
	}
	return msg, nil
}

// applyRawHeaders fills gaps from the provider's raw header block.
func applyRawHeaders(msg *services.InboundEmail, raw string) {
	r := strings.NewReader(strings.TrimRight(raw, "\r\n") + "\r\n\r\n")
	m, err := mail.ReadMessage(r)
	if err != nil {
		return
	}
	if msg.MessageID == "" {
		msg.MessageID = m.Header.Get("Message-Id")
	}
	if msg.From == "" {
		msg.From = m.Header.Get("From")
	}
	if msg.Subject == "" {
		msg.Subject = m.Header.Get("Subject")
	}
	if len(msg.To) == 0 {
		if to := m.Header.Get("To"); to != "" {
			msg.To = []string{to}
		}
	}
}
