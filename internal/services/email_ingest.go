package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/secondbrain-backend/internal/data/repos"
	types "github.com/yungbote/secondbrain-backend/internal/domain"
	"github.com/yungbote/secondbrain-backend/internal/gamification"
	"github.com/yungbote/secondbrain-backend/internal/ingestion/extractor"
	"github.com/yungbote/secondbrain-backend/internal/ingestion/source"
	"github.com/yungbote/secondbrain-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/secondbrain-backend/internal/pkg/errors"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
)

const maxEmailURLs = 10

// InboundEmail is the provider-neutral shape of a forwarded message.
type InboundEmail struct {
	MessageID string   `json:"message_id"`
	From      string   `json:"from"`
	To        []string `json:"to"`
	Subject   string   `json:"subject"`
	Text      string   `json:"text"`
	HTML      string   `json:"html"`
}

type EmailIngestResult struct {
	UserID     uuid.UUID     `json:"user_id"`
	Items      []*types.Item `json:"items"`
	Created    int           `json:"created"`
	Duplicates int           `json:"duplicates"`
	Skipped    []string      `json:"skipped,omitempty"`
	XP         *AwardResult  `json:"xp,omitempty"`
}

type EmailIngestService interface {
	Ingest(dbc dbctx.Context, msg InboundEmail) (*EmailIngestResult, error)
}

type emailIngestService struct {
	log   *logger.Logger
	users repos.UserRepo
	items ItemService
	game  GamificationService
}

func NewEmailIngestService(baseLog *logger.Logger, users repos.UserRepo, items ItemService, game GamificationService) EmailIngestService {
	return &emailIngestService{
		log:   baseLog.With("service", "EmailIngestService"),
		users: users,
		items: items,
		game:  game,
	}
}

func (s *emailIngestService) Ingest(dbc dbctx.Context, msg InboundEmail) (*EmailIngestResult, error) {
	u, err := s.resolveUser(dbc, msg)
	if err != nil {
		return nil, err
	}
	out := &EmailIngestResult{UserID: u.ID, Items: []*types.Item{}}

	body := strings.TrimSpace(msg.Text)
	if body == "" && strings.TrimSpace(msg.HTML) != "" {
		if md, err := extractor.Extract("", []byte(msg.HTML), 0); err == nil {
			body = md.Text
		}
	}
	urls := source.ExtractURLs(msg.Text)
	if len(urls) == 0 && msg.HTML != "" {
		urls = source.ExtractURLs(msg.HTML)
	}
	if len(urls) > maxEmailURLs {
		s.log.Info("email url cap reached", "user_id", u.ID, "found", len(urls), "kept", maxEmailURLs)
		urls = urls[:maxEmailURLs]
	}

	var inputs []CreateItemInput
	if len(urls) == 0 {
		if body == "" {
			return nil, fmt.Errorf("email has no links or text: %w", apperr.ErrInvalidArgument)
		}
		title := strings.TrimSpace(msg.Subject)
		if title == "" {
			title = "(no subject)"
		}
		inputs = append(inputs, CreateItemInput{Title: title, Origin: types.OriginEmail, Content: body})
	} else {
		for _, raw := range urls {
			inputs = append(inputs, CreateItemInput{URL: raw, Origin: types.OriginEmail})
		}
	}

	for _, in := range inputs {
		res, err := s.items.CreateForUser(dbc, u.ID, in)
		if err != nil {
			s.log.Warn("email item rejected", "user_id", u.ID, "url", in.URL, "error", err)
			out.Skipped = append(out.Skipped, in.URL)
			continue
		}
		out.Items = append(out.Items, res.Item)
		if res.Existing {
			out.Duplicates++
		} else {
			out.Created++
		}
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("no items saved from email: %w", apperr.ErrInvalidArgument)
	}

	if out.Created > 0 {
		xp, err := s.game.Award(dbc, u.ID, gamification.ReasonEmailImport, messageRef(msg), nil)
		if err != nil {
			s.log.Warn("email xp failed", "user_id", u.ID, "error", err)
		}
		out.XP = xp
	}
	s.log.Info("email ingested", "user_id", u.ID, "created", out.Created, "duplicates", out.Duplicates)
	return out, nil
}

// resolveUser tries the inbox token in each recipient first, then the sender.
func (s *emailIngestService) resolveUser(dbc dbctx.Context, msg InboundEmail) (*types.User, error) {
	for _, rcpt := range msg.To {
		for _, addr := range addresses(rcpt) {
			token := InboxToken(addr)
			if token == "" {
				continue
			}
			u, err := s.users.GetByInboxToken(dbc, token)
			if err != nil {
				return nil, fmt.Errorf("inbox token lookup: %w", err)
			}
			if u != nil {
				return u, nil
			}
		}
	}
	for _, addr := range addresses(msg.From) {
		u, err := s.users.GetByEmail(dbc, addr)
		if err != nil {
			return nil, fmt.Errorf("sender lookup: %w", err)
		}
		if u != nil {
			return u, nil
		}
	}
	return nil, fmt.Errorf("no user for recipient or sender: %w", apperr.ErrNotFound)
}

// InboxToken returns the token in "u+token@host" or "token@host".
func InboxToken(addr string) string {
	at := strings.LastIndexByte(addr, '@')
	if at <= 0 {
		return ""
	}
	local := strings.ToLower(strings.TrimSpace(addr[:at]))
	if i := strings.IndexByte(local, '+'); i >= 0 {
		local = local[i+1:]
	}
	return local
}

// addresses parses a header value into bare addresses. Unparseable input is
// returned as-is when it looks like an address.
func addresses(header string) []string {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}
	list, err := mail.ParseAddressList(header)
	if err != nil {
		if strings.Contains(header, "@") {
			return []string{strings.Trim(header, "<> ")}
		}
		return nil
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Address)
	}
	return out
}

func messageRef(msg InboundEmail) string {
	if id := strings.Trim(strings.TrimSpace(msg.MessageID), "<>"); id != "" {
		return id
	}
	sum := sha256.Sum256([]byte(msg.From + "\n" + msg.Subject + "\n" + msg.Text + "\n" + msg.HTML))
	return "sha256:" + hex.EncodeToString(sum[:16])
}
