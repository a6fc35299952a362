package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	svix "github.com/svix/svix-webhooks/go"

	"github.com/yungbote/secondbrain-backend/internal/data/repos"
	types "github.com/yungbote/secondbrain-backend/internal/domain"
	"github.com/yungbote/secondbrain-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/secondbrain-backend/internal/pkg/errors"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
)

var ErrBadSignature = errors.New("webhook signature mismatch")

// SvixHeaders carries the svix-id, svix-timestamp and svix-signature values.
type SvixHeaders struct {
	ID        string
	Timestamp string
	Signature string
}

type ClerkEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type clerkEmail struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

type clerkUser struct {
	ID                    string       `json:"id"`
	Username              *string      `json:"username"`
	FirstName             *string      `json:"first_name"`
	LastName              *string      `json:"last_name"`
	ImageURL              string       `json:"image_url"`
	PrimaryEmailAddressID string       `json:"primary_email_address_id"`
	EmailAddresses        []clerkEmail `json:"email_addresses"`
	Deleted               bool         `json:"deleted"`
}

// primaryEmail falls back to the first address when the primary id is unset.
func (u clerkUser) primaryEmail() string {
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailAddressID {
			return strings.ToLower(strings.TrimSpace(e.EmailAddress))
		}
	}
	if len(u.EmailAddresses) > 0 {
		return strings.ToLower(strings.TrimSpace(u.EmailAddresses[0].EmailAddress))
	}
	return ""
}

type ClerkSyncResult struct {
	Type    string      `json:"type"`
	Handled bool        `json:"handled"`
	User    *types.User `json:"user,omitempty"`
}

type ClerkSyncService interface {
	Verify(h SvixHeaders, body []byte) error
	Handle(ctx context.Context, body []byte) (*ClerkSyncResult, error)
}

type clerkSyncService struct {
	log       *logger.Logger
	users     repos.UserRepo
	hook      *svix.Webhook
	tolerance time.Duration
	now       func() time.Time
}

// NewClerkSyncService takes the endpoint's "whsec_" signing secret.
func NewClerkSyncService(baseLog *logger.Logger, users repos.UserRepo, secret string, tolerance time.Duration) (ClerkSyncService, error) {
	secret = strings.TrimSpace(secret)
	if strings.TrimPrefix(secret, "whsec_") == "" {
		return nil, fmt.Errorf("clerk webhook secret is empty")
	}
	hook, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("clerk webhook secret: %w", err)
	}
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &clerkSyncService{
		log:       baseLog.With("service", "ClerkSyncService"),
		users:     users,
		hook:      hook,
		tolerance: tolerance,
		now:       time.Now,
	}, nil
}

// Verify checks the timestamp against the configured tolerance, then the
// signatures. The header may list several during secret rotation.
func (s *clerkSyncService) Verify(h SvixHeaders, body []byte) error {
	if h.ID == "" || h.Timestamp == "" || h.Signature == "" {
		return fmt.Errorf("missing svix headers: %w", ErrBadSignature)
	}
	sec, err := strconv.ParseInt(h.Timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("bad svix timestamp: %w", ErrBadSignature)
	}
	skew := s.now().Sub(time.Unix(sec, 0))
	if skew > s.tolerance || skew < -s.tolerance {
		return fmt.Errorf("svix timestamp outside tolerance: %w", ErrBadSignature)
	}
	hdr := http.Header{}
	hdr.Set("svix-id", h.ID)
	hdr.Set("svix-timestamp", h.Timestamp)
	hdr.Set("svix-signature", h.Signature)
	if err := s.hook.VerifyIgnoringTimestamp(body, hdr); err != nil {
		return fmt.Errorf("%v: %w", err, ErrBadSignature)
	}
	return nil
}

func (s *clerkSyncService) Handle(ctx context.Context, body []byte) (*ClerkSyncResult, error) {
	var ev ClerkEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode clerk event: %w", apperr.ErrInvalidArgument)
	}
	var cu clerkUser
	if len(ev.Data) > 0 {
		if err := json.Unmarshal(ev.Data, &cu); err != nil {
			return nil, fmt.Errorf("decode clerk user: %w", apperr.ErrInvalidArgument)
		}
	}
	out := &ClerkSyncResult{Type: ev.Type}
	dbc := dbctx.Context{Ctx: ctx}

	switch ev.Type {
	case "user.created", "user.updated":
		if strings.TrimSpace(cu.ID) == "" {
			return nil, fmt.Errorf("clerk user id missing: %w", apperr.ErrInvalidArgument)
		}
		u, err := s.users.UpsertByClerkID(dbc, &types.User{
			ClerkUserID: cu.ID,
			Email:       cu.primaryEmail(),
			Username:    deref(cu.Username),
			FirstName:   deref(cu.FirstName),
			LastName:    deref(cu.LastName),
			ImageURL:    cu.ImageURL,
		})
		if err != nil {
			return nil, fmt.Errorf("upsert user: %w", err)
		}
		out.Handled = true
		out.User = u
		s.log.Info("clerk user synced", "event", ev.Type, "clerk_user_id", cu.ID)
	case "user.deleted":
		if strings.TrimSpace(cu.ID) == "" {
			return nil, fmt.Errorf("clerk user id missing: %w", apperr.ErrInvalidArgument)
		}
		deleted, err := s.users.SoftDeleteByClerkID(dbc, cu.ID)
		if err != nil {
			return nil, fmt.Errorf("delete user: %w", err)
		}
		out.Handled = deleted
		s.log.Info("clerk user deleted", "clerk_user_id", cu.ID, "found", deleted)
	default:
		s.log.Debug("clerk event ignored", "event", ev.Type)
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
