package services

import (
	"context"
	"crypto/rsa"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/secondbrain-backend/internal/data/repos"
	types "github.com/yungbote/secondbrain-backend/internal/domain"
	"github.com/yungbote/secondbrain-backend/internal/pkg/ctxutil"
	"github.com/yungbote/secondbrain-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/secondbrain-backend/internal/pkg/errors"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
)

// ClerkClaims is the subset of a Clerk session token this service reads.
type ClerkClaims struct {
	SessionID       string `json:"sid,omitempty"`
	AuthorizedParty string `json:"azp,omitempty"`
	Email           string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type AuthConfig struct {
	// PublicKeyPEM is the instance's JWT verification key. Escaped "\n"
	// sequences from single-line env values are accepted.
	PublicKeyPEM      string
	AuthorizedParties []string
	Leeway            time.Duration
}

type AuthService interface {
	// Authenticate verifies a session token and returns ctx carrying the
	// caller's RequestData. Unknown Clerk users are created on first sight.
	Authenticate(ctx context.Context, tokenString string) (context.Context, *types.User, error)
}

type authService struct {
	log     *logger.Logger
	users   repos.UserRepo
	key     *rsa.PublicKey
	parties []string
	parser  *jwt.Parser
}

func NewAuthService(baseLog *logger.Logger, users repos.UserRepo, cfg AuthConfig) (AuthService, error) {
	pemText := strings.ReplaceAll(strings.TrimSpace(cfg.PublicKeyPEM), `\n`, "\n")
	if pemText == "" {
		return nil, fmt.Errorf("clerk public key is empty")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemText))
	if err != nil {
		return nil, fmt.Errorf("parse clerk public key: %w", err)
	}
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = 5 * time.Second
	}
	var parties []string
	for _, p := range cfg.AuthorizedParties {
		if p = strings.TrimRight(strings.TrimSpace(p), "/"); p != "" {
			parties = append(parties, p)
		}
	}
	return &authService{
		log:     baseLog.With("service", "AuthService"),
		users:   users,
		key:     key,
		parties: parties,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(leeway),
		),
	}, nil
}

func (s *authService) verify(tokenString string) (*ClerkClaims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, fmt.Errorf("missing session token: %w", apperr.ErrUnauthorized)
	}
	claims := &ClerkClaims{}
	tok, err := s.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	})
	if err != nil || tok == nil || !tok.Valid {
		return nil, fmt.Errorf("invalid session token (%v): %w", err, apperr.ErrUnauthorized)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("missing sub: %w", apperr.ErrUnauthorized)
	}
	if len(s.parties) > 0 && claims.AuthorizedParty != "" &&
		!slices.Contains(s.parties, strings.TrimRight(claims.AuthorizedParty, "/")) {
		return nil, fmt.Errorf("azp %q not authorized: %w", claims.AuthorizedParty, apperr.ErrUnauthorized)
	}
	return claims, nil
}

func (s *authService) Authenticate(ctx context.Context, tokenString string) (context.Context, *types.User, error) {
	claims, err := s.verify(tokenString)
	if err != nil {
		return ctx, nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	u, err := s.users.GetByClerkID(dbc, claims.Subject)
	if err != nil {
		return ctx, nil, fmt.Errorf("load user: %w", err)
	}
	if u == nil {
		// Webhooks can lag the first request after sign-up.
		u, err = s.users.UpsertByClerkID(dbc, &types.User{
			ClerkUserID: claims.Subject,
			Email:       strings.ToLower(strings.TrimSpace(claims.Email)),
		})
		if err != nil {
			return ctx, nil, fmt.Errorf("create user: %w", err)
		}
		s.log.Info("user created from session", "user_id", u.ID, "clerk_user_id", claims.Subject)
	}
	ctx = ctxutil.WithRequestData(ctx, &ctxutil.RequestData{
		UserID:      u.ID,
		ClerkUserID: claims.Subject,
		SessionID:   claims.SessionID,
		TokenString: tokenString,
	})
	return ctx, u, nil
}
