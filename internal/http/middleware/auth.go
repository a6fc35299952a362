package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/secondbrain-backend/internal/http/response"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
	"github.com/yungbote/secondbrain-backend/internal/services"
)

// sessionCookie is set by Clerk's frontend SDK on same-site deployments.
const sessionCookie = "__session"

type AuthMiddleware struct {
	log         *logger.Logger
	authService services.AuthService
}

func NewAuthMiddleware(log *logger.Logger, authService services.AuthService) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("middleware", "AuthMiddleware"), authService: authService}
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", errMissingToken)
			return
		}
		ctx, u, err := am.authService.Authenticate(c.Request.Context(), tokenString)
		if err != nil {
			am.log.Debug("session rejected", "path", c.Request.URL.Path, "error", err)
			response.RespondServiceError(c, err)
			return
		}
		c.Request = c.Request.WithContext(ctx)
		c.Set("user_id", u.ID.String())
		c.Next()
	}
}

type mwError string

func (e mwError) Error() string { return string(e) }

const errMissingToken = mwError("missing or invalid token")

// extractToken prefers the Authorization header, then the Clerk session
// cookie, then ?token= for EventSource clients that cannot set headers.
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	if v, err := c.Cookie(sessionCookie); err == nil && v != "" {
		return v
	}
	return c.Query("token")
}
