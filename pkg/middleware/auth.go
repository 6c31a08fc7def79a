package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-canvas-live/pkg/jwt"
	"github.com/weiawesome/wes-canvas-live/pkg/log"
	"github.com/weiawesome/wes-canvas-live/pkg/response"
)

const (
	UserIDKey      = log.FieldUserID
	UsernameKey    = log.FieldUsername
	DisplayNameKey = "display_name"
	AuthHeaderKey  = "Authorization"
	BearerPrefix   = "Bearer "
)

// TokenValidator verifies a room credential.
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// AuthMiddleware guards content writes with the same credential the
// realtime channel accepts on JoinRoom.
type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// RequireAuth rejects the request with 401 unless it carries a valid
// bearer token. The writer's identity is stored on the gin context and
// on the request logger.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, problem := bearerToken(c.GetHeader(AuthHeaderKey))
		if problem != "" {
			response.Unauthorized(c, problem)
			return
		}

		claims, err := m.validator.ValidateToken(token)
		if err != nil {
			response.Unauthorized(c, err.Error())
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(UsernameKey, claims.Username)
		c.Set(DisplayNameKey, claims.Name())

		c.Request = c.Request.WithContext(log.WithUser(c.Request.Context(), claims.UserID))

		c.Next()
	}
}

// bearerToken splits the Authorization header. The scheme is matched
// case-insensitively.
func bearerToken(header string) (string, string) {
	if header == "" {
		return "", "missing authorization header"
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, strings.TrimSpace(BearerPrefix)) {
		return "", "invalid authorization format"
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", "empty bearer token"
	}
	return token, ""
}

func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

func GetUsername(c *gin.Context) string {
	return c.GetString(UsernameKey)
}
