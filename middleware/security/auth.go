package security

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"tripchat/tools/errs"
)

// Context keys downstream handlers read the authenticated identity from.
const (
	CtxUserIDKey = "authUserId"
	CtxRoleKey   = "authRole"
)

type Claims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

var secret []byte

// SetSecret installs the verification key; call once from main().
func SetSecret(s []byte) { secret = s }

// ParseToken validates a session token and returns its claims. Issuance is
// the marketplace auth service's job, not ours.
func ParseToken(token string) (*Claims, error) {
	if token == "" {
		return nil, errs.ErrTokenInvalid.Wrap()
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errs.ErrTokenInvalid.WrapMsg("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		if strings.Contains(err.Error(), jwt.ErrTokenExpired.Error()) {
			return nil, errs.ErrTokenExpired.Wrap()
		}
		return nil, errs.ErrTokenInvalid.WrapMsg(err.Error())
	}
	if !parsed.Valid || claims.UserID == "" {
		return nil, errs.ErrTokenInvalid.Wrap()
	}
	return claims, nil
}

// IssueToken exists for local development and tests.
func IssueToken(userID, role string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Middleware resolves the caller's identity from the Authorization header
// (or a token query parameter for websocket upgrades) into the gin context.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		claims, err := ParseToken(token)
		if err != nil {
			code, _ := errs.CodeOf(err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, code)
			return
		}
		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxRoleKey, claims.Role)
		c.Next()
	}
}

// BearerToken pulls the session token off the request.
func BearerToken(c *gin.Context) string {
	if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
		if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return strings.TrimSpace(authz[len("bearer "):])
		}
		return authz
	}
	return strings.TrimSpace(c.Query("token"))
}

// Identity reads the authenticated identity set by Middleware.
func Identity(c *gin.Context) (userID, role string) {
	return c.GetString(CtxUserIDKey), c.GetString(CtxRoleKey)
}
