package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kiranshivaraju/intervue/internal/api/response"
	"github.com/kiranshivaraju/intervue/internal/logger"
	"github.com/kiranshivaraju/intervue/pkg/models"
	"go.uber.org/zap"
)

// Claims are the access token claims. Subject is the user id.
type Claims struct {
	Role models.AccountRole `json:"role"`
	jwt.RegisteredClaims
}

// Auth validates HS256 access tokens and checks account roles.
type Auth struct {
	secret []byte
	parser *jwt.Parser
}

// NewAuth creates a new Auth middleware.
func NewAuth(secret string) *Auth {
	return &Auth{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// IssueToken signs an access token for userID.
func IssueToken(secret, userID string, role models.AccountRole, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Verify parses a raw token and returns the user it was issued to.
func (a *Auth) Verify(raw string) (User, error) {
	var claims Claims
	_, err := a.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return User{}, err
	}
	if claims.Subject == "" {
		return User{}, errors.New("token has no subject")
	}
	if !claims.Role.Valid() {
		return User{}, fmt.Errorf("unknown account role %q", claims.Role)
	}
	return User{ID: claims.Subject, Role: claims.Role}, nil
}

// Authenticate validates the Bearer token and sets the user in the request
// context. GET requests may pass the token as access_token instead, since
// browsers cannot set headers on a websocket upgrade.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractBearerToken(r)
		if raw == "" && r.Method == http.MethodGet {
			raw = r.URL.Query().Get("access_token")
		}
		if raw == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		user, err := a.Verify(raw)
		if err != nil {
			msg := "Invalid access token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "Access token expired"
			}
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", msg, nil)
			return
		}

		ctx := WithUser(r.Context(), user)
		ctx = logger.Into(ctx, logger.With(ctx).With(zap.String("user_id", user.ID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole returns middleware that only admits users with the given
// account role.
func (a *Auth) RequireRole(role models.AccountRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if u, ok := GetUser(r); ok && u.Role == role {
				next.ServeHTTP(w, r)
				return
			}
			response.Error(w, http.StatusForbidden,
				"FORBIDDEN", fmt.Sprintf("Only %s accounts may do this", role), nil)
		})
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
