package middleware

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/intervue/pkg/models"
)

type contextKey string

const userKey contextKey = "user"

// User is the authenticated caller.
type User struct {
	ID   string
	Role models.AccountRole
}

// WithUser returns ctx carrying u.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func GetUser(r *http.Request) (User, bool) {
	u, ok := r.Context().Value(userKey).(User)
	return u, ok
}
