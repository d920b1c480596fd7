package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/shipnest/apiserver/internal/auth"
	"github.com/shipnest/apiserver/types"
	"go.uber.org/zap"
)

type contextKey string

const contextUserKey contextKey = "user"

// IdentityResolver resolves the caller of a request.
type IdentityResolver interface {
	Resolve(r *http.Request) (auth.Identity, error)
}

// RequireAuth rejects requests whose bearer token does not resolve to an
// existing user and attaches the user to the request context otherwise.
func RequireAuth(resolver IdentityResolver, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := resolver.Resolve(r)
			if err != nil {
				logger.Error("resolve identity", zap.Error(err))
				sendErrors(w, http.StatusInternalServerError, err.Error(), "Internal Server Error")
				return
			}

			switch identity.Kind {
			case auth.IdentityFound:
				ctx := context.WithValue(r.Context(), contextUserKey, identity.User)
				next.ServeHTTP(w, r.WithContext(ctx))
			case auth.IdentityNotFound:
				sendErrors(w, http.StatusUnauthorized, nil, "User is not found for this token")
			default:
				message := "Invalid Token"
				if errors.Is(identity.Reason, auth.ErrTokenExpired) {
					message = "Token is expired"
				}
				sendErrors(w, http.StatusUnauthorized, nil, message)
			}
		})
	}
}

func userFromContext(ctx context.Context) (types.User, error) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	if !ok || user.ID == "" {
		return types.User{}, errors.New("missing user")
	}
	return user, nil
}
