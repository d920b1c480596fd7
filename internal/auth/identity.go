package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/shipnest/apiserver/internal/store"
	"github.com/shipnest/apiserver/types"
)

// IdentityKind tells which case of an Identity is populated.
type IdentityKind int

const (
	// IdentityInvalid means the credential was missing, malformed, forged or expired.
	IdentityInvalid IdentityKind = iota
	// IdentityNotFound means the credential was valid but its user no longer exists.
	IdentityNotFound
	// IdentityFound means the credential resolved to a live user.
	IdentityFound
)

func (k IdentityKind) String() string {
	switch k {
	case IdentityFound:
		return "found"
	case IdentityNotFound:
		return "not_found"
	default:
		return "invalid"
	}
}

// Identity is the result of resolving a request's credential.
// User is set only when Kind is IdentityFound; Reason only when it is not.
type Identity struct {
	Kind   IdentityKind
	User   types.User
	Reason error
}

// UserLookup loads a user by id.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (types.User, error)
}

// Resolver turns bearer credentials into an Identity.
type Resolver struct {
	tokens *TokenService
	users  UserLookup
}

func NewResolver(tokens *TokenService, users UserLookup) *Resolver {
	return &Resolver{tokens: tokens, users: users}
}

// Resolve verifies the bearer token on r and loads its user. A non-nil error
// is returned only for store failures; every credential problem is an
// IdentityInvalid result.
func (r *Resolver) Resolve(req *http.Request) (Identity, error) {
	tokenString, err := BearerToken(req)
	if err != nil {
		return Identity{Kind: IdentityInvalid, Reason: err}, nil
	}
	return r.ResolveToken(req.Context(), tokenString)
}

// ResolveToken is Resolve for an already extracted token.
func (r *Resolver) ResolveToken(ctx context.Context, tokenString string) (Identity, error) {
	claims, err := r.tokens.Verify(tokenString)
	if err != nil {
		return Identity{Kind: IdentityInvalid, Reason: err}, nil
	}

	user, err := r.users.GetByID(ctx, claims.User.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Identity{Kind: IdentityNotFound, Reason: err}, nil
		}
		return Identity{}, err
	}
	return Identity{Kind: IdentityFound, User: user}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
