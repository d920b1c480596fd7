package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shipnest/apiserver/internal/auth"
	"github.com/shipnest/apiserver/internal/services"
	"github.com/shipnest/apiserver/internal/storage"
	"github.com/shipnest/apiserver/internal/store/storetest"
	"github.com/shipnest/apiserver/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	router    *chi.Mux
	users     *storetest.Users
	addresses *storetest.Addresses
	tokens    *auth.TokenService
}

func newFixture(t *testing.T, images *storage.Storage) *fixture {
	t.Helper()

	users := storetest.NewUsers()
	addresses := storetest.NewAddresses()
	tokens, err := auth.NewTokenService("test-secret", time.Hour)
	require.NoError(t, err)

	logger := zap.NewNop()
	userService := services.NewUserService(users, auth.NewHasher(bcrypt.MinCost), nil, images, logger)
	addressService := services.NewAddressService(addresses, nil)
	authMiddleware := RequireAuth(auth.NewResolver(tokens, users), logger)

	router := chi.NewRouter()
	router.Route("/users", func(r chi.Router) {
		UserRouter(r, NewUserHandler(userService, tokens, logger), authMiddleware, nil)
	})
	router.Route("/addresses", func(r chi.Router) {
		AddressRouter(r, NewAddressHandler(addressService, logger), authMiddleware)
	})

	return &fixture{router: router, users: users, addresses: addresses, tokens: tokens}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// register creates a user through the API and returns it with a valid token.
func (f *fixture) register(t *testing.T, username, email, password string) (types.User, string) {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/users/register", "", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var env struct {
		Data types.PublicUser `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))

	user, err := f.users.GetByID(t.Context(), env.Data.ID)
	require.NoError(t, err)
	token, err := f.tokens.Issue(user)
	require.NoError(t, err)
	return user, token
}

type envelope struct {
	Status  int             `json:"status"`
	Data    json.RawMessage `json:"data"`
	Errors  json.RawMessage `json:"errors"`
	Message string          `json:"message"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	require.Equal(t, rec.Code, env.Status)
	return env
}
