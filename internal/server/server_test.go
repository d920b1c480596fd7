package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shipnest/apiserver/config"
	"github.com/shipnest/apiserver/internal/handlers"
	"github.com/shipnest/apiserver/internal/store/storetest"
	"github.com/shipnest/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu     sync.Mutex
	events []types.EventType
}

func (r *recorder) Publish(_ context.Context, event types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event.Type)
}

func testConfig() config.Config {
	return config.Config{
		APIPrefix:   "/api",
		CORSOrigins: []string{"*"},
		Auth: config.AuthConfig{
			JWTSecret:  "test-secret",
			TokenTTL:   time.Hour,
			BcryptCost: 4,
		},
	}
}

type client struct {
	t       *testing.T
	baseURL string
}

func (c client) call(method, path, token string, payload any, wantStatus int) json.RawMessage {
	c.t.Helper()

	var body bytes.Buffer
	if payload != nil {
		require.NoError(c.t, json.NewEncoder(&body).Encode(payload))
	}
	req, err := http.NewRequest(method, c.baseURL+path, &body)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var env struct {
		Status int             `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&env))
	require.Equal(c.t, wantStatus, resp.StatusCode)
	require.Equal(c.t, wantStatus, env.Status)
	return env.Data
}

func TestAccountLifecycle(t *testing.T) {
	published := &recorder{}
	router, err := NewRouter(testConfig(), Dependencies{
		Users:     storetest.NewUsers(),
		Addresses: storetest.NewAddresses(),
		Events:    published,
	}, zap.NewNop())
	require.NoError(t, err)

	ts := httptest.NewServer(router)
	defer ts.Close()
	c := client{t: t, baseURL: ts.URL + "/api"}

	var user types.PublicUser
	data := c.call(http.MethodPost, "/users/register", "", map[string]string{
		"username": "alice", "email": "a@x.com", "password": "pw1",
	}, http.StatusOK)
	require.NoError(t, json.Unmarshal(data, &user))
	assert.Equal(t, "alice", user.Username)

	var login struct {
		Token string `json:"token"`
	}
	data = c.call(http.MethodPost, "/users/login", "", map[string]string{
		"email": "a@x.com", "password": "pw1",
	}, http.StatusOK)
	require.NoError(t, json.Unmarshal(data, &login))
	require.NotEmpty(t, login.Token)

	var me types.PublicUser
	require.NoError(t, json.Unmarshal(c.call(http.MethodGet, "/users/me", login.Token, nil, http.StatusOK), &me))
	assert.Equal(t, user.ID, me.ID)

	var address types.Address
	data = c.call(http.MethodPost, "/addresses/new", login.Token, map[string]any{
		"mobile": "9876543210", "flat": "12B", "landmark": "Near the park", "street": "MG Road",
		"city": "Bengaluru", "state": "Karnataka", "country": "India", "pinCode": "560001",
	}, http.StatusOK)
	require.NoError(t, json.Unmarshal(data, &address))
	assert.Equal(t, user.ID, address.UserID)

	c.call(http.MethodDelete, "/addresses/"+address.ID, login.Token, nil, http.StatusOK)

	var remaining []types.Address
	require.NoError(t, json.Unmarshal(c.call(http.MethodGet, "/addresses/me", login.Token, nil, http.StatusOK), &remaining))
	assert.Empty(t, remaining)

	assert.Equal(t, []types.EventType{
		types.EventUserRegistered,
		types.EventAddressCreated,
		types.EventAddressDeleted,
	}, published.events)
}

func TestHealthzOutsidePrefix(t *testing.T) {
	router, err := NewRouter(testConfig(), Dependencies{
		Users:     storetest.NewUsers(),
		Addresses: storetest.NewAddresses(),
	}, zap.NewNop())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/me", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type memoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (c *memoryCounter) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key]++
	return c.counts[key], nil
}

func TestLoginLimitKeysOnSocketPeer(t *testing.T) {
	counter := &memoryCounter{counts: map[string]int64{}}
	router, err := NewRouter(testConfig(), Dependencies{
		Users:     storetest.NewUsers(),
		Addresses: storetest.NewAddresses(),
		Limiter:   handlers.NewRateLimiter(counter, "ratelimit", 3, time.Minute, zap.NewNop()),
	}, zap.NewNop())
	require.NoError(t, err)

	var rejected int
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/users/login", bytes.NewBufferString(`{}`))
		req.RemoteAddr = "10.0.0.1:1111"
		req.Header.Set("X-Real-IP", "192.0.2."+strconv.Itoa(i+1))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			rejected++
		}
	}

	assert.Equal(t, 7, rejected)
	assert.Equal(t, int64(10), counter.counts["ratelimit:/api/users/login:10.0.0.1"])
}

func TestNewRouterRequiresSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.JWTSecret = ""

	_, err := NewRouter(cfg, Dependencies{}, zap.NewNop())
	assert.Error(t, err)
}

func TestShutdownClosesInReverseOrder(t *testing.T) {
	s := &Server{logger: zap.NewNop()}
	var order []string
	s.onClose(func(context.Context) error { order = append(order, "db"); return nil })
	s.onClose(func(context.Context) error { order = append(order, "mq"); return nil })

	require.NoError(t, s.Shutdown())
	assert.Equal(t, []string{"mq", "db"}, order)
}
