//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/shipnest/apiserver/config"
	"github.com/shipnest/apiserver/internal/db"
	"github.com/shipnest/apiserver/internal/server"
	"go.uber.org/zap"
)

const (
	serverPort = 18080
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	setEnv()
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := waitForPostgres(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := db.MigrateUp(cfg.Database); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := server.New(ctx, cfg, zap.NewNop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}
	go func() {
		_ = srv.Start()
	}()

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestAccountLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d/api", serverPort)
	email := fmt.Sprintf("alice_%d@example.com", time.Now().UnixNano())

	var user struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := call(t, http.MethodPost, baseURL+"/users/register", "", map[string]string{
		"username": "alice",
		"email":    email,
		"password": "pw1",
	}, http.StatusOK, &user); err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.ID == "" || user.Email != email {
		t.Fatalf("unexpected registered user: %+v", user)
	}

	if err := call(t, http.MethodPost, baseURL+"/users/register", "", map[string]string{
		"username": "alice",
		"email":    email,
		"password": "pw1",
	}, http.StatusConflict, nil); err != nil {
		t.Fatalf("duplicate register: %v", err)
	}

	var login struct {
		Token string `json:"token"`
	}
	if err := call(t, http.MethodPost, baseURL+"/users/login", "", map[string]string{
		"email":    email,
		"password": "pw1",
	}, http.StatusOK, &login); err != nil {
		t.Fatalf("login: %v", err)
	}
	if login.Token == "" {
		t.Fatalf("missing token in login response")
	}

	var me struct {
		ID string `json:"id"`
	}
	if err := call(t, http.MethodGet, baseURL+"/users/me", login.Token, nil, http.StatusOK, &me); err != nil {
		t.Fatalf("me: %v", err)
	}
	if me.ID != user.ID {
		t.Fatalf("me returned %q, want %q", me.ID, user.ID)
	}

	var address struct {
		ID string `json:"id"`
	}
	if err := call(t, http.MethodPost, baseURL+"/addresses/new", login.Token, map[string]any{
		"mobile":   "9876543210",
		"flat":     "12B",
		"landmark": "Near the park",
		"street":   "MG Road",
		"city":     "Bengaluru",
		"state":    "Karnataka",
		"country":  "India",
		"pinCode":  "560001",
	}, http.StatusOK, &address); err != nil {
		t.Fatalf("create address: %v", err)
	}

	if err := call(t, http.MethodDelete, baseURL+"/addresses/"+address.ID, login.Token, nil, http.StatusOK, nil); err != nil {
		t.Fatalf("delete address: %v", err)
	}

	var remaining []struct {
		ID string `json:"id"`
	}
	if err := call(t, http.MethodGet, baseURL+"/addresses/me", login.Token, nil, http.StatusOK, &remaining); err != nil {
		t.Fatalf("list addresses: %v", err)
	}
	for _, a := range remaining {
		if a.ID == address.ID {
			t.Fatalf("deleted address %s still listed", address.ID)
		}
	}
}

// call sends a JSON request, checks the status and decodes the envelope's
// data into out when out is non-nil.
func call(t *testing.T, method, url, token string, payload any, wantStatus int, out any) error {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return err
	}
	return json.Unmarshal(env.Data, out)
}

func setEnv() {
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_DRIVER", "postgres")
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "shipnest")
	_ = os.Setenv("DB_PASSWORD", "shipnest")
	_ = os.Setenv("DB_NAME", "shipnest")
	_ = os.Setenv("DB_SSL", "false")
}

func waitForPostgres(ctx context.Context, cfg config.Config) error {
	conn, err := sql.Open("postgres", db.PostgresURL(cfg.Database))
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
