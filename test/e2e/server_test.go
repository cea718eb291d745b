package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"

	"github.com/shortlyhq/shortly/internal/account"
	"github.com/shortlyhq/shortly/internal/auth"
	"github.com/shortlyhq/shortly/internal/config"
	"github.com/shortlyhq/shortly/internal/db"
	"github.com/shortlyhq/shortly/internal/link"
	"github.com/shortlyhq/shortly/internal/server"
)

const (
	testBaseURL     = "http://localhost:8080"
	testFallbackURL = "http://localhost:8080/gone"
)

// testApp holds the fully wired application for e2e testing.
type testApp struct {
	handler http.Handler
	dbPool  *pgxpool.Pool
	cleanup func()
}

// setupTestApp wires the whole application against a real database.
func setupTestApp(t *testing.T) *testApp {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2

	dbPool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}
	if err := db.Migrate(ctx, dbPool); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	logger := setupTestLogger()

	accountRepo := account.NewRepository(dbPool, nil)
	linkRepo := link.NewRepository(dbPool, nil)

	tokens := auth.NewTokenService(accountRepo, accountRepo, auth.TokenServiceConfig{
		AccessSecret:  "e2e-access-secret",
		RefreshSecret: "e2e-refresh-secret",
	})
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)

	accountSvc := account.NewService(accountRepo, tokens, hasher, linkRepo)
	linkSvc := link.NewService(linkRepo, nil)

	accountHandler := account.NewHandler(account.HandlerConfig{
		Service: accountSvc,
		Logger:  logger,
	})
	linkHandler := link.NewHandler(link.HandlerConfig{
		Service:     linkSvc,
		Logger:      logger,
		BaseURL:     testBaseURL,
		FallbackURL: testFallbackURL,
	})

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:            "8080",
			Host:            "localhost",
			BaseURL:         testBaseURL,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		App: config.AppConfig{
			Environment: "test",
			LogLevel:    "error",
			FallbackURL: testFallbackURL,
		},
	}

	srv := server.New(cfg, logger, tokens, accountHandler, linkHandler)

	cleanup := func() {
		dbPool.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	}

	return &testApp{
		handler: srv.Handler(),
		dbPool:  dbPool,
		cleanup: cleanup,
	}
}

func setupTestLogger() *slog.Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	})
	return slog.New(handler)
}

// doJSON runs a request through the routed handler and decodes the JSON body.
func (app *testApp) doJSON(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, req)

	var decoded map[string]any
	if rr.Body.Len() > 0 {
		if err := json.NewDecoder(rr.Body).Decode(&decoded); err != nil {
			t.Fatalf("failed to decode response (%d): %v", rr.Code, err)
		}
	}
	return rr.Code, decoded
}

func (app *testApp) register(t *testing.T, email string) (accessToken, refreshToken string) {
	t.Helper()

	status, resp := app.doJSON(t, "POST", "/api/v1/auth/register", "", map[string]string{
		"email":    email,
		"password": "secret123",
		"name":     "E2E User",
	})
	if status != http.StatusCreated {
		t.Fatalf("register failed: status %d, body %v", status, resp)
	}
	return resp["accessToken"].(string), resp["refreshToken"].(string)
}

func TestHealthCheck(t *testing.T) {
	app := setupTestApp(t)
	defer app.cleanup()

	status, resp := app.doJSON(t, "GET", "/x/health", "", nil)
	if status != http.StatusOK {
		t.Errorf("expected status 200, got %d", status)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", resp["status"])
	}
}

func TestAuthFlow_E2E(t *testing.T) {
	app := setupTestApp(t)
	defer app.cleanup()

	access, refresh := app.register(t, "flow@example.com")

	t.Run("duplicate registration conflicts", func(t *testing.T) {
		status, resp := app.doJSON(t, "POST", "/api/v1/auth/register", "", map[string]string{
			"email":    "flow@example.com",
			"password": "secret123",
			"name":     "Someone Else",
		})
		if status != http.StatusConflict {
			t.Errorf("expected status 409, got %d", status)
		}
		if resp["error"] != "user_already_exists" {
			t.Errorf("expected error 'user_already_exists', got %v", resp["error"])
		}
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		status, resp := app.doJSON(t, "POST", "/api/v1/auth/login", "", map[string]string{
			"email":    "flow@example.com",
			"password": "wrong-password",
		})
		if status != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", status)
		}
		if resp["error"] != "invalid_credentials" {
			t.Errorf("expected error 'invalid_credentials', got %v", resp["error"])
		}
	})

	t.Run("profile requires and honors the access token", func(t *testing.T) {
		status, _ := app.doJSON(t, "GET", "/api/v1/user/me", "", nil)
		if status != http.StatusUnauthorized {
			t.Errorf("expected status 401 without token, got %d", status)
		}

		status, resp := app.doJSON(t, "GET", "/api/v1/user/me", access, nil)
		if status != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %v", status, resp)
		}
		if resp["email"] != "flow@example.com" {
			t.Errorf("expected email 'flow@example.com', got %v", resp["email"])
		}
		if resp["shortLinksCount"] != float64(0) {
			t.Errorf("expected shortLinksCount 0, got %v", resp["shortLinksCount"])
		}
	})

	t.Run("refresh mints a usable access token", func(t *testing.T) {
		status, resp := app.doJSON(t, "POST", "/api/v1/auth/refresh", refresh, nil)
		if status != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %v", status, resp)
		}
		newAccess, _ := resp["accessToken"].(string)
		if newAccess == "" {
			t.Fatal("expected a fresh access token")
		}

		status, _ = app.doJSON(t, "GET", "/api/v1/user/me", newAccess, nil)
		if status != http.StatusOK {
			t.Errorf("refreshed token rejected: status %d", status)
		}
	})

	t.Run("logout revokes the refresh token", func(t *testing.T) {
		status, _ := app.doJSON(t, "POST", "/api/v1/auth/logout", "", map[string]string{
			"refreshToken": refresh,
		})
		if status != http.StatusNoContent {
			t.Fatalf("expected status 204, got %d", status)
		}

		status, resp := app.doJSON(t, "POST", "/api/v1/auth/refresh", refresh, nil)
		if status != http.StatusUnauthorized {
			t.Errorf("expected status 401 after logout, got %d", status)
		}
		if resp["error"] != "invalid_refresh_token" {
			t.Errorf("expected error 'invalid_refresh_token', got %v", resp["error"])
		}

		// Revocation is not idempotent.
		status, resp = app.doJSON(t, "POST", "/api/v1/auth/logout", "", map[string]string{
			"refreshToken": refresh,
		})
		if status != http.StatusNotFound {
			t.Errorf("expected status 404 on second logout, got %d", status)
		}
		if resp["error"] != "token_not_found" {
			t.Errorf("expected error 'token_not_found', got %v", resp["error"])
		}
	})
}

func TestLinkFlow_E2E(t *testing.T) {
	app := setupTestApp(t)
	defer app.cleanup()

	access, _ := app.register(t, "links@example.com")

	var slug string

	t.Run("authenticated create generates an 8 character slug", func(t *testing.T) {
		status, resp := app.doJSON(t, "POST", "/api/v1/shorten", access, map[string]string{
			"originalUrl": "https://example.com/landing",
		})
		if status != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %v", status, resp)
		}

		slug, _ = resp["slug"].(string)
		if len(slug) != 8 {
			t.Errorf("expected 8 character slug, got %q", slug)
		}
		if resp["shortUrl"] != testBaseURL+"/"+slug {
			t.Errorf("expected shortUrl %q, got %v", testBaseURL+"/"+slug, resp["shortUrl"])
		}
	})

	t.Run("info shows zero clicks before any resolve", func(t *testing.T) {
		status, resp := app.doJSON(t, "GET", "/api/v1/info/"+slug, "", nil)
		if status != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %v", status, resp)
		}
		if resp["clickCount"] != float64(0) {
			t.Errorf("expected clickCount 0, got %v", resp["clickCount"])
		}
	})

	t.Run("resolve redirects and counts the click", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/"+slug, nil)
		rr := httptest.NewRecorder()
		app.handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusFound {
			t.Fatalf("expected status 302, got %d", rr.Code)
		}
		if loc := rr.Header().Get("Location"); loc != "https://example.com/landing" {
			t.Errorf("expected redirect to destination, got %q", loc)
		}

		status, resp := app.doJSON(t, "GET", "/api/v1/info/"+slug, "", nil)
		if status != http.StatusOK {
			t.Fatalf("expected status 200, got %d", status)
		}
		if resp["clickCount"] != float64(1) {
			t.Errorf("expected clickCount 1, got %v", resp["clickCount"])
		}
	})

	t.Run("unknown slug falls back instead of 404", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/does-not-exist", nil)
		rr := httptest.NewRecorder()
		app.handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusFound {
			t.Fatalf("expected status 302, got %d", rr.Code)
		}
		if loc := rr.Header().Get("Location"); loc != testFallbackURL {
			t.Errorf("expected fallback redirect, got %q", loc)
		}
	})

	t.Run("owner can rename the link", func(t *testing.T) {
		status, resp := app.doJSON(t, "PUT", "/api/v1/shorten/"+slug, access, map[string]string{
			"customSlug": "renamed-by-owner",
		})
		if status != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %v", status, resp)
		}
		if resp["slug"] != "renamed-by-owner" {
			t.Errorf("expected slug 'renamed-by-owner', got %v", resp["slug"])
		}
		slug = "renamed-by-owner"
	})

	t.Run("anonymous links cannot be modified by anyone", func(t *testing.T) {
		status, resp := app.doJSON(t, "POST", "/api/v1/shorten", "", map[string]string{
			"originalUrl": "https://example.com/anon",
			"customSlug":  "anon-link",
		})
		if status != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %v", status, resp)
		}

		status, resp = app.doJSON(t, "PUT", "/api/v1/shorten/anon-link", access, map[string]string{
			"originalUrl": "https://evil.example.com",
		})
		if status != http.StatusForbidden {
			t.Errorf("expected status 403, got %d", status)
		}
		if resp["error"] != "access_denied" {
			t.Errorf("expected error 'access_denied', got %v", resp["error"])
		}
	})

	t.Run("duplicate custom slug conflicts", func(t *testing.T) {
		status, resp := app.doJSON(t, "POST", "/api/v1/shorten", "", map[string]string{
			"originalUrl": "https://example.com/other",
			"customSlug":  "anon-link",
		})
		if status != http.StatusConflict {
			t.Errorf("expected status 409, got %d", status)
		}
		if resp["error"] != "slug_already_exists" {
			t.Errorf("expected error 'slug_already_exists', got %v", resp["error"])
		}
	})

	t.Run("user links are listed with pagination", func(t *testing.T) {
		status, resp := app.doJSON(t, "GET", "/api/v1/user/links?page=1&limit=10", access, nil)
		if status != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %v", status, resp)
		}

		links, ok := resp["links"].([]any)
		if !ok || len(links) != 1 {
			t.Fatalf("expected 1 owned link, got %v", resp["links"])
		}
		pagination, ok := resp["pagination"].(map[string]any)
		if !ok {
			t.Fatalf("missing pagination: %v", resp)
		}
		if pagination["total"] != float64(1) {
			t.Errorf("expected total 1, got %v", pagination["total"])
		}
	})

	t.Run("owner can delete the link", func(t *testing.T) {
		req := httptest.NewRequest("DELETE", "/api/v1/"+slug, nil)
		req.Header.Set("Authorization", "Bearer "+access)
		rr := httptest.NewRecorder()
		app.handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusNoContent {
			t.Fatalf("expected status 204, got %d: %s", rr.Code, rr.Body.String())
		}

		status, _ := app.doJSON(t, "GET", "/api/v1/info/"+slug, "", nil)
		if status != http.StatusNotFound {
			t.Errorf("expected status 404 after delete, got %d", status)
		}
	})
}

func TestChangePassword_E2E(t *testing.T) {
	app := setupTestApp(t)
	defer app.cleanup()

	access, refresh := app.register(t, "rotate@example.com")

	status, resp := app.doJSON(t, "PUT", "/api/v1/user/password", access, map[string]string{
		"currentPassword": "secret123",
		"newPassword":     "a-much-longer-secret",
	})
	if status != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %v", status, resp)
	}

	// Every session opened before the change is gone.
	status, _ = app.doJSON(t, "POST", "/api/v1/auth/refresh", refresh, nil)
	if status != http.StatusUnauthorized {
		t.Errorf("expected status 401 for pre-change refresh token, got %d", status)
	}

	// Old password rejected, new one accepted.
	status, _ = app.doJSON(t, "POST", "/api/v1/auth/login", "", map[string]string{
		"email":    "rotate@example.com",
		"password": "secret123",
	})
	if status != http.StatusUnauthorized {
		t.Errorf("expected status 401 with old password, got %d", status)
	}

	status, resp = app.doJSON(t, "POST", "/api/v1/auth/login", "", map[string]string{
		"email":    "rotate@example.com",
		"password": "a-much-longer-secret",
	})
	if status != http.StatusOK {
		t.Fatalf("expected status 200 with new password, got %d: %v", status, resp)
	}
	if resp["accessToken"] == "" {
		t.Error("expected a token pair from the new-password login")
	}
}
