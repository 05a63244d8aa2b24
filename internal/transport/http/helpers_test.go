package http

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/casthub/streamdash/internal/auth"
	"github.com/casthub/streamdash/internal/config"
	"github.com/casthub/streamdash/internal/core"
	"github.com/casthub/streamdash/internal/store"
	"github.com/casthub/streamdash/internal/store/sqlite"
)

type testEnv struct {
	srv   *httptest.Server
	store *sqlite.SQLiteStore
	auth  *auth.Service
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	if mutate != nil {
		mutate(&cfg)
	}

	logger := zerolog.Nop()
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})
	registry := core.NewRegistry(&logger)
	router := core.NewRouter(st, registry, authService, &logger)

	server := NewServer(registry, router, authService, st, &cfg, &logger)
	srv := httptest.NewServer(server.Handler)
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, store: st, auth: authService}
}

func (e *testEnv) seedUser(t *testing.T, username, password string) *store.User {
	t.Helper()

	if _, err := e.auth.Register(context.Background(), username, password, username); err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	user, err := e.store.GetUserByUsername(context.Background(), username)
	if err != nil {
		t.Fatalf("load seeded user: %v", err)
	}
	return user
}

func (e *testEnv) dial(t *testing.T, ctx context.Context) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, e.srv.URL+"/ws", nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, frame any) {
	t.Helper()

	if err := wsjson.Write(ctx, conn, frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// readFrame reads one JSON frame, skipping until the wanted type shows up.
func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, wantType string) map[string]any {
	t.Helper()

	readCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	for {
		var frame map[string]any
		if err := wsjson.Read(readCtx, conn, &frame); err != nil {
			t.Fatalf("read frame (waiting for %q): %v", wantType, err)
		}
		if frame["type"] == wantType {
			return frame
		}
	}
}

// expectNoFrame asserts nothing arrives within a short window.
func expectNoFrame(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	readCtx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var frame map[string]any
	if err := wsjson.Read(readCtx, conn, &frame); err == nil {
		t.Fatalf("expected no frame, got %v", frame)
	}
}

// pollDeadline bounds a polling loop that waits for an async write to land.
type pollDeadline struct {
	until time.Time
}

func newDeadline(t *testing.T) *pollDeadline {
	t.Helper()
	return &pollDeadline{until: time.Now().Add(2 * time.Second)}
}

func (d *pollDeadline) tick(t *testing.T, waitingFor string) {
	t.Helper()

	if time.Now().After(d.until) {
		t.Fatalf("timed out waiting for %s", waitingFor)
	}
	time.Sleep(10 * time.Millisecond)
}

func authFrame(username, password string) map[string]any {
	return map[string]any{"type": "auth", "username": username, "password": password}
}

func authenticateWS(t *testing.T, ctx context.Context, conn *websocket.Conn, username, password string) {
	t.Helper()

	send(t, ctx, conn, authFrame(username, password))
	result := readFrame(t, ctx, conn, "auth")
	if result["success"] != true {
		t.Fatalf("expected auth success, got %v", result)
	}
}
