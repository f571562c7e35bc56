package http_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/pos-dashboard/internal/application/dto"
	"github.com/jhoicas/pos-dashboard/internal/application/session"
	"github.com/jhoicas/pos-dashboard/internal/domain/authz"
	"github.com/jhoicas/pos-dashboard/internal/domain/permission"
	"github.com/jhoicas/pos-dashboard/internal/infrastructure/backend"
	"github.com/jhoicas/pos-dashboard/internal/infrastructure/localstore"
	apphttp "github.com/jhoicas/pos-dashboard/internal/interfaces/http"
	"github.com/jhoicas/pos-dashboard/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Backend simulado
// ──────────────────────────────────────────────────────────────────────────────

type posBackend struct {
	mu           sync.Mutex
	access       map[string]string // access token -> username
	refreshOK    bool
	issued       int
	logoutCalls  int
	ordersCalled int
}

var posUsers = map[string]struct{ password, role string }{
	"mgr1":   {"secret", "gerant"},
	"cajero": {"1234", "Caissier"},
	"raro":   {"x", "waiter"},
}

func (b *posBackend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	user := func(name string) map[string]any {
		return map[string]any{"id": "id-" + name, "username": name, "role": posUsers[name].role, "is_active": true}
	}
	bearer := func(r *http.Request) (string, bool) {
		b.mu.Lock()
		defer b.mu.Unlock()
		name, ok := b.access[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
		return name, ok
	}

	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		u, ok := posUsers[in["username"]]
		if !ok || u.password != in["password"] {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		b.mu.Lock()
		b.issued++
		tok := in["username"] + "-acc"
		b.access[tok] = in["username"]
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user":   user(in["username"]),
			"tokens": map[string]string{"access": tok, "refresh": in["username"] + "-ref"},
		})
	})
	mux.HandleFunc("GET /profile", func(w http.ResponseWriter, r *http.Request) {
		name, ok := bearer(r)
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(user(name))
	})
	mux.HandleFunc("POST /token/refresh", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		b.mu.Lock()
		defer b.mu.Unlock()
		if !b.refreshOK {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		name := strings.TrimSuffix(in["refresh"], "-ref")
		b.issued++
		tok := name + "-acc2"
		b.access[tok] = name
		_ = json.NewEncoder(w).Encode(map[string]string{"access": tok})
	})
	mux.HandleFunc("POST /logout", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.logoutCalls++
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /orders", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.ordersCalled++
		b.mu.Unlock()
		if _, ok := bearer(r); !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"orders":[],"page":"`+r.URL.Query().Get("page")+`"}`)
	})
	return mux
}

// revokeAll invalida los access tokens emitidos (simula expiración).
func (b *posBackend) revokeAll() {
	b.mu.Lock()
	b.access = map[string]string{}
	b.mu.Unlock()
}

type testEnv struct {
	app     *fiber.App
	engine  *session.Engine
	backend *posBackend
	store   *localstore.CredentialStore
}

// newTestEnv arma el dashboard completo contra el backend simulado, con el
// store en un directorio temporal. Si hydrate es true espera la hidratación.
func newTestEnv(t *testing.T, hydrate bool) *testEnv {
	t.Helper()
	pb := &posBackend{access: map[string]string{}, refreshOK: true}
	srv := httptest.NewServer(pb.handler(t))
	t.Cleanup(srv.Close)

	store, err := localstore.NewCredentialStore(t.TempDir(), "", logger.Nop())
	require.NoError(t, err)
	client := backend.NewClient(backend.Config{BaseURL: srv.URL, Timeout: 2 * time.Second, RetryMax: 0, Logger: logger.Nop()})
	engine := session.NewEngine(store, client, session.Options{Timeout: 2 * time.Second, LoginPath: "/login", Logger: logger.Nop()})

	app := fiber.New()
	require.NoError(t, apphttp.Router(app, apphttp.RouterDeps{
		Engine:        engine,
		Backend:       client,
		LoginPath:     "/login",
		HomePath:      "/dashboard",
		RefreshLeeway: 30 * time.Second,
		Logger:        logger.Nop(),
	}))

	if hydrate {
		_, err := engine.Hydrate(context.Background(), "/")
		require.NoError(t, err)
	}
	return &testEnv{app: app, engine: engine, backend: pb, store: store}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) login(t *testing.T, username, password string) *http.Response {
	t.Helper()
	return e.do(t, http.MethodPost, "/api/auth/login", `{"username":"`+username+`","password":"`+password+`"}`)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// ──────────────────────────────────────────────────────────────────────────────
// Escenarios
// ──────────────────────────────────────────────────────────────────────────────

func TestRouter_AntesDeHidratarTodoCarga(t *testing.T) {
	env := newTestEnv(t, false)

	for _, path := range []string{"/dashboard", "/settings", "/login"} {
		resp := env.do(t, http.MethodGet, path, "")
		resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, path)
	}
	resp := env.login(t, "mgr1", "secret")
	assert.Equal(t, "SESSION_LOADING", decode[dto.ErrorResponse](t, resp).Code)
}

func TestRouter_LoginManagerYRutas(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.do(t, http.MethodGet, "/stocks", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login?next=%2Fstocks", resp.Header.Get("Location"))

	resp = env.do(t, http.MethodPost, "/api/auth/login?next=/stocks", `{"username":"  MGR1 ","password":"secret"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[dto.LoginResponse](t, resp)
	assert.Equal(t, "manager", out.User.Role)
	assert.Equal(t, "/stocks", out.Redirect)

	resp = env.do(t, http.MethodGet, "/stocks", "")
	view := decode[dto.ViewResponse](t, resp)
	assert.Equal(t, "stocks", view.View)

	resp = env.do(t, http.MethodGet, "/settings", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	denied := decode[dto.AccessDeniedResponse](t, resp)
	assert.Equal(t, string(authz.ReasonRole), denied.Reason)
	assert.Equal(t, []string{"admin"}, denied.Required)

	resp = env.do(t, http.MethodGet, "/api/session/permissions/"+permission.StocksManage, "")
	assert.True(t, decode[dto.CheckResponse](t, resp).Granted)

	resp = env.do(t, http.MethodGet, "/api/session/roles/admin", "")
	assert.False(t, decode[dto.CheckResponse](t, resp).Granted)

	resp = env.do(t, http.MethodGet, "/login", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode, "con sesión se sale del login")
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
}

func TestRouter_LoginErrores(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.login(t, "mgr1", "mala")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_CREDENTIALS", decode[dto.ErrorResponse](t, resp).Code)

	resp = env.do(t, http.MethodPost, "/api/auth/login", `{"username":"mgr1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/api/auth/login?next=//evil.example", `{"username":"cajero","password":"1234"}`)
	assert.Equal(t, "/dashboard", decode[dto.LoginResponse](t, resp).Redirect)
}

func TestRouter_RolDesconocido(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.login(t, "raro", "x")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/dashboard", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/session", "")
	s := decode[dto.SessionResponse](t, resp)
	assert.True(t, s.IsAuthenticated)
	assert.Empty(t, s.Effective)
}

func TestRouter_LogoutIdempotente(t *testing.T) {
	env := newTestEnv(t, true)
	env.login(t, "cajero", "1234").Body.Close()

	for i := 0; i < 2; i++ {
		resp := env.do(t, http.MethodPost, "/api/auth/logout", "")
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		creds, err := env.store.Load(context.Background())
		require.NoError(t, err)
		assert.Nil(t, creds)
		assert.False(t, env.engine.Snapshot().IsAuthenticated())
	}
}

func TestRouter_SesionRestauradaTrasReinicio(t *testing.T) {
	env := newTestEnv(t, true)
	env.login(t, "mgr1", "secret").Body.Close()

	// mismo store y backend, motor nuevo: como un reinicio del proceso
	engine := session.NewEngine(env.store, backendFor(t, env), session.Options{LoginPath: "/login", Logger: logger.Nop()})
	res, err := engine.Hydrate(context.Background(), "/login")
	require.NoError(t, err)
	assert.Equal(t, session.StateAuthenticated, res.State)
	assert.True(t, res.RedirectFromLogin)
}

func TestRouter_ProxyRenuevaUnaVez(t *testing.T) {
	env := newTestEnv(t, true)
	env.login(t, "cajero", "1234").Body.Close()
	env.backend.revokeAll()

	resp := env.do(t, http.MethodGet, "/api/backend/orders?page=3", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "3", body["page"])
	assert.Equal(t, 2, env.backend.ordersCalled, "401, refresh y un único reintento")
	assert.Equal(t, "cajero-acc2", env.engine.AccessToken())
}

func TestRouter_ProxyRefreshRechazadoCierraSesion(t *testing.T) {
	env := newTestEnv(t, true)
	env.login(t, "cajero", "1234").Body.Close()
	env.backend.revokeAll()
	env.backend.mu.Lock()
	env.backend.refreshOK = false
	env.backend.mu.Unlock()

	resp := env.do(t, http.MethodGet, "/api/backend/orders", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "SESSION_EXPIRED", decode[dto.ErrorResponse](t, resp).Code)
	assert.False(t, env.engine.Snapshot().IsAuthenticated())

	resp = env.do(t, http.MethodGet, "/api/backend/orders", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "sin sesión el guard corta antes del proxy")
}

func TestRouter_RefreshYPerfil(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.do(t, http.MethodPost, "/api/auth/refresh", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "sin sesión")

	env.login(t, "mgr1", "secret").Body.Close()

	resp = env.do(t, http.MethodPost, "/api/auth/refresh", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[dto.SessionResponse](t, resp).IsAuthenticated)

	resp = env.do(t, http.MethodPost, "/api/auth/profile", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "mgr1", decode[dto.UserResponse](t, resp).Username)

	env.backend.mu.Lock()
	env.backend.refreshOK = false
	env.backend.mu.Unlock()
	resp = env.do(t, http.MethodPost, "/api/auth/refresh", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, env.engine.Snapshot().IsAuthenticated(), "refresh rechazado fuerza logout")
}

func TestRouter_PerfilRechazadoCierraSesion(t *testing.T) {
	env := newTestEnv(t, true)
	env.login(t, "mgr1", "secret").Body.Close()

	resp := env.do(t, http.MethodGet, "/stocks", "")
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	env.backend.revokeAll()
	resp = env.do(t, http.MethodPost, "/api/auth/profile", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "SESSION_REJECTED", decode[dto.ErrorResponse](t, resp).Code)
	assert.False(t, env.engine.Snapshot().IsAuthenticated())

	resp = env.do(t, http.MethodGet, "/stocks", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login?next=%2Fstocks", resp.Header.Get("Location"))

	creds, err := env.store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, creds)
}

func TestRouter_Catalogo(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.do(t, http.MethodGet, "/api/catalog", "")
	entries := decode[[]permission.Entry](t, resp)
	assert.Len(t, entries, len(permission.Keys()))

	resp = env.do(t, http.MethodGet, "/api/session/permissions/no.existe", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/session/roles/waiter", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_RequisitoInvalidoAbortaArranque(t *testing.T) {
	env := newTestEnv(t, false)
	err := apphttp.Router(fiber.New(), apphttp.RouterDeps{
		Engine:    env.engine,
		LoginPath: "/login",
		Routes:    []apphttp.ProtectedRoute{{Path: "/x", Requirement: authz.AnyPermission("ventas.todo")}},
	})
	assert.Error(t, err)
}

func backendFor(t *testing.T, env *testEnv) session.Backend {
	t.Helper()
	srv := httptest.NewServer(env.backend.handler(t))
	t.Cleanup(srv.Close)
	return backend.NewClient(backend.Config{BaseURL: srv.URL, Timeout: 2 * time.Second, Logger: logger.Nop()})
}
