package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/pos-dashboard/internal/domain"
	"github.com/jhoicas/pos-dashboard/internal/domain/entity"
	"github.com/jhoicas/pos-dashboard/internal/infrastructure/backend"
	"github.com/jhoicas/pos-dashboard/pkg/logger"
)

const (
	validAccess  = "access-ok"
	validRefresh = "refresh-ok"
)

func userJSON(role string) map[string]any {
	return map[string]any{
		"id": "7", "username": "mgr1", "first_name": "Marie", "last_name": "Dupont",
		"email": "marie@example.com", "role": role, "permissions": []string{"reports.view"},
		"is_active": true, "is_staff": true, "is_superuser": false,
	}
}

// newBackendServer sirve los cuatro endpoints del contrato.
func newBackendServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["username"] != "mgr1" || in["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user":   userJSON("Gerant"),
			"tokens": map[string]string{"access": validAccess, "refresh": validRefresh},
		})
	})
	mux.HandleFunc("GET /profile", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+validAccess {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		_ = json.NewEncoder(w).Encode(userJSON("waiter"))
	})
	mux.HandleFunc("POST /token/refresh", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["refresh"] != validRefresh {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access": "access-2"})
	})
	mux.HandleFunc("POST /logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /products", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"q":"`+r.URL.RawQuery+`","auth":"`+r.Header.Get("Authorization")+`"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(url string) *backend.Client {
	return backend.NewClient(backend.Config{BaseURL: url, Timeout: time.Second, RetryMax: 1, Logger: logger.Nop()})
}

func TestLogin(t *testing.T) {
	c := newClient(newBackendServer(t).URL)

	res, err := c.Login(context.Background(), "mgr1", "secret")
	require.NoError(t, err)
	assert.Equal(t, validAccess, res.AccessToken)
	assert.Equal(t, validRefresh, res.RefreshToken)
	assert.Equal(t, entity.RoleManager, res.Identity.Role)
	assert.True(t, res.Identity.RoleRecognized())
	assert.Equal(t, []string{"reports.view"}, res.Identity.Permissions)

	_, err = c.Login(context.Background(), "mgr1", "mala")
	assert.True(t, errors.Is(err, domain.ErrInvalidCredentials))
}

func TestProfile(t *testing.T) {
	c := newClient(newBackendServer(t).URL)

	id, err := c.Profile(context.Background(), validAccess)
	require.NoError(t, err)
	assert.Equal(t, entity.RoleLowest, id.Role)
	assert.False(t, id.RoleRecognized(), "waiter no pertenece a la enumeración")

	_, err = c.Profile(context.Background(), "caducado")
	assert.True(t, errors.Is(err, domain.ErrSessionRejected))
}

func TestRefreshYLogout(t *testing.T) {
	c := newClient(newBackendServer(t).URL)

	access, err := c.Refresh(context.Background(), validRefresh)
	require.NoError(t, err)
	assert.Equal(t, "access-2", access)

	_, err = c.Refresh(context.Background(), "otro")
	assert.True(t, errors.Is(err, domain.ErrRefreshRejected))

	assert.NoError(t, c.Logout(context.Background(), validAccess))
}

func TestRespuestaMalformada(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/profile":
			_, _ = io.WriteString(w, `{"id":"","username":""}`)
		default:
			_, _ = io.WriteString(w, `{no es json`)
		}
	}))
	defer srv.Close()
	c := newClient(srv.URL)

	_, err := c.Profile(context.Background(), "x")
	assert.True(t, errors.Is(err, domain.ErrMalformedResponse), "campos requeridos vacíos")

	_, err = c.Login(context.Background(), "a", "b")
	assert.True(t, errors.Is(err, domain.ErrMalformedResponse))
}

func TestBackendInalcanzable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newClient(url)
	_, err := c.Profile(context.Background(), validAccess)
	assert.True(t, errors.Is(err, domain.ErrBackendUnavailable))
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newClient(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Profile(ctx, validAccess)
	assert.True(t, errors.Is(err, domain.ErrBackendUnavailable))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestNoReintenta5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).Profile(context.Background(), validAccess)
	assert.True(t, errors.Is(err, domain.ErrSessionRejected))
	assert.Equal(t, int32(1), calls.Load())
}

func TestForward(t *testing.T) {
	c := newClient(newBackendServer(t).URL)

	resp, err := c.Forward(context.Background(), http.MethodGet, "/products", "page=2", validAccess, "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "page=2", body["q"])
	assert.Equal(t, "Bearer "+validAccess, body["auth"])
}
