package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/jhoicas/pos-dashboard/internal/application/dto"
	"github.com/jhoicas/pos-dashboard/internal/application/session"
	"github.com/jhoicas/pos-dashboard/internal/domain"
	"github.com/jhoicas/pos-dashboard/internal/domain/entity"
)

const (
	defaultRetryWaitMin = 200 * time.Millisecond
	defaultRetryWaitMax = 2 * time.Second
	maxErrorBody        = 4 << 10
)

var _ session.Backend = (*Client)(nil)

// Config parámetros del cliente.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	RetryMax int
	Logger   zerolog.Logger
}

// Client cliente HTTP del backend remoto del POS.
type Client struct {
	http     *http.Client
	baseURL  string
	validate *validator.Validate
	log      zerolog.Logger
}

// NewClient construye el cliente. Solo reintenta errores de transporte: un
// 401 o un 500 del backend es una respuesta, no algo que repetir.
func NewClient(cfg Config) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = defaultRetryWaitMin
	retryClient.RetryWaitMax = defaultRetryWaitMax
	retryClient.HTTPClient.Timeout = cfg.Timeout
	retryClient.Logger = nil

	retryClient.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
		}
		return false, nil
	}
	// Sin esto retryablehttp convierte el último status en error genérico.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		http:     retryClient.StandardClient(),
		baseURL:  cfg.BaseURL,
		validate: validator.New(),
		log:      cfg.Logger,
	}
}

// Login POST /login. Cualquier respuesta no-2xx son credenciales inválidas.
func (c *Client) Login(ctx context.Context, username, password string) (*session.LoginResult, error) {
	resp, err := c.do(ctx, http.MethodPost, "/login", "", dto.BackendLoginRequest{Username: username, Password: password})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, fmt.Errorf("%w: status %d", domain.ErrInvalidCredentials, resp.StatusCode)
	}

	var data dto.BackendLoginResponse
	if err := c.decode(resp.Body, &data); err != nil {
		return nil, err
	}
	if err := c.validate.Struct(data.User); err != nil {
		return nil, fmt.Errorf("%w: usuario: %v", domain.ErrMalformedResponse, err)
	}
	if err := c.validate.Struct(data.Tokens); err != nil {
		return nil, fmt.Errorf("%w: tokens: %v", domain.ErrMalformedResponse, err)
	}

	return &session.LoginResult{
		Identity:     toIdentity(data.User),
		AccessToken:  data.Tokens.Access,
		RefreshToken: data.Tokens.Refresh,
	}, nil
}

// Profile GET /profile con Bearer. No-2xx invalida la sesión local.
func (c *Client) Profile(ctx context.Context, accessToken string) (*entity.Identity, error) {
	resp, err := c.do(ctx, http.MethodGet, "/profile", accessToken, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, fmt.Errorf("%w: status %d", domain.ErrSessionRejected, resp.StatusCode)
	}

	var data dto.BackendUser
	if err := c.decode(resp.Body, &data); err != nil {
		return nil, err
	}
	if err := c.validate.Struct(data); err != nil {
		return nil, fmt.Errorf("%w: perfil: %v", domain.ErrMalformedResponse, err)
	}
	return toIdentity(&data), nil
}

// Refresh POST /token/refresh.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/token/refresh", "", dto.BackendRefreshRequest{Refresh: refreshToken})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return "", fmt.Errorf("%w: status %d", domain.ErrRefreshRejected, resp.StatusCode)
	}

	var data dto.BackendRefreshResponse
	if err := c.decode(resp.Body, &data); err != nil {
		return "", err
	}
	if err := c.validate.Struct(data); err != nil {
		return "", fmt.Errorf("%w: refresh: %v", domain.ErrMalformedResponse, err)
	}
	return data.Access, nil
}

// Logout POST /logout. La respuesta no condiciona el flujo; solo se reporta
// para que el motor pueda registrarla.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	resp, err := c.do(ctx, http.MethodPost, "/logout", accessToken, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if !isSuccess(resp.StatusCode) {
		return fmt.Errorf("logout: status %d", resp.StatusCode)
	}
	return nil
}

// Forward reenvía una petición arbitraria de la UI al backend con el Bearer
// de la sesión. El llamador cierra el body de la respuesta.
func (c *Client) Forward(ctx context.Context, method, path, rawQuery, accessToken, contentType string, body []byte) (*http.Response, error) {
	target := c.baseURL + path
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("crear petición: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.decorate(req, accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", domain.ErrBackendUnavailable, method, path, err)
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path, accessToken string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		j, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(j)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("crear petición: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.decorate(req, accessToken)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("path", path).Dur("elapsed", time.Since(start)).Msg("backend inalcanzable")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrBackendUnavailable, path, ctxErr)
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrBackendUnavailable, path, err)
	}
	c.log.Debug().Str("path", path).Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("backend")
	return resp, nil
}

func (c *Client) decorate(req *http.Request, accessToken string) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
}

func (c *Client) decode(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: cuerpo vacío", domain.ErrMalformedResponse)
		}
		return fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	return nil
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

func toIdentity(u *dto.BackendUser) *entity.Identity {
	id := &entity.Identity{
		ID:          u.ID,
		Username:    u.Username,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Email:       u.Email,
		Permissions: u.Permissions,
		IsActive:    u.IsActive,
		IsStaff:     u.IsStaff,
		IsSuperuser: u.IsSuperuser,
	}
	id.SetRawRole(u.Role)
	return id
}
