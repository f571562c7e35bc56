package session

import (
	"context"

	"github.com/jhoicas/pos-dashboard/internal/domain/entity"
)

// LoginResult lo que devuelve el backend tras un login correcto.
type LoginResult struct {
	Identity     *entity.Identity
	AccessToken  string
	RefreshToken string
}

// Backend contrato del backend remoto que consume el motor de sesión.
//
// Los errores esperados se expresan con los sentinelas de domain:
// ErrInvalidCredentials (login no-2xx), ErrSessionRejected (profile no-2xx),
// ErrRefreshRejected (refresh no-2xx), ErrBackendUnavailable (transporte o
// timeout) y ErrMalformedResponse (cuerpo 2xx ilegible).
type Backend interface {
	Login(ctx context.Context, username, password string) (*LoginResult, error)
	Profile(ctx context.Context, accessToken string) (*entity.Identity, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context, accessToken string) error
}
