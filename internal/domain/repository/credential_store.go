package repository

import (
	"context"

	"github.com/jhoicas/pos-dashboard/internal/domain/entity"
)

// CredentialStore persiste access token, refresh token e identidad del terminal.
//
// Contrato:
//   - Load devuelve (nil, nil) si no hay sesión guardada o si falta alguna de las tres entradas.
//     Datos corruptos se limpian y también devuelven (nil, nil).
//   - Save es atómica: se escriben las tres entradas o ninguna.
//   - Clear es idempotente.
type CredentialStore interface {
	Load(ctx context.Context) (*entity.Credentials, error)
	Save(ctx context.Context, creds entity.Credentials) error
	Clear(ctx context.Context) error
}
