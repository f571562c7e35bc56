package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/jhoicas/pos-dashboard/internal/domain/entity"
	"github.com/jhoicas/pos-dashboard/internal/domain/repository"
)

const credentialSchema = `
	CREATE TABLE IF NOT EXISTS credential_entries (
		terminal_id TEXT        NOT NULL,
		name        TEXT        NOT NULL,
		value       TEXT        NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (terminal_id, name)
	)`

var _ repository.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo implementación de repository.CredentialStore sobre PostgreSQL.
// Una fila por entrada; Save reemplaza las tres filas en una transacción.
type CredentialRepo struct {
	pool       *pgxpool.Pool
	tx         *TxRunner
	terminalID string
	log        zerolog.Logger
}

// NewCredentialRepository construye el adaptador para terminalID.
func NewCredentialRepository(pool *pgxpool.Pool, terminalID string, log zerolog.Logger) *CredentialRepo {
	return &CredentialRepo{pool: pool, tx: NewTxRunner(pool), terminalID: terminalID, log: log}
}

// EnsureSchema crea la tabla si no existe.
func (r *CredentialRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, credentialSchema); err != nil {
		return fmt.Errorf("crear credential_entries: %w", err)
	}
	return nil
}

// Load devuelve nil si el terminal no tiene filas. Filas incompletas o
// ilegibles se borran.
func (r *CredentialRepo) Load(ctx context.Context) (*entity.Credentials, error) {
	rows, err := r.pool.Query(ctx, `SELECT name, value FROM credential_entries WHERE terminal_id = $1`, r.terminalID)
	if err != nil {
		return nil, fmt.Errorf("query credenciales: %w", err)
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	creds, err := entity.CredentialsFromEntries(entries)
	if err != nil {
		r.log.Warn().Err(err).Str("terminal_id", r.terminalID).Msg("credenciales corruptas, se eliminan")
		if clearErr := r.Clear(ctx); clearErr != nil {
			return nil, clearErr
		}
		return nil, nil
	}
	return creds, nil
}

// Save reemplaza las tres entradas de forma atómica.
func (r *CredentialRepo) Save(ctx context.Context, creds entity.Credentials) error {
	entries, err := creds.Entries()
	if err != nil {
		return fmt.Errorf("guardar credenciales: %w", err)
	}
	return r.tx.Run(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		batch.Queue(`DELETE FROM credential_entries WHERE terminal_id = $1`, r.terminalID)
		for name, value := range entries {
			batch.Queue(`INSERT INTO credential_entries (terminal_id, name, value) VALUES ($1, $2, $3)`,
				r.terminalID, name, value)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("guardar credenciales: %w", err)
		}
		return nil
	})
}

// Clear borra las filas del terminal; sin filas no es error.
func (r *CredentialRepo) Clear(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM credential_entries WHERE terminal_id = $1`, r.terminalID); err != nil {
		return fmt.Errorf("borrar credenciales: %w", err)
	}
	return nil
}

func collectEntries(rows pgx.Rows) (map[string]string, error) {
	defer rows.Close()
	entries := make(map[string]string, 3)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan credencial: %w", err)
		}
		entries[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leer credenciales: %w", err)
	}
	return entries, nil
}
