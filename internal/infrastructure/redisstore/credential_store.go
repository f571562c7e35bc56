package redisstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jhoicas/pos-dashboard/internal/domain/entity"
	"github.com/jhoicas/pos-dashboard/internal/domain/repository"
)

const keyPrefix = "pos:credentials:"

var _ repository.CredentialStore = (*CredentialStore)(nil)

// CredentialStore implementación de repository.CredentialStore sobre un hash
// de Redis por terminal. Save reemplaza el hash dentro de MULTI/EXEC.
type CredentialStore struct {
	client *redis.Client
	key    string
	log    zerolog.Logger
}

// NewCredentialStore construye el store para terminalID.
func NewCredentialStore(client *redis.Client, terminalID string, log zerolog.Logger) *CredentialStore {
	return &CredentialStore{client: client, key: keyPrefix + terminalID, log: log}
}

// Load devuelve nil si no hay credenciales. Un hash incompleto o con
// identidad ilegible se borra.
func (s *CredentialStore) Load(ctx context.Context) (*entity.Credentials, error) {
	entries, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	creds, err := entity.CredentialsFromEntries(entries)
	if err != nil {
		s.log.Warn().Err(err).Str("key", s.key).Msg("credenciales corruptas, se eliminan")
		if clearErr := s.Clear(ctx); clearErr != nil {
			return nil, clearErr
		}
		return nil, nil
	}
	return creds, nil
}

// Save escribe las tres entradas en una sola transacción.
func (s *CredentialStore) Save(ctx context.Context, creds entity.Credentials) error {
	entries, err := creds.Entries()
	if err != nil {
		return fmt.Errorf("guardar credenciales: %w", err)
	}
	fields := make(map[string]any, len(entries))
	for k, v := range entries {
		fields[k] = v
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		pipe.HSet(ctx, s.key, fields)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis guardar credenciales: %w", err)
	}
	return nil
}

// Clear borra el hash; DEL sobre una clave inexistente no es error.
func (s *CredentialStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
