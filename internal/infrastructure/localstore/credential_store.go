// Package localstore guarda las credenciales del terminal en un archivo local.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jhoicas/pos-dashboard/internal/domain/entity"
	"github.com/jhoicas/pos-dashboard/internal/domain/repository"
)

const fileName = "credentials.json"

var _ repository.CredentialStore = (*CredentialStore)(nil)

// CredentialStore implementación de repository.CredentialStore sobre un archivo.
// Las tres entradas se escriben en un único archivo que se reemplaza con
// rename, así una escritura interrumpida nunca deja un estado parcial.
type CredentialStore struct {
	mu     sync.Mutex
	path   string
	sealer *sealer
	log    zerolog.Logger
}

// NewCredentialStore crea el directorio si no existe. Con secret no vacío el
// contenido se sella en disco.
func NewCredentialStore(dir, secret string, log zerolog.Logger) (*CredentialStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("crear directorio de credenciales: %w", err)
	}
	s, err := newSealer(secret)
	if err != nil {
		return nil, err
	}
	return &CredentialStore{path: filepath.Join(dir, fileName), sealer: s, log: log}, nil
}

// Load lee las credenciales. Contenido corrupto se elimina y se trata como ausente.
func (s *CredentialStore) Load(_ context.Context) (*entity.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("leer credenciales: %w", err)
	}

	creds, err := s.decode(data)
	if err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("credenciales corruptas, se eliminan")
		if rmErr := s.remove(); rmErr != nil {
			return nil, rmErr
		}
		return nil, nil
	}
	return creds, nil
}

// Save escribe las tres entradas de forma atómica.
func (s *CredentialStore) Save(_ context.Context, creds entity.Credentials) error {
	entries, err := creds.Entries()
	if err != nil {
		return fmt.Errorf("guardar credenciales: %w", err)
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("serializar credenciales: %w", err)
	}
	if s.sealer != nil {
		if data, err = s.sealer.seal(data); err != nil {
			return fmt.Errorf("sellar credenciales: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomic(s.path, data)
}

// Clear elimina el archivo; no falla si no existe.
func (s *CredentialStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove()
}

func (s *CredentialStore) remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("eliminar credenciales: %w", err)
	}
	return nil
}

func (s *CredentialStore) decode(data []byte) (*entity.Credentials, error) {
	if s.sealer != nil {
		plain, err := s.sealer.open(data)
		if err != nil {
			return nil, err
		}
		data = plain
	}
	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	return entity.CredentialsFromEntries(entries)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".credentials-*")
	if err != nil {
		return fmt.Errorf("crear temporal: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("escribir temporal: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temporal: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cerrar temporal: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("permisos: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("reemplazar credenciales: %w", err)
	}
	return nil
}
