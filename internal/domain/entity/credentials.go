package entity

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Credentials lo que persiste el Credential Store entre reinicios del proceso.
// Las tres entradas viajan juntas: nunca se guarda una sin las otras.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Identity     *Identity
}

// Complete indica si las tres entradas están presentes.
func (c *Credentials) Complete() bool {
	return c != nil && c.AccessToken != "" && c.RefreshToken != "" && c.Identity != nil
}

// Nombres de las tres entradas persistidas.
const (
	EntryAccessToken  = "access_token"
	EntryRefreshToken = "refresh_token"
	EntryIdentity     = "identity"
)

// Entries serializa las credenciales como tres strings; la identidad va en JSON.
func (c *Credentials) Entries() (map[string]string, error) {
	if !c.Complete() {
		return nil, errors.New("credenciales incompletas")
	}
	idJSON, err := json.Marshal(c.Identity)
	if err != nil {
		return nil, fmt.Errorf("serializar identidad: %w", err)
	}
	return map[string]string{
		EntryAccessToken:  c.AccessToken,
		EntryRefreshToken: c.RefreshToken,
		EntryIdentity:     string(idJSON),
	}, nil
}

// CredentialsFromEntries reconstruye las credenciales. Falla si falta alguna
// entrada o la identidad no es JSON válido; el llamador decide si limpiar.
func CredentialsFromEntries(entries map[string]string) (*Credentials, error) {
	access, refresh, raw := entries[EntryAccessToken], entries[EntryRefreshToken], entries[EntryIdentity]
	if access == "" || refresh == "" || raw == "" {
		return nil, errors.New("entrada ausente")
	}
	var id Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		return nil, fmt.Errorf("identidad: %w", err)
	}
	return &Credentials{AccessToken: access, RefreshToken: refresh, Identity: &id}, nil
}
