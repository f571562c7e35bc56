package localstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/pos-dashboard/internal/domain/entity"
	"github.com/jhoicas/pos-dashboard/internal/infrastructure/localstore"
	"github.com/jhoicas/pos-dashboard/pkg/logger"
)

func sampleCreds() entity.Credentials {
	id := &entity.Identity{ID: "7", Username: "mgr1", Email: "m@example.com", Permissions: []string{"reports.view"}, IsActive: true}
	id.SetRawRole("gerant")
	return entity.Credentials{AccessToken: "a1", RefreshToken: "r1", Identity: id}
}

func TestRoundTrip(t *testing.T) {
	for _, secret := range []string{"", "clave-del-terminal"} {
		t.Run("secret="+secret, func(t *testing.T) {
			ctx := context.Background()
			s, err := localstore.NewCredentialStore(t.TempDir(), secret, logger.Nop())
			require.NoError(t, err)

			want := sampleCreds()
			require.NoError(t, s.Save(ctx, want))

			got, err := s.Load(ctx)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, want, *got)

			require.NoError(t, s.Clear(ctx))
			got, err = s.Load(ctx)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestClear_Idempotente(t *testing.T) {
	s, err := localstore.NewCredentialStore(t.TempDir(), "", logger.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Clear(context.Background()))
	require.NoError(t, s.Clear(context.Background()))
}

func TestLoad_CorruptoSeLimpia(t *testing.T) {
	dir := t.TempDir()
	s, err := localstore.NewCredentialStore(dir, "", logger.Nop())
	require.NoError(t, err)
	path := filepath.Join(dir, "credentials.json")

	cases := []string{
		`{no es json`,
		`{"access_token":"a","refresh_token":"r","identity":"{roto"}`,
		`{"access_token":"a","refresh_token":"","identity":"{}"}`,
	}
	for _, content := range cases {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		got, err := s.Load(context.Background())
		require.NoError(t, err)
		assert.Nil(t, got)
		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr), "la entrada corrupta debe borrarse: %s", content)
	}
}

func TestLoad_SecretoDistinto(t *testing.T) {
	dir := t.TempDir()
	a, err := localstore.NewCredentialStore(dir, "uno", logger.Nop())
	require.NoError(t, err)
	require.NoError(t, a.Save(context.Background(), sampleCreds()))

	raw, err := os.ReadFile(filepath.Join(dir, "credentials.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "mgr1", "el archivo sellado no expone la identidad")

	b, err := localstore.NewCredentialStore(dir, "dos", logger.Nop())
	require.NoError(t, err)
	got, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSave_Incompleto(t *testing.T) {
	dir := t.TempDir()
	s, err := localstore.NewCredentialStore(dir, "", logger.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), sampleCreds()))

	err = s.Save(context.Background(), entity.Credentials{RefreshToken: "solo-refresh"})
	require.Error(t, err)

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a1", got.AccessToken, "un Save rechazado deja el estado previo")
}
