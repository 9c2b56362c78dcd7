package storagesvc

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/congress/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func TestLocal(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewLocal(root)
	require.NoError(t, err)
	assert.Equal(t, BackendLocal, s.Backend())

	key := "diplomas/a1/7K2M-Q9XD-4TBA.pdf"
	require.NoError(t, s.Save(ctx, key, strings.NewReader("%PDF-1.3"), 8, "application/pdf"))
	assert.FileExists(t, filepath.Join(root, "diplomas", "a1", "7K2M-Q9XD-4TBA.pdf"))

	// no temp file left behind
	entries, err := os.ReadDir(filepath.Join(root, "diplomas", "a1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	rc, err := s.Open(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "%PDF-1.3", string(data))

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Open(ctx, key)
	assert.Equal(t, core.ErrFileNotFound, err)
	assert.NoError(t, s.Delete(ctx, key), "deleting a missing file is a no-op")
}

func TestLocal_InvalidKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "/etc/passwd", "../escape.pdf", "a/../../escape.pdf", "a//b.pdf", "./a.pdf", `a\b.pdf`} {
		t.Run(key, func(t *testing.T) {
			assert.Equal(t, ErrInvalidKey, s.Save(ctx, key, strings.NewReader("x"), 1, ""))
			_, err := s.Open(ctx, key)
			assert.Equal(t, ErrInvalidKey, err)
			assert.Equal(t, ErrInvalidKey, s.Delete(ctx, key))
		})
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		env         string
		backend     string
		wantBackend string
		wantErr     bool
	}{
		{name: "local", env: "DEV", backend: BackendLocal, wantBackend: BackendLocal},
		{name: "default", env: "DEV", backend: "", wantBackend: BackendLocal},
		{name: "blob without endpoint in dev", env: "DEV", backend: BackendBlob, wantBackend: BackendLocal},
		{name: "blob without endpoint in prod", env: "PROD", backend: BackendBlob, wantErr: true},
		{name: "unknown", env: "DEV", backend: "ftp", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := core.NewTestConfig(t.TempDir())
			conf.Env = tt.env
			conf.Storage.Backend = tt.backend

			s, err := New(ctx, conf, nopLogger{})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBackend, s.Backend())
		})
	}
}
