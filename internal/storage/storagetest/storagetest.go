// Package storagetest builds record stores for tests.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"supportchat/backend/internal/storage"
)

// NewService returns a Service on a file backend in a fresh temporary
// directory, along with the directory.
func NewService(t testing.TB) (*storage.Service, string) {
	t.Helper()
	dir := t.TempDir()
	b, err := storage.NewFileBackend(dir)
	require.NoError(t, err)
	s, err := storage.NewStorageService(context.Background(), b)
	require.NoError(t, err)
	return s, dir
}

// Reopen loads a second Service from the same directory, as a restarted
// process would.
func Reopen(t testing.TB, dir string) *storage.Service {
	t.Helper()
	b, err := storage.NewFileBackend(dir)
	require.NoError(t, err)
	s, err := storage.NewStorageService(context.Background(), b)
	require.NoError(t, err)
	return s
}
