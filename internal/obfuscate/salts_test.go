package obfuscate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"obfuscate/internal/hashing"
	"obfuscate/internal/mapreduce"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestEnsureSalts_Generates(t *testing.T) {
	dir := t.TempDir()
	secrets := filepath.Join(dir, "secrets.txt")
	salts := filepath.Join(dir, "salts.txt")
	writeFile(t, secrets, "alice\n\nbob\ncarol\n")

	generated, err := EnsureSalts(context.Background(), mapreduce.LocalFS{}, salts, secrets, &fakeHasher{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, generated)
	assert.Equal(t, "salt-1\nsalt-2\nsalt-3\n", readFile(t, salts))
	assert.NoFileExists(t, salts+".tmp")
}

func TestEnsureSalts_Idempotent(t *testing.T) {
	dir := t.TempDir()
	secrets := filepath.Join(dir, "secrets.txt")
	salts := filepath.Join(dir, "salts.txt")
	writeFile(t, secrets, "alice\nbob\n")

	h := &hashing.Argon2{Time: 1, Memory: 64, Threads: 1}
	logger := zaptest.NewLogger(t)

	generated, err := EnsureSalts(context.Background(), mapreduce.LocalFS{}, salts, secrets, h, logger)
	require.NoError(t, err)
	require.True(t, generated)
	first := readFile(t, salts)
	assert.Len(t, strings.Split(strings.TrimSpace(first), "\n"), 2)

	// Even a changed vocabulary must not regenerate an existing store.
	writeFile(t, secrets, "alice\nbob\ncarol\n")
	generated, err = EnsureSalts(context.Background(), mapreduce.LocalFS{}, salts, secrets, h, logger)
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Equal(t, first, readFile(t, salts))
}

func TestEnsureSalts_MissingVocabulary(t *testing.T) {
	dir := t.TempDir()
	salts := filepath.Join(dir, "salts.txt")

	_, err := EnsureSalts(context.Background(), mapreduce.LocalFS{}, salts, filepath.Join(dir, "missing"), &fakeHasher{}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.NoFileExists(t, salts)
}

type failingHasher struct {
	fakeHasher
	after int
}

func (f *failingHasher) GenerateSalt() (string, error) {
	if f.generated >= f.after {
		return "", errors.New("entropy exhausted")
	}
	return f.fakeHasher.GenerateSalt()
}

func TestEnsureSalts_GenerationFailureLeavesNoStore(t *testing.T) {
	dir := t.TempDir()
	secrets := filepath.Join(dir, "secrets.txt")
	salts := filepath.Join(dir, "salts.txt")
	writeFile(t, secrets, "a\nb\nc\n")

	_, err := EnsureSalts(context.Background(), mapreduce.LocalFS{}, salts, secrets, &failingHasher{after: 2}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.NoFileExists(t, salts)
	assert.NoFileExists(t, salts+".tmp")
}

func TestEnsureSalts_EmptyVocabulary(t *testing.T) {
	dir := t.TempDir()
	secrets := filepath.Join(dir, "secrets.txt")
	salts := filepath.Join(dir, "salts.txt")
	writeFile(t, secrets, "\n\n")

	generated, err := EnsureSalts(context.Background(), mapreduce.LocalFS{}, salts, secrets, &fakeHasher{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, generated)
	assert.Equal(t, "", readFile(t, salts))
}
