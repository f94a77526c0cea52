package mapreduce

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readAll(t *testing.T, fsys FileSystem, splits []Split) []string {
	t.Helper()
	var lines []string
	for _, s := range splits {
		r, err := OpenSplit(fsys, s)
		require.NoError(t, err)
		for {
			line, ok, err := r.Next()
			require.NoError(t, err)
			if !ok {
				break
			}
			lines = append(lines, line)
		}
		require.NoError(t, r.Close())
	}
	return lines
}

func TestLineReader_WholeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.txt")
	writeFile(t, path, "alpha\r\nbeta\n\ngamma")

	lines := readAll(t, LocalFS{}, []Split{{Path: path, Start: 0, End: 18}})
	assert.Equal(t, []string{"alpha", "beta", "", "gamma"}, lines)
}

func TestLineReader_NoPhantomTrailingRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.txt")
	writeFile(t, path, "one\ntwo\n")

	lines := readAll(t, LocalFS{}, []Split{{Path: path, Start: 0, End: 8}})
	assert.Equal(t, []string{"one", "two"}, lines)
}

func TestLineReader_EveryLineOwnedOnce(t *testing.T) {
	var b strings.Builder
	var want []string
	for i := 0; i < 200; i++ {
		line := strings.Repeat(string(rune('a'+i%26)), i%17)
		want = append(want, line)
		b.WriteString(line)
		b.WriteString("\n")
	}
	path := filepath.Join(t.TempDir(), "input.txt")
	writeFile(t, path, b.String())

	for _, size := range []int64{1, 2, 3, 7, 16, 100, 1 << 20} {
		splits, err := ComputeSplits(LocalFS{}, path, size)
		require.NoError(t, err)
		assert.Equal(t, want, readAll(t, LocalFS{}, splits), "split size %d", size)
	}
}

func TestLineReader_SplitStartingOnLineBoundary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.txt")
	writeFile(t, path, "abc\ndef\nghi\n")

	first := readAll(t, LocalFS{}, []Split{{Path: path, Start: 0, End: 4}})
	second := readAll(t, LocalFS{}, []Split{{Path: path, Start: 4, End: 12}})
	assert.Equal(t, []string{"abc"}, first)
	assert.Equal(t, []string{"def", "ghi"}, second)
}

func TestLineReader_Gzip(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write([]byte("alice\nbob\n"))
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	path := filepath.Join(t.TempDir(), "input.txt.gz")
	writeFile(t, path, buf.String())

	splits, err := ComputeSplits(LocalFS{}, path, 1)
	require.NoError(t, err)
	require.Len(t, splits, 1)
	assert.Equal(t, int64(-1), splits[0].End)
	assert.Equal(t, []string{"alice", "bob"}, readAll(t, LocalFS{}, splits))
}

func TestLineReader_Zstd(t *testing.T) {
	zw, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	require.NoError(t, err)
	compressed := zw.EncodeAll([]byte("carol\ndave\n"), nil)

	path := filepath.Join(t.TempDir(), "input.txt.zst")
	writeFile(t, path, string(compressed))

	splits, err := ComputeSplits(LocalFS{}, path, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"carol", "dave"}, readAll(t, LocalFS{}, splits))
}
