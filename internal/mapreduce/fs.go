package mapreduce

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// File is a readable, seekable input stream.
type File interface {
	io.ReadCloser
	io.Seeker
}

// FileInfo describes a single entry returned by FileSystem.List or Stat.
type FileInfo struct {
	Path  string
	Size  int64
	IsDir bool
}

// FileSystem is the storage abstraction used by the job runner and by
// mapper setup code. Paths are opaque to callers.
type FileSystem interface {
	Open(path string) (File, error)
	// Create truncates or creates path, creating parent directories.
	Create(path string) (io.WriteCloser, error)
	Exists(path string) (bool, error)
	// Delete reports whether anything was removed. Deleting a non-empty
	// directory without recursive is an error.
	Delete(path string, recursive bool) (bool, error)
	Stat(path string) (FileInfo, error)
	// List returns the direct children of a directory sorted by path.
	List(dir string) ([]FileInfo, error)
	Rename(src, dst string) error
	MkdirAll(dir string) error
}

// LocalFS is a FileSystem backed by the local operating system.
type LocalFS struct{}

var _ FileSystem = LocalFS{}

func (LocalFS) Open(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (LocalFS) Create(path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (LocalFS) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (l LocalFS) Delete(path string, recursive bool) (bool, error) {
	ok, err := l.Exists(path)
	if err != nil || !ok {
		return false, err
	}
	if recursive {
		err = os.RemoveAll(path)
	} else {
		err = os.Remove(path)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (LocalFS) Stat(path string) (FileInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{Path: path, Size: st.Size(), IsDir: st.IsDir()}, nil
}

func (LocalFS) List(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	infos := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		st, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", e.Name(), err)
		}
		infos = append(infos, FileInfo{
			Path:  filepath.Join(dir, e.Name()),
			Size:  st.Size(),
			IsDir: st.IsDir(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}

func (LocalFS) Rename(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.Rename(src, dst)
}

func (LocalFS) MkdirAll(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
