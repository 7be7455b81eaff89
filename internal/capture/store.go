package capture

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const maxNameAttempts = 1000

// FileStore writes capture artifacts into a flat directory.
type FileStore struct {
	dir string
	now func() time.Time
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir, now: time.Now}
}

func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return nil
}

// Save writes data as capture-<epoch-millis>.<ext> and returns the file name.
// Existing names are never overwritten; the millisecond stamp is bumped instead.
func (s *FileStore) Save(ext string, data []byte) (string, error) {
	if err := s.EnsureDir(); err != nil {
		return "", err
	}

	stamp := s.now().UnixMilli()
	for i := int64(0); i < maxNameAttempts; i++ {
		name := fmt.Sprintf("capture-%d.%s", stamp+i, ext)
		path := filepath.Join(s.dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", name, err)
		}

		_, werr := f.Write(data)
		cerr := f.Close()
		if werr == nil {
			werr = cerr
		}
		if werr != nil {
			_ = os.Remove(path)
			return "", fmt.Errorf("write %s: %w", name, werr)
		}
		return name, nil
	}
	return "", fmt.Errorf("no free file name after %d attempts", maxNameAttempts)
}

// Lookup returns the path of a stored regular file. Names that are not a bare
// file name inside the directory report fs.ErrNotExist.
func (s *FileStore) Lookup(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fs.ErrNotExist
	}

	path := filepath.Join(s.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return "", fs.ErrNotExist
	}
	if !info.Mode().IsRegular() {
		return "", fs.ErrNotExist
	}
	return path, nil
}
