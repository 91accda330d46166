// Package accountsjson keeps accounts in a single human-readable JSON file
// that is rewritten atomically (temp file, fsync, rename, fsync dir) on every
// append.
package accountsjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"p2p-directory/internal/app/accounts"
)

const fileVersion = 1

type fileFormat struct {
	Version int                   `json:"version"`
	Users   []accounts.UserRecord `json:"users"`
}

// Store is a JSON-file implementation of accounts.Store.
type Store struct {
	path string

	mu   sync.Mutex
	recs []accounts.UserRecord
}

// Open reads path, or starts empty when it does not exist yet. A file that
// cannot be parsed yields accounts.ErrCorruptStore.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("empty store path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, err
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", accounts.ErrCorruptStore, path, err)
	}
	if f.Version != fileVersion {
		return nil, fmt.Errorf("%w: %s: version %d", accounts.ErrCorruptStore, path, f.Version)
	}
	s.recs = f.Users
	return s, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) Append(r accounts.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]accounts.UserRecord, len(s.recs), len(s.recs)+1)
	copy(next, s.recs)
	next = append(next, r)

	data, err := json.MarshalIndent(fileFormat{Version: fileVersion, Users: next}, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.path, append(data, '\n')); err != nil {
		return err
	}
	s.recs = next
	return nil
}

func (s *Store) Load(fn func(r accounts.UserRecord) error) error {
	s.mu.Lock()
	recs := s.recs
	s.mu.Unlock()
	for _, r := range recs {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
