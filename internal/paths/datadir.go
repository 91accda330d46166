package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// EnvDataDir overrides the data directory when set.
const EnvDataDir = "P2P_DIRECTORY_DATA_DIR"

const appDir = "p2p-directory"

// DefaultDataDir returns a per-user directory appropriate for persisting node state.
// EnvDataDir wins; otherwise it prefers os.UserConfigDir and falls back to the
// current directory.
func DefaultDataDir() string {
	if v := strings.TrimSpace(os.Getenv(EnvDataDir)); v != "" {
		return filepath.Clean(v)
	}
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, appDir)
	}
	return "." + appDir
}

// EnsureDir makes sure dir exists and returns the cleaned path.
func EnsureDir(dir string) (string, error) {
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// In resolves name inside dir unless name is already absolute.
func In(dir, name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}
