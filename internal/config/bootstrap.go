package config

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

// EnsureUserConfig copies defaultPath into dataDir/config.yml on first run.
// A missing default is not an error: built-in defaults apply.
func EnsureUserConfig(dataDir string, defaultPath string) (string, error) {
	return copyIfMissing(filepath.Join(dataDir, "config.yml"), defaultPath)
}

// EnsureUserSources does the same for the registry seed.
func EnsureUserSources(dataDir string, defaultPath string) (string, error) {
	return copyIfMissing(SourcesPath(dataDir), defaultPath)
}

// SourcesPath is where the registry seed lives inside the data dir.
func SourcesPath(dataDir string) string {
	return filepath.Join(dataDir, "sources.yml")
}

func copyIfMissing(userPath, defaultPath string) (string, error) {
	_, err := os.Stat(userPath)
	if err == nil {
		return userPath, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	src, err := os.Open(defaultPath)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(userPath), 0o755); err != nil {
		return "", err
	}
	dst, err := os.Create(userPath)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}
	return userPath, nil
}
