package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the storyboard home directory.
	DefaultDirName = ".storyboard"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// DatabaseFileName is the SQLite store file inside DatabaseDir.
	DatabaseFileName = "storyboard.db"
)

// Dir represents the storyboard home directory structure:
//
//	~/.storyboard/
//	  config.yaml
//	  db/storyboard.db   SQLite store
//	  defradb/           DefraDB container data
//	  assets/            generated files served at /assets/
//	  exports/           storyboard PDFs
//	  locks/             per-project run locks
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.storyboard).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// DatabaseDir returns the directory holding the SQLite store.
func (d *Dir) DatabaseDir() string {
	return filepath.Join(d.path, "db")
}

// DatabasePath returns the default SQLite store path.
func (d *Dir) DatabasePath() string {
	return filepath.Join(d.DatabaseDir(), DatabaseFileName)
}

// DefraDataPath returns the DefraDB container data directory.
func (d *Dir) DefraDataPath() string {
	return filepath.Join(d.path, "defradb")
}

// AssetsDir returns the directory for locally stored generated assets.
func (d *Dir) AssetsDir() string {
	return filepath.Join(d.path, "assets")
}

// ExportsDir returns the directory for exported storyboards.
func (d *Dir) ExportsDir() string {
	return filepath.Join(d.path, "exports")
}

// LocksDir returns the directory for per-project run lock files.
func (d *Dir) LocksDir() string {
	return filepath.Join(d.path, "locks")
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.DatabaseDir(), d.DefraDataPath(), d.AssetsDir(), d.ExportsDir(), d.LocksDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
