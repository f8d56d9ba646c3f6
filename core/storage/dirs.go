// Package storage provides platform-native directory resolution with XDG support.
package storage

import (
	"os"
	"path/filepath"
	"sync"
)

// AppName names every directory the service owns.
const AppName = "duet"

// Dirs provides platform-native directory resolution with XDG support.
type Dirs struct {
	Config string // User configuration
	Data   string // Persistent data (handoff journal)
	State  string // Runtime state (logs)
}

// ProjectDirs returns project-local directories.
type ProjectDirs struct {
	Root   string // .duet/
	Config string // .duet/config.yaml (committed)
	Local  string // .duet/local/ (gitignored)
}

var (
	globalDirs     *Dirs
	globalDirsOnce sync.Once
	globalDirsErr  error
)

// ResolveDirs returns platform-appropriate directories.
// Results are cached after first call.
func ResolveDirs() (*Dirs, error) {
	globalDirsOnce.Do(func() {
		globalDirs, globalDirsErr = resolveDirsImpl()
	})
	return globalDirs, globalDirsErr
}

func resolveDirsImpl() (*Dirs, error) {
	dirs := &Dirs{
		Config: resolveDir("XDG_CONFIG_HOME", platformConfigDefault()),
		Data:   resolveDir("XDG_DATA_HOME", platformDataDefault()),
		State:  resolveDir("XDG_STATE_HOME", platformStateDefault()),
	}
	return dirs, nil
}

func resolveDir(envVar, fallback string) string {
	if dir := os.Getenv(envVar); dir != "" {
		return filepath.Join(dir, AppName)
	}
	return fallback
}

// ResolveProjectDirs returns project-local directories for the given project root.
func ResolveProjectDirs(projectRoot string) *ProjectDirs {
	root := filepath.Join(projectRoot, "."+AppName)
	return &ProjectDirs{
		Root:   root,
		Config: filepath.Join(root, "config.yaml"),
		Local:  filepath.Join(root, "local"),
	}
}

// EnsureDir creates a directory with the specified permissions if it doesn't exist.
// Uses 0700 for sensitive directories by default.
func EnsureDir(path string, perm os.FileMode) error {
	if perm == 0 {
		perm = 0700
	}
	return os.MkdirAll(path, perm)
}

// ConfigDir returns the config subdirectory path.
func (d *Dirs) ConfigDir(subpath ...string) string {
	return filepath.Join(append([]string{d.Config}, subpath...)...)
}

// DataDir returns the data subdirectory path.
func (d *Dirs) DataDir(subpath ...string) string {
	return filepath.Join(append([]string{d.Data}, subpath...)...)
}

// StateDir returns the state subdirectory path.
func (d *Dirs) StateDir(subpath ...string) string {
	return filepath.Join(append([]string{d.State}, subpath...)...)
}

// JournalPath returns the default handoff journal location.
func (d *Dirs) JournalPath() string {
	return d.DataDir("handoffs.db")
}

// LogDir returns the log directory.
func (d *Dirs) LogDir() string {
	return d.StateDir("logs")
}

// EnsureAll creates all standard directories with appropriate permissions.
func (d *Dirs) EnsureAll() error {
	if err := EnsureDir(d.Config, 0700); err != nil {
		return err
	}
	for _, dir := range []string{d.Data, d.State, d.LogDir()} {
		if err := EnsureDir(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
