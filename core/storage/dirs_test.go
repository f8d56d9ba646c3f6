package storage

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestResolveDirs(t *testing.T) {
	resetGlobalDirs()

	dirs, err := ResolveDirs()
	if err != nil {
		t.Fatalf("ResolveDirs failed: %v", err)
	}

	if dirs.Config == "" {
		t.Error("Config dir should not be empty")
	}
	if dirs.Data == "" {
		t.Error("Data dir should not be empty")
	}
	if dirs.State == "" {
		t.Error("State dir should not be empty")
	}

	if !strings.Contains(dirs.Config, AppName) {
		t.Errorf("Config dir should contain %q: %s", AppName, dirs.Config)
	}
}

func TestResolveDirsXDGOverride(t *testing.T) {
	resetGlobalDirs()
	t.Cleanup(resetGlobalDirs)

	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Setenv("XDG_DATA_HOME", tmpDir)

	dirs, err := ResolveDirs()
	if err != nil {
		t.Fatalf("ResolveDirs failed: %v", err)
	}

	expected := filepath.Join(tmpDir, AppName)
	if dirs.Config != expected {
		t.Errorf("XDG override failed: got %s, want %s", dirs.Config, expected)
	}
	if got := dirs.JournalPath(); got != filepath.Join(expected, "handoffs.db") {
		t.Errorf("JournalPath: got %s", got)
	}
}

func TestResolveProjectDirs(t *testing.T) {
	projectRoot := "/test/project"
	dirs := ResolveProjectDirs(projectRoot)

	if dirs.Root != filepath.Join(projectRoot, ".duet") {
		t.Errorf("Root: got %s, want %s", dirs.Root, filepath.Join(projectRoot, ".duet"))
	}
	if dirs.Config != filepath.Join(projectRoot, ".duet", "config.yaml") {
		t.Errorf("Config: got %s, want %s", dirs.Config, filepath.Join(projectRoot, ".duet", "config.yaml"))
	}
	if dirs.Local != filepath.Join(projectRoot, ".duet", "local") {
		t.Errorf("Local: got %s, want %s", dirs.Local, filepath.Join(projectRoot, ".duet", "local"))
	}
}

func TestEnsureDir(t *testing.T) {
	tmpDir := t.TempDir()
	testDir := filepath.Join(tmpDir, "test", "nested", "dir")

	err := EnsureDir(testDir, 0755)
	if err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}

	info, err := os.Stat(testDir)
	if err != nil {
		t.Fatalf("Dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("Created path is not a directory")
	}

	err = EnsureDir(testDir, 0755)
	if err != nil {
		t.Error("EnsureDir should be idempotent")
	}
}

func TestDirsHelperMethods(t *testing.T) {
	dirs := &Dirs{
		Config: "/config",
		Data:   "/data",
		State:  "/state",
	}

	if got := dirs.ConfigDir("sub"); got != filepath.Join("/config", "sub") {
		t.Errorf("ConfigDir: got %s", got)
	}
	if got := dirs.DataDir("a", "b"); got != filepath.Join("/data", "a", "b") {
		t.Errorf("DataDir: got %s", got)
	}
	if got := dirs.StateDir(); got != filepath.Clean("/state") {
		t.Errorf("StateDir: got %s", got)
	}
	if got := dirs.LogDir(); got != filepath.Join("/state", "logs") {
		t.Errorf("LogDir: got %s", got)
	}
}

func TestEnsureAll(t *testing.T) {
	tmpDir := t.TempDir()
	dirs := &Dirs{
		Config: filepath.Join(tmpDir, "config"),
		Data:   filepath.Join(tmpDir, "data"),
		State:  filepath.Join(tmpDir, "state"),
	}

	err := dirs.EnsureAll()
	if err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	for _, path := range []string{dirs.Config, dirs.Data, dirs.State, dirs.LogDir()} {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			t.Errorf("Dir should exist: %s", path)
		}
	}
}

func resetGlobalDirs() {
	globalDirs = nil
	globalDirsOnce = sync.Once{}
	globalDirsErr = nil
}
