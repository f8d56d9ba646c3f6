package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adalundhe/duet/core/providers"
	"github.com/adalundhe/duet/core/storage"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	configDir := t.TempDir()
	dirs := &storage.Dirs{
		Config: configDir,
		Data:   t.TempDir(),
		State:  t.TempDir(),
	}
	m := NewManager(dirs)
	m.SetProjectRoot(t.TempDir())
	return m, configDir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LLM.Provider != providers.ProviderTypeOpenAI {
		t.Errorf("LLM.Provider: got %s, want openai", cfg.LLM.Provider)
	}
	if cfg.Handoff.KeepLastNMessages != 6 {
		t.Errorf("Handoff.KeepLastNMessages: got %d, want 6", cfg.Handoff.KeepLastNMessages)
	}
	if cfg.Handoff.KeepSystemMessage || !cfg.Handoff.KeepFunctionCall {
		t.Errorf("Handoff flags: got %+v", cfg.Handoff)
	}
	if cfg.Session.InitialPersona != "voice agent" {
		t.Errorf("Session.InitialPersona: got %s, want voice agent", cfg.Session.InitialPersona)
	}
	if cfg.Session.Summary != "Emotional support system" {
		t.Errorf("Session.Summary: got %s", cfg.Session.Summary)
	}
	if cfg.Coordination.Enabled() {
		t.Error("Coordination should be disabled without a URL")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestManagerGet(t *testing.T) {
	m, _ := newTestManager(t)

	cfg := m.Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}
	if cfg.Room.Addr != ":8080" {
		t.Errorf("Room.Addr: got %s, want :8080", cfg.Room.Addr)
	}
}

func TestManagerLoadLayers(t *testing.T) {
	m, configDir := newTestManager(t)
	project := t.TempDir()
	m.SetProjectRoot(project)

	writeFile(t, filepath.Join(project, ".duet", "config.yaml"), `
handoff:
  keep_last_n_messages: 4
room:
  addr: ":7000"
`)
	writeFile(t, filepath.Join(configDir, "config.yaml"), `
room:
  addr: ":7001"
session:
  summary: "Night shift support"
`)
	writeFile(t, filepath.Join(project, ".duet", "local", "config.yaml"), `
session:
  max_tool_rounds: 5
`)

	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := m.Get()
	if cfg.Handoff.KeepLastNMessages != 4 {
		t.Errorf("KeepLastNMessages: got %d, want 4", cfg.Handoff.KeepLastNMessages)
	}
	if cfg.Room.Addr != ":7001" {
		t.Errorf("Room.Addr: got %s, want :7001 (user layer wins over project)", cfg.Room.Addr)
	}
	if cfg.Session.Summary != "Night shift support" {
		t.Errorf("Summary: got %s", cfg.Session.Summary)
	}
	if cfg.Session.MaxToolRounds != 5 {
		t.Errorf("MaxToolRounds: got %d, want 5", cfg.Session.MaxToolRounds)
	}
	if !cfg.Handoff.KeepFunctionCall {
		t.Error("KeepFunctionCall should keep its default")
	}
}

func TestManagerExplicitFile(t *testing.T) {
	m, _ := newTestManager(t)

	missing := filepath.Join(t.TempDir(), "missing.yaml")
	m.SetFile(missing)
	if err := m.Load(); err == nil {
		t.Fatal("missing explicit file should fail")
	}

	path := filepath.Join(t.TempDir(), "duet.yaml")
	writeFile(t, path, "llm:\n  provider: anthropic\n")
	m.SetFile(path)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Get().LLM.Provider != providers.ProviderTypeAnthropic {
		t.Errorf("Provider: got %s, want anthropic", m.Get().LLM.Provider)
	}
}

func TestManagerInvalidKeepsPrevious(t *testing.T) {
	m, configDir := newTestManager(t)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	writeFile(t, filepath.Join(configDir, "config.yaml"), "llm:\n  provider: mystery\n")
	if err := m.Load(); err == nil {
		t.Fatal("unknown provider should fail validation")
	}
	if m.Get().LLM.Provider != providers.ProviderTypeOpenAI {
		t.Errorf("previous config should remain: got %s", m.Get().LLM.Provider)
	}
}

func TestManagerEnvironmentOverride(t *testing.T) {
	m, _ := newTestManager(t)

	t.Setenv("DUET_LLM_PROVIDER", "Anthropic")
	t.Setenv("DUET_LLM_MAX_RETRIES", "4")
	t.Setenv("DUET_HANDOFF_KEEP_LAST_N", "2")
	t.Setenv("CORAL_SSE_URL", "http://coral.local/sse")
	t.Setenv("CORAL_AGENT_ID", "duet-1")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := m.Get()
	if cfg.LLM.Provider != providers.ProviderTypeAnthropic {
		t.Errorf("Provider: got %s, want anthropic", cfg.LLM.Provider)
	}
	if cfg.LLM.Anthropic.MaxRetries != 4 || cfg.LLM.OpenAI.MaxRetries != 4 {
		t.Errorf("MaxRetries: got %d/%d, want 4", cfg.LLM.Anthropic.MaxRetries, cfg.LLM.OpenAI.MaxRetries)
	}
	if cfg.Handoff.KeepLastNMessages != 2 {
		t.Errorf("KeepLastNMessages: got %d, want 2", cfg.Handoff.KeepLastNMessages)
	}
	if cfg.Coordination.SSEURL != "http://coral.local/sse" || cfg.Coordination.AgentID != "duet-1" {
		t.Errorf("Coordination: got %+v", cfg.Coordination)
	}
	if cfg.LLM.Anthropic.APIKey != "sk-test" {
		t.Errorf("Anthropic.APIKey: got %q", cfg.LLM.Anthropic.APIKey)
	}
}

func TestManagerOverrides(t *testing.T) {
	m, configDir := newTestManager(t)
	writeFile(t, filepath.Join(configDir, "config.yaml"), "room:\n  addr: \":7001\"\n")

	o := &Config{}
	o.Room.Addr = ":9999"
	o.Log.Level = "debug"
	m.SetOverrides(o)

	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Get().Room.Addr != ":9999" {
		t.Errorf("Room.Addr: got %s, want :9999", m.Get().Room.Addr)
	}
	if m.Get().Log.Level != "debug" {
		t.Errorf("Log.Level: got %s, want debug", m.Get().Log.Level)
	}
	if m.Get().Log.Format != "text" {
		t.Errorf("Log.Format should keep its default: got %s", m.Get().Log.Format)
	}
}

func TestManagerOnChange(t *testing.T) {
	m, _ := newTestManager(t)

	called := false
	m.OnChange(func(cfg *Config) {
		called = true
	})

	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !called {
		t.Error("OnChange callback should have been called")
	}
}

func TestManagerReload(t *testing.T) {
	m, configDir := newTestManager(t)

	configPath := filepath.Join(configDir, "config.yaml")
	writeFile(t, configPath, "handoff:\n  keep_last_n_messages: 3\n")

	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := m.Get().Handoff.KeepLastNMessages; got != 3 {
		t.Errorf("Initial KeepLastNMessages: got %d, want 3", got)
	}

	writeFile(t, configPath, "handoff:\n  keep_last_n_messages: 7\n")
	if err := m.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if got := m.Get().Handoff.KeepLastNMessages; got != 7 {
		t.Errorf("Reloaded KeepLastNMessages: got %d, want 7", got)
	}
}

func TestManagerWatch(t *testing.T) {
	m, configDir := newTestManager(t)
	configPath := filepath.Join(configDir, "config.yaml")
	writeFile(t, configPath, "room:\n  addr: \":7001\"\n")
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	var reloads atomic.Int32
	m.OnChange(func(*Config) { reloads.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx, WatchOptions{Debounce: 10 * time.Millisecond}) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, configPath, "room:\n  addr: \":7002\"\n")

	deadline := time.Now().Add(3 * time.Second)
	for m.Get().Room.Addr != ":7002" && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if m.Get().Room.Addr != ":7002" {
		t.Errorf("Room.Addr after edit: got %s, want :7002", m.Get().Room.Addr)
	}
	if reloads.Load() == 0 {
		t.Error("OnChange should fire on reload")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
}

func TestManagerClose(t *testing.T) {
	m, _ := newTestManager(t)

	done := make(chan error, 1)
	go func() { done <- m.Watch(context.Background(), WatchOptions{}) }()

	if err := m.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("Double close should not fail: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop after Close")
	}
}
