package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adalundhe/duet/agents/voice"
	"github.com/adalundhe/duet/core/coordination"
	"github.com/adalundhe/duet/core/handoff"
	"github.com/adalundhe/duet/core/orchestrator"
	"github.com/adalundhe/duet/core/persona"
	"github.com/adalundhe/duet/core/providers"
	"github.com/adalundhe/duet/core/room"
	"github.com/adalundhe/duet/core/session"
	"github.com/adalundhe/duet/core/storage"
)

// Manager holds the current configuration. Get is lock-free; Load builds a
// new configuration from every layer and swaps it in.
type Manager struct {
	current     atomic.Pointer[Config]
	dirs        *storage.Dirs
	projectRoot string
	explicit    string
	overrides   *Config

	watchers  []func(*Config)
	watcherMu sync.RWMutex
	stopWatch chan struct{}
	watchOnce sync.Once
}

type Config struct {
	LLM          providers.Config       `yaml:"llm"`
	Handoff      handoff.TruncateConfig `yaml:"handoff"`
	Session      SessionConfig          `yaml:"session"`
	Personas     PersonasConfig         `yaml:"personas"`
	Room         RoomConfig             `yaml:"room"`
	Coordination coordination.Config    `yaml:"coordination"`
	Journal      JournalConfig          `yaml:"journal"`
	Metrics      MetricsConfig          `yaml:"metrics"`
	Log          LogConfig              `yaml:"log"`
}

type SessionConfig struct {
	orchestrator.Config `yaml:",inline"`

	// Summary is the shared user data every persona is told about.
	Summary     string `yaml:"summary"`
	HistorySize int    `yaml:"history_size"`
}

type PersonaConfig struct {
	// Prompt overrides the embedded prompt file.
	Prompt   string           `yaml:"prompt"`
	Bindings persona.Bindings `yaml:"bindings"`
}

type PersonasConfig struct {
	Voice   PersonaConfig `yaml:"voice"`
	Support PersonaConfig `yaml:"support"`
}

type RoomConfig struct {
	room.WebSocketConfig `yaml:",inline"`

	Addr             string        `yaml:"addr"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
	RecentRooms      int           `yaml:"recent_rooms"`
}

type JournalConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path defaults to handoffs.db in the data directory.
	Path    string `yaml:"path"`
	MaxCost int64  `yaml:"max_cost"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NewManager creates a manager holding the defaults. Call Load to read the
// configuration layers.
func NewManager(dirs *storage.Dirs) *Manager {
	m := &Manager{
		dirs:        dirs,
		projectRoot: ".",
		stopWatch:   make(chan struct{}),
	}
	m.current.Store(DefaultConfig())
	return m
}

func DefaultConfig() *Config {
	sess := SessionConfig{
		Config:      orchestrator.DefaultConfig(),
		Summary:     session.DefaultSummary,
		HistorySize: handoff.DefaultHistorySize,
	}
	sess.InitialPersona = voice.Name

	return &Config{
		LLM:          providers.DefaultConfig(),
		Handoff:      handoff.DefaultTruncateConfig(),
		Session:      sess,
		Coordination: coordination.DefaultConfig(),
		Room: RoomConfig{
			WebSocketConfig:  room.DefaultWebSocketConfig(),
			Addr:             ":8080",
			HandshakeTimeout: 10 * time.Second,
			ShutdownTimeout:  10 * time.Second,
			RecentRooms:      room.DefaultRecentRooms,
		},
		Journal: JournalConfig{
			Enabled: true,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "duet",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SetFile adds an explicit config file, read after the project, user and
// local layers.
func (m *Manager) SetFile(path string) {
	m.explicit = path
}

// SetProjectRoot changes where the project layers are looked up.
func (m *Manager) SetProjectRoot(root string) {
	m.projectRoot = root
}

// SetOverrides installs values applied after every other layer. Zero
// fields in o leave the loaded value alone.
func (m *Manager) SetOverrides(o *Config) {
	m.overrides = o
}

func (m *Manager) Get() *Config {
	return m.current.Load()
}

// Files returns the config file paths the manager reads, in layer order.
func (m *Manager) Files() []string {
	projectDirs := storage.ResolveProjectDirs(m.projectRoot)
	files := []string{projectDirs.Config}
	if m.dirs != nil {
		files = append(files, m.dirs.ConfigDir("config.yaml"))
	}
	files = append(files, filepath.Join(projectDirs.Local, "config.yaml"))
	if m.explicit != "" {
		files = append(files, m.explicit)
	}
	return files
}

func (m *Manager) Load() error {
	cfg := DefaultConfig()

	for _, path := range m.Files() {
		required := path == m.explicit
		if err := loadYAMLFile(path, cfg, required); err != nil {
			return fmt.Errorf("config %s: %w", path, err)
		}
	}

	applyEnvironment(cfg)
	if m.overrides != nil {
		DeepMerge(cfg, m.overrides)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	m.current.Store(cfg)
	m.notifyWatchers(cfg)

	return nil
}

func loadYAMLFile(path string, cfg *Config, required bool) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) && !required {
		return nil
	}
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// Validate rejects configurations no conversation could start with.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case providers.ProviderTypeOpenAI, providers.ProviderTypeAnthropic:
	default:
		return fmt.Errorf("llm.provider: unknown provider %q", c.LLM.Provider)
	}
	if c.Session.InitialPersona == "" {
		return fmt.Errorf("session.initial_persona is required")
	}
	if c.Handoff.KeepLastNMessages < 0 {
		return fmt.Errorf("handoff.keep_last_n_messages must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	return nil
}

// JournalPath resolves the journal location against dirs.
func (c *Config) JournalPath(dirs *storage.Dirs) string {
	if c.Journal.Path != "" || dirs == nil {
		return c.Journal.Path
	}
	return dirs.JournalPath()
}

func applyEnvironment(cfg *Config) {
	if v := os.Getenv("DUET_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = providers.ProviderType(strings.ToLower(v))
	}
	if v := os.Getenv("DUET_LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LLM.OpenAI.Timeout = d
			cfg.LLM.Anthropic.Timeout = d
		}
	}
	if v := os.Getenv("DUET_LLM_MAX_RETRIES"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.LLM.OpenAI.MaxRetries = n
			cfg.LLM.Anthropic.MaxRetries = n
		}
	}
	if v := os.Getenv("DUET_LLM_TEMPERATURE"); v != "" {
		if f, err := parseFloat(v); err == nil {
			cfg.LLM.OpenAI.Temperature = f
			cfg.LLM.Anthropic.Temperature = f
		}
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.LLM.OpenAI.BaseURL = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.LLM.Anthropic.APIKey = v
	}
	if v := os.Getenv("DUET_HANDOFF_KEEP_LAST_N"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Handoff.KeepLastNMessages = n
		}
	}
	if v := os.Getenv("DUET_SESSION_SUMMARY"); v != "" {
		cfg.Session.Summary = v
	}
	if v := os.Getenv("DUET_SESSION_INITIAL_PERSONA"); v != "" {
		cfg.Session.InitialPersona = v
	}
	if v := os.Getenv("DUET_ROOM_ADDR"); v != "" {
		cfg.Room.Addr = v
	}
	if v := os.Getenv("CORAL_SSE_URL"); v != "" {
		cfg.Coordination.SSEURL = v
	}
	if v := os.Getenv("CORAL_AGENT_ID"); v != "" {
		cfg.Coordination.AgentID = v
	}
	if v := os.Getenv("DUET_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("DUET_JOURNAL_ENABLED"); v != "" {
		cfg.Journal.Enabled = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("DUET_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("DUET_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("DUET_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func (m *Manager) OnChange(fn func(*Config)) {
	m.watcherMu.Lock()
	m.watchers = append(m.watchers, fn)
	m.watcherMu.Unlock()
}

func (m *Manager) notifyWatchers(cfg *Config) {
	m.watcherMu.RLock()
	watchers := m.watchers
	m.watcherMu.RUnlock()

	for _, fn := range watchers {
		fn(cfg)
	}
}

func (m *Manager) Reload() error {
	return m.Load()
}

func (m *Manager) Close() error {
	m.watchOnce.Do(func() {
		close(m.stopWatch)
	})
	return nil
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func parseFloat(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(s, "%f", &f)
	return f, err
}
