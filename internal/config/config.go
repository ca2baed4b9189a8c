package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/framescope/framescope/internal/logger"
)

// CaptureConfig tunes the capture pipeline.
type CaptureConfig struct {
	// FPS is the frame cadence backends without a native vsync-driven
	// delivery (x11, win32 GDI) use for their timers.
	FPS int `json:"fps" yaml:"fps"`

	// PollIntervalMS paces consumer-side waits (await-first-frame, stop).
	PollIntervalMS int `json:"poll_interval_ms" yaml:"poll_interval_ms"`

	// StopTimeoutMS bounds the shutdown responsiveness wait.
	StopTimeoutMS int `json:"stop_timeout_ms" yaml:"stop_timeout_ms"`

	// AwaitFirstFrame makes Start block until the first frame arrived.
	AwaitFirstFrame bool `json:"await_first_frame" yaml:"await_first_frame"`
}

// ServerConfig tunes the HTTP streaming surface.
type ServerConfig struct {
	Port         int `json:"port" yaml:"port"`
	StreamWidth  int `json:"stream_width" yaml:"stream_width"`
	StreamHeight int `json:"stream_height" yaml:"stream_height"`
	StreamFPS    int `json:"stream_fps" yaml:"stream_fps"`
	JPEGQuality  int `json:"jpeg_quality" yaml:"jpeg_quality"`
}

// Config is the application configuration.
type Config struct {
	// Backend selects the platform backend: "auto", "sim", "x11", "win32".
	Backend  string        `json:"backend" yaml:"backend"`
	Capture  CaptureConfig `json:"capture" yaml:"capture"`
	Server   ServerConfig  `json:"server" yaml:"server"`
	LogLevel string        `json:"log_level" yaml:"log_level"`
}

// Manager handles configuration loading and persistence.
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// NewManager creates a configuration manager. An empty configFile selects
// ~/.config/framescope/config.yaml, created with defaults when missing.
func NewManager(configFile string) (*Manager, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".config", "framescope")
	actualConfigPath := filepath.Join(configDir, "config.yaml")
	if configFile != "" {
		actualConfigPath = configFile
	} else {
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	m := &Manager{configPath: actualConfigPath}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = Defaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Str("backend", m.config.Backend).
		Msg("Config loaded")

	return m, nil
}

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Backend:  "auto",
		LogLevel: "info",
		Capture: CaptureConfig{
			FPS:             30,
			PollIntervalMS:  10,
			StopTimeoutMS:   100,
			AwaitFirstFrame: true,
		},
		Server: ServerConfig{
			Port:         8080,
			StreamWidth:  1280,
			StreamHeight: 720,
			StreamFPS:    15,
			JPEGQuality:  90,
		},
	}
}

// load reads the configuration from disk.
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Save writes the configuration to disk.
func (m *Manager) Save() error {
	m.mu.RLock()
	data, err := yaml.Marshal(m.config)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.config
}

// GetConfigPath returns the path of the backing file.
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// SetPort overrides the server port.
func (m *Manager) SetPort(port int) {
	m.mu.Lock()
	m.config.Server.Port = port
	m.mu.Unlock()
}

// SetLogLevel overrides the log level.
func (m *Manager) SetLogLevel(level string) {
	m.mu.Lock()
	m.config.LogLevel = level
	m.mu.Unlock()
}

// SetBackend overrides the platform backend selection.
func (m *Manager) SetBackend(backend string) {
	m.mu.Lock()
	m.config.Backend = backend
	m.mu.Unlock()
}

// Update replaces the configuration and persists it.
func (m *Manager) Update(cfg *Config) error {
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return m.Save()
}
