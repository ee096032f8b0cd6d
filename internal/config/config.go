package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/voxdesk/internal/logging"
)

// Config is the complete voxdesk configuration.
type Config struct {
	Backend BackendConfig `toml:"backend"`
	Logging LoggingConfig `toml:"logging"`
	UI      UIConfig      `toml:"ui"`

	// Path is the file the configuration was read from, if any.
	Path string `toml:"-"`
}

// BackendConfig describes how the Python backend is located and started.
type BackendConfig struct {
	// Module is the Python module run as the long-lived backend service.
	Module string `toml:"module"`

	// Manager is the dependency manager detected at startup. Empty disables
	// checking and always uses Interpreter directly.
	Manager string `toml:"manager"`

	// ManagerArgs are placed between Manager and the python arguments,
	// e.g. ["run", "python"] for poetry.
	ManagerArgs []string `toml:"manager_args"`

	// Interpreter is the python executable used without a manager.
	Interpreter string `toml:"interpreter"`

	// Script is the one-shot command script, relative to the project root.
	Script string `toml:"script"`

	// ProjectRoot overrides project root resolution.
	ProjectRoot string `toml:"project_root"`

	// RootMarkers maps a working-directory base name to how many levels
	// to walk up to reach the project root.
	RootMarkers map[string]int `toml:"root_markers"`

	// Env is added to the inherited environment of backend processes.
	Env map[string]string `toml:"env"`

	// DetectTimeout bounds the dependency-manager check.
	DetectTimeout Duration `toml:"detect_timeout"`

	// MaxCommands bounds concurrent one-shot commands (0 = unlimited).
	MaxCommands int `toml:"max_commands"`

	// Autostart launches the backend service at startup.
	Autostart bool `toml:"autostart"`
}

// LoggingConfig configures the application logger.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// UIConfig configures the notification front end.
type UIConfig struct {
	// Mode is "window" for the terminal window or "jsonl" for JSON lines
	// on stdout.
	Mode string `toml:"mode"`

	// Hooks is an optional Lua script filtering notifications.
	Hooks string `toml:"hooks"`

	// Scrollback is how many lines the window keeps.
	Scrollback int `toml:"scrollback"`
}

// UI modes.
const (
	ModeWindow = "window"
	ModeJSONL  = "jsonl"
)

// Duration is a time.Duration that reads and writes as "5s" style text.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// DefaultInterpreter is the python executable name for the current platform.
func DefaultInterpreter() string {
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Backend: BackendConfig{
			Module:      "voxgrep.server",
			Manager:     "poetry",
			ManagerArgs: []string{"run", "python"},
			Interpreter: DefaultInterpreter(),
			Script:      filepath.Join("desktop", "desktop_api.py"),
			RootMarkers: map[string]int{
				"src-tauri": 2,
				"desktop":   1,
			},
			Env:           map[string]string{},
			DetectTimeout: Duration(5 * time.Second),
			MaxCommands:   1,
			Autostart:     true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: string(logging.FormatConsole),
		},
		UI: UIConfig{
			Mode:       ModeWindow,
			Scrollback: 1000,
		},
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "voxdesk", "config.toml")
}

// Load builds the configuration from defaults, the config file, and the
// environment, in increasing precedence.
//
// An empty path means DefaultPath, which may be absent. An explicit path
// must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	layers := []Loader{}
	if path != "" {
		layers = append(layers, NewFileLoader(path, explicit))
	}
	layers = append(layers, NewEnvLoader())

	cfg, err := loadLayers(layers...)
	if err != nil {
		return nil, err
	}

	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			cfg.Path = path
		}
	}

	return cfg, nil
}

// loadLayers merges defaults with each layer in order, decodes the result,
// and validates it.
func loadLayers(layers ...Loader) (*Config, error) {
	merged, err := defaultsMap()
	if err != nil {
		return nil, err
	}

	for _, l := range layers {
		layer, err := l.Load()
		if err != nil {
			return nil, err
		}
		merged = mergeLayer(merged, layer)
	}

	cfg, err := decode(merged)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaultsMap renders Default as a map so file and env layers merge into it
// key by key.
func defaultsMap() (map[string]any, error) {
	data, err := toml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("encoding defaults: %w", err)
	}
	var out map[string]any
	if err := toml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding defaults: %w", err)
	}
	return out, nil
}

func decode(merged map[string]any) (*Config, error) {
	data, err := toml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for values voxdesk can't use.
func (c *Config) Validate() error {
	if c.Backend.Module == "" {
		return &ValidationError{Key: "backend.module", Message: "must not be empty"}
	}
	if c.Backend.Interpreter == "" {
		return &ValidationError{Key: "backend.interpreter", Message: "must not be empty"}
	}
	if c.Backend.MaxCommands < 0 {
		return &ValidationError{Key: "backend.max_commands", Message: "must be zero or positive", Value: c.Backend.MaxCommands}
	}
	if c.Backend.DetectTimeout <= 0 {
		return &ValidationError{Key: "backend.detect_timeout", Message: "must be positive", Value: c.Backend.DetectTimeout.Std()}
	}
	for _, name := range c.Backend.MarkerNames() {
		if levels := c.Backend.RootMarkers[name]; levels < 1 {
			return &ValidationError{Key: "backend.root_markers." + name, Message: "must walk up at least one level", Value: levels}
		}
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return &ValidationError{Key: "logging.level", Message: "must be debug, info, warn, or error", Value: c.Logging.Level}
	}
	if !slices.Contains([]string{string(logging.FormatConsole), string(logging.FormatJSON)}, c.Logging.Format) {
		return &ValidationError{Key: "logging.format", Message: "must be console or json", Value: c.Logging.Format}
	}
	if c.UI.Mode != ModeWindow && c.UI.Mode != ModeJSONL {
		return &ValidationError{Key: "ui.mode", Message: "must be window or jsonl", Value: c.UI.Mode}
	}
	if c.UI.Scrollback <= 0 {
		return &ValidationError{Key: "ui.scrollback", Message: "must be positive", Value: c.UI.Scrollback}
	}
	return nil
}

// MarkerNames returns the root marker names in sorted order.
func (b BackendConfig) MarkerNames() []string {
	names := make([]string, 0, len(b.RootMarkers))
	for name := range b.RootMarkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Environ returns Env as sorted KEY=VALUE pairs.
func (b BackendConfig) Environ() []string {
	out := make([]string, 0, len(b.Env))
	for k, v := range b.Env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// LoggerConfig converts the logging section into a logging.Config. When a
// log file is configured it is opened for appending; the caller owns the
// returned file and must close it.
func (c *Config) LoggerConfig() (logging.Config, *os.File, error) {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(c.Logging.Level)
	lc.Format = logging.Format(c.Logging.Format)

	if c.Logging.File == "" {
		return lc, nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(c.Logging.File), 0o755); err != nil {
		return lc, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(c.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return lc, nil, fmt.Errorf("opening log file: %w", err)
	}
	lc.Output = f
	return lc, f, nil
}
