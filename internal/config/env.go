package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// EnvPrefix is the prefix of every environment variable voxdesk reads.
const EnvPrefix = "VOXDESK_"

// EnvKind is the type an environment value is converted to.
type EnvKind int

const (
	// EnvString passes the value through unchanged.
	EnvString EnvKind = iota
	// EnvBool accepts true/false, yes/no, on/off and 1/0.
	EnvBool
	// EnvInt accepts a base-10 integer.
	EnvInt
)

// EnvVar maps an environment variable to a config key.
type EnvVar struct {
	Key  string
	Kind EnvKind
}

// EnvLoader loads configuration from environment variables.
type EnvLoader struct {
	mapping map[string]EnvVar
	lookup  func(string) (string, bool)
}

// NewEnvLoader creates a loader using the default variable mapping.
func NewEnvLoader() *EnvLoader {
	return &EnvLoader{
		mapping: DefaultEnvMapping(),
		lookup:  os.LookupEnv,
	}
}

// DefaultEnvMapping returns the environment variables voxdesk understands
// and the config keys they set.
func DefaultEnvMapping() map[string]EnvVar {
	return map[string]EnvVar{
		"VOXDESK_LOG_LEVEL":         {Key: "logging.level"},
		"VOXDESK_LOG_FORMAT":        {Key: "logging.format"},
		"VOXDESK_LOG_FILE":          {Key: "logging.file"},
		"VOXDESK_BACKEND_MODULE":    {Key: "backend.module"},
		"VOXDESK_MANAGER":           {Key: "backend.manager"},
		"VOXDESK_INTERPRETER":       {Key: "backend.interpreter"},
		"VOXDESK_SCRIPT":            {Key: "backend.script"},
		"VOXDESK_PROJECT_ROOT":      {Key: "backend.project_root"},
		"VOXDESK_DETECT_TIMEOUT":    {Key: "backend.detect_timeout"},
		"VOXDESK_MAX_COMMANDS":      {Key: "backend.max_commands", Kind: EnvInt},
		"VOXDESK_BACKEND_AUTOSTART": {Key: "backend.autostart", Kind: EnvBool},
		"VOXDESK_UI_MODE":           {Key: "ui.mode"},
		"VOXDESK_HOOKS":             {Key: "ui.hooks"},
	}
}

// Load implements Loader. Unset variables are skipped; a variable set to
// the empty string is kept as an empty value. A bool or integer variable
// that does not parse is a *ValidationError.
func (l *EnvLoader) Load() (map[string]any, error) {
	out := make(map[string]any)

	for env, v := range l.mapping {
		raw, ok := l.lookup(env)
		if !ok {
			continue
		}
		val, err := parseEnvValue(v.Kind, raw)
		if err != nil {
			return nil, &ValidationError{Key: v.Key, Message: fmt.Sprintf("%s: %v", env, err), Value: raw}
		}
		setByPath(out, v.Key, val)
	}

	return out, nil
}

// parseEnvValue converts raw to the type kind names. Durations stay
// strings and are parsed by Duration.
func parseEnvValue(kind EnvKind, raw string) (any, error) {
	switch kind {
	case EnvBool:
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true", "yes", "on", "1":
			return true, nil
		case "false", "no", "off", "0":
			return false, nil
		}
		return nil, errors.New("not a boolean")
	case EnvInt:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, errors.New("not an integer")
		}
		return n, nil
	default:
		return raw, nil
	}
}
