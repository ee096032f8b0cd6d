package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Loader produces one configuration layer as a nested map.
type Loader interface {
	// Load returns nil, nil when the source doesn't exist.
	Load() (map[string]any, error)
}

// FileLoader loads a TOML or YAML file, chosen by extension.
type FileLoader struct {
	path     string
	required bool
}

// NewFileLoader returns a loader for path. When required is false a missing
// file yields an empty layer instead of ErrFileNotFound.
func NewFileLoader(path string, required bool) *FileLoader {
	return &FileLoader{path: path, required: required}
}

// Load implements Loader.
func (l *FileLoader) Load() (map[string]any, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if l.required {
				return nil, fmt.Errorf("%w: %s", ErrFileNotFound, l.path)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", l.path, err)
	}

	return ParseBytes(l.path, data)
}

// ParseBytes parses data according to the extension of path.
func ParseBytes(path string, data []byte) (map[string]any, error) {
	var (
		out map[string]any
		err error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml", "":
		err = toml.Unmarshal(data, &out)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &out)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	if err != nil {
		perr := &ParseError{Path: path, Message: err.Error(), Err: err}
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			perr.Line, perr.Column = decodeErr.Position()
		}
		return nil, perr
	}

	return out, nil
}

// DeepMerge recursively merges src into dst and returns dst.
// Values in src override values in dst; maps are merged key by key and nil
// values in src are skipped.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}

	for key, srcVal := range src {
		if srcVal == nil {
			continue
		}

		srcMap, srcIsMap := srcVal.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		switch {
		case srcIsMap && dstIsMap:
			dst[key] = DeepMerge(dstMap, srcMap)
		case srcIsMap:
			dst[key] = DeepMerge(nil, srcMap)
		default:
			dst[key] = srcVal
		}
	}

	return dst
}

// replacedKeys are map-valued settings a layer replaces as a whole, so a
// file can drop a default root marker or environment variable.
var replacedKeys = []string{"backend.root_markers", "backend.env"}

// mergeLayer merges one layer into dst. Settings in replacedKeys that the
// layer sets replace the value in dst instead of merging into it.
func mergeLayer(dst, src map[string]any) map[string]any {
	for _, key := range replacedKeys {
		if _, ok := lookupPath(src, key); ok {
			deleteByPath(dst, key)
		}
	}
	return DeepMerge(dst, src)
}

// lookupPath returns the value at a dot-separated path.
func lookupPath(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil, false
		}
		current = next
	}
	v, ok := current[parts[len(parts)-1]]
	return v, ok
}

// deleteByPath removes the value at a dot-separated path, if present.
func deleteByPath(data map[string]any, path string) {
	parts := strings.Split(path, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			return
		}
		current = next
	}
	delete(current, parts[len(parts)-1])
}

// setByPath sets a value in a nested map using a dot-separated path.
func setByPath(data map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := data

	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}

	current[parts[len(parts)-1]] = value
}
