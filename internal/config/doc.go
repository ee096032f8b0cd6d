// Package config loads voxdesk settings.
//
// Settings come from three layers, later layers winning:
//
//  1. Built-in defaults (Default)
//  2. A TOML or YAML file, by default $XDG_CONFIG_HOME/voxdesk/config.toml
//  3. VOXDESK_* environment variables (DefaultEnvMapping)
//
// Layers are nested maps merged with DeepMerge and decoded into Config in a
// single pass, so a file that sets one key leaves every other default
// intact. Tables merge key by key, except backend.root_markers and
// backend.env: a layer that sets either replaces the whole table, so an
// empty table removes every default marker.
//
// Environment values are converted by the type of the setting they target;
// a string setting always receives the raw text.
//
// A Watcher reloads the file when it changes and hands the new Config to a
// callback. Reloaded settings apply to work started afterwards; nothing
// already running is restarted.
package config
