// Package config loads the bridge's YAML configuration file and applies
// environment-variable overrides for secrets. See spec.md §6 (Config) and
// SPEC_FULL.md §4.10.
package config
