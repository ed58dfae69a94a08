// Package config loads, normalizes, and validates cleave configuration.
//
// Configuration comes from an optional TOML file plus CLI flag overrides.
// The source path and output directory are positional CLI arguments and are
// attached to the Config after loading.
package config
