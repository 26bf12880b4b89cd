// Package config loads the service settings from defaults, an optional
// config.yaml and TASKSTREAM_-prefixed environment variables, and validates
// them before any component is constructed.
package config
