// Package config loads the server configuration from defaults, an optional
// config.yaml and TRACKER_* environment variables, and validates it before
// any component starts.
package config
