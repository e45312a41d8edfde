// Package config loads the server configuration from YAML over built-in
// defaults. Every knob has a default good enough for local development;
// a config file only needs the values it changes.
package config
