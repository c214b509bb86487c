// Package config loads and validates SoundWeave Core configuration.
//
// Configuration is read from a YAML file, merged over hardcoded defaults,
// and finally overridden by SOUNDWEAVE_* environment variables. Secrets
// (JWT signing key, hub account password, InfluxDB token) should always be
// supplied via the environment rather than the file.
package config
