// Package logging provides the structured logger used across SoundWeave Core.
//
// It is a thin wrapper over log/slog configured from the logging section of
// config.yaml, adding default service/version fields and a Default() logger
// for early startup.
package logging
