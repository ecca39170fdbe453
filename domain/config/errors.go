package config

import "errors"

// Errors returned while reading a configuration file.
var (
	ErrConfigNotFound    = errors.New("configuration file not found")
	ErrUnsupportedFormat = errors.New("unsupported configuration file extension")
	ErrInvalidFormat     = errors.New("malformed configuration document")

	// ErrMissingEnvVar wraps the names of unset variables referenced with
	// ${VAR:?msg}, or with any form under strict expansion.
	ErrMissingEnvVar = errors.New("environment variable not set")
)

// Errors returned by Validate.
var (
	ErrValidationFailed = errors.New("configuration validation failed")

	// ErrMissingAPIKey means a hosted provider was chosen but the key is
	// empty or still a placeholder such as "changeme".
	ErrMissingAPIKey = errors.New("missing or placeholder API key")
)
