// Package secrets redacts credentials from conversation text before it is
// sent to an external model or written to disk.
package secrets

import "errors"

var (
	// ErrInvalidRegex indicates an allowlist or rule pattern failed to compile.
	ErrInvalidRegex = errors.New("invalid regex pattern")

	// ErrInvalidTOML indicates an allowlist file could not be parsed.
	ErrInvalidTOML = errors.New("invalid TOML format")
)
