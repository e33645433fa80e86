package domain

import "fmt"

// ConfigError is fatal at startup: missing credentials, unknown PROVIDER
// or DATABASE selection.
type ConfigError struct {
	Reason string
}

func (e ConfigError) Error() string {
	return "config error: " + e.Reason
}

// Configf builds a ConfigError.
func Configf(format string, args ...any) error {
	return ConfigError{Reason: fmt.Sprintf(format, args...)}
}
