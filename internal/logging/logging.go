// Package logging builds the zap loggers that the CLI passes explicitly to
// the pipeline package. There is no package-level logger: the pipeline
// takes one as a parameter, so nothing here mutates global state.
package logging

import "go.uber.org/zap"

// New builds the default production logger: JSON, Info level and above.
func New() (*zap.Logger, error) {
	return zap.NewProduction()
}

// NewVerbose builds a human-readable, Debug-level logger for --verbose runs.
func NewVerbose() (*zap.Logger, error) {
	return zap.NewDevelopment()
}

// Nop returns a logger that discards everything, for tests and library
// callers that don't want output.
func Nop() *zap.Logger {
	return zap.NewNop()
}
