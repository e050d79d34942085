package utils

import "go.uber.org/zap"

// NewLogger returns a zap logger writing to stderr. Debug selects the development
// config (console encoding, debug level); otherwise JSON at info level.
// Both binaries log to stderr so the worker's stdout stays a clean JSON channel.
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
