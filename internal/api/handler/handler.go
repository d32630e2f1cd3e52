// Package handler contains the HTTP route handlers. Handlers depend on
// narrow interfaces declared here so tests can substitute mocks.
package handler

import "log/slog"

func slogWarn(msg string, err error) {
	slog.Warn(msg, "error", err)
}
