// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"log/slog"
	"os"
)

// NewLogger creates the standard service logger: a JSON handler
// writing to stderr at Info level. It also sets the default slog
// logger so third-party code using slog.Info etc. gets the same
// handler.
func NewLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	return logger
}
