// Package logging builds the slog loggers used across the module. The
// library is silent by default: components fall back to Nop unless a logger
// is injected through their options.
package logging

import (
	"context"
	"io"
	"log/slog"

	"github.com/phsym/console-slog"
)

// New returns a logger writing human-readable console output to w.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(console.NewHandler(w, &console.HandlerOptions{Level: level}))
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(nopHandler{})
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h nopHandler) WithGroup(string) slog.Handler           { return h }
