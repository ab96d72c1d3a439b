package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// splitHandler sends the server's progress log (ledger ready, commands
// committed, requests served) to stdout and failures such as rejected
// journal appends or mirror errors to stderr, so an operator can watch
// stderr alone.
type splitHandler struct {
	min  slog.Leveler
	info slog.Handler
	fail slog.Handler
}

func (h *splitHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.min.Level()
}

func (h *splitHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return h.fail.Handle(ctx, r)
	}
	return h.info.Handle(ctx, r)
}

func (h *splitHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &splitHandler{min: h.min, info: h.info.WithAttrs(attrs), fail: h.fail.WithAttrs(attrs)}
}

func (h *splitHandler) WithGroup(name string) slog.Handler {
	return &splitHandler{min: h.min, info: h.info.WithGroup(name), fail: h.fail.WithGroup(name)}
}

// setupLogger installs the default logger for rxledger. With logPath set,
// both streams are also appended to that file; the returned cleanup closes it.
func setupLogger(logPath string) (func(), error) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	cleanup := func() {}
	stdoutW := io.Writer(os.Stdout)
	stderrW := io.Writer(os.Stderr)

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		cleanup = func() { f.Close() }
		stdoutW = io.MultiWriter(os.Stdout, f)
		stderrW = io.MultiWriter(os.Stderr, f)
	}

	slog.SetDefault(slog.New(&splitHandler{
		min:  opts.Level,
		info: slog.NewTextHandler(stdoutW, opts),
		fail: slog.NewTextHandler(stderrW, opts),
	}))
	return cleanup, nil
}
