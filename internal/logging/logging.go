// Package logging builds the process logger: an append-only log file plus a
// colored console, with per-topic debug output.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Topics used by the daemon's component loggers.
const (
	TopicBattery  = "battery"
	TopicTelegram = "telegram"
	TopicMonitor  = "monitor"
	TopicDBus     = "dbus"
	TopicMQTT     = "mqtt"
)

type Options struct {
	// File is opened for append; empty disables file output.
	File  string
	Level slog.Level
	// Topics enables debug records for the named topics, or every topic with "all".
	Topics []string
	// Console defaults to os.Stderr unless NoConsole is set.
	Console   io.Writer
	NoConsole bool
	NoColor   bool
}

// New returns the logger and a closer for the log file.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	var (
		handlers []slog.Handler
		closer   io.Closer = nopCloser{}
	)
	inner := &slog.HandlerOptions{Level: slog.LevelDebug}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewTextHandler(f, inner))
		closer = f
	}

	if !opts.NoConsole {
		w := opts.Console
		if w == nil {
			w = os.Stderr
		}
		handlers = append(handlers, tint.NewHandler(w, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.DateTime,
			NoColor:    opts.NoColor,
		}))
	}

	topics := make(map[string]bool, len(opts.Topics))
	for _, t := range opts.Topics {
		if t = strings.TrimSpace(t); t != "" {
			topics[t] = true
		}
	}

	h := &topicHandler{
		inner:  fanout(handlers),
		level:  opts.Level,
		topics: topics,
	}
	return slog.New(h), closer, nil
}

// ParseTopics turns the --verbose and --log flags into a topic list.
func ParseTopics(verbose bool, list string) []string {
	var topics []string
	if verbose {
		topics = append(topics, "all")
	}
	for _, t := range strings.Split(list, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

// topicHandler passes records at or above level unconditionally. Records below
// it only pass when they carry an enabled "topic" attribute.
type topicHandler struct {
	inner  slog.Handler
	level  slog.Level
	topics map[string]bool
	topic  string // set when WithAttrs includes a "topic" key
}

func (h *topicHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level >= h.level {
		return true
	}
	return len(h.topics) > 0 && h.inner.Enabled(ctx, level)
}

func (h *topicHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.level || h.topics["all"] {
		return h.inner.Handle(ctx, r)
	}
	topic := h.topic
	if topic == "" {
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == "topic" {
				topic = a.Value.String()
				return false
			}
			return true
		})
	}
	if topic == "" || !h.topics[topic] {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *topicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	topic := h.topic
	for _, a := range attrs {
		if a.Key == "topic" {
			topic = a.Value.String()
		}
	}
	return &topicHandler{inner: h.inner.WithAttrs(attrs), level: h.level, topics: h.topics, topic: topic}
}

func (h *topicHandler) WithGroup(name string) slog.Handler {
	return &topicHandler{inner: h.inner.WithGroup(name), level: h.level, topics: h.topics, topic: h.topic}
}

// fanout writes every record to each of its handlers.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
