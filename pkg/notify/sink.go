// Package notify delivers cleanup reports and alerts to operators.
package notify

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"
)

// Payload is a structured report body
type Payload map[string]any

// Sink receives reports and alerts. Callers treat failures as non-fatal.
type Sink interface {
	SendReport(ctx context.Context, payload Payload) error
	SendAlert(ctx context.Context, title, detail string) error
}

// LogSink writes reports and alerts to the structured log
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink that only logs
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("notify")}
}

// SendReport logs the payload fields in key order
func (s *LogSink) SendReport(_ context.Context, payload Payload) error {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, zap.Any(k, payload[k]))
	}
	s.logger.Info("cleanup report", fields...)
	return nil
}

// SendAlert logs the alert at warn level
func (s *LogSink) SendAlert(_ context.Context, title, detail string) error {
	s.logger.Warn("alert", zap.String("title", title), zap.String("detail", detail))
	return nil
}

// Multi fans out to every sink and joins their errors
type Multi []Sink

// SendReport delivers to all sinks even if some fail
func (m Multi) SendReport(ctx context.Context, payload Payload) error {
	var errs []error
	for _, s := range m {
		if err := s.SendReport(ctx, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SendAlert delivers to all sinks even if some fail
func (m Multi) SendAlert(ctx context.Context, title, detail string) error {
	var errs []error
	for _, s := range m {
		if err := s.SendAlert(ctx, title, detail); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
