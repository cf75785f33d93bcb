package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/Poller/internal/domain"
)

// Sink — получатель отчётов (совместим с aggregator.Sink).
type Sink interface {
	Report(ctx context.Context, report domain.Report) error
}

// Multi рассылает отчёт всем sink'ам.
//
// Сбой одного sink'а не мешает остальным; ошибки объединяются.
type Multi []Sink

// Report вызывает все sink'и по порядку.
func (m Multi) Report(ctx context.Context, report domain.Report) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Report(ctx, report); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", s, err))
		}
	}
	return errors.Join(errs...)
}

// LogSink пишет отчёт в лог.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink создаёт LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Report логирует итог. ALL_SUCCESS — Info, остальные вердикты — Warn.
func (s *LogSink) Report(ctx context.Context, report domain.Report) error {
	level := slog.LevelInfo
	if report.Verdict != domain.VerdictAllSuccess {
		level = slog.LevelWarn
	}

	attrs := []any{
		"event_id", report.EventID,
		"verdict", report.Verdict,
		"success", len(report.Buckets.Success),
		"retryable", len(report.Buckets.Retryable),
		"non_retryable", len(report.Buckets.NonRetryable),
		"timed_out", report.TimedOut,
	}
	if report.Cause != "" {
		attrs = append(attrs, "cause", report.Cause)
	}

	s.logger.Log(ctx, level, "event status", attrs...)
	return nil
}
