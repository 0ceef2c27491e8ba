package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger records an append-only trail of operations that change or move
// metric data.
type Logger interface {
	Log(ctx context.Context, event *Event) error

	// Sync flushes buffered events.
	Sync() error
	Close() error
}

// Config configures the audit trail file.
type Config struct {
	// Path of the audit log; empty disables auditing.
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

const (
	flushBatch    = 100
	flushInterval = time.Second
)

// New returns a file-backed audit logger, or Nop when cfg.Path is empty.
// appLogger receives marshal failures.
func New(cfg Config, appLogger *zap.Logger) Logger {
	if cfg.Path == "" {
		return Nop{}
	}
	if appLogger == nil {
		appLogger = zap.NewNop()
	}
	sink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
	return newZapLogger(sink, appLogger)
}

// zapLogger buffers events and writes them as one JSON object per line.
type zapLogger struct {
	appLogger *zap.Logger
	sink      zapcore.WriteSyncer

	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closeOnce   sync.Once
}

func newZapLogger(sink zapcore.WriteSyncer, appLogger *zap.Logger) *zapLogger {
	l := &zapLogger{
		appLogger:   appLogger.Named("audit"),
		sink:        sink,
		buffer:      make([]*Event, 0, flushBatch),
		flushTicker: time.NewTicker(flushInterval),
		stopCh:      make(chan struct{}),
	}
	go l.autoFlush()
	return l
}

func (l *zapLogger) Log(ctx context.Context, event *Event) error {
	if event.CorrelationID == "" {
		event.CorrelationID = CorrelationID(ctx)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = append(l.buffer, event)
	if len(l.buffer) >= flushBatch {
		return l.flushLocked()
	}
	return nil
}

// flushLocked writes the buffer (caller must hold lock)
func (l *zapLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}
	for _, event := range l.buffer {
		line, err := json.Marshal(event)
		if err != nil {
			l.appLogger.Error("failed to marshal audit event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)))
			continue
		}
		if _, err := l.sink.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("write audit event: %w", err)
		}
	}
	l.buffer = l.buffer[:0]
	return nil
}

func (l *zapLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			if err := l.flushLocked(); err != nil {
				l.appLogger.Warn("audit flush failed", zap.Error(err))
			}
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

func (l *zapLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.flushLocked(); err != nil {
		return err
	}
	return l.sink.Sync()
}

// Close flushes and stops the background flusher. Safe to call twice.
func (l *zapLogger) Close() error {
	l.closeOnce.Do(func() {
		close(l.stopCh)
		l.flushTicker.Stop()
	})
	return l.Sync()
}

// Nop discards events.
type Nop struct{}

func (Nop) Log(context.Context, *Event) error { return nil }
func (Nop) Sync() error                       { return nil }
func (Nop) Close() error                      { return nil }

type correlationKey struct{}

// CorrelationID extracts the correlation ID from ctx.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID adds a correlation ID to ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}
