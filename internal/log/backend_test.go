package log

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/chrissnell/pistation/internal/types"
)

type captureSink struct {
	mu    sync.Mutex
	lines []types.LogLine
	err   error
}

func (s *captureSink) StoreLog(line types.LogLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
	return s.err
}

func (s *captureSink) all() []types.LogLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.LogLine(nil), s.lines...)
}

func newBackendLogger(t *testing.T, level zapcore.Level) (*zap.Logger, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	SetBackend(sink)
	t.Cleanup(func() { SetBackend(nil) })
	return zap.New(NewBackendCore(level), zap.AddCaller()), sink
}

func TestBackendCoreForwards(t *testing.T) {
	logger, sink := newBackendLogger(t, zapcore.InfoLevel)

	logger.Named("station").Sugar().Infow("reading stored", "window", 10, "rain", 0.5)

	lines := sink.all()
	require.Len(t, lines, 1)
	assert.Equal(t, "INFO", lines[0].Level)
	assert.Equal(t, "reading stored window=10 rain=0.5", lines[0].Text)
	assert.Contains(t, lines[0].Source, "station ")
	assert.Contains(t, lines[0].Source, "backend_test.go")
	assert.False(t, lines[0].Time.IsZero())
}

func TestBackendCoreLevel(t *testing.T) {
	logger, sink := newBackendLogger(t, zapcore.InfoLevel)

	logger.Debug("too quiet")
	logger.Warn("loud enough")

	lines := sink.all()
	require.Len(t, lines, 1)
	assert.Equal(t, "WARN", lines[0].Level)
}

func TestBackendCoreExcludesWritePath(t *testing.T) {
	logger, sink := newBackendLogger(t, zapcore.DebugLevel)

	for _, name := range []string{"database", "database.gorm", "backlog.logs", "storage", "storage.flatfile"} {
		logger.Named(name).Error("not forwarded")
	}
	logger.Named("databases").Info("forwarded")
	logger.Named("sensors.storage").Info("forwarded")

	assert.Len(t, sink.all(), 2)
}

func TestBackendCoreWithFields(t *testing.T) {
	logger, sink := newBackendLogger(t, zapcore.InfoLevel)

	logger.With(zap.String("sensor", "ground")).Info("sample failed", zap.Error(errors.New("crc")))

	lines := sink.all()
	require.Len(t, lines, 1)
	assert.Equal(t, "sample failed sensor=ground error=crc", lines[0].Text)
}

func TestBackendCoreNoSink(t *testing.T) {
	SetBackend(nil)
	logger := zap.New(NewBackendCore(zapcore.InfoLevel))
	assert.NotPanics(t, func() { logger.Info("dropped silently") })
}

func TestBackendCoreIgnoresSinkErrors(t *testing.T) {
	logger, sink := newBackendLogger(t, zapcore.InfoLevel)
	sink.err = errors.New("deferred")

	assert.NotPanics(t, func() { logger.Info("queued") })
	assert.Len(t, sink.all(), 1)
}

func TestTeeWithConsole(t *testing.T) {
	sink := &captureSink{}
	SetBackend(sink)
	t.Cleanup(func() { SetBackend(nil) })

	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	console := zapcore.NewCore(enc, zapcore.AddSync(&discard{}), zapcore.InfoLevel)
	logger := zap.New(zapcore.NewTee(console, NewBackendCore(zapcore.InfoLevel)))

	logger.Info("both")
	assert.Len(t, sink.all(), 1)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

type blockingSink struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSink) StoreLog(types.LogLine) error {
	close(s.entered)
	<-s.release
	return nil
}

func TestBackendCoreWritesOnCallerGoroutine(t *testing.T) {
	sink := &blockingSink{entered: make(chan struct{}), release: make(chan struct{})}
	SetBackend(sink)
	t.Cleanup(func() { SetBackend(nil) })
	logger := zap.New(NewBackendCore(zapcore.InfoLevel))

	returned := make(chan struct{})
	go func() {
		logger.Warn("database write failed")
		close(returned)
	}()

	<-sink.entered
	select {
	case <-returned:
		t.Fatal("log call returned before the sink finished")
	default:
	}
	close(sink.release)
	<-returned
}
