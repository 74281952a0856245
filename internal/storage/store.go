// Package storage persists readings and log lines to the database through
// bounded backlogs, and mirrors readings to a local file.
package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/pistation/internal/backlog"
	"github.com/chrissnell/pistation/internal/database"
	"github.com/chrissnell/pistation/internal/storage/flatfile"
	"github.com/chrissnell/pistation/internal/types"
)

const writeTimeout = 30 * time.Second

// Backend is the database side of the store
type Backend interface {
	Write(ctx context.Context, value any) error
	State() database.ConnectionState
}

// Store is the single persistence path used by the sampling loop and the logger
type Store struct {
	backend  Backend
	mirror   *flatfile.Mirror
	readings *backlog.Queue[types.Reading]
	logs     *backlog.Queue[types.LogLine]
	logger   *zap.SugaredLogger

	mu           sync.Mutex
	lastReading  time.Time
	mirrorErrors uint64
}

// New creates a store whose queues each hold up to capacity items
func New(backend Backend, mirror *flatfile.Mirror, capacity int, logger *zap.SugaredLogger) *Store {
	s := &Store{
		backend: backend,
		mirror:  mirror,
		logger:  logger,
	}
	s.readings = backlog.New("readings", capacity, s.writeReading, logger.Desugar().Named("backlog.readings").Sugar())
	s.logs = backlog.New("logs", capacity, s.writeLog, logger.Desugar().Named("backlog.logs").Sugar())
	return s
}

// StoreReading mirrors r to the flat file and submits it to the database.
// The mirror result never affects the database path.
func (s *Store) StoreReading(r types.Reading) error {
	s.mu.Lock()
	s.lastReading = r.Timestamp
	s.mu.Unlock()

	if err := s.mirror.Append(r); err != nil {
		s.mu.Lock()
		s.mirrorErrors++
		s.mu.Unlock()
		s.logger.Warnw("flat file mirror failed", "path", s.mirror.Path(), "error", err)
	}

	return s.readings.Submit(r)
}

// StoreLog submits a log line to the database
func (s *Store) StoreLog(line types.LogLine) error {
	return s.logs.Submit(line)
}

// Drain retries both backlogs
func (s *Store) Drain() error {
	return errors.Join(s.readings.Drain(), s.logs.Drain())
}

func (s *Store) writeReading(r types.Reading) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return s.backend.Write(ctx, database.MeasurementFromReading(r))
}

// writeLog stores one row per non-empty line. Once any row is written the
// line counts as delivered so that a retry cannot duplicate it.
func (s *Store) writeLog(line types.LogLine) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	written := 0
	for _, text := range strings.Split(line.Text, "\n") {
		text = strings.TrimRight(text, "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		if err := s.backend.Write(ctx, database.LogEntryFromLine(line, text)); err != nil {
			if written > 0 {
				s.logger.Debugw("log line partially written", "rows", written, "error", err)
				return nil
			}
			return err
		}
		written++
	}
	return nil
}
