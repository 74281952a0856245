package storage

import (
	"time"

	"github.com/chrissnell/pistation/internal/backlog"
	"github.com/chrissnell/pistation/internal/database"
)

// Health is a snapshot of the persistence path
type Health struct {
	Connection   database.ConnectionState `json:"connection"`
	Readings     backlog.Stats            `json:"readings"`
	Logs         backlog.Stats            `json:"logs"`
	LastReading  *time.Time               `json:"last_reading,omitempty"`
	MirrorErrors uint64                   `json:"mirror_errors"`
}

// Saturated reports whether either backlog is full, meaning the next
// undeliverable item will be dropped
func (h Health) Saturated() bool {
	return h.Readings.Length >= h.Readings.Capacity || h.Logs.Length >= h.Logs.Capacity
}

// Health returns the current snapshot
func (s *Store) Health() Health {
	h := Health{
		Connection: s.backend.State(),
		Readings:   s.readings.Stats(),
		Logs:       s.logs.Stats(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lastReading.IsZero() {
		t := s.lastReading
		h.LastReading = &t
	}
	h.MirrorErrors = s.mirrorErrors
	return h
}
