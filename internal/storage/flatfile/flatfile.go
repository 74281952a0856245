// Package flatfile appends readings to a local CSV file as a best-effort audit trail.
package flatfile

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/chrissnell/pistation/internal/types"
)

// Mirror appends one line per reading. The file is opened for every write so
// that rotation or removal by other tools is picked up.
type Mirror struct {
	mu   sync.Mutex
	path string
}

// New returns a mirror writing to path. An empty path disables the mirror.
func New(path string) *Mirror {
	return &Mirror{path: path}
}

// Enabled reports whether a path is configured
func (m *Mirror) Enabled() bool {
	return m != nil && m.path != ""
}

// Path returns the file being written
func (m *Mirror) Path() string {
	return m.path
}

// Append writes r as a single CSV line
func (m *Mirror) Append(r types.Reading) error {
	if !m.Enabled() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.OpenFile(m.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("unable to open %s: %w", m.path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(Record(r)); err != nil {
		f.Close()
		return fmt.Errorf("unable to write %s: %w", m.path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("unable to write %s: %w", m.path, err)
	}
	return f.Close()
}

// Record formats a reading as CSV columns: the timestamp followed by
// Reading.Fields with two decimals
func Record(r types.Reading) []string {
	fields := r.Fields()
	rec := make([]string, 0, len(fields)+1)
	rec = append(rec, r.Timestamp.Format(time.RFC3339))
	for _, v := range fields {
		rec = append(rec, strconv.FormatFloat(v, 'f', 2, 64))
	}
	return rec
}
