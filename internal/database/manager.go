package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/pistation/pkg/config"
)

// ErrNotConfigured is returned by Write while the mysql credentials are unusable
var ErrNotConfigured = errors.New("database credentials not configured")

// CredentialsSource supplies the active credentials snapshot
type CredentialsSource interface {
	Current() *config.Credentials
}

// ConnectionState describes the manager for health reporting
type ConnectionState struct {
	Connected      bool   `json:"connected"`
	Failing        bool   `json:"failing"`
	FailureReports uint64 `json:"failure_reports"`
}

// ConnectionManager owns the single database session. It dials lazily,
// reconnects once per write when the session has died, and reports a run of
// failures only once.
type ConnectionManager struct {
	mu sync.Mutex

	creds        CredentialsSource
	dial         Dialer
	probeTimeout time.Duration
	logger       *zap.SugaredLogger

	session    Session
	dialedWith config.MySQLCredentials
	migrated   map[string]bool

	failing bool
	reports uint64
}

// NewConnectionManager creates a manager. Nothing is dialed until the first Write.
func NewConnectionManager(creds CredentialsSource, dial Dialer, probeTimeout time.Duration, logger *zap.SugaredLogger) *ConnectionManager {
	if probeTimeout <= 0 {
		probeTimeout = time.Second
	}
	return &ConnectionManager{
		creds:        creds,
		dial:         dial,
		probeTimeout: probeTimeout,
		logger:       logger,
		migrated:     make(map[string]bool),
	}
}

// Write inserts value, allowing one reconnect if the session turns out to be dead
func (m *ConnectionManager) Write(ctx context.Context, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.write(ctx, value)
	if err != nil {
		if !m.failing {
			m.failing = true
			m.reports++
			m.logger.Warnw("database write failed", "error", err)
		}
		return err
	}

	if m.failing {
		m.failing = false
		m.logger.Info("database connection restored")
	}
	return nil
}

func (m *ConnectionManager) write(ctx context.Context, value any) error {
	creds := m.creds.Current().MySQL
	if !creds.Usable {
		m.closeSession()
		return ErrNotConfigured
	}

	if m.session != nil && !m.dialedWith.Equal(creds) {
		m.logger.Info("database credentials changed, reconnecting")
		m.closeSession()
	}

	if m.session == nil {
		if err := m.connect(creds); err != nil {
			return err
		}
	}

	err := m.session.Insert(ctx, value)
	if err == nil {
		return nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	alive := m.session.Ping(probeCtx) == nil
	cancel()
	if alive {
		return fmt.Errorf("insert failed: %w", err)
	}

	m.closeSession()
	if cerr := m.connect(creds); cerr != nil {
		return fmt.Errorf("insert failed: %w; reconnect failed: %w", err, cerr)
	}
	m.logger.Info("recovered database connection")

	if err := m.session.Insert(ctx, value); err != nil {
		return fmt.Errorf("insert failed after reconnect: %w", err)
	}
	return nil
}

func (m *ConnectionManager) connect(creds config.MySQLCredentials) error {
	s, err := m.dial(creds)
	if err != nil {
		return fmt.Errorf("unable to connect to database: %w", err)
	}

	key := migrationKey(creds)
	if !m.migrated[key] {
		if err := s.Migrate(); err != nil {
			s.Close()
			return fmt.Errorf("unable to migrate database: %w", err)
		}
		m.migrated[key] = true
	}

	m.session = s
	m.dialedWith = creds
	m.logger.Infow("database connection established", "driver", creds.Driver, "host", creds.Host, "database", creds.Database)
	return nil
}

func migrationKey(c config.MySQLCredentials) string {
	return fmt.Sprintf("%s|%s|%d|%s", c.Driver, c.Host, c.Port, c.Database)
}

func (m *ConnectionManager) closeSession() {
	if m.session == nil {
		return
	}
	if err := m.session.Close(); err != nil {
		m.logger.Debugw("error closing database session", "error", err)
	}
	m.session = nil
}

// State returns a snapshot of the connection status
func (m *ConnectionManager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ConnectionState{
		Connected:      m.session != nil,
		Failing:        m.failing,
		FailureReports: m.reports,
	}
}

// FailureReports returns how many failure runs have been reported
func (m *ConnectionManager) FailureReports() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reports
}

// Close shuts the session down
func (m *ConnectionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeSession()
}
