package managers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/pistation/internal/database"
	"github.com/chrissnell/pistation/internal/log"
	"github.com/chrissnell/pistation/internal/storage"
	"github.com/chrissnell/pistation/internal/storage/flatfile"
	"github.com/chrissnell/pistation/pkg/config"
)

// drainInterval is how often the backlogs are retried when nothing new arrives
const drainInterval = time.Minute

// StorageManager holds the persistence path: the database connection, the
// flat-file mirror and the backlogs in front of them
type StorageManager struct {
	Store      *storage.Store
	Connection *database.ConnectionManager
	Mirror     *flatfile.Mirror

	dbLogger *zap.SugaredLogger
}

// NewStorageManager creates a StorageManager from the station settings. Writes
// use whatever database the credentials source currently names.
func NewStorageManager(ctx context.Context, wg *sync.WaitGroup, c *config.ConfigData, creds database.CredentialsSource) *StorageManager {
	dbLogger := log.Named("database")

	s := &StorageManager{
		Connection: database.NewConnectionManager(creds, database.GormDialer(dbLogger), c.Station.ProbeTimeout, dbLogger),
		Mirror:     flatfile.New(c.Station.DataFile),
		dbLogger:   dbLogger,
	}
	s.Store = storage.New(s.Connection, s.Mirror, c.Station.BacklogCapacity, log.Named("storage"))

	if s.Mirror.Enabled() {
		log.Infof("mirroring readings to %s", s.Mirror.Path())
	}

	s.Store.StartDrainer(ctx, wg, drainInterval)
	return s
}

// Open dials a short-lived session for a background worker
func (s *StorageManager) Open(creds config.MySQLCredentials) (*database.GormSession, error) {
	return database.Open(creds, s.dbLogger)
}

// Close makes a last delivery attempt and releases the connection
func (s *StorageManager) Close() {
	if err := s.Store.Drain(); err != nil {
		log.Warnw("backlog not empty at shutdown", "readings", s.Store.Health().Readings.Length, "logs", s.Store.Health().Logs.Length)
	}
	s.Connection.Close()
}
