package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chrissnell/pistation/pkg/config"

	// pure-Go driver registered as "sqlite"
	_ "modernc.org/sqlite"
)

const connectTimeout = 5 * time.Second

// Session is a live connection to the measurement database
type Session interface {
	Insert(ctx context.Context, value any) error
	Ping(ctx context.Context) error
	Migrate() error
	Close() error
}

// Dialer opens a Session for a set of credentials
type Dialer func(creds config.MySQLCredentials) (Session, error)

// GormSession implements Session on top of gorm
type GormSession struct {
	DB    *gorm.DB
	sqlDB *sql.DB
}

// Insert creates one row, or one row per element when value is a slice
func (s *GormSession) Insert(ctx context.Context, value any) error {
	return s.DB.WithContext(ctx).Create(value).Error
}

// Ping checks whether the underlying connection is still alive
func (s *GormSession) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Migrate creates or updates the WEATHER_MEASUREMENT and LOG tables
func (s *GormSession) Migrate() error {
	return s.DB.AutoMigrate(&WeatherMeasurement{}, &LogEntry{})
}

// Close releases the connection pool
func (s *GormSession) Close() error {
	return s.sqlDB.Close()
}

// GormDialer returns a Dialer that opens GormSessions
func GormDialer(logger *zap.SugaredLogger) Dialer {
	return func(creds config.MySQLCredentials) (Session, error) {
		return Open(creds, logger)
	}
}

// Open connects with the dialector selected by creds.Driver
func Open(creds config.MySQLCredentials, zlog *zap.SugaredLogger) (*GormSession, error) {
	dialector, err := Dialector(creds)
	if err != nil {
		return nil, err
	}

	// Create a logger for gorm
	dbLogger := logger.New(
		zap.NewStdLog(zlog.Desugar().Named("gorm")),
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  logger.Warn, // Log level
			IgnoreRecordNotFoundError: true,        // Ignore ErrRecordNotFound error for logger
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{Logger: dbLogger})
	if err != nil {
		return nil, fmt.Errorf("unable to open %s database: %w", creds.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unable to get database handle: %w", err)
	}
	if creds.Driver == config.DriverSQLite {
		// one writer at a time
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(4)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("unable to reach %s database: %w", creds.Driver, err)
	}

	return &GormSession{DB: db, sqlDB: sqlDB}, nil
}

// Dialector builds the gorm dialector for creds
func Dialector(creds config.MySQLCredentials) (gorm.Dialector, error) {
	switch creds.Driver {
	case config.DriverMySQL, "":
		return mysql.Open(MySQLDSN(creds)), nil
	case config.DriverPostgres:
		return postgres.Open(PostgresDSN(creds)), nil
	case config.DriverSQLite:
		return sqlite.Dialector{DriverName: "sqlite", DSN: creds.Database}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", creds.Driver)
	}
}

// MySQLDSN formats a go-sql-driver DSN
func MySQLDSN(creds config.MySQLCredentials) string {
	cfg := mysqldriver.NewConfig()
	cfg.User = creds.User
	cfg.Passwd = creds.Pass
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(creds.Host, strconv.Itoa(portOr(creds.Port, 3306)))
	cfg.DBName = creds.Database
	cfg.ParseTime = true
	cfg.Loc = time.Local
	cfg.Timeout = connectTimeout
	return cfg.FormatDSN()
}

// PostgresDSN formats a libpq style URL
func PostgresDSN(creds config.MySQLCredentials) string {
	q := url.Values{}
	q.Set("sslmode", "disable")
	q.Set("connect_timeout", strconv.Itoa(int(connectTimeout.Seconds())))
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(creds.User, creds.Pass),
		Host:     net.JoinHostPort(creds.Host, strconv.Itoa(portOr(creds.Port, 5432))),
		Path:     "/" + creds.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func portOr(port, def int) int {
	if port > 0 {
		return port
	}
	return def
}
