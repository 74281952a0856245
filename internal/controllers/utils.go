// Package controllers holds the background workers that run alongside the
// sampling loop and the helpers they share.
package controllers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/pistation/internal/database"
	"github.com/chrissnell/pistation/internal/storage"
	"github.com/chrissnell/pistation/pkg/config"
)

// CredentialsSource supplies the active credentials snapshot
type CredentialsSource interface {
	Current() *config.Credentials
}

// HealthSource reports the state of the persistence path
type HealthSource interface {
	Health() storage.Health
}

// OpenFunc opens a short-lived database session
type OpenFunc func(creds config.MySQLCredentials) (*database.GormSession, error)

// Services is everything a controller may use. Controllers get it at
// construction and reach nothing else.
type Services struct {
	StationName string
	Credentials CredentialsSource
	Health      HealthSource
	Open        OpenFunc
	Logger      *zap.SugaredLogger
}

// NewHTTPClient creates a standardized HTTP client with timeout
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
	}
}

// PeriodicTask represents a periodic task configuration
type PeriodicTask struct {
	Name      string
	Interval  time.Duration
	Immediate bool
	Task      func(ctx context.Context) error
}

// RunPeriodicTask runs a task periodically until context is cancelled
func RunPeriodicTask(ctx context.Context, task PeriodicTask, logger *zap.SugaredLogger) {
	logger.Infof("Starting periodic task: %s (interval: %v)", task.Name, task.Interval)

	run := func() {
		if err := task.Task(ctx); err != nil {
			logger.Errorf("Error in periodic task %s: %v", task.Name, err)
		}
	}

	if task.Immediate {
		run()
	}

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			run()
		case <-ctx.Done():
			logger.Infof("Stopping periodic task: %s", task.Name)
			return
		}
	}
}

// Sleep waits for d or until ctx is done, reporting whether the full wait elapsed
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
