// Package status serves a small read-only HTTP view of the station's health.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/chrissnell/pistation/internal/constants"
	"github.com/chrissnell/pistation/internal/controllers"
	"github.com/chrissnell/pistation/internal/log"
	"github.com/chrissnell/pistation/internal/storage"
	"github.com/chrissnell/pistation/pkg/config"
)

// Report is the body of /status
type Report struct {
	Station     string          `json:"station"`
	Version     string          `json:"version"`
	Time        time.Time       `json:"time"`
	Healthy     bool            `json:"healthy"`
	Health      storage.Health  `json:"health"`
	Credentials CredentialsView `json:"credentials"`
}

// CredentialsView describes the active credentials without any secrets
type CredentialsView struct {
	Source   string              `json:"source"`
	ModTime  *time.Time          `json:"mod_time,omitempty"`
	Groups   map[string]bool     `json:"groups"`
	Missing  map[string][]string `json:"missing,omitempty"`
	Rejected uint64              `json:"rejected_updates"`
}

// RejectionCounter is implemented by credential sources that refuse regressions
type RejectionCounter interface {
	Rejected() uint64
}

// Controller is the status HTTP server
type Controller struct {
	ctx    context.Context
	wg     *sync.WaitGroup
	svc    *controllers.Services
	Server http.Server
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewController creates a new status controller
func NewController(ctx context.Context, wg *sync.WaitGroup, svc *controllers.Services, cc config.ControllerData) (*Controller, error) {
	if cc.ListenAddr == "" {
		return nil, fmt.Errorf("status: listen address is required")
	}
	if svc.Health == nil {
		return nil, fmt.Errorf("status: no health source")
	}

	c := &Controller{
		ctx:    ctx,
		wg:     wg,
		svc:    svc,
		logger: svc.Logger.Named("status"),
		now:    time.Now,
	}
	c.Server.Addr = cc.ListenAddr
	c.Server.Handler = c.Router()
	c.Server.ReadHeaderTimeout = 5 * time.Second

	return c, nil
}

// StartController starts the HTTP server and stops it when the context ends
func (c *Controller) StartController() error {
	c.logger.Infof("Starting status server on %s...", c.Server.Addr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
			c.logger.Errorf("status server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("Shutting down the status server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()

	return nil
}

// Router configures the HTTP router with all endpoints
func (c *Controller) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(log.HTTPMiddleware(c.logger))
	router.HandleFunc("/healthz", c.healthz).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/status", c.status).Methods(http.MethodGet)
	return router
}

func (c *Controller) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if c.svc.Health.Health().Saturated() {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "backlog saturated")
		return
	}
	fmt.Fprintln(w, "ok")
}

func (c *Controller) status(w http.ResponseWriter, _ *http.Request) {
	health := c.svc.Health.Health()
	report := Report{
		Station: c.svc.StationName,
		Version: constants.Version,
		Time:    c.now().UTC(),
		Healthy: !health.Saturated(),
		Health:  health,
	}
	if c.svc.Credentials != nil {
		report.Credentials = c.credentialsView()
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		c.logger.Errorw("error encoding status", "error", err)
	}
}

func (c *Controller) credentialsView() CredentialsView {
	creds := c.svc.Credentials.Current()
	v := CredentialsView{
		Source: creds.Source,
		Groups: creds.Usable(),
	}
	if !creds.ModTime.IsZero() {
		t := creds.ModTime.UTC()
		v.ModTime = &t
	}
	for name, g := range map[string]config.Group{
		config.GroupMySQL:   creds.MySQL.Group,
		config.GroupCloud:   creds.Cloud.Group,
		config.GroupTwitter: creds.Twitter.Group,
	} {
		if len(g.Missing) == 0 {
			continue
		}
		if v.Missing == nil {
			v.Missing = make(map[string][]string)
		}
		v.Missing[name] = g.Missing
	}
	if rc, ok := c.svc.Credentials.(RejectionCounter); ok {
		v.Rejected = rc.Rejected()
	}
	return v
}
