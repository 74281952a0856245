// Package dailysummary posts a summary of each local day shortly after midnight.
package dailysummary

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"github.com/chrissnell/pistation/internal/controllers"
	"github.com/chrissnell/pistation/internal/database"
)

const (
	minDelay      = time.Minute
	maxDelay      = 10 * time.Minute
	recheckPeriod = 10 * time.Minute
)

// Poster publishes a summary
type Poster interface {
	Post(ctx context.Context, text string) error
}

// LogPoster writes summaries to the log
type LogPoster struct {
	Logger *zap.SugaredLogger
}

func (p LogPoster) Post(_ context.Context, text string) error {
	p.Logger.Infow("daily summary", "text", text)
	return nil
}

// Controller waits for each local midnight and posts the day that just ended
type Controller struct {
	ctx    context.Context
	wg     *sync.WaitGroup
	svc    *controllers.Services
	poster Poster
	logger *zap.SugaredLogger

	now   func() time.Time
	delay func() time.Duration
}

// NewController creates a new daily summary controller
func NewController(ctx context.Context, wg *sync.WaitGroup, svc *controllers.Services, poster Poster) *Controller {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	logger := svc.Logger.Named("dailysummary")
	if poster == nil {
		poster = LogPoster{Logger: logger}
	}
	return &Controller{
		ctx:    ctx,
		wg:     wg,
		svc:    svc,
		poster: poster,
		logger: logger,
		now:    time.Now,
		delay: func() time.Duration {
			return minDelay + time.Duration(rng.Int63n(int64(maxDelay-minDelay)))
		},
	}
}

// StartController starts the midnight loop
func (c *Controller) StartController() error {
	c.logger.Info("Starting daily summary controller...")
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		c.run()
	}()

	return nil
}

func (c *Controller) run() {
	for {
		creds := c.svc.Credentials.Current()
		if !creds.MySQL.Usable || !creds.Twitter.Usable {
			if !controllers.Sleep(c.ctx, recheckPeriod) {
				return
			}
			continue
		}

		start, end := DayBounds(c.now(), Location(creds.Twitter.Timezone, c.logger))
		wait := end.Sub(c.now()) + c.delay()
		c.logger.Debugw("queued daily summary", "day", start.Format(time.DateOnly), "in", wait)

		if !controllers.Sleep(c.ctx, wait) {
			c.logger.Info("Stopping daily summary controller")
			return
		}

		if err := c.Report(c.ctx, start, end); err != nil {
			c.logger.Warnw("daily summary failed", "day", start.Format(time.DateOnly), "error", err)
		}
	}
}

// Report summarises [start, end) using the current credentials and posts it
func (c *Controller) Report(ctx context.Context, start, end time.Time) error {
	creds := c.svc.Credentials.Current()
	if !creds.MySQL.Usable {
		return fmt.Errorf("mysql credentials not usable")
	}

	sess, err := c.svc.Open(creds.MySQL)
	if err != nil {
		return fmt.Errorf("unable to connect to database: %w", err)
	}
	defer sess.Close()

	var rows []database.WeatherMeasurement
	err = sess.DB.WithContext(ctx).Clauses(clause.Where{Exprs: []clause.Expression{
		clause.Gte{Column: clause.Column{Name: "CREATED"}, Value: start.UTC()},
		clause.Lt{Column: clause.Column{Name: "CREATED"}, Value: end.UTC()},
	}}).Find(&rows).Error
	if err != nil {
		return fmt.Errorf("database read failed: %w", err)
	}

	if len(rows) == 0 {
		c.logger.Warnw("no readings for daily summary", "day", start.Format(time.DateOnly))
		return nil
	}

	text := Summarize(start.Format(time.DateOnly), rows).Text()
	if err := c.poster.Post(ctx, text); err != nil {
		return fmt.Errorf("failed to post summary: %w", err)
	}
	return nil
}

// Location resolves the configured zone, falling back to the system zone
func Location(name string, logger *zap.SugaredLogger) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warnw("failed to load timezone", "timezone", name, "error", err)
		return time.Local
	}
	return loc
}

// DayBounds returns the local midnight that starts the day containing now and the one that ends it
func DayBounds(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
