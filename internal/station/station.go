// Package station runs the sampling loop: read every sensor each tick, fold
// the samples into the current window and persist each finished window.
package station

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/pistation/internal/aggregate"
	"github.com/chrissnell/pistation/internal/backlog"
	"github.com/chrissnell/pistation/internal/sensors"
	"github.com/chrissnell/pistation/internal/types"
)

// Checker refreshes configuration between ticks
type Checker interface {
	Check() bool
}

// ReadingStore persists finished windows
type ReadingStore interface {
	StoreReading(r types.Reading) error
}

// Station owns the aggregator and drives it from the sensors
type Station struct {
	tick       time.Duration
	sensors    []sensors.Sensor
	aggregator *aggregate.Aggregator
	config     Checker
	store      ReadingStore
	logger     *zap.SugaredLogger

	now func() time.Time
}

// New creates a station that samples every tick
func New(tick time.Duration, s []sensors.Sensor, agg *aggregate.Aggregator, cfg Checker, store ReadingStore, logger *zap.SugaredLogger) *Station {
	return &Station{
		tick:       tick,
		sensors:    s,
		aggregator: agg,
		config:     cfg,
		store:      store,
		logger:     logger,
		now:        time.Now,
	}
}

// Step runs one tick at now and returns the reading it emitted, if any
func (s *Station) Step(ctx context.Context, now time.Time) (types.Reading, bool) {
	s.config.Check()

	for _, sensor := range s.sensors {
		samples, err := sensor.Sample(ctx)
		if err != nil {
			s.logger.Warnw("sensor read failed", "sensor", sensor.Name(), "error", err)
			continue
		}
		for _, sample := range samples {
			if err := s.aggregator.Add(sample); err != nil {
				s.logger.Debugw("sample rejected", "sensor", sensor.Name(), "metric", sample.Metric, "error", err)
			}
		}
	}

	reading, ok := s.aggregator.Tick(now)
	if !ok {
		return types.Reading{}, false
	}

	if err := s.store.StoreReading(reading); err != nil {
		switch {
		case errors.Is(err, backlog.ErrQueueFull):
			s.logger.Errorw("reading lost", "timestamp", reading.Timestamp, "uuid", reading.UUID, "error", err)
		case errors.Is(err, backlog.ErrDeferred):
			s.logger.Infow("reading deferred to backlog", "timestamp", reading.Timestamp, "error", err)
		default:
			s.logger.Warnw("unable to store reading", "timestamp", reading.Timestamp, "error", err)
		}
	} else {
		s.logger.Debugw("reading stored", "timestamp", reading.Timestamp, "uuid", reading.UUID)
	}

	return reading, true
}

// Run steps on every tick boundary until ctx is cancelled
func (s *Station) Run(ctx context.Context) error {
	s.logger.Infow("sampling loop started", "tick", s.tick, "sensors", len(s.sensors))

	for {
		s.Step(ctx, s.now())

		timer := time.NewTimer(NextTick(s.now(), s.tick))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("sampling loop stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// NextTick returns how long to wait from now until the next multiple of tick,
// so that the loop does not drift by the time each step takes
func NextTick(now time.Time, tick time.Duration) time.Duration {
	if tick <= 0 {
		return 0
	}
	elapsed := time.Duration(now.UnixNano()) % tick
	return tick - elapsed
}
