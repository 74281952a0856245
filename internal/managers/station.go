package managers

import (
	"fmt"
	"time"

	"github.com/chrissnell/pistation/internal/aggregate"
	"github.com/chrissnell/pistation/internal/log"
	"github.com/chrissnell/pistation/internal/sensors"
	"github.com/chrissnell/pistation/internal/station"
	"github.com/chrissnell/pistation/pkg/config"
)

// NewStation builds the configured sensors and the window aggregator and
// returns the sampling loop that ties them to the store
func NewStation(c *config.ConfigData, creds station.Checker, store station.ReadingStore) (*station.Station, error) {
	set, err := sensors.Build(c, time.Now, log.Named("sensors"))
	if err != nil {
		return nil, fmt.Errorf("error creating sensors: %w", err)
	}
	for _, s := range set.Sensors {
		log.Infof("Initialized sensor [%v]", s.Name())
	}

	cal := aggregate.Calibration{
		PulsesToWindSpeed: c.Calibration.PulsesToWindSpeed,
		PulsesToMM:        c.Calibration.PulsesToMM,
	}
	agg, err := aggregate.NewAggregator(c.Station.Window, cal, set.Channels, log.Named("aggregate"))
	if err != nil {
		return nil, fmt.Errorf("error creating aggregator: %w", err)
	}

	return station.New(c.Station.Tick, set.Sensors, agg, creds, store, log.Named("station")), nil
}
