// Package cloudupload sends stored readings that have not been uploaded yet to
// the remote weather database and records the id it assigns.
package cloudupload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"github.com/chrissnell/pistation/internal/controllers"
	"github.com/chrissnell/pistation/internal/database"
	"github.com/chrissnell/pistation/pkg/config"
)

// BatchSize is the most rows sent in one run
const BatchSize = 50

// Controller uploads pending readings on a fixed interval
type Controller struct {
	ctx        context.Context
	wg         *sync.WaitGroup
	svc        *controllers.Services
	interval   time.Duration
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewController creates a new cloud upload controller
func NewController(ctx context.Context, wg *sync.WaitGroup, svc *controllers.Services, cc config.ControllerData) (*Controller, error) {
	if cc.UploadInterval <= 0 {
		return nil, fmt.Errorf("cloudupload: upload interval must be positive")
	}
	return &Controller{
		ctx:        ctx,
		wg:         wg,
		svc:        svc,
		interval:   cc.UploadInterval,
		httpClient: controllers.NewHTTPClient(30 * time.Second),
		logger:     svc.Logger.Named("cloudupload"),
	}, nil
}

// StartController runs an upload straight away and then every interval
func (c *Controller) StartController() error {
	c.logger.Info("Starting cloud upload controller...")
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		controllers.RunPeriodicTask(c.ctx, controllers.PeriodicTask{
			Name:      "cloud upload",
			Interval:  c.interval,
			Immediate: true,
			Task: func(ctx context.Context) error {
				_, err := c.Upload(ctx)
				return err
			},
		}, c.logger)
	}()

	return nil
}

// Upload sends up to BatchSize pending rows and returns how many were accepted
func (c *Controller) Upload(ctx context.Context) (int, error) {
	creds := c.svc.Credentials.Current()
	if !creds.MySQL.Usable || !creds.Cloud.Usable {
		c.logger.Warn("configuration inadequate for cloud upload")
		return 0, nil
	}

	start := time.Now()

	sess, err := c.svc.Open(creds.MySQL)
	if err != nil {
		return 0, fmt.Errorf("unable to connect to database: %w", err)
	}
	defer sess.Close()

	var rows []database.WeatherMeasurement
	err = sess.DB.WithContext(ctx).
		Where(map[string]interface{}{"REMOTE_ID": nil}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "ID"}}).
		Limit(BatchSize).
		Find(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("database read failed: %w", err)
	}

	uploaded := 0
	for i := range rows {
		remoteID, err := c.send(ctx, &rows[i], creds.Cloud)
		if err != nil {
			c.logger.Warnw("cloud upload failed", "local_id", rows[i].ID, "error", err)
			continue
		}

		err = sess.DB.WithContext(ctx).Model(&rows[i]).Update("REMOTE_ID", remoteID).Error
		if err != nil {
			c.logger.Errorw("unable to record remote id", "local_id", rows[i].ID, "remote_id", remoteID, "error", err)
			continue
		}
		uploaded++
	}

	plural := "s"
	if uploaded == 1 {
		plural = ""
	}
	c.logger.Infof("uploaded %d reading%s in %.2f seconds", uploaded, plural, time.Since(start).Seconds())

	return uploaded, nil
}

type cloudResponse struct {
	RecordID *int64 `json:"ORCL_RECORD_ID"`
}

// send posts one row. The values travel as request headers with an empty body.
func (c *Controller) send(ctx context.Context, m *database.WeatherMeasurement, cloud config.CloudCredentials) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cloud.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("error creating HTTP request: %v", err)
	}

	for k, v := range Headers(m, cloud) {
		// set directly to keep the names exactly as the service expects them
		req.Header[k] = []string{v}
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Accept", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("error sending request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("unexpected cloud response: %d", resp.StatusCode)
	}

	var body cloudResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to parse cloud response: %w", err)
	}
	if body.RecordID == nil {
		return 0, fmt.Errorf("cloud response has no ORCL_RECORD_ID")
	}
	return *body.RecordID, nil
}

// Headers returns the request headers for one row
func Headers(m *database.WeatherMeasurement, cloud config.CloudCredentials) map[string]string {
	f := func(v float64) string {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return map[string]string{
		"LOCAL_ID":          strconv.FormatInt(m.ID, 10),
		"AMB_TEMP":          f(m.AmbientTemperature),
		"GND_TEMP":          f(m.GroundTemperature),
		"AIR_QUALITY":       f(m.AirQuality),
		"AIR_PRESSURE":      f(m.AirPressure),
		"HUMIDITY":          f(m.Humidity),
		"WIND_DIRECTION":    f(m.WindDirection),
		"WIND_SPEED":        f(m.WindSpeed),
		"WIND_GUST_SPEED":   f(m.WindGustSpeed),
		"RAINFALL":          f(m.Rainfall),
		"READING_TIMESTAMP": m.Created.UTC().Format("2006-01-02T15:04:05"),
		"WEATHER_STN_NAME":  cloud.User,
		"WEATHER_STN_PASS":  cloud.Pass,
	}
}
