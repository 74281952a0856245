package cloudupload

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chrissnell/pistation/internal/controllers"
	"github.com/chrissnell/pistation/internal/database"
	"github.com/chrissnell/pistation/pkg/config"
)

type staticCreds struct{ c *config.Credentials }

func (s staticCreds) Current() *config.Credentials { return s.c }

func setup(t *testing.T, cloudURL string) (*Controller, *database.GormSession, *config.Credentials) {
	t.Helper()

	creds := config.Empty("test")
	creds.MySQL = config.MySQLCredentials{
		Group:    config.Group{Usable: true},
		Driver:   config.DriverSQLite,
		Database: filepath.Join(t.TempDir(), "weather.db"),
	}
	creds.Cloud = config.CloudCredentials{Group: config.Group{Usable: true}, URL: cloudURL, User: "garden", Pass: "s3cret"}

	logger := zap.NewNop().Sugar()
	sess, err := database.Open(creds.MySQL, logger)
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	require.NoError(t, sess.Migrate())

	svc := &controllers.Services{
		Credentials: staticCreds{c: creds},
		Open: func(c config.MySQLCredentials) (*database.GormSession, error) {
			return database.Open(c, logger)
		},
		Logger: logger,
	}
	c, err := NewController(context.Background(), &sync.WaitGroup{}, svc, config.ControllerData{Type: "cloudupload", UploadInterval: time.Hour})
	require.NoError(t, err)
	return c, sess, creds
}

func insertRows(t *testing.T, sess *database.GormSession, n int, remote *int64) {
	t.Helper()
	base := time.Date(2024, 3, 4, 5, 10, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		m := &database.WeatherMeasurement{
			UUID:               fmt.Sprintf("uuid-%d-%v", i, remote != nil),
			Created:            base.Add(time.Duration(i) * 10 * time.Minute),
			AmbientTemperature: 12.5,
			GroundTemperature:  -1000,
			AirPressure:        1002.25,
			Rainfall:           0.2794,
			RemoteID:           remote,
		}
		require.NoError(t, sess.DB.Create(m).Error)
	}
}

func pending(t *testing.T, sess *database.GormSession) int64 {
	t.Helper()
	var n int64
	require.NoError(t, sess.DB.Model(&database.WeatherMeasurement{}).Where(map[string]interface{}{"REMOTE_ID": nil}).Count(&n).Error)
	return n
}

func TestUploadMarksRows(t *testing.T) {
	var next atomic.Int64
	next.Store(500)
	var mu sync.Mutex
	var seen []http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		mu.Lock()
		seen = append(seen, r.Header.Clone())
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"ORCL_RECORD_ID": %d}`, next.Add(1))
	}))
	defer srv.Close()

	c, sess, _ := setup(t, srv.URL)
	done := int64(7)
	insertRows(t, sess, 3, nil)
	insertRows(t, sess, 2, &done)

	n, err := c.Upload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, int64(0), pending(t, sess))

	var rows []database.WeatherMeasurement
	require.NoError(t, sess.DB.Order("ID").Find(&rows).Error)
	require.NotNil(t, rows[0].RemoteID)
	assert.Equal(t, int64(501), *rows[0].RemoteID)
	assert.Equal(t, int64(7), *rows[4].RemoteID)

	require.Len(t, seen, 3)
	h := seen[0]
	assert.Equal(t, "1", h.Get("LOCAL_ID"))
	assert.Equal(t, "12.5", h.Get("AMB_TEMP"))
	assert.Equal(t, "-1000", h.Get("GND_TEMP"))
	assert.Equal(t, "1002.25", h.Get("AIR_PRESSURE"))
	assert.Equal(t, "2024-03-04T05:10:00", h.Get("READING_TIMESTAMP"))
	assert.Equal(t, "garden", h.Get("WEATHER_STN_NAME"))
	assert.Equal(t, "s3cret", h.Get("WEATHER_STN_PASS"))
}

func TestUploadBatchLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"ORCL_RECORD_ID": %d}`, calls.Add(1))
	}))
	defer srv.Close()

	c, sess, _ := setup(t, srv.URL)
	insertRows(t, sess, BatchSize+5, nil)

	n, err := c.Upload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BatchSize, n)
	assert.Equal(t, int64(5), pending(t, sess))
}

func TestUploadRejectedLeavesRowsPending(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"wrong status", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `{"ORCL_RECORD_ID": 1}`)
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `not json`)
		}},
		{"missing id", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"OTHER": 3}`)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c, sess, _ := setup(t, srv.URL)
			insertRows(t, sess, 2, nil)

			n, err := c.Upload(context.Background())
			require.NoError(t, err)
			assert.Zero(t, n)
			assert.Equal(t, int64(2), pending(t, sess))
		})
	}
}

func TestUploadNeedsCredentials(t *testing.T) {
	c, _, creds := setup(t, "http://127.0.0.1:1")
	creds.Cloud.Usable = false

	opened := false
	c.svc.Open = func(config.MySQLCredentials) (*database.GormSession, error) {
		opened = true
		return nil, fmt.Errorf("should not open")
	}

	n, err := c.Upload(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, opened)
}

func TestNewControllerRequiresInterval(t *testing.T) {
	_, err := NewController(context.Background(), &sync.WaitGroup{}, &controllers.Services{Logger: zap.NewNop().Sugar()}, config.ControllerData{})
	assert.Error(t, err)
}
