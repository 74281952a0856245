package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chrissnell/pistation/internal/backlog"
	"github.com/chrissnell/pistation/internal/database"
	"github.com/chrissnell/pistation/internal/storage/flatfile"
	"github.com/chrissnell/pistation/internal/types"
)

type fakeBackend struct {
	mu        sync.Mutex
	down      bool
	failAfter int // fail every write once this many have succeeded; 0 disables
	values    []any
}

func (b *fakeBackend) Write(_ context.Context, value any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down || (b.failAfter > 0 && len(b.values) >= b.failAfter) {
		return errors.New("backend down")
	}
	b.values = append(b.values, value)
	return nil
}

func (b *fakeBackend) State() database.ConnectionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return database.ConnectionState{Connected: !b.down, Failing: b.down}
}

func (b *fakeBackend) setDown(down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down = down
}

func (b *fakeBackend) logTexts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, v := range b.values {
		if e, ok := v.(*database.LogEntry); ok {
			out = append(out, e.Text)
		}
	}
	return out
}

func (b *fakeBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.values)
}

func reading(ts time.Time) types.Reading {
	return types.Reading{UUID: ts.String(), Timestamp: ts, RainTotal: types.Sentinel, WindSpeed: 1,
		WindGust: 2, AirQuality: 50, Pressure: 1000, Humidity: 40, WindDirection: 90}
}

func TestStoreReadingMirrorsRegardlessOfBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weather.data")
	b := &fakeBackend{down: true}
	s := New(b, flatfile.New(path), 10, zap.NewNop().Sugar())

	ts := time.Date(2024, 1, 2, 3, 40, 0, 0, time.UTC)
	err := s.StoreReading(reading(ts))
	assert.ErrorIs(t, err, backlog.ErrDeferred)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "\n"))

	b.setDown(false)
	require.NoError(t, s.StoreReading(reading(ts.Add(10*time.Minute))))
	assert.Equal(t, 2, b.count())

	m := b.values[0].(*database.WeatherMeasurement)
	assert.Equal(t, ts, m.Created)
}

func TestStoreReadingMirrorFailureDoesNotGate(t *testing.T) {
	b := &fakeBackend{}
	s := New(b, flatfile.New(filepath.Join(t.TempDir(), "nope", "weather.data")), 10, zap.NewNop().Sugar())

	require.NoError(t, s.StoreReading(reading(time.Now())))
	assert.Equal(t, 1, b.count())
	assert.Equal(t, uint64(1), s.Health().MirrorErrors)
}

func TestStoreLogSplitsLines(t *testing.T) {
	b := &fakeBackend{}
	s := New(b, flatfile.New(""), 10, zap.NewNop().Sugar())

	line := types.LogLine{Time: time.Now(), Level: "ERROR", Source: "station", Text: "first\r\n\n  \nsecond\n"}
	require.NoError(t, s.StoreLog(line))
	assert.Equal(t, []string{"first", "second"}, b.logTexts())

	require.NoError(t, s.StoreLog(types.LogLine{Time: time.Now(), Text: ""}))
	assert.Len(t, b.logTexts(), 2)
}

func TestStoreLogPartialWriteCountsAsDelivered(t *testing.T) {
	b := &fakeBackend{failAfter: 1}
	s := New(b, flatfile.New(""), 10, zap.NewNop().Sugar())

	require.NoError(t, s.StoreLog(types.LogLine{Time: time.Now(), Text: "one\ntwo\nthree"}))
	assert.Equal(t, []string{"one"}, b.logTexts())
	assert.Equal(t, 0, s.Health().Logs.Length)
}

func TestStoreHealth(t *testing.T) {
	b := &fakeBackend{down: true}
	s := New(b, flatfile.New(""), 2, zap.NewNop().Sugar())

	h := s.Health()
	assert.Nil(t, h.LastReading)
	assert.False(t, h.Saturated())

	ts := time.Date(2024, 1, 2, 3, 40, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		s.StoreReading(reading(ts.Add(time.Duration(i) * time.Minute)))
	}

	h = s.Health()
	require.NotNil(t, h.LastReading)
	assert.Equal(t, ts.Add(2*time.Minute), *h.LastReading)
	assert.True(t, h.Saturated())
	assert.Equal(t, uint64(1), h.Readings.Dropped)
	assert.True(t, h.Connection.Failing)

	b.setDown(false)
	require.NoError(t, s.Drain())
	assert.False(t, s.Health().Saturated())
	assert.Equal(t, 2, b.count())
}

func TestStartDrainer(t *testing.T) {
	b := &fakeBackend{down: true}
	s := New(b, flatfile.New(""), 10, zap.NewNop().Sugar())
	s.StoreReading(reading(time.Now()))
	b.setDown(false)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	s.StartDrainer(ctx, &wg, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return b.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	wg.Wait()
}
