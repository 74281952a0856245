package simulated

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestPulseCounterDeterministic(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c1, c2 := &fakeClock{t: start}, &fakeClock{t: start}
	a := NewPulseCounter(42, 2, c1.now)
	b := NewPulseCounter(42, 2, c2.now)

	for i := 0; i < 20; i++ {
		c1.t = c1.t.Add(10 * time.Second)
		c2.t = c2.t.Add(10 * time.Second)
		na, ea, err := a.Read()
		require.NoError(t, err)
		nb, eb, _ := b.Read()
		assert.Equal(t, na, nb)
		assert.Equal(t, 10*time.Second, ea)
		assert.Equal(t, ea, eb)
	}
}

func TestPulseCounterNoTimeNoPulses(t *testing.T) {
	c := &fakeClock{t: time.Now()}
	p := NewPulseCounter(1, 5, c.now)
	n, elapsed, err := p.Read()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, elapsed)
}

func TestADCStaysNearLevels(t *testing.T) {
	levels := []int{100, 5000, 20000}
	a := NewADC(7, levels, 10, 32767)

	for i := 0; i < 200; i++ {
		v, err := a.Read(context.Background())
		require.NoError(t, err)
		near := false
		for _, l := range levels {
			if v >= l-10 && v <= l+10 {
				near = true
			}
		}
		assert.True(t, near, "value %d", v)
	}
}

func TestWaveClamped(t *testing.T) {
	c := &fakeClock{t: time.Date(2024, 7, 1, 15, 0, 0, 0, time.UTC)}
	h := Hygrometer(3, c.now)
	for i := 0; i < 100; i++ {
		v, err := h.Read(context.Background())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
		c.t = c.t.Add(17 * time.Minute)
	}
}

func TestThermometerPeaksAfternoon(t *testing.T) {
	afternoon := &fakeClock{t: time.Date(2024, 7, 1, 15, 0, 0, 0, time.UTC)}
	night := &fakeClock{t: time.Date(2024, 7, 1, 3, 0, 0, 0, time.UTC)}
	warm, _ := Thermometer(9, afternoon.now).Read(context.Background())
	cold, _ := Thermometer(9, night.now).Read(context.Background())
	assert.Greater(t, warm, cold)
}
