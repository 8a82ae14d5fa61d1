package sensor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/carhack/internal/config"
	"github.com/banshee-data/carhack/internal/monitoring"
	"github.com/banshee-data/carhack/internal/serialmux"
	"github.com/banshee-data/carhack/internal/timeutil"
)

type published struct {
	name  string
	ts    float64
	value any
}

// recorder is a Target that records every sample and signals each one.
type recorder struct {
	mu      sync.Mutex
	samples []published
	ch      chan published
	err     error
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan published, 128)}
}

func (r *recorder) Publish(name string, ts float64, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	p := published{name, ts, value}
	r.samples = append(r.samples, p)
	r.ch <- p
	return nil
}

func (r *recorder) next(t *testing.T) published {
	t.Helper()
	select {
	case p := <-r.ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a sample")
		return published{}
	}
}

func TestRegistry(t *testing.T) {
	r := Builtin()
	assert.Equal(t, []string{"radar", "synthetic"}, r.Names())

	_, err := r.Get("lidar")
	require.ErrorIs(t, err, ErrUnknownSensor)
	_, err = r.New("lidar", nil, Deps{})
	require.ErrorIs(t, err, ErrUnknownSensor)

	require.Error(t, r.Register("radar", NewRadar))
	require.Error(t, r.Register("", NewRadar))
	require.Error(t, r.Register("nil", nil))
	assert.Panics(t, func() { r.MustRegister("radar", NewRadar) })
}

func TestRegistryNewPassesNameAndDefaults(t *testing.T) {
	r := NewRegistry()
	var got Deps
	require.NoError(t, r.Register("engine", func(cfg config.Settings, deps Deps) (Sensor, error) {
		got = deps
		return nil, errors.New("no hardware")
	}))

	_, err := r.New("engine", config.Settings{}, Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sensor engine")
	assert.Equal(t, "engine", got.Name)
	assert.NotNil(t, got.Logf)
	assert.NotNil(t, got.Clock)
	assert.NotNil(t, got.OpenSerial)
}

func newTestRadar(t *testing.T, cfg config.Settings, target Target) (*Radar, *serialmux.TestableSerialPort, *serialmux.MockOpener) {
	t.Helper()
	port := serialmux.NewTestableSerialPort()
	port.BlockReads = true
	opener := serialmux.NewMockOpener(port)
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))

	s, err := Builtin().New("radar", cfg, Deps{
		Target:     target,
		Logf:       monitoring.Discard,
		Clock:      clock,
		OpenSerial: opener.Open,
	})
	require.NoError(t, err)
	return s.(*Radar), port, opener
}

func TestRadarPublishesReadings(t *testing.T) {
	rec := newRecorder()
	radar, port, opener := newTestRadar(t, config.Settings{"port": "/dev/ttyUSB0", "parity": "even"}, rec)

	call := opener.LastCall()
	require.NotNil(t, call)
	assert.Equal(t, "/dev/ttyUSB0", call.Path)
	assert.Equal(t, "E", call.Opts.Parity)
	assert.Equal(t, 19200, call.Opts.BaudRate)

	require.NoError(t, radar.Start(context.Background()))
	port.AddReadData([]byte("12.5,31,4.25\n" +
		`{"classifier":"object_outbound","end_time":"1700000001.5"}` + "\n" +
		"garbage\n" +
		`{"Units":"mps"}` + "\n"))

	want := []published{
		{"radar.speed", 1700000000, 4.25},
		{"radar.magnitude", 1700000000, 31.0},
		{"radar.uptime", 1700000000, 12.5},
		{"radar.object", 1700000000, map[string]any{"classifier": "object_outbound", "end_time": "1700000001.5"}},
		{"radar.config", 1700000000, map[string]any{"Units": "mps"}},
	}
	for _, w := range want {
		assert.Equal(t, w, rec.next(t))
	}

	require.NoError(t, radar.Close())
	require.NoError(t, radar.Close())
	assert.True(t, port.Closed)
	require.Error(t, radar.Start(context.Background()))
}

func TestRadarInitialize(t *testing.T) {
	radar, port, _ := newTestRadar(t, config.Settings{"port": "/dev/ttyUSB0", "initialize": "true"}, newRecorder())
	require.NoError(t, radar.Start(context.Background()))
	defer radar.Close()

	assert.Contains(t, string(port.GetWrittenData()), "OJ\n")
}

func TestRadarCountsPublishFailures(t *testing.T) {
	rec := newRecorder()
	rec.err = errors.New("trip closed")
	radar, port, _ := newTestRadar(t, config.Settings{"port": "/dev/ttyUSB0"}, rec)
	require.NoError(t, radar.Start(context.Background()))

	port.AddReadData([]byte("5,1,2\n"))
	require.Eventually(t, func() bool { return radar.Dropped() == 3 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, radar.Close())
}

func TestRadarConfigErrors(t *testing.T) {
	r := Builtin()
	_, err := r.New("radar", config.Settings{}, Deps{Target: newRecorder()})
	require.ErrorContains(t, err, "port is required")

	_, err = r.New("radar", config.Settings{"port": "/dev/x", "data_bits": "12"}, Deps{Target: newRecorder()})
	require.ErrorContains(t, err, "data bits")

	opener := serialmux.NewMockOpener(nil)
	opener.Error = errors.New("no such device")
	_, err = r.New("radar", config.Settings{"port": "/dev/x"}, Deps{Target: newRecorder(), OpenSerial: opener.Open})
	require.ErrorContains(t, err, "no such device")
}

func TestSyntheticPublishesOnTicks(t *testing.T) {
	rec := newRecorder()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	s, err := Builtin().New("synthetic", config.Settings{"interval": "1s", "amplitude": "10", "period": "4s"}, Deps{
		Target: rec,
		Logf:   monitoring.Discard,
		Clock:  clock,
	})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, 1, clock.Tickers())

	clock.Advance(time.Second)
	p := rec.next(t)
	assert.Equal(t, "synthetic.speed", p.name)
	assert.Equal(t, 1.0, p.ts)
	assert.InDelta(t, 5.0, p.value.(float64), 1e-9)

	clock.Advance(time.Second)
	p = rec.next(t)
	assert.Equal(t, 2.0, p.ts)
	assert.InDelta(t, 10.0, p.value.(float64), 1e-9)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestSyntheticRejectsBadConfig(t *testing.T) {
	_, err := NewSynthetic(config.Settings{"interval": "-1s"}, Deps{})
	require.Error(t, err)
	_, err = NewSynthetic(config.Settings{"period": "0s"}, Deps{})
	require.Error(t, err)

	s, err := NewSynthetic(config.Settings{}, Deps{})
	require.NoError(t, err)
	require.NoError(t, s.Close(), "closing an unstarted sensor")
}
