package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/grayhome/domo-bridge/internal/infrastructure/config"
)

const (
	defaultConnectTimeout  = 10 * time.Second
	defaultPingTimeout     = 5 * time.Second
	millisecondsPerSecond  = 1000
	maxBatchSize           = 100000
	maxFlushIntervalSecond = 3600
)

// Writer wraps the InfluxDB v2 write API for the fields the mangler's
// power/energy rule (mangle.manglePowerEnergy) produces.
type Writer struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.InfluxDBConfig

	mu        sync.RWMutex
	connected bool
	onError   func(err error)
	done      chan struct{}
}

// New connects to InfluxDB per cfg, or returns ErrDisabled if cfg.Enabled is
// false.
func New(ctx context.Context, cfg config.InfluxDBConfig) (*Writer, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	} else if batchSize > maxBatchSize {
		return nil, fmt.Errorf("batch_size %d exceeds maximum %d", batchSize, maxBatchSize)
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 10
	} else if flushInterval > maxFlushIntervalSecond {
		return nil, fmt.Errorf("flush_interval %d exceeds maximum %d seconds", flushInterval, maxFlushIntervalSecond)
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		// #nosec G115 -- batchSize/flushInterval validated non-negative above
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*millisecondsPerSecond),
	)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()
	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	w := &Writer{
		client:    client,
		writeAPI:  writeAPI,
		cfg:       cfg,
		connected: true,
		done:      make(chan struct{}),
	}

	go w.handleWriteErrors(writeAPI.Errors())
	return w, nil
}

func (w *Writer) handleWriteErrors(errorsCh <-chan error) {
	for {
		select {
		case <-w.done:
			return
		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			w.mu.RLock()
			cb := w.onError
			w.mu.RUnlock()
			if cb != nil {
				cb(err)
			}
		}
	}
}

// SetOnError registers a callback for async write errors.
func (w *Writer) SetOnError(cb func(err error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = cb
}

// IsConnected reports the writer's last known connection state.
func (w *Writer) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

// Close flushes pending writes and disconnects.
func (w *Writer) Close() error {
	if w.client == nil {
		return nil
	}
	w.mu.Lock()
	w.connected = false
	w.mu.Unlock()

	w.writeAPI.Flush()
	close(w.done)
	w.client.Close()
	return nil
}
