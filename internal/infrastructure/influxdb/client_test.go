package influxdb

import (
	"context"
	"errors"
	"testing"

	"github.com/soundweave/soundweave-core/internal/infrastructure/config"
)

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() with disabled config error = %v, want ErrDisabled", err)
	}
}

func TestHealthCheck_NotConnected(t *testing.T) {
	c := &Client{}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestClose_NilClient(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on zero client error: %v", err)
	}
}

func TestWrites_DroppedWhenDisconnected(t *testing.T) {
	// A disconnected client silently drops points rather than panicking on
	// the nil write API.
	c := &Client{}
	c.WriteScanMetrics("manual", 3, 1, 0, 0, false)
	c.WriteEntityHealth("pid-1", "player", "online")
	c.WriteHubConnection("10.0.0.5", "connected", 0)
	c.WritePoint("custom", nil, map[string]interface{}{"v": 1})
	c.Flush()
}
