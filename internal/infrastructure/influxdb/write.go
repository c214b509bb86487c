package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteScanMetrics records the outcome of a discovery scan pass.
//
// One point per scan, tagged by trigger ("manual", "background", "event").
// Aborted passes record zero counts with aborted=true so the abort rate is
// queryable.
func (c *Client) WriteScanMetrics(trigger string, playersFound, groupsFound, removed int, duration time.Duration, aborted bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"discovery_scan",
		map[string]string{
			"trigger": trigger,
		},
		map[string]interface{}{
			"players_found": playersFound,
			"groups_found":  groupsFound,
			"removed":       removed,
			"duration_ms":   duration.Milliseconds(),
			"aborted":       aborted,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteEntityHealth records an entity online/offline transition.
func (c *Client) WriteEntityHealth(entityID, kind, status string) {
	if !c.IsConnected() {
		return
	}

	online := 0
	if status == "online" {
		online = 1
	}

	point := write.NewPoint(
		"entity_health",
		map[string]string{
			"entity_id": entityID,
			"kind":      kind,
		},
		map[string]interface{}{
			"online": online,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteHubConnection records a hub connection state change, tagged by the
// state entered. The attempt field carries the reconnect attempt number
// (zero for the initial connect).
func (c *Client) WriteHubConnection(host, state string, attempt int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"hub_connection",
		map[string]string{
			"host":  host,
			"state": state,
		},
		map[string]interface{}{
			"attempt": attempt,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point for measurements that don't fit the
// helpers. Tags should stay low-cardinality.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
