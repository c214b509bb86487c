// Package influxdb records SoundWeave telemetry in InfluxDB v2.
//
// It captures discovery scan outcomes, entity health transitions, and hub
// connection state changes. The integration is optional: when disabled in
// config, Connect returns ErrDisabled and callers run without telemetry.
//
// Writes are batched and non-blocking; failures surface through the
// SetOnError callback rather than per-write return values.
package influxdb
