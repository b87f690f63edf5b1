// Package influxdb mirrors device telemetry into InfluxDB.
//
// The relational store stays the system of record; this package gives
// dashboards a time-series copy of every reading. Each reading becomes a
// point in the device_data measurement tagged with the device unique id,
// its device kind and unit.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	router.SetTelemetrySink(client)
//
// Writes are batched according to batch_size and flush_interval and never
// block the message path. Write failures arrive through SetOnError.
package influxdb
