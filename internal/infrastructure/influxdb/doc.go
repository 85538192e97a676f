// Package influxdb writes game telemetry to InfluxDB v2 for post-game
// dashboards: periodic game samples, bus counters and discrete events.
//
// Writes go through the client library's non-blocking batching WriteAPI;
// a slow or absent server never stalls the game loop. Asynchronous write
// failures are delivered to the SetOnError callback.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.WriteEvent("bomb-01", "strike", "0x201", time.Now())
package influxdb
