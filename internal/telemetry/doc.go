// Package telemetry records device activity as InfluxDB time series.
//
// Recorder is registered as a gateway observer:
//
//	gw.AddObserver(telemetry.NewRecorder(influxClient))
//
// Points written:
//
//	device_message  tags imei               fields bytes[, payload]
//	device_session  tags imei, event, fver  fields csq, iccid
//	device_session  tags imei, event        fields duration_s, reason
package telemetry
