// Package mqttprobe checks a device's MQTT side from the workstation.
//
// A Pigeon device connects to the broker named in its settings, subscribes
// to iot/sensors/<device_id>/# and publishes its health document on
// iot/sensors/<device_id>/events/heartbeat once the subscription is
// acknowledged. Sensor readings follow on
// iot/sensors/<device_id>/events/<sensor>/reading.
//
// Ping verifies a broker URL and credentials before they are written to
// a device. WaitHeartbeat confirms that a freshly configured device came
// online. Watch streams sensor readings.
package mqttprobe
