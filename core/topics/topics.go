// Package topics builds the pub/sub topic names and storage keys shared by
// producers, the broker and consumers. Segments are joined with ':'.
package topics

import "strings"

const (
	sep = ":"

	sensorsPrefix  = "sensors"
	vehiclePrefix  = "vehicle"
	commandsSuffix = "commands"
	dataSuffix     = "data"
	activeSuffix   = "active_commands"

	sensorsKeySuffix = "sensors"
	latestDataSuffix = "latest_data"
	historySuffix    = "command_history"
)

// SensorPattern matches every sensor topic.
const SensorPattern = sensorsPrefix + sep + "*"

// CommandPattern matches every per-vehicle command topic.
const CommandPattern = vehiclePrefix + sep + "*" + sep + commandsSuffix

// LatestDataPattern matches every snapshot key.
const LatestDataPattern = vehiclePrefix + sep + "*" + sep + latestDataSuffix

// SensorsKeyPattern matches every per-vehicle sensor hash.
const SensorsKeyPattern = vehiclePrefix + sep + "*" + sep + sensorsKeySuffix

// SensorTopic returns the topic readings of sensorType are published on.
func SensorTopic(sensorType string) string { return sensorsPrefix + sep + sensorType }

// CommandTopic returns the inbound command topic of a vehicle.
func CommandTopic(vehicleID string) string { return vehicle(vehicleID, commandsSuffix) }

// DataTopic returns the topic raw sensor payloads are relayed on.
func DataTopic(vehicleID string) string { return vehicle(vehicleID, dataSuffix) }

// ActiveCommandsTopic returns the topic raw commands are relayed on.
func ActiveCommandsTopic(vehicleID string) string { return vehicle(vehicleID, activeSuffix) }

// SensorsKey returns the hash key holding the latest entry per sensor type.
func SensorsKey(vehicleID string) string { return vehicle(vehicleID, sensorsKeySuffix) }

// LatestDataKey returns the snapshot key of a vehicle.
func LatestDataKey(vehicleID string) string { return vehicle(vehicleID, latestDataSuffix) }

// CommandHistoryKey returns the list key holding a vehicle's command history.
func CommandHistoryKey(vehicleID string) string { return vehicle(vehicleID, historySuffix) }

func vehicle(id, suffix string) string {
	return vehiclePrefix + sep + id + sep + suffix
}

// SensorTypeFromTopic extracts the sensor type from a sensor topic.
func SensorTypeFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, sensorsPrefix+sep)
	if !ok || rest == "" || strings.Contains(rest, sep) {
		return "", false
	}
	return rest, true
}

// VehicleFromCommandTopic extracts the vehicle id from a command topic.
func VehicleFromCommandTopic(topic string) (string, bool) {
	return vehicleFrom(topic, commandsSuffix)
}

// VehicleFromLatestDataKey extracts the vehicle id from a snapshot key.
func VehicleFromLatestDataKey(key string) (string, bool) {
	return vehicleFrom(key, latestDataSuffix)
}

// VehicleFromSensorsKey extracts the vehicle id from a sensor hash key.
func VehicleFromSensorsKey(key string) (string, bool) {
	return vehicleFrom(key, sensorsKeySuffix)
}

func vehicleFrom(s, suffix string) (string, bool) {
	rest, ok := strings.CutPrefix(s, vehiclePrefix+sep)
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, sep+suffix)
	if !ok || id == "" || strings.Contains(id, sep) {
		return "", false
	}
	return id, true
}
