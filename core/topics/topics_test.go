package topics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilders(t *testing.T) {
	assert.Equal(t, "sensors:indoorTemp", SensorTopic("indoorTemp"))
	assert.Equal(t, "vehicle:ABC-123:commands", CommandTopic("ABC-123"))
	assert.Equal(t, "vehicle:ABC-123:data", DataTopic("ABC-123"))
	assert.Equal(t, "vehicle:ABC-123:active_commands", ActiveCommandsTopic("ABC-123"))
	assert.Equal(t, "vehicle:ABC-123:sensors", SensorsKey("ABC-123"))
	assert.Equal(t, "vehicle:ABC-123:latest_data", LatestDataKey("ABC-123"))
	assert.Equal(t, "vehicle:ABC-123:command_history", CommandHistoryKey("ABC-123"))
	assert.Equal(t, "sensors:*", SensorPattern)
	assert.Equal(t, "vehicle:*:commands", CommandPattern)
	assert.Equal(t, "vehicle:*:latest_data", LatestDataPattern)
}

func TestExtractors(t *testing.T) {
	typ, ok := SensorTypeFromTopic("sensors:gps")
	assert.True(t, ok)
	assert.Equal(t, "gps", typ)
	_, ok = SensorTypeFromTopic("sensors:")
	assert.False(t, ok)
	_, ok = SensorTypeFromTopic("vehicle:gps")
	assert.False(t, ok)

	id, ok := VehicleFromCommandTopic("vehicle:XYZ-789:commands")
	assert.True(t, ok)
	assert.Equal(t, "XYZ-789", id)
	_, ok = VehicleFromCommandTopic("vehicle::commands")
	assert.False(t, ok)
	_, ok = VehicleFromCommandTopic("vehicle:a:b:commands")
	assert.False(t, ok)
	_, ok = VehicleFromCommandTopic("vehicle:XYZ-789:data")
	assert.False(t, ok)

	id, ok = VehicleFromLatestDataKey(LatestDataKey("DEF-456"))
	assert.True(t, ok)
	assert.Equal(t, "DEF-456", id)
	id, ok = VehicleFromSensorsKey(SensorsKey("DEF-456"))
	assert.True(t, ok)
	assert.Equal(t, "DEF-456", id)
}
