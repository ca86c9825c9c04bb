package status_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestline-labs/eyelink-realtime/pkg/status"
)

func TestParseComponent_UnknownModel(t *testing.T) {
	raw := json.RawMessage(`{"model":"FutureThing","data":{}}`)
	_, err := status.ParseComponent(raw)
	require.Error(t, err)

	var unknown *status.UnknownComponentError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "FutureThing", unknown.Model)
}

func TestParseComponent_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "phone",
			raw:  `{"model":"Phone","data":{"device_id":"d1","device_name":"pixel","battery_level_percent":80,"battery_state":"OK","ip":"10.0.0.2","memory_bytes_free":1000,"memory_state":"OK","time_echo_port":12121}}`,
		},
		{
			name: "hardware",
			raw:  `{"model":"Hardware","data":{"version":"1.0","module_serial":"m1","glasses_serial":"g1","world_camera_serial":"w1"}}`,
		},
		{
			name: "sensor",
			raw:  `{"model":"Sensor","data":{"sensor":"gaze","connection":"DIRECT","connected":true,"ip":"10.0.0.2","port":8001,"protocol":"rtsp","params":"","stream_error":false}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := status.ParseComponent(json.RawMessage(tt.raw))
			require.NoError(t, err)

			serialized, err := status.SerializeComponent(parsed)
			require.NoError(t, err)

			reparsed, err := status.ParseComponent(serialized)
			require.NoError(t, err)
			assert.Equal(t, parsed, reparsed)
		})
	}
}

// TestApply_S1BatteryTransition seeds a battery level then pushes one
// update, expecting exactly one transition and no other fields mutating.
func TestApply_S1BatteryTransition(t *testing.T) {
	s0 := status.New().Apply(status.Phone{DeviceID: "d1", BatteryLevelPercent: 80})
	s1 := s0.Apply(status.Phone{DeviceID: "d1", BatteryLevelPercent: 79})

	changes := s1.Diff(s0)
	require.Len(t, changes, 1)
	assert.Equal(t, "phone.battery_level_percent", changes[0].Field)
	assert.Equal(t, 80, changes[0].Prior)
	assert.Equal(t, 79, changes[0].Next)
}

func TestApply_SensorUpsertNeverRemoves(t *testing.T) {
	key := status.SensorKey{Sensor: status.SensorGaze, Connection: status.ConnectionDirect}

	s0 := status.New().Apply(status.Sensor{Sensor: status.SensorGaze, Connection: status.ConnectionDirect, Connected: true})
	s1 := s0.Apply(status.Sensor{Sensor: status.SensorGaze, Connection: status.ConnectionDirect, Connected: false})

	sensor, ok := s1.Sensors[key]
	require.True(t, ok, "disconnected sensor entry must remain present, not be removed")
	assert.False(t, sensor.Connected)
}

// TestApply_RecordingLifecycle walks a recording from START to SAVE and
// checks each transition is reflected immediately.
func TestApply_RecordingLifecycle(t *testing.T) {
	s0 := status.New().Apply(status.Recording{ID: "R1", Action: status.RecordingActionStart})
	require.NotNil(t, s0.Recording)
	assert.Equal(t, "R1", s0.Recording.ID)

	s1 := s0.Apply(status.Recording{ID: "R1", Action: status.RecordingActionSave})
	assert.Nil(t, s1.Recording)
}

func TestApply_CommutesAcrossSingletonFields(t *testing.T) {
	phone := status.Phone{DeviceID: "d1", BatteryLevelPercent: 80}
	hw := status.Hardware{Version: "1.0"}

	a := status.New().Apply(phone).Apply(hw)
	b := status.New().Apply(hw).Apply(phone)

	assert.Equal(t, a.Phone, b.Phone)
	assert.Equal(t, a.Hardware, b.Hardware)
}

func TestDirectSensorAccessors(t *testing.T) {
	s := status.New().
		Apply(status.Sensor{Sensor: status.SensorGaze, Connection: status.ConnectionDirect, IP: "10.0.0.2", Port: 8001}).
		Apply(status.Sensor{Sensor: status.SensorGaze, Connection: status.ConnectionWebsocket, IP: "10.0.0.2", Port: 8002})

	direct, ok := s.DirectGazeSensor()
	require.True(t, ok)
	assert.Equal(t, status.ConnectionDirect, direct.Connection)
	assert.Equal(t, "rtsp://10.0.0.2:8001/", direct.URL())
}
