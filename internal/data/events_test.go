package data

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventMeta(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want EventMeta
	}{
		{name: "Empty", raw: "", want: EventMeta{}},
		{name: "Malformed falls back to raw", raw: "camera went dark", want: EventMeta{Message: "camera went dark"}},
		{name: "Status key", raw: `{"status":"error"}`, want: EventMeta{Status: CameraStatusError}},
		{name: "NewStatus wins", raw: `{"status":"ONLINE","newStatus":"WARNING"}`, want: EventMeta{Status: CameraStatusWarning}},
		{name: "Test message", raw: `{"message":"Scheduled TEST run"}`, want: EventMeta{Message: "Scheduled TEST run", IsTest: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseEventMeta(tt.raw))
		})
	}

	m := ParseEventMeta(`{"vehicleCount":42,"message":"jam"}`)
	require.NotNil(t, m.VehicleCount)
	assert.Equal(t, 42, *m.VehicleCount)
	assert.Equal(t, "jam", m.Message)
}

func TestDomainEvent_Decode(t *testing.T) {
	payload := `{"id":"e1","cameraId":"cam-1","cameraName":"Gate","type":"traffic_heavy","severity":4,"score":0.91,
		"ts":"2026-03-01T10:15:30","bboxJson":"{\"x\":1,\"y\":2,\"w\":3,\"h\":4}","createdAt":"2026-03-01T10:15:30.123Z"}`

	var evt DomainEvent
	require.NoError(t, json.Unmarshal([]byte(payload), &evt))
	assert.Equal(t, "cam-1", evt.CameraID)
	assert.Equal(t, 4, evt.Severity)
	assert.Equal(t, 2026, evt.Ts.Year())
	assert.Equal(t, &BoundingBox{X: 1, Y: 2, W: 3, H: 4}, evt.BoundingBox())

	evt.BBoxJSON = "{broken"
	assert.Nil(t, evt.BoundingBox())
}

func TestTimestamp_ZonelessIsUTC(t *testing.T) {
	local := time.Local
	time.Local = time.FixedZone("KST", 9*60*60)
	t.Cleanup(func() { time.Local = local })

	var v struct {
		Ts Timestamp `json:"ts"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"ts":"2024-01-02T03:04:05"}`), &v))
	assert.Equal(t, time.UTC, v.Ts.Location())
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), v.Ts.Time)

	out, err := json.Marshal(v.Ts)
	require.NoError(t, err)
	assert.JSONEq(t, `"2024-01-02T03:04:05Z"`, string(out))

	require.NoError(t, json.Unmarshal([]byte(`{"ts":"2024-01-02T03:04:05+02:00"}`), &v))
	assert.True(t, v.Ts.Equal(time.Date(2024, 1, 2, 1, 4, 5, 0, time.UTC)))
}

func TestDisplayHelpers_UnknownFallback(t *testing.T) {
	unknown := CameraStatus("REBOOTING")
	assert.False(t, unknown.Valid())
	assert.Equal(t, "❓", StatusIcon(unknown))
	assert.Equal(t, "#6c757d", StatusColor(unknown))
	assert.Equal(t, "Unknown", StatusLabel(unknown))

	assert.Equal(t, "Truck detected", EventDisplayName("truck_parked"))
	assert.Equal(t, "drone", EventDisplayName("drone"))
	assert.Equal(t, "📊", EventIcon("drone"))
	assert.Equal(t, "Critical", SeverityText(5))
	assert.Equal(t, "Unknown", SeverityText(0))
	assert.Equal(t, "Unknown", SeverityText(9))
}

func TestLevelForStatus(t *testing.T) {
	assert.Equal(t, LevelError, LevelForStatus(CameraStatusOffline))
	assert.Equal(t, LevelError, LevelForStatus(CameraStatusError))
	assert.Equal(t, LevelWarning, LevelForStatus(CameraStatusWarning))
	assert.Equal(t, LevelSuccess, LevelForStatus(CameraStatusOnline))
	assert.Equal(t, LevelInfo, LevelForStatus(CameraStatusMaintenance))
}

func TestEventFilter_Matches(t *testing.T) {
	evt := DomainEvent{CameraID: "cam-1", Type: EventTypePerson}
	assert.True(t, EventFilter{}.Matches(evt))
	assert.True(t, EventFilter{CameraID: "cam-1"}.Matches(evt))
	assert.False(t, EventFilter{CameraID: "cam-2"}.Matches(evt))
	assert.False(t, EventFilter{CameraID: "cam-1", EventType: EventTypeCar}.Matches(evt))
}
