package data

import "time"

// CameraStatus is the operational state reported by the backend
type CameraStatus string

const (
	CameraStatusOnline      CameraStatus = "ONLINE"
	CameraStatusOffline     CameraStatus = "OFFLINE"
	CameraStatusMaintenance CameraStatus = "MAINTENANCE"
	CameraStatusError       CameraStatus = "ERROR"
	CameraStatusWarning     CameraStatus = "WARNING"
)

// AllCameraStatuses lists every known status in display order.
var AllCameraStatuses = []CameraStatus{
	CameraStatusOnline,
	CameraStatusOffline,
	CameraStatusMaintenance,
	CameraStatusError,
	CameraStatusWarning,
}

func (s CameraStatus) Valid() bool {
	switch s {
	case CameraStatusOnline, CameraStatusOffline, CameraStatusMaintenance, CameraStatusError, CameraStatusWarning:
		return true
	}
	return false
}

// IsFault reports whether the status should be surfaced as an error-class change.
func (s CameraStatus) IsFault() bool {
	return s == CameraStatusError || s == CameraStatusOffline
}

// Camera mirrors the backend camera resource
type Camera struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Status      CameraStatus `json:"status"`
	Lat         float64      `json:"lat"`
	Lng         float64      `json:"lng"`
	RtspURL     string       `json:"rtspUrl,omitempty"`
	StreamURL   string       `json:"streamUrl,omitempty"`
	YoloEnabled *bool        `json:"yoloEnabled,omitempty"`
	MetaJSON    string       `json:"metaJson,omitempty"`
	CreatedAt   Timestamp    `json:"createdAt"`
	UpdatedAt   Timestamp    `json:"updatedAt"`
}

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type StreamConfig struct {
	RtspURL     string `json:"rtspUrl,omitempty"`
	StreamURL   string `json:"streamUrl,omitempty"`
	YoloEnabled bool   `json:"yoloEnabled"`
}

func (c Camera) Location() Location {
	return Location{Lat: c.Lat, Lng: c.Lng}
}

// StreamConfig returns nil when the camera carries no stream settings.
func (c Camera) StreamConfig() *StreamConfig {
	if c.RtspURL == "" && c.StreamURL == "" && c.YoloEnabled == nil {
		return nil
	}
	sc := &StreamConfig{RtspURL: c.RtspURL, StreamURL: c.StreamURL}
	if c.YoloEnabled != nil {
		sc.YoloEnabled = *c.YoloEnabled
	}
	return sc
}

// CameraInput is the body for camera create and update calls.
type CameraInput struct {
	Name        string  `json:"name"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	RtspURL     string  `json:"rtspUrl,omitempty"`
	Description string  `json:"description,omitempty"`
	YoloEnabled *bool   `json:"yoloEnabled,omitempty"`
}

// CameraView is a camera decorated with display attributes for API consumers.
type CameraView struct {
	Camera
	StatusLabel string `json:"statusLabel"`
	StatusIcon  string `json:"statusIcon"`
	StatusColor string `json:"statusColor"`
}

func NewCameraView(c Camera) CameraView {
	return CameraView{
		Camera:      c,
		StatusLabel: StatusLabel(c.Status),
		StatusIcon:  StatusIcon(c.Status),
		StatusColor: StatusColor(c.Status),
	}
}

// Display helpers. Unknown statuses fall through to a neutral rendering.

func StatusColor(s CameraStatus) string {
	switch s {
	case CameraStatusOnline:
		return "#28a745"
	case CameraStatusOffline:
		return "#6c757d"
	case CameraStatusMaintenance:
		return "#ffc107"
	case CameraStatusError:
		return "#dc3545"
	case CameraStatusWarning:
		return "#fd7e14"
	default:
		return "#6c757d"
	}
}

func StatusIcon(s CameraStatus) string {
	switch s {
	case CameraStatusOnline:
		return "🟢"
	case CameraStatusOffline:
		return "⚫"
	case CameraStatusMaintenance:
		return "🔧"
	case CameraStatusError:
		return "🔴"
	case CameraStatusWarning:
		return "🟠"
	default:
		return "❓"
	}
}

func StatusLabel(s CameraStatus) string {
	switch s {
	case CameraStatusOnline:
		return "Online"
	case CameraStatusOffline:
		return "Offline"
	case CameraStatusMaintenance:
		return "Maintenance"
	case CameraStatusError:
		return "Error"
	case CameraStatusWarning:
		return "Warning"
	default:
		return "Unknown"
	}
}

// Video is a recorded clip listed by the backend.
type Video struct {
	ID       string    `json:"id"`
	Filename string    `json:"filename"`
	Duration float64   `json:"duration"`
	Size     int64     `json:"size"`
	Ts       Timestamp `json:"ts"`
	Camera   *Camera   `json:"camera,omitempty"`
}

// Timestamp accepts RFC3339 as well as the zone-less layout the backend emits.
// Zone-less values are UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		t.Time = time.Time{}
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			t.Time = parsed
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.Format(time.RFC3339Nano) + `"`), nil
}
