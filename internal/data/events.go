package data

import (
	"encoding/json"
	"strings"
)

// Recognised event types. The set is open; anything else is rendered generically.
const (
	EventTypeTrafficHeavy = "traffic_heavy"
	EventTypePerson       = "person"
	EventTypeCar          = "car"
	EventTypeTruck        = "truck"
	EventTypeBus          = "bus"
	EventTypeMotorcycle   = "motorcycle"
	EventTypeTest         = "test_event"
	EventTypeCameraStatus = "camera_status"
	EventTypeSystemError  = "system_error"
)

// DomainEvent is one detection or system occurrence pushed by the backend.
type DomainEvent struct {
	ID         string    `json:"id"`
	CameraID   string    `json:"cameraId"`
	CameraName string    `json:"cameraName"`
	Type       string    `json:"type"`
	Severity   int       `json:"severity"`
	Score      float64   `json:"score"`
	Ts         Timestamp `json:"ts"`
	BBoxJSON   string    `json:"bboxJson,omitempty"`
	MetaJSON   string    `json:"metaJson,omitempty"`
	CreatedAt  Timestamp `json:"createdAt"`
}

type BoundingBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// BoundingBox decodes bboxJson. Returns nil when absent or malformed.
func (e DomainEvent) BoundingBox() *BoundingBox {
	if e.BBoxJSON == "" {
		return nil
	}
	var bb BoundingBox
	if err := json.Unmarshal([]byte(e.BBoxJSON), &bb); err != nil {
		return nil
	}
	return &bb
}

func (e DomainEvent) Meta() EventMeta {
	return ParseEventMeta(e.MetaJSON)
}

// EventMeta is the commonly used subset of metaJson.
type EventMeta struct {
	VehicleCount *int         `json:"vehicleCount,omitempty"`
	Message      string       `json:"message,omitempty"`
	Status       CameraStatus `json:"status,omitempty"`
	IsTest       bool         `json:"isTest"`
}

// ParseEventMeta never fails: malformed payloads become the message itself.
func ParseEventMeta(raw string) EventMeta {
	if raw == "" {
		return EventMeta{}
	}
	var m struct {
		VehicleCount *int   `json:"vehicleCount"`
		Message      string `json:"message"`
		Status       string `json:"status"`
		NewStatus    string `json:"newStatus"`
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return EventMeta{Message: raw}
	}
	status := m.NewStatus
	if status == "" {
		status = m.Status
	}
	return EventMeta{
		VehicleCount: m.VehicleCount,
		Message:      m.Message,
		Status:       CameraStatus(strings.ToUpper(status)),
		IsTest:       strings.Contains(strings.ToLower(m.Message), "test"),
	}
}

// EventView decorates an event with display attributes.
type EventView struct {
	DomainEvent
	DisplayName  string       `json:"displayName"`
	Icon         string       `json:"icon"`
	Color        string       `json:"color"`
	SeverityText string       `json:"severityText"`
	BBox         *BoundingBox `json:"bbox,omitempty"`
	Meta         EventMeta    `json:"meta"`
}

func NewEventView(e DomainEvent) EventView {
	return EventView{
		DomainEvent:  e,
		DisplayName:  EventDisplayName(e.Type),
		Icon:         EventIcon(e.Type),
		Color:        EventColor(e.Type),
		SeverityText: SeverityText(e.Severity),
		BBox:         e.BoundingBox(),
		Meta:         e.Meta(),
	}
}

func EventIcon(eventType string) string {
	switch {
	case eventType == EventTypeTrafficHeavy:
		return "🚗"
	case eventType == EventTypePerson:
		return "👤"
	case strings.Contains(eventType, EventTypeCar):
		return "🚙"
	case strings.Contains(eventType, EventTypeTruck):
		return "🚛"
	case strings.Contains(eventType, EventTypeBus):
		return "🚌"
	case strings.Contains(eventType, EventTypeMotorcycle):
		return "🏍️"
	}
	return "📊"
}

func EventColor(eventType string) string {
	switch {
	case eventType == EventTypeTrafficHeavy:
		return "#fd7e14"
	case eventType == EventTypePerson:
		return "#28a745"
	case strings.Contains(eventType, EventTypeCar),
		strings.Contains(eventType, EventTypeTruck),
		strings.Contains(eventType, EventTypeBus):
		return "#17a2b8"
	case strings.Contains(eventType, EventTypeMotorcycle):
		return "#6f42c1"
	}
	return "#667eea"
}

func EventDisplayName(eventType string) string {
	switch {
	case eventType == EventTypeTrafficHeavy:
		return "Heavy traffic"
	case eventType == EventTypeTest:
		return "Test event"
	case eventType == EventTypeCameraStatus:
		return "Camera status change"
	case eventType == EventTypeSystemError:
		return "System error"
	case eventType == EventTypePerson:
		return "Person detected"
	case strings.Contains(eventType, EventTypeCar):
		return "Car detected"
	case strings.Contains(eventType, EventTypeTruck):
		return "Truck detected"
	case strings.Contains(eventType, EventTypeBus):
		return "Bus detected"
	case strings.Contains(eventType, EventTypeMotorcycle):
		return "Motorcycle detected"
	}
	return eventType
}

var severityTexts = []string{"", "Low", "Medium", "High", "Very high", "Critical"}

func SeverityText(severity int) string {
	if severity < 1 || severity >= len(severityTexts) {
		return "Unknown"
	}
	return severityTexts[severity]
}

// EventFilter holds the query parameters of the paginated event search.
type EventFilter struct {
	CameraID  string `json:"cameraId,omitempty"`
	EventType string `json:"eventType,omitempty"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
	Severity  int    `json:"severity,omitempty"`
	Page      int    `json:"page"`
	Size      int    `json:"size,omitempty"`
}

// Matches reports whether a pushed event falls inside the filter's camera/type scope.
// Date and severity bounds are left to the backend query.
func (f EventFilter) Matches(e DomainEvent) bool {
	if f.CameraID != "" && f.CameraID != e.CameraID {
		return false
	}
	if f.EventType != "" && f.EventType != e.Type {
		return false
	}
	return true
}

// EventPage is one page of the backend event search.
type EventPage struct {
	Content       []DomainEvent `json:"content"`
	TotalElements int64         `json:"totalElements"`
	TotalPages    int           `json:"totalPages"`
	Size          int           `json:"size"`
	Number        int           `json:"number"`
}
