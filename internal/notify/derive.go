package notify

import (
	"fmt"

	"github.com/technosupport/ts-vms-monitor/internal/data"
)

// EventNotice translates a pushed event into a message and level.
func EventNotice(evt data.DomainEvent) (string, data.NoticeLevel) {
	name := cameraLabel(evt)
	switch evt.Type {
	case data.EventTypeTrafficHeavy:
		return fmt.Sprintf("🚨 Heavy traffic detected at %s!", name), data.LevelWarning
	case data.EventTypeTest:
		return fmt.Sprintf("🧪 Test event completed at %s", name), data.LevelSuccess
	case data.EventTypeCameraStatus:
		if status := evt.Meta().Status; status != "" {
			return fmt.Sprintf("📹 %s status: %s", name, status), data.LevelForStatus(status)
		}
	case data.EventTypeSystemError:
		if msg := evt.Meta().Message; msg != "" {
			return fmt.Sprintf("⚠️ %s: %s", name, msg), data.LevelError
		}
	}
	return fmt.Sprintf("📡 %s event at %s", evt.Type, name), data.LevelInfo
}

// StatusNotice describes a camera status transition.
func StatusNotice(cameraName string, oldStatus, newStatus data.CameraStatus) (string, data.NoticeLevel) {
	return fmt.Sprintf("📹 %s status: %s → %s", cameraName, oldStatus, newStatus), data.LevelForStatus(newStatus)
}

// ShowEvent adds the notice derived from evt.
func (q *Queue) ShowEvent(evt data.DomainEvent) string {
	msg, level := EventNotice(evt)
	return q.Add(msg, level, q.cfg.EventDuration)
}

func (q *Queue) ShowStatusChange(cameraName string, oldStatus, newStatus data.CameraStatus) string {
	msg, level := StatusNotice(cameraName, oldStatus, newStatus)
	return q.Add(msg, level, q.cfg.StatusDuration)
}

func (q *Queue) ShowError(message string) string {
	return q.Add(message, data.LevelError, q.cfg.DefaultDuration)
}

func (q *Queue) Show(message string, level data.NoticeLevel) string {
	return q.Add(message, level, q.cfg.DefaultDuration)
}

func cameraLabel(evt data.DomainEvent) string {
	if evt.CameraName != "" {
		return evt.CameraName
	}
	if evt.CameraID != "" {
		return evt.CameraID
	}
	return "unknown camera"
}
