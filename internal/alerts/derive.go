package alerts

import (
	"fmt"

	"github.com/technosupport/ts-vms-monitor/internal/data"
)

// Title used for error-class status changes. Dashboards match on it.
const TitleConnectionError = "🔴 Camera connection error"

// EventAlert builds the alert for a pushed event using the queue's duration policy.
func (q *Queue) EventAlert(evt data.DomainEvent) Alert {
	name := evt.CameraName
	if name == "" {
		name = evt.CameraID
	}
	a := Alert{
		Type:       evt.Type,
		CameraID:   evt.CameraID,
		CameraName: name,
		AutoClose:  q.cfg.EventAutoClose,
	}
	switch evt.Type {
	case data.EventTypeTrafficHeavy:
		a.Title = "🚨 Heavy traffic warning"
		a.Message = fmt.Sprintf("Heavy traffic detected at %s! Immediate attention required.", name)
		a.Level = data.LevelWarning
		a.AutoClose = q.cfg.TrafficAutoClose
	case data.EventTypeTest:
		a.Title = "🧪 Test event"
		a.Message = fmt.Sprintf("A test event occurred at %s.", name)
		a.Level = data.LevelSuccess
	default:
		a.Title = "📡 System event"
		a.Message = fmt.Sprintf("%s event occurred at %s.", evt.Type, name)
		if msg := evt.Meta().Message; msg != "" {
			a.Message = fmt.Sprintf("%s event occurred at %s: %s", evt.Type, name, msg)
		}
		a.Level = data.LevelInfo
	}
	return a
}

// StatusAlert builds the alert for a camera status transition.
func (q *Queue) StatusAlert(cameraID, cameraName string, oldStatus, newStatus data.CameraStatus) Alert {
	a := Alert{
		Type:       data.EventTypeCameraStatus,
		CameraID:   cameraID,
		CameraName: cameraName,
		Title:      "📹 Camera status change",
		Message:    fmt.Sprintf("%s changed from %s to %s.", cameraName, oldStatus, newStatus),
		Level:      data.LevelForStatus(newStatus),
		AutoClose:  q.cfg.StatusAutoClose,
	}
	switch {
	case newStatus.IsFault():
		a.Title = TitleConnectionError
		a.Message = fmt.Sprintf("%s has a connection problem. Please check it.", cameraName)
		a.AutoClose = q.cfg.StatusErrorAutoClose
	case newStatus == data.CameraStatusWarning:
		a.Title = "🟠 Camera warning state"
		a.Message = fmt.Sprintf("A warning condition was detected at %s.", cameraName)
	case newStatus == data.CameraStatusOnline:
		a.Title = "🟢 Camera connection restored"
		a.Message = fmt.Sprintf("%s is back online.", cameraName)
	}
	return a
}

func (q *Queue) ShowForEvent(evt data.DomainEvent) string {
	return q.Show(q.EventAlert(evt))
}

func (q *Queue) ShowForStatusChange(cameraName string, oldStatus, newStatus data.CameraStatus) string {
	return q.Show(q.StatusAlert("", cameraName, oldStatus, newStatus))
}
