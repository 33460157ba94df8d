package data

// NoticeLevel is the severity of a user-facing notice, independent of event severity.
type NoticeLevel string

const (
	LevelSuccess NoticeLevel = "success"
	LevelError   NoticeLevel = "error"
	LevelInfo    NoticeLevel = "info"
	LevelWarning NoticeLevel = "warning"
)

func (l NoticeLevel) Valid() bool {
	switch l {
	case LevelSuccess, LevelError, LevelInfo, LevelWarning:
		return true
	}
	return false
}

// LevelForStatus maps a camera status change to a notice level.
func LevelForStatus(s CameraStatus) NoticeLevel {
	switch {
	case s.IsFault():
		return LevelError
	case s == CameraStatusWarning:
		return LevelWarning
	case s == CameraStatusOnline:
		return LevelSuccess
	}
	return LevelInfo
}
