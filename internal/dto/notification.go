package dto

// NotificationQuery captures notification listing parameters.
type NotificationQuery struct {
	UnreadOnly bool
	Limit      int
	Offset     int
}
