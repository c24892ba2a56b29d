package models

import "time"

// NotificationType classifies in-app notifications.
type NotificationType string

const (
	NotificationDocumentApproved NotificationType = "DOCUMENT_APPROVED"
	NotificationDocumentRejected NotificationType = "DOCUMENT_REJECTED"
	NotificationDocumentUploaded NotificationType = "DOCUMENT_UPLOADED"
)

// Notification is a message addressed to one user.
type Notification struct {
	ID         string           `db:"id" json:"id"`
	UserID     string           `db:"user_id" json:"userId"`
	Type       NotificationType `db:"type" json:"type"`
	Title      string           `db:"title" json:"title"`
	Message    string           `db:"message" json:"message"`
	DocumentID *string          `db:"document_id" json:"documentId,omitempty"`
	Read       bool             `db:"read" json:"read"`
	ReadAt     *time.Time       `db:"read_at" json:"readAt,omitempty"`
	CreatedAt  time.Time        `db:"created_at" json:"createdAt"`
}

// NotificationFilter narrows notification listings for a user.
type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Limit      int
	Offset     int
}
