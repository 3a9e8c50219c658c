package models

import "time"

// Message types.
const (
	MessageTypeText = "text"
	MessageTypeFile = "file"
	MessageTypeLink = "link"
)

// Message represents a group chat message. Content is null once the message
// has been deleted for everyone; DeletedAt marks that terminal state.
type Message struct {
	ID          string     `db:"id" json:"id"`
	GroupID     string     `db:"group_id" json:"group_id"`
	SenderID    string     `db:"sender_id" json:"sender_id"`
	Content     *string    `db:"content" json:"content"`
	MessageType string     `db:"message_type" json:"message_type"`
	FileURL     *string    `db:"file_url" json:"file_url,omitempty"`
	FileName    *string    `db:"file_name" json:"file_name,omitempty"`
	FileType    *string    `db:"file_type" json:"file_type,omitempty"`
	FileSize    *int64     `db:"file_size" json:"file_size,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	DeletedAt   *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Deleted reports whether the message was deleted for everyone.
func (m Message) Deleted() bool {
	return m.DeletedAt != nil
}

// MessageWithSender is a message hydrated with its sender profile.
type MessageWithSender struct {
	Message
	Sender Profile `json:"sender"`
}

// MessageMarker hides a message for a single viewer.
type MessageMarker struct {
	MessageID string `db:"message_id" json:"message_id"`
	UserID    string `db:"user_id" json:"user_id"`
}
