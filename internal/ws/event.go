package ws

import (
	"collab-service/internal/models"
	"collab-service/internal/session"
)

// Event is the wire format for frames pushed to websocket clients.
type Event struct {
	Type string `json:"type"`

	// snapshot
	Group    *models.Group              `json:"group,omitempty"`
	Members  []models.MemberWithProfile `json:"members,omitempty"`
	Messages []models.MessageWithSender `json:"messages,omitempty"`
	IsAdmin  *bool                      `json:"is_admin,omitempty"`

	// message
	Message *models.MessageWithSender `json:"message,omitempty"`

	// delete_for_all
	MessageID string `json:"message_id,omitempty"`

	// notification
	Notification *session.Notification `json:"notification,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

func snapshotEvent(sess *session.Session) Event {
	group := sess.Group()
	isAdmin := sess.IsAdmin()
	return Event{
		Type:     "snapshot",
		Group:    &group,
		Members:  sess.Members(),
		Messages: sess.VisibleMessages(),
		IsAdmin:  &isAdmin,
	}
}

func messageEvent(msg models.MessageWithSender) Event {
	return Event{Type: "message", Message: &msg}
}

func deletionEvent(messageID string) Event {
	return Event{Type: "delete_for_all", MessageID: messageID}
}

func notificationEvent(n session.Notification) Event {
	return Event{Type: "notification", Notification: &n}
}
