package session

import "collab-service/internal/models"

// DeletedPlaceholder is rendered in place of globally deleted messages. They
// keep their position in the conversation rather than disappearing.
const DeletedPlaceholder = "This message was deleted"

// HiddenSet converts a list of hidden message ids into a lookup set.
func HiddenSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Visible returns the subsequence of messages not personally hidden by the
// viewer. Globally deleted messages stay in the result (rendered as a
// placeholder); personal hiding wins over global deletion and omits the
// message entirely.
func Visible(messages []models.MessageWithSender, hidden map[string]struct{}) []models.MessageWithSender {
	visible := make([]models.MessageWithSender, 0, len(messages))
	for _, m := range messages {
		if _, ok := hidden[m.ID]; ok {
			continue
		}
		visible = append(visible, m)
	}
	return visible
}

// RenderedContent returns the display text for a message: its content, or
// the deleted placeholder once it has been deleted for everyone.
func RenderedContent(m models.Message) string {
	if m.Deleted() {
		return DeletedPlaceholder
	}
	if m.Content != nil {
		return *m.Content
	}
	return ""
}
