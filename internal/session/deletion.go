package session

import (
	"context"

	"go.uber.org/zap"

	"collab-service/internal/feed"
	"collab-service/internal/repositories"
)

// Deleter applies the two message removal semantics: a personal hide visible
// only to the requesting viewer, and a global delete that blanks the message
// for everyone.
type Deleter struct {
	messages repositories.MessageRepository
	feed     feed.Feed
	logger   *zap.SugaredLogger
}

// NewDeleter builds a Deleter.
func NewDeleter(messages repositories.MessageRepository, f feed.Feed, logger *zap.SugaredLogger) *Deleter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Deleter{messages: messages, feed: f, logger: logger}
}

// HideForMe records a personal visibility marker for the viewer. The message
// row is untouched; other members keep seeing it. Repeating the call is a
// no-op.
func (d *Deleter) HideForMe(ctx context.Context, messageID, viewerID string) error {
	return d.messages.HideForViewer(ctx, messageID, viewerID)
}

// DeleteForEveryone blanks a message's content for all members. Only the
// sender may do this; the repository enforces the check in the update
// predicate. The deletion is terminal and idempotent. On success an update
// event is published so live sessions replace the message with a placeholder;
// a publish failure is logged but does not undo the deletion.
func (d *Deleter) DeleteForEveryone(ctx context.Context, messageID, senderID string) error {
	msg, err := d.messages.DeleteForEveryone(ctx, messageID, senderID)
	if err != nil {
		return err
	}

	if err := d.feed.Publish(ctx, feed.NewUpdate(msg)); err != nil {
		d.logger.Warnw("deletion feed publish failed",
			"group_id", msg.GroupID, "message_id", msg.ID, "error", err)
	}
	return nil
}
