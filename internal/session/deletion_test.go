package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-service/internal/feed"
	"collab-service/internal/models"
	"collab-service/internal/repositories"
)

type captureFeed struct {
	events []feed.Event
	err    error
}

func (c *captureFeed) Publish(_ context.Context, event feed.Event) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, event)
	return nil
}

func (c *captureFeed) Subscribe(string, feed.Handler) (feed.Subscription, error) {
	return &fakeSubscription{done: make(chan struct{})}, nil
}

func TestDeleterDeleteForEveryonePublishesUpdate(t *testing.T) {
	now := time.Now()
	messages := &messagesStub{
		deleteForEveryone: func(_ context.Context, messageID, senderID string) (models.Message, error) {
			require.Equal(t, "m1", messageID)
			require.Equal(t, "alice", senderID)
			return models.Message{ID: messageID, GroupID: "g1", SenderID: senderID, DeletedAt: &now}, nil
		},
	}
	cf := &captureFeed{}
	deleter := NewDeleter(messages, cf, nil)

	require.NoError(t, deleter.DeleteForEveryone(context.Background(), "m1", "alice"))

	require.Len(t, cf.events, 1)
	assert.Equal(t, feed.EventUpdate, cf.events[0].Type)
	assert.Equal(t, "m1", cf.events[0].Message.ID)
	assert.NotNil(t, cf.events[0].Message.DeletedAt)
}

func TestDeleterDeleteForEveryoneRepoError(t *testing.T) {
	messages := &messagesStub{
		deleteForEveryone: func(_ context.Context, _, _ string) (models.Message, error) {
			return models.Message{}, repositories.ErrMessageNotFound
		},
	}
	cf := &captureFeed{}
	deleter := NewDeleter(messages, cf, nil)

	err := deleter.DeleteForEveryone(context.Background(), "m1", "mallory")
	assert.ErrorIs(t, err, repositories.ErrMessageNotFound)
	assert.Empty(t, cf.events, "nothing is published when the deletion is refused")
}

func TestDeleterDeleteForEveryoneSurvivesPublishFailure(t *testing.T) {
	now := time.Now()
	messages := &messagesStub{
		deleteForEveryone: func(_ context.Context, messageID, senderID string) (models.Message, error) {
			return models.Message{ID: messageID, GroupID: "g1", SenderID: senderID, DeletedAt: &now}, nil
		},
	}
	cf := &captureFeed{err: errors.New("broker down")}
	deleter := NewDeleter(messages, cf, nil)

	assert.NoError(t, deleter.DeleteForEveryone(context.Background(), "m1", "alice"),
		"the row is already deleted, a lost event must not fail the call")
}

func TestDeleterHideForMe(t *testing.T) {
	var gotMessage, gotViewer string
	messages := &messagesStub{
		hideForViewer: func(_ context.Context, messageID, viewerID string) error {
			gotMessage, gotViewer = messageID, viewerID
			return nil
		},
	}
	deleter := NewDeleter(messages, &captureFeed{}, nil)

	require.NoError(t, deleter.HideForMe(context.Background(), "m1", "alice"))
	assert.Equal(t, "m1", gotMessage)
	assert.Equal(t, "alice", gotViewer)
}
