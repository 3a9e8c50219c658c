package session

import (
	"context"
	"sync"
	"time"

	"collab-service/internal/models"
	"collab-service/internal/repositories"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func strptr(s string) *string { return &s }

func textMessage(id, groupID, senderID, content string) models.Message {
	return models.Message{
		ID:          id,
		GroupID:     groupID,
		SenderID:    senderID,
		Content:     strptr(content),
		MessageType: models.MessageTypeText,
		CreatedAt:   time.Now(),
	}
}

func hydratedMessage(msg models.Message) models.MessageWithSender {
	return models.MessageWithSender{
		Message: msg,
		Sender:  models.Profile{ID: msg.SenderID, Email: msg.SenderID + "@example.com"},
	}
}

type profilesStub struct {
	mu      sync.Mutex
	fail    map[string]error
	lookups int
}

func (p *profilesStub) GetProfile(_ context.Context, userID string) (models.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lookups++
	if err, ok := p.fail[userID]; ok {
		return models.Profile{}, err
	}
	return models.Profile{ID: userID, Email: userID + "@example.com"}, nil
}

type groupsStub struct {
	getGroup    func(ctx context.Context, groupID string) (models.Group, error)
	listMembers func(ctx context.Context, groupID string) ([]models.MemberWithProfile, error)
}

func (s *groupsStub) GetGroup(ctx context.Context, groupID string) (models.Group, error) {
	return s.getGroup(ctx, groupID)
}

func (s *groupsStub) ListMembers(ctx context.Context, groupID string) ([]models.MemberWithProfile, error) {
	return s.listMembers(ctx, groupID)
}

func (s *groupsStub) CreateGroup(context.Context, string, string, string, string) (models.Group, error) {
	return models.Group{}, nil
}

func (s *groupsStub) ListGroupsForUser(context.Context, string) ([]models.Group, error) {
	return nil, nil
}

func (s *groupsStub) JoinByInviteCode(context.Context, string, string) (models.Group, error) {
	return models.Group{}, nil
}

func (s *groupsStub) IsMember(context.Context, string, string) (bool, error) { return false, nil }

func (s *groupsStub) GetMember(context.Context, string, string) (models.GroupMember, error) {
	return models.GroupMember{}, nil
}

func (s *groupsStub) SetMemberRole(context.Context, string, string, string) error { return nil }

func (s *groupsStub) RemoveMember(context.Context, string, string) error { return nil }

func (s *groupsStub) DeleteGroup(context.Context, string) error { return nil }

type messagesStub struct {
	listRecent        func(ctx context.Context, groupID string, limit int) ([]models.MessageWithSender, error)
	listHidden        func(ctx context.Context, groupID, viewerID string) ([]string, error)
	deleteForEveryone func(ctx context.Context, messageID, senderID string) (models.Message, error)
	hideForViewer     func(ctx context.Context, messageID, viewerID string) error
}

func (s *messagesStub) CreateMessage(context.Context, string, string, string, string, *repositories.FileAttachment) (models.Message, error) {
	return models.Message{}, nil
}

func (s *messagesStub) GetMessage(context.Context, string) (models.Message, error) {
	return models.Message{}, nil
}

func (s *messagesStub) ListRecentMessages(ctx context.Context, groupID string, limit int) ([]models.MessageWithSender, error) {
	return s.listRecent(ctx, groupID, limit)
}

func (s *messagesStub) DeleteForEveryone(ctx context.Context, messageID, senderID string) (models.Message, error) {
	return s.deleteForEveryone(ctx, messageID, senderID)
}

func (s *messagesStub) HideForViewer(ctx context.Context, messageID, viewerID string) error {
	return s.hideForViewer(ctx, messageID, viewerID)
}

func (s *messagesStub) ListHiddenForViewer(ctx context.Context, groupID, viewerID string) ([]string, error) {
	return s.listHidden(ctx, groupID, viewerID)
}
