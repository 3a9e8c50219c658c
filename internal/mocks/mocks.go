package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"collab-service/internal/feed"
	"collab-service/internal/models"
	"collab-service/internal/repositories"
)

type ProfileRepositoryMock struct {
	mock.Mock
}

func (m *ProfileRepositoryMock) CreateProfile(ctx context.Context, email, fullName, passwordHash string) (models.Profile, error) {
	args := m.Called(ctx, email, fullName, passwordHash)
	var p models.Profile
	if val := args.Get(0); val != nil {
		p = val.(models.Profile)
	}
	return p, args.Error(1)
}

func (m *ProfileRepositoryMock) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	args := m.Called(ctx, userID)
	var p models.Profile
	if val := args.Get(0); val != nil {
		p = val.(models.Profile)
	}
	return p, args.Error(1)
}

func (m *ProfileRepositoryMock) GetProfileByEmail(ctx context.Context, email string) (models.Profile, error) {
	args := m.Called(ctx, email)
	var p models.Profile
	if val := args.Get(0); val != nil {
		p = val.(models.Profile)
	}
	return p, args.Error(1)
}

func (m *ProfileRepositoryMock) UpdateProfile(ctx context.Context, userID string, fullName, avatarURL *string) (models.Profile, error) {
	args := m.Called(ctx, userID, fullName, avatarURL)
	var p models.Profile
	if val := args.Get(0); val != nil {
		p = val.(models.Profile)
	}
	return p, args.Error(1)
}

type GroupRepositoryMock struct {
	mock.Mock
}

func (m *GroupRepositoryMock) CreateGroup(ctx context.Context, creatorID, name, description, inviteCode string) (models.Group, error) {
	args := m.Called(ctx, creatorID, name, description, inviteCode)
	var g models.Group
	if val := args.Get(0); val != nil {
		g = val.(models.Group)
	}
	return g, args.Error(1)
}

func (m *GroupRepositoryMock) GetGroup(ctx context.Context, groupID string) (models.Group, error) {
	args := m.Called(ctx, groupID)
	var g models.Group
	if val := args.Get(0); val != nil {
		g = val.(models.Group)
	}
	return g, args.Error(1)
}

func (m *GroupRepositoryMock) ListGroupsForUser(ctx context.Context, userID string) ([]models.Group, error) {
	args := m.Called(ctx, userID)
	var list []models.Group
	if val := args.Get(0); val != nil {
		list = val.([]models.Group)
	}
	return list, args.Error(1)
}

func (m *GroupRepositoryMock) JoinByInviteCode(ctx context.Context, inviteCode, userID string) (models.Group, error) {
	args := m.Called(ctx, inviteCode, userID)
	var g models.Group
	if val := args.Get(0); val != nil {
		g = val.(models.Group)
	}
	return g, args.Error(1)
}

func (m *GroupRepositoryMock) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *GroupRepositoryMock) GetMember(ctx context.Context, groupID, userID string) (models.GroupMember, error) {
	args := m.Called(ctx, groupID, userID)
	var member models.GroupMember
	if val := args.Get(0); val != nil {
		member = val.(models.GroupMember)
	}
	return member, args.Error(1)
}

func (m *GroupRepositoryMock) ListMembers(ctx context.Context, groupID string) ([]models.MemberWithProfile, error) {
	args := m.Called(ctx, groupID)
	var list []models.MemberWithProfile
	if val := args.Get(0); val != nil {
		list = val.([]models.MemberWithProfile)
	}
	return list, args.Error(1)
}

func (m *GroupRepositoryMock) SetMemberRole(ctx context.Context, groupID, userID, role string) error {
	args := m.Called(ctx, groupID, userID, role)
	return args.Error(0)
}

func (m *GroupRepositoryMock) RemoveMember(ctx context.Context, groupID, userID string) error {
	args := m.Called(ctx, groupID, userID)
	return args.Error(0)
}

func (m *GroupRepositoryMock) DeleteGroup(ctx context.Context, groupID string) error {
	args := m.Called(ctx, groupID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, groupID, senderID, content, messageType string, file *repositories.FileAttachment) (models.Message, error) {
	args := m.Called(ctx, groupID, senderID, content, messageType, file)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListRecentMessages(ctx context.Context, groupID string, limit int) ([]models.MessageWithSender, error) {
	args := m.Called(ctx, groupID, limit)
	var msgs []models.MessageWithSender
	if val := args.Get(0); val != nil {
		msgs = val.([]models.MessageWithSender)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) DeleteForEveryone(ctx context.Context, messageID, senderID string) (models.Message, error) {
	args := m.Called(ctx, messageID, senderID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) HideForViewer(ctx context.Context, messageID, viewerID string) error {
	args := m.Called(ctx, messageID, viewerID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) ListHiddenForViewer(ctx context.Context, groupID, viewerID string) ([]string, error) {
	args := m.Called(ctx, groupID, viewerID)
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids, args.Error(1)
}

type ResourceRepositoryMock struct {
	mock.Mock
}

func (m *ResourceRepositoryMock) CreateResource(ctx context.Context, res repositories.NewResource) (models.SharedResource, error) {
	args := m.Called(ctx, res)
	var row models.SharedResource
	if val := args.Get(0); val != nil {
		row = val.(models.SharedResource)
	}
	return row, args.Error(1)
}

func (m *ResourceRepositoryMock) GetResource(ctx context.Context, resourceID string) (models.SharedResource, error) {
	args := m.Called(ctx, resourceID)
	var row models.SharedResource
	if val := args.Get(0); val != nil {
		row = val.(models.SharedResource)
	}
	return row, args.Error(1)
}

func (m *ResourceRepositoryMock) ListResources(ctx context.Context, groupID string) ([]models.ResourceWithUploader, error) {
	args := m.Called(ctx, groupID)
	var list []models.ResourceWithUploader
	if val := args.Get(0); val != nil {
		list = val.([]models.ResourceWithUploader)
	}
	return list, args.Error(1)
}

func (m *ResourceRepositoryMock) DeleteResource(ctx context.Context, resourceID string) error {
	args := m.Called(ctx, resourceID)
	return args.Error(0)
}

type FeedMock struct {
	mock.Mock
}

func (m *FeedMock) Publish(ctx context.Context, event feed.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *FeedMock) Subscribe(groupID string, handler feed.Handler) (feed.Subscription, error) {
	args := m.Called(groupID, handler)
	var sub feed.Subscription
	if val := args.Get(0); val != nil {
		sub = val.(feed.Subscription)
	}
	return sub, args.Error(1)
}

type ObjectStoreMock struct {
	mock.Mock
}

func (m *ObjectStoreMock) Upload(ctx context.Context, groupID, filename, contentType string, body io.Reader) (string, error) {
	args := m.Called(ctx, groupID, filename, contentType, body)
	return args.String(0), args.Error(1)
}

func (m *ObjectStoreMock) SignedURL(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *ObjectStoreMock) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
