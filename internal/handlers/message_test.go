package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"collab-service/internal/feed"
	"collab-service/internal/mocks"
	"collab-service/internal/models"
	"collab-service/internal/repositories"
	"collab-service/internal/session"
)

func newMessageHandler(groups *mocks.GroupRepositoryMock, messages *mocks.MessageRepositoryMock, f feed.Feed) *MessageHandler {
	cache := session.NewCache(0, nil)
	loader := session.NewLoader(groups, messages, cache, 0)
	deleter := session.NewDeleter(messages, f, nil)
	return NewMessageHandler(groups, messages, loader, deleter, f, nil, nil)
}

func setupMessageRouter(handler *MessageHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "u1")
		c.Next()
	})
	r.GET("/groups/:group_id/messages", handler.ListMessages)
	r.POST("/groups/:group_id/messages", handler.PostMessage)
	r.POST("/groups/:group_id/messages/:message_id/hide", handler.HideMessage)
	r.DELETE("/groups/:group_id/messages/:message_id", handler.DeleteMessageForAll)
	return r
}

func TestListMessagesFiltersHidden(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	handler := newMessageHandler(groups, messages, feed.NewBus())
	router := setupMessageRouter(handler)

	content := "hello"
	groups.On("IsMember", mock.Anything, "g1", "u1").Return(true, nil).Once()
	groups.On("GetGroup", mock.Anything, "g1").
		Return(models.Group{ID: "g1", CreatedBy: "u1"}, nil).Once()
	groups.On("ListMembers", mock.Anything, "g1").
		Return([]models.MemberWithProfile{}, nil).Once()
	messages.On("ListRecentMessages", mock.Anything, "g1", 100).
		Return([]models.MessageWithSender{
			{Message: models.Message{ID: "m1", GroupID: "g1", SenderID: "u2", Content: &content}},
			{Message: models.Message{ID: "m2", GroupID: "g1", SenderID: "u2", Content: &content}},
		}, nil).Once()
	messages.On("ListHiddenForViewer", mock.Anything, "g1", "u1").
		Return([]string{"m1"}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/groups/g1/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []models.MessageWithSender `json:"messages"`
		IsAdmin  bool                       `json:"is_admin"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	require.Equal(t, "m2", resp.Messages[0].ID)
	require.True(t, resp.IsAdmin)
}

func TestPostMessagePublishesToFeed(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	f := new(mocks.FeedMock)
	handler := newMessageHandler(groups, messages, f)
	router := setupMessageRouter(handler)

	content := "hey"
	stored := models.Message{ID: "m1", GroupID: "g1", SenderID: "u1", Content: &content, MessageType: models.MessageTypeText}
	groups.On("IsMember", mock.Anything, "g1", "u1").Return(true, nil).Once()
	messages.On("CreateMessage", mock.Anything, "g1", "u1", "hey", models.MessageTypeText, (*repositories.FileAttachment)(nil)).
		Return(stored, nil).Once()
	f.On("Publish", mock.Anything, feed.NewInsert(stored)).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups/g1/messages", bytes.NewBufferString(`{"content":"hey"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	messages.AssertExpectations(t)
	f.AssertExpectations(t)
}

func TestPostMessageNonMember(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	handler := newMessageHandler(groups, messages, feed.NewBus())
	router := setupMessageRouter(handler)

	groups.On("IsMember", mock.Anything, "g1", "u1").Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups/g1/messages", bytes.NewBufferString(`{"content":"hey"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPostMessageEmptyText(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	handler := newMessageHandler(groups, messages, feed.NewBus())
	router := setupMessageRouter(handler)

	groups.On("IsMember", mock.Anything, "g1", "u1").Return(true, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups/g1/messages", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostFileMessageRequiresURL(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	handler := newMessageHandler(groups, messages, feed.NewBus())
	router := setupMessageRouter(handler)

	groups.On("IsMember", mock.Anything, "g1", "u1").Return(true, nil).Once()

	body := bytes.NewBufferString(`{"message_type":"file"}`)
	req := httptest.NewRequest(http.MethodPost, "/groups/g1/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHideMessageSuccess(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	handler := newMessageHandler(groups, messages, feed.NewBus())
	router := setupMessageRouter(handler)

	groups.On("IsMember", mock.Anything, "g1", "u1").Return(true, nil).Once()
	messages.On("GetMessage", mock.Anything, "m1").
		Return(models.Message{ID: "m1", GroupID: "g1", SenderID: "u2"}, nil).Once()
	messages.On("HideForViewer", mock.Anything, "m1", "u1").Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups/g1/messages/m1/hide", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	messages.AssertExpectations(t)
}

func TestHideMessageWrongGroup(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	handler := newMessageHandler(groups, messages, feed.NewBus())
	router := setupMessageRouter(handler)

	groups.On("IsMember", mock.Anything, "g1", "u1").Return(true, nil).Once()
	messages.On("GetMessage", mock.Anything, "m1").
		Return(models.Message{ID: "m1", GroupID: "other", SenderID: "u2"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups/g1/messages/m1/hide", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteMessageForAllBySender(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	f := new(mocks.FeedMock)
	handler := newMessageHandler(groups, messages, f)
	router := setupMessageRouter(handler)

	groups.On("IsMember", mock.Anything, "g1", "u1").Return(true, nil).Once()
	messages.On("GetMessage", mock.Anything, "m1").
		Return(models.Message{ID: "m1", GroupID: "g1", SenderID: "u1"}, nil).Once()
	messages.On("DeleteForEveryone", mock.Anything, "m1", "u1").
		Return(models.Message{ID: "m1", GroupID: "g1", SenderID: "u1"}, nil).Once()
	f.On("Publish", mock.Anything, mock.AnythingOfType("feed.Event")).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/groups/g1/messages/m1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	messages.AssertExpectations(t)
	f.AssertExpectations(t)
}

func TestDeleteMessageForAllNotSender(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	handler := newMessageHandler(groups, messages, feed.NewBus())
	router := setupMessageRouter(handler)

	groups.On("IsMember", mock.Anything, "g1", "u1").Return(true, nil).Once()
	messages.On("GetMessage", mock.Anything, "m1").
		Return(models.Message{ID: "m1", GroupID: "g1", SenderID: "u2"}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/groups/g1/messages/m1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeleteMessageNotFound(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	handler := newMessageHandler(groups, messages, feed.NewBus())
	router := setupMessageRouter(handler)

	groups.On("IsMember", mock.Anything, "g1", "u1").Return(true, nil).Once()
	messages.On("GetMessage", mock.Anything, "m1").
		Return(models.Message{}, repositories.ErrMessageNotFound).Once()

	req := httptest.NewRequest(http.MethodDelete, "/groups/g1/messages/m1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
