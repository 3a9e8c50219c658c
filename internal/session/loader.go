package session

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"collab-service/internal/models"
	"collab-service/internal/repositories"
)

// ErrLoadFailed is the generic condition surfaced when any part of a
// conversation's initial fetch fails. Callers never render a half-populated
// conversation.
var ErrLoadFailed = errors.New("failed to load conversation")

// DefaultHistoryLimit bounds the initial message window.
const DefaultHistoryLimit = 100

// History is a consistent initial view of a conversation for one viewer.
type History struct {
	Group    models.Group
	Messages []models.MessageWithSender
	Members  []models.MemberWithProfile
	Hidden   map[string]struct{}
	IsAdmin  bool
}

// Loader fetches a conversation's initial state and populates the cache.
type Loader struct {
	groups   repositories.GroupRepository
	messages repositories.MessageRepository
	cache    *Cache
	limit    int
}

// NewLoader builds a Loader. Zero limit falls back to DefaultHistoryLimit.
func NewLoader(groups repositories.GroupRepository, messages repositories.MessageRepository, cache *Cache, limit int) *Loader {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Loader{groups: groups, messages: messages, cache: cache, limit: limit}
}

// Load fetches the group, the most recent message window, the member roster
// and the viewer's personal markers in parallel. Any failure collapses into
// ErrLoadFailed. On success all fetched pieces are written through to the
// cache.
func (l *Loader) Load(ctx context.Context, groupID, viewerID string) (History, error) {
	var (
		group     models.Group
		messages  []models.MessageWithSender
		members   []models.MemberWithProfile
		hiddenIDs []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		group, err = l.groups.GetGroup(gctx, groupID)
		return err
	})
	g.Go(func() error {
		var err error
		messages, err = l.messages.ListRecentMessages(gctx, groupID, l.limit)
		return err
	})
	g.Go(func() error {
		var err error
		members, err = l.groups.ListMembers(gctx, groupID)
		return err
	})
	g.Go(func() error {
		var err error
		hiddenIDs, err = l.messages.ListHiddenForViewer(gctx, groupID, viewerID)
		return err
	})
	if err := g.Wait(); err != nil {
		return History{}, fmt.Errorf("%w: %s", ErrLoadFailed, err)
	}

	history := History{
		Group:    group,
		Messages: messages,
		Members:  members,
		Hidden:   HiddenSet(hiddenIDs),
		IsAdmin:  isAdmin(group, members, viewerID),
	}

	groupCopy := group
	l.cache.Put(groupID, SnapshotUpdate{
		Group:    &groupCopy,
		Messages: messages,
		Members:  members,
	})
	return history, nil
}

// isAdmin applies the creator-override rule: the group's creator has admin
// capability even when their stored role is plain member.
func isAdmin(group models.Group, members []models.MemberWithProfile, viewerID string) bool {
	if group.CreatedBy == viewerID {
		return true
	}
	for _, m := range members {
		if m.UserID == viewerID {
			return m.Role == models.RoleAdmin
		}
	}
	return false
}
