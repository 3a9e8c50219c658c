package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"collab-service/internal/models"
)

var (
	ErrGroupNotFound  = errors.New("group not found")
	ErrInvalidInvite  = errors.New("invalid invite code")
	ErrAlreadyMember  = errors.New("already a member")
	ErrNotMember      = errors.New("not a group member")
	ErrMemberNotFound = errors.New("member not found")
)

// GroupRepository abstracts group and membership persistence.
type GroupRepository interface {
	CreateGroup(ctx context.Context, creatorID, name, description, inviteCode string) (models.Group, error)
	GetGroup(ctx context.Context, groupID string) (models.Group, error)
	ListGroupsForUser(ctx context.Context, userID string) ([]models.Group, error)
	JoinByInviteCode(ctx context.Context, inviteCode, userID string) (models.Group, error)
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	GetMember(ctx context.Context, groupID, userID string) (models.GroupMember, error)
	ListMembers(ctx context.Context, groupID string) ([]models.MemberWithProfile, error)
	SetMemberRole(ctx context.Context, groupID, userID, role string) error
	RemoveMember(ctx context.Context, groupID, userID string) error
	DeleteGroup(ctx context.Context, groupID string) error
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

const groupColumns = `id, name, description, avatar_url, created_by, invite_code, created_at, updated_at`

// CreateGroup creates a group and its creator's admin membership atomically.
// Invite codes are stored uppercase.
func (r *GroupRepo) CreateGroup(ctx context.Context, creatorID, name, description, inviteCode string) (models.Group, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Group{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var desc *string
	if description != "" {
		desc = &description
	}

	var group models.Group
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO groups (name, description, created_by, invite_code) VALUES ($1, $2, $3, $4) RETURNING `+groupColumns,
		name, desc, creatorID, strings.ToUpper(inviteCode)).StructScan(&group); err != nil {
		return models.Group{}, err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, role) VALUES ($1, $2, 'admin')`,
		group.ID, creatorID); err != nil {
		return models.Group{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Group{}, err
	}
	return group, nil
}

// GetGroup fetches a single group.
func (r *GroupRepo) GetGroup(ctx context.Context, groupID string) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `SELECT `+groupColumns+` FROM groups WHERE id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

// ListGroupsForUser returns groups that include the user, newest first.
func (r *GroupRepo) ListGroupsForUser(ctx context.Context, userID string) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.SelectContext(ctx, &groups,
		`SELECT g.id, g.name, g.description, g.avatar_url, g.created_by, g.invite_code, g.created_at, g.updated_at
         FROM groups g INNER JOIN group_members gm ON gm.group_id = g.id
         WHERE gm.user_id=$1 ORDER BY g.created_at DESC`, userID)
	return groups, err
}

// JoinByInviteCode adds the user as a member of the group with the given
// invite code. Lookup is case-insensitive; an unknown code and an existing
// membership are reported as distinct errors.
func (r *GroupRepo) JoinByInviteCode(ctx context.Context, inviteCode, userID string) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group,
		`SELECT `+groupColumns+` FROM groups WHERE invite_code=$1`,
		strings.ToUpper(strings.TrimSpace(inviteCode)))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrInvalidInvite
	}
	if err != nil {
		return models.Group{}, err
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, role) VALUES ($1, $2, 'member')
         ON CONFLICT (group_id, user_id) DO NOTHING`,
		group.ID, userID)
	if err != nil {
		return models.Group{}, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return models.Group{}, err
	}
	if count == 0 {
		return models.Group{}, ErrAlreadyMember
	}
	return group, nil
}

// IsMember checks membership.
func (r *GroupRepo) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id=$1 AND user_id=$2)`, groupID, userID)
	return exists, err
}

// GetMember fetches a single membership row.
func (r *GroupRepo) GetMember(ctx context.Context, groupID, userID string) (models.GroupMember, error) {
	var member models.GroupMember
	err := r.db.GetContext(ctx, &member,
		`SELECT id, group_id, user_id, role, joined_at FROM group_members WHERE group_id=$1 AND user_id=$2`,
		groupID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.GroupMember{}, ErrMemberNotFound
	}
	return member, err
}

// ListMembers returns the roster joined with user profiles.
func (r *GroupRepo) ListMembers(ctx context.Context, groupID string) ([]models.MemberWithProfile, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT gm.id, gm.group_id, gm.user_id, gm.role, gm.joined_at,
                p.id AS p_id, p.email, p.full_name, p.avatar_url, p.created_at, p.updated_at
         FROM group_members gm INNER JOIN profiles p ON p.id = gm.user_id
         WHERE gm.group_id=$1 ORDER BY gm.joined_at ASC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.MemberWithProfile
	for rows.Next() {
		var m models.MemberWithProfile
		if err := rows.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Role, &m.JoinedAt,
			&m.User.ID, &m.User.Email, &m.User.FullName, &m.User.AvatarURL,
			&m.User.CreatedAt, &m.User.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// SetMemberRole toggles a member's role.
func (r *GroupRepo) SetMemberRole(ctx context.Context, groupID, userID, role string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE group_members SET role=$3 WHERE group_id=$1 AND user_id=$2`, groupID, userID, role)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// RemoveMember deletes a membership row.
func (r *GroupRepo) RemoveMember(ctx context.Context, groupID, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id=$1 AND user_id=$2`, groupID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// DeleteGroup removes the group and everything inside it: messages,
// resources, memberships, then the group row itself.
func (r *GroupRepo) DeleteGroup(ctx context.Context, groupID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	statements := []string{
		`DELETE FROM messages WHERE group_id=$1`,
		`DELETE FROM shared_resources WHERE group_id=$1`,
		`DELETE FROM group_members WHERE group_id=$1`,
	}
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt, groupID); err != nil {
			return err
		}
	}

	var res sql.Result
	if res, err = tx.ExecContext(ctx, `DELETE FROM groups WHERE id=$1`, groupID); err != nil {
		return err
	}
	var count int64
	if count, err = res.RowsAffected(); err != nil {
		return err
	}
	if count == 0 {
		err = ErrGroupNotFound
		return err
	}

	err = tx.Commit()
	return err
}
