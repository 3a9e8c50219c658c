package models

import "time"

// Member roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Group represents a collaborative workspace.
type Group struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	AvatarURL   *string   `db:"avatar_url" json:"avatar_url,omitempty"`
	CreatedBy   string    `db:"created_by" json:"created_by"`
	InviteCode  string    `db:"invite_code" json:"invite_code"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// GroupMember is a membership row.
type GroupMember struct {
	ID       string    `db:"id" json:"id"`
	GroupID  string    `db:"group_id" json:"group_id"`
	UserID   string    `db:"user_id" json:"user_id"`
	Role     string    `db:"role" json:"role"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// MemberWithProfile joins a membership row with its user profile.
type MemberWithProfile struct {
	GroupMember
	User Profile `json:"user"`
}

// IsAdmin reports whether the user has admin capability in the group.
// The creator is always admin-equivalent regardless of the stored role.
func IsAdmin(group Group, member *GroupMember, userID string) bool {
	if group.CreatedBy == userID {
		return true
	}
	return member != nil && member.Role == RoleAdmin
}
