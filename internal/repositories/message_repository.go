package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"collab-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// FileAttachment carries metadata for file and link messages.
type FileAttachment struct {
	URL  string
	Name string
	Type string
	Size int64
}

// MessageRepository defines interactions for group messages and per-viewer
// deletion markers.
type MessageRepository interface {
	CreateMessage(ctx context.Context, groupID, senderID, content, messageType string, file *FileAttachment) (models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	ListRecentMessages(ctx context.Context, groupID string, limit int) ([]models.MessageWithSender, error)
	DeleteForEveryone(ctx context.Context, messageID, senderID string) (models.Message, error)
	HideForViewer(ctx context.Context, messageID, viewerID string) error
	ListHiddenForViewer(ctx context.Context, groupID, viewerID string) ([]string, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, group_id, sender_id, content, message_type, file_url, file_name, file_type, file_size, created_at, deleted_at`

// CreateMessage persists a message.
func (r *MessageRepo) CreateMessage(ctx context.Context, groupID, senderID, content, messageType string, file *FileAttachment) (models.Message, error) {
	var body *string
	if content != "" {
		body = &content
	}
	var fileURL, fileName, fileType *string
	var fileSize *int64
	if file != nil {
		fileURL, fileName, fileType, fileSize = &file.URL, &file.Name, &file.Type, &file.Size
	}

	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (group_id, sender_id, content, message_type, file_url, file_name, file_type, file_size)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+messageColumns,
		groupID, senderID, body, messageType, fileURL, fileName, fileType, fileSize).StructScan(&msg)
	return msg, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListRecentMessages returns the most recent messages for a group in
// ascending creation order, hydrated with sender profiles. The query orders
// descending with a limit and the result is reversed, so a bounded window
// selects the newest rows rather than the oldest.
func (r *MessageRepo) ListRecentMessages(ctx context.Context, groupID string, limit int) ([]models.MessageWithSender, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT m.id, m.group_id, m.sender_id, m.content, m.message_type,
                m.file_url, m.file_name, m.file_type, m.file_size, m.created_at, m.deleted_at,
                p.id AS p_id, p.email, p.full_name, p.avatar_url, p.created_at AS p_created, p.updated_at AS p_updated
         FROM messages m INNER JOIN profiles p ON p.id = m.sender_id
         WHERE m.group_id=$1 AND m.deleted_at IS NULL
         ORDER BY m.created_at DESC LIMIT $2`, groupID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.MessageWithSender
	for rows.Next() {
		var m models.MessageWithSender
		if err := rows.Scan(&m.ID, &m.GroupID, &m.SenderID, &m.Content, &m.MessageType,
			&m.FileURL, &m.FileName, &m.FileType, &m.FileSize, &m.CreatedAt, &m.DeletedAt,
			&m.Sender.ID, &m.Sender.Email, &m.Sender.FullName, &m.Sender.AvatarURL,
			&m.Sender.CreatedAt, &m.Sender.UpdatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// restore ascending order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// DeleteForEveryone marks a message deleted for all viewers: content is
// cleared and the deletion timestamp set. Only the sender may do this; the
// transition is terminal and repeating it changes nothing.
func (r *MessageRepo) DeleteForEveryone(ctx context.Context, messageID, senderID string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`UPDATE messages SET content = NULL, file_url = NULL, deleted_at = COALESCE(deleted_at, NOW())
         WHERE id=$1 AND sender_id=$2 RETURNING `+messageColumns,
		messageID, senderID).StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// HideForViewer inserts a personal deletion marker. Inserting twice is a
// no-op.
func (r *MessageRepo) HideForViewer(ctx context.Context, messageID, viewerID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO message_visibility (message_id, user_id) VALUES ($1, $2)
         ON CONFLICT (message_id, user_id) DO NOTHING`, messageID, viewerID)
	return err
}

// ListHiddenForViewer returns ids of messages the viewer has hidden in the
// group.
func (r *MessageRepo) ListHiddenForViewer(ctx context.Context, groupID, viewerID string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids,
		`SELECT mv.message_id FROM message_visibility mv
         INNER JOIN messages m ON m.id = mv.message_id
         WHERE m.group_id=$1 AND mv.user_id=$2`, groupID, viewerID)
	return ids, err
}
