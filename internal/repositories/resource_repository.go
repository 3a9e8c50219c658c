package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"collab-service/internal/models"
)

var ErrResourceNotFound = errors.New("resource not found")

// NewResource carries the fields for a shared resource insert.
type NewResource struct {
	GroupID      string
	UploadedBy   string
	ResourceType string
	Title        string
	Description  string
	FileURL      string
	FileName     string
	FileSize     int64
}

// ResourceRepository abstracts shared resource persistence.
type ResourceRepository interface {
	CreateResource(ctx context.Context, res NewResource) (models.SharedResource, error)
	GetResource(ctx context.Context, resourceID string) (models.SharedResource, error)
	ListResources(ctx context.Context, groupID string) ([]models.ResourceWithUploader, error)
	DeleteResource(ctx context.Context, resourceID string) error
}

// ResourceRepo is a sqlx implementation of ResourceRepository.
type ResourceRepo struct {
	db *sqlx.DB
}

// NewResourceRepo constructs a ResourceRepo.
func NewResourceRepo(db *sqlx.DB) *ResourceRepo {
	return &ResourceRepo{db: db}
}

const resourceColumns = `id, group_id, uploaded_by, resource_type, file_url, file_name, file_size, title, description, created_at`

// CreateResource persists a shared resource.
func (r *ResourceRepo) CreateResource(ctx context.Context, res NewResource) (models.SharedResource, error) {
	var desc, fileURL, fileName *string
	var fileSize *int64
	if res.Description != "" {
		desc = &res.Description
	}
	if res.FileURL != "" {
		fileURL = &res.FileURL
	}
	if res.FileName != "" {
		fileName = &res.FileName
	}
	if res.FileSize > 0 {
		fileSize = &res.FileSize
	}

	var row models.SharedResource
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO shared_resources (group_id, uploaded_by, resource_type, file_url, file_name, file_size, title, description)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+resourceColumns,
		res.GroupID, res.UploadedBy, res.ResourceType, fileURL, fileName, fileSize, res.Title, desc).StructScan(&row)
	return row, err
}

// GetResource fetches a single resource.
func (r *ResourceRepo) GetResource(ctx context.Context, resourceID string) (models.SharedResource, error) {
	var row models.SharedResource
	err := r.db.GetContext(ctx, &row, `SELECT `+resourceColumns+` FROM shared_resources WHERE id=$1`, resourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SharedResource{}, ErrResourceNotFound
	}
	return row, err
}

// ListResources returns resources for a group with uploader profiles, newest
// first.
func (r *ResourceRepo) ListResources(ctx context.Context, groupID string) ([]models.ResourceWithUploader, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT sr.id, sr.group_id, sr.uploaded_by, sr.resource_type, sr.file_url, sr.file_name, sr.file_size,
                sr.title, sr.description, sr.created_at,
                p.id AS p_id, p.email, p.full_name, p.avatar_url, p.created_at AS p_created, p.updated_at AS p_updated
         FROM shared_resources sr INNER JOIN profiles p ON p.id = sr.uploaded_by
         WHERE sr.group_id=$1 ORDER BY sr.created_at DESC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.ResourceWithUploader
	for rows.Next() {
		var res models.ResourceWithUploader
		if err := rows.Scan(&res.ID, &res.GroupID, &res.UploadedBy, &res.ResourceType, &res.FileURL, &res.FileName,
			&res.FileSize, &res.Title, &res.Description, &res.CreatedAt,
			&res.Uploader.ID, &res.Uploader.Email, &res.Uploader.FullName, &res.Uploader.AvatarURL,
			&res.Uploader.CreatedAt, &res.Uploader.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, res)
	}
	return result, rows.Err()
}

// DeleteResource removes a resource row.
func (r *ResourceRepo) DeleteResource(ctx context.Context, resourceID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM shared_resources WHERE id=$1`, resourceID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrResourceNotFound
	}
	return nil
}
