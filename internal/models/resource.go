package models

import "time"

// Resource types.
const (
	ResourceTypeDocument = "document"
	ResourceTypeImage    = "image"
	ResourceTypeVideo    = "video"
	ResourceTypeLink     = "link"
)

// SharedResource is a file or link shared inside a group.
type SharedResource struct {
	ID           string    `db:"id" json:"id"`
	GroupID      string    `db:"group_id" json:"group_id"`
	UploadedBy   string    `db:"uploaded_by" json:"uploaded_by"`
	ResourceType string    `db:"resource_type" json:"resource_type"`
	FileURL      *string   `db:"file_url" json:"file_url,omitempty"`
	FileName     *string   `db:"file_name" json:"file_name,omitempty"`
	FileSize     *int64    `db:"file_size" json:"file_size,omitempty"`
	Title        string    `db:"title" json:"title"`
	Description  *string   `db:"description" json:"description,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// ResourceWithUploader joins a resource with its uploader profile.
type ResourceWithUploader struct {
	SharedResource
	Uploader Profile `json:"uploader"`
}
