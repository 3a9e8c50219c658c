package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"collab-service/internal/models"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrEmailTaken      = errors.New("email already registered")
)

// ProfileRepository abstracts user profile persistence.
type ProfileRepository interface {
	CreateProfile(ctx context.Context, email, fullName, passwordHash string) (models.Profile, error)
	GetProfile(ctx context.Context, userID string) (models.Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (models.Profile, error)
	UpdateProfile(ctx context.Context, userID string, fullName, avatarURL *string) (models.Profile, error)
}

// ProfileRepo is a sqlx implementation of ProfileRepository.
type ProfileRepo struct {
	db *sqlx.DB
}

// NewProfileRepo constructs a ProfileRepo.
func NewProfileRepo(db *sqlx.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

const profileColumns = `id, email, full_name, avatar_url, password_hash, created_at, updated_at`

// CreateProfile registers a new user.
func (r *ProfileRepo) CreateProfile(ctx context.Context, email, fullName, passwordHash string) (models.Profile, error) {
	var p models.Profile
	var name *string
	if fullName != "" {
		name = &fullName
	}
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO profiles (email, full_name, password_hash) VALUES ($1, $2, $3) RETURNING `+profileColumns,
		email, name, passwordHash).StructScan(&p)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Profile{}, ErrEmailTaken
		}
		return models.Profile{}, err
	}
	return p, nil
}

// GetProfile fetches a profile by id.
func (r *ProfileRepo) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	var p models.Profile
	err := r.db.GetContext(ctx, &p, `SELECT `+profileColumns+` FROM profiles WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, ErrProfileNotFound
	}
	return p, err
}

// GetProfileByEmail fetches a profile by email.
func (r *ProfileRepo) GetProfileByEmail(ctx context.Context, email string) (models.Profile, error) {
	var p models.Profile
	err := r.db.GetContext(ctx, &p, `SELECT `+profileColumns+` FROM profiles WHERE email=$1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, ErrProfileNotFound
	}
	return p, err
}

// UpdateProfile patches mutable profile fields, keeping unset ones.
func (r *ProfileRepo) UpdateProfile(ctx context.Context, userID string, fullName, avatarURL *string) (models.Profile, error) {
	var p models.Profile
	err := r.db.QueryRowxContext(ctx,
		`UPDATE profiles SET full_name = COALESCE($2, full_name), avatar_url = COALESCE($3, avatar_url), updated_at = NOW()
         WHERE id=$1 RETURNING `+profileColumns,
		userID, fullName, avatarURL).StructScan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, ErrProfileNotFound
	}
	return p, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
