package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/peerlessmusic/backend/internal/models"
	"github.com/peerlessmusic/backend/internal/shared"
)

// IdentityRepository persists username/password accounts.
type IdentityRepository struct {
	db *sql.DB
}

// NewIdentityRepository creates a new IdentityRepository with the given database connection
func NewIdentityRepository(db *sql.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// Create inserts a new identity with a generated ID. Usernames are stored
// lowercase and must be unique.
func (r *IdentityRepository) Create(ctx context.Context, identity *models.Identity) error {
	identity.Username = strings.ToLower(strings.TrimSpace(identity.Username))
	if err := identity.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	identity.ID = shared.GenerateUserID()
	now := time.Now().UTC()
	identity.CreatedAt = now
	identity.UpdatedAt = now

	query := `
		INSERT INTO identities (id, username, password_hash, display_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		identity.ID, identity.Username, identity.PasswordHash,
		nullable(identity.DisplayName), identity.CreatedAt, identity.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", shared.ErrUsernameTaken, identity.Username)
		}
		return fmt.Errorf("failed to insert identity: %w", err)
	}

	return nil
}

// Get retrieves an identity by ID.
func (r *IdentityRepository) Get(ctx context.Context, id string) (*models.Identity, error) {
	query := `
		SELECT id, username, password_hash, display_name, created_at, updated_at
		FROM identities
		WHERE id = ?
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id), id)
}

// GetByUsername retrieves an identity by its lowercase username.
func (r *IdentityRepository) GetByUsername(ctx context.Context, username string) (*models.Identity, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	query := `
		SELECT id, username, password_hash, display_name, created_at, updated_at
		FROM identities
		WHERE username = ?
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, username), username)
}

func (r *IdentityRepository) scanOne(row scanner, ref string) (*models.Identity, error) {
	var identity models.Identity
	var displayName sql.NullString

	err := row.Scan(&identity.ID, &identity.Username, &identity.PasswordHash,
		&displayName, &identity.CreatedAt, &identity.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", shared.ErrIdentityNotFound, ref)
		}
		return nil, fmt.Errorf("failed to scan identity: %w", err)
	}

	identity.DisplayName = displayName.String
	return &identity, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
