package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lalith-99/studybuddy/internal/models"
	"github.com/lalith-99/studybuddy/internal/repository"
)

type UserStore struct {
	pool Pool
}

func NewUserStore(pool Pool) *UserStore {
	return &UserStore{pool: pool}
}

const userColumns = `id, email, display_name, role, bio, location, password_hash, created_at, updated_at`

func scanUser(row pgx.Row, u *models.User) error {
	return row.Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.Role,
		&u.Bio,
		&u.Location,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
}

// Create inserts a new user row. Postgres generates the UUID and timestamps.
func (s *UserStore) Create(ctx context.Context, email, displayName, passwordHash string, role models.Role) (*models.User, error) {
	query := `
		INSERT INTO users (email, display_name, role, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns

	var u models.User
	if err := scanUser(conn(ctx, s.pool).QueryRow(ctx, query, email, displayName, role, passwordHash), &u); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("insert user: %w", repository.ErrDuplicate)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	u.JoinedCommunities = make([]uuid.UUID, 0)
	return &u, nil
}

func (s *UserStore) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`

	var u models.User
	if err := scanUser(conn(ctx, s.pool).QueryRow(ctx, query, userID), &u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	joined, err := s.joinedCommunities(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.JoinedCommunities = joined
	return &u, nil
}

// GetByEmail looks up a user by email. Used for login.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1`

	var u models.User
	if err := scanUser(conn(ctx, s.pool).QueryRow(ctx, query, email), &u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

func (s *UserStore) UpdateProfile(ctx context.Context, userID uuid.UUID, upd models.ProfileUpdate) (*models.User, error) {
	// COALESCE keeps the stored value for every field the caller left nil.
	query := `
		UPDATE users
		SET display_name = COALESCE($2, display_name),
		    bio          = COALESCE($3, bio),
		    location     = COALESCE($4, location),
		    updated_at   = now()
		WHERE id = $1
		RETURNING ` + userColumns

	var u models.User
	err := scanUser(conn(ctx, s.pool).QueryRow(ctx, query, userID, upd.DisplayName, upd.Bio, upd.Location), &u)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}

	joined, err := s.joinedCommunities(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.JoinedCommunities = joined
	return &u, nil
}

func (s *UserStore) joinedCommunities(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT m.community_id
		FROM community_members m
		JOIN communities c ON c.id = m.community_id
		WHERE m.user_id = $1 AND NOT c.deleting
		ORDER BY m.joined_at`

	rows, err := conn(ctx, s.pool).Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list joined communities: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan joined community: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate joined communities: %w", err)
	}
	return ids, nil
}
