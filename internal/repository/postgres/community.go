package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/studybuddy/internal/models"
)

type CommunityStore struct {
	pool Pool
}

func NewCommunityStore(pool Pool) *CommunityStore {
	return &CommunityStore{pool: pool}
}

// The member and request sets are folded into the row with array_agg so a
// community is always read in one round trip, and always with both sets
// from the same snapshot.
const communitySelect = `
		SELECT c.id, c.name, c.description, c.created_by, c.post_count,
		       c.is_private, c.deleting, c.created_at,
		       COALESCE((SELECT array_agg(m.user_id ORDER BY m.joined_at)
		                 FROM community_members m WHERE m.community_id = c.id), '{}'),
		       COALESCE((SELECT array_agg(r.user_id ORDER BY r.requested_at)
		                 FROM community_join_requests r WHERE r.community_id = c.id), '{}')
		FROM communities c`

func scanCommunity(row pgx.Row, c *models.Community) error {
	return row.Scan(
		&c.ID,
		&c.Name,
		&c.Description,
		&c.CreatedBy,
		&c.PostCount,
		&c.IsPrivate,
		&c.Deleting,
		&c.CreatedAt,
		&c.Members,
		&c.JoinRequests,
	)
}

func (s *CommunityStore) Create(ctx context.Context, name, description string, createdBy uuid.UUID, isPrivate bool) (*models.Community, error) {
	query := `
		INSERT INTO communities (name, description, created_by, is_private)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, description, created_by, post_count, is_private, deleting, created_at`

	db := conn(ctx, s.pool)

	var c models.Community
	err := db.QueryRow(ctx, query, name, description, createdBy, isPrivate).Scan(
		&c.ID,
		&c.Name,
		&c.Description,
		&c.CreatedBy,
		&c.PostCount,
		&c.IsPrivate,
		&c.Deleting,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert community: %w", err)
	}

	_, err = db.Exec(ctx, `
		INSERT INTO community_members (community_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (community_id, user_id) DO NOTHING`, c.ID, createdBy)
	if err != nil {
		return nil, fmt.Errorf("add creator as member: %w", err)
	}

	c.Members = []uuid.UUID{createdBy}
	c.JoinRequests = make([]uuid.UUID, 0)
	return &c, nil
}

func (s *CommunityStore) GetByID(ctx context.Context, communityID uuid.UUID) (*models.Community, error) {
	return s.get(ctx, communitySelect+` WHERE c.id = $1`, communityID)
}

func (s *CommunityStore) GetForUpdate(ctx context.Context, communityID uuid.UUID) (*models.Community, error) {
	// FOR UPDATE OF c locks only the community row. The sets are read in
	// subqueries after the lock is taken, so they reflect every committed
	// workflow step that held the lock before us.
	return s.get(ctx, communitySelect+` WHERE c.id = $1 FOR UPDATE OF c`, communityID)
}

func (s *CommunityStore) get(ctx context.Context, query string, communityID uuid.UUID) (*models.Community, error) {
	var c models.Community
	if err := scanCommunity(conn(ctx, s.pool).QueryRow(ctx, query, communityID), &c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get community: %w", err)
	}
	return &c, nil
}

func (s *CommunityStore) List(ctx context.Context, nameQuery string) ([]models.Community, error) {
	query := communitySelect + `
		WHERE NOT c.deleting
		  AND ($1 = '' OR c.name ILIKE '%' || $1 || '%')
		ORDER BY c.created_at DESC, c.id`
	return s.list(ctx, query, nameQuery)
}

func (s *CommunityStore) ListByMember(ctx context.Context, userID uuid.UUID) ([]models.Community, error) {
	query := communitySelect + `
		WHERE NOT c.deleting
		  AND EXISTS (
			SELECT 1 FROM community_members m
			WHERE m.community_id = c.id AND m.user_id = $1
		  )
		ORDER BY c.created_at DESC, c.id`
	return s.list(ctx, query, userID)
}

func (s *CommunityStore) list(ctx context.Context, query string, arg any) ([]models.Community, error) {
	rows, err := conn(ctx, s.pool).Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list communities: %w", err)
	}
	defer rows.Close()

	communities := make([]models.Community, 0)
	for rows.Next() {
		var c models.Community
		if err := scanCommunity(rows, &c); err != nil {
			return nil, fmt.Errorf("scan community: %w", err)
		}
		communities = append(communities, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate communities: %w", err)
	}
	return communities, nil
}

func (s *CommunityStore) AdjustPostCount(ctx context.Context, communityID uuid.UUID, delta int) error {
	// GREATEST keeps the counter from going negative if a delete is retried.
	query := `
		UPDATE communities
		SET post_count = GREATEST(post_count + $2, 0)
		WHERE id = $1`

	if _, err := conn(ctx, s.pool).Exec(ctx, query, communityID, delta); err != nil {
		return fmt.Errorf("adjust post count: %w", err)
	}
	return nil
}

func (s *CommunityStore) MarkDeleting(ctx context.Context, communityID uuid.UUID) error {
	if _, err := conn(ctx, s.pool).Exec(ctx, `UPDATE communities SET deleting = TRUE WHERE id = $1`, communityID); err != nil {
		return fmt.Errorf("mark community deleting: %w", err)
	}
	return nil
}

func (s *CommunityStore) Delete(ctx context.Context, communityID uuid.UUID) error {
	db := conn(ctx, s.pool)

	if _, err := db.Exec(ctx, `DELETE FROM community_join_requests WHERE community_id = $1`, communityID); err != nil {
		return fmt.Errorf("delete join requests: %w", err)
	}
	if _, err := db.Exec(ctx, `DELETE FROM community_members WHERE community_id = $1`, communityID); err != nil {
		return fmt.Errorf("delete members: %w", err)
	}
	// Posts, rooms and notifications reference communities without
	// ON DELETE CASCADE, so this fails loudly if the cascade missed a child.
	if _, err := db.Exec(ctx, `DELETE FROM communities WHERE id = $1`, communityID); err != nil {
		return fmt.Errorf("delete community: %w", err)
	}
	return nil
}
