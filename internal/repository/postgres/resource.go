package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/studybuddy/internal/models"
)

type ResourceStore struct {
	pool Pool
}

func NewResourceStore(pool Pool) *ResourceStore {
	return &ResourceStore{pool: pool}
}

const resourceColumns = `id, room_id, author_id, title, url, description, created_at`

func scanResource(row pgx.Row, r *models.Resource) error {
	return row.Scan(&r.ID, &r.RoomID, &r.AuthorID, &r.Title, &r.URL, &r.Description, &r.CreatedAt)
}

func (s *ResourceStore) Create(ctx context.Context, r *models.Resource) (*models.Resource, error) {
	query := `
		INSERT INTO resources (room_id, author_id, title, url, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + resourceColumns

	var out models.Resource
	if err := scanResource(conn(ctx, s.pool).QueryRow(ctx, query, r.RoomID, r.AuthorID, r.Title, r.URL, r.Description), &out); err != nil {
		return nil, fmt.Errorf("insert resource: %w", err)
	}
	return &out, nil
}

func (s *ResourceStore) GetByID(ctx context.Context, resourceID uuid.UUID) (*models.Resource, error) {
	var r models.Resource
	err := scanResource(conn(ctx, s.pool).QueryRow(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = $1`, resourceID), &r)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get resource: %w", err)
	}
	return &r, nil
}

func (s *ResourceStore) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Resource, error) {
	query := `
		SELECT ` + resourceColumns + `
		FROM resources
		WHERE room_id = $1
		ORDER BY created_at DESC, id`

	rows, err := conn(ctx, s.pool).Query(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	resources := make([]models.Resource, 0)
	for rows.Next() {
		var r models.Resource
		if err := scanResource(rows, &r); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		resources = append(resources, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resources: %w", err)
	}
	return resources, nil
}

func (s *ResourceStore) Delete(ctx context.Context, resourceID uuid.UUID) error {
	if _, err := conn(ctx, s.pool).Exec(ctx, `DELETE FROM resources WHERE id = $1`, resourceID); err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	return nil
}

func (s *ResourceStore) DeleteByRoom(ctx context.Context, roomID uuid.UUID) (int64, error) {
	tag, err := conn(ctx, s.pool).Exec(ctx, `DELETE FROM resources WHERE room_id = $1`, roomID)
	if err != nil {
		return 0, fmt.Errorf("delete room resources: %w", err)
	}
	return tag.RowsAffected(), nil
}
