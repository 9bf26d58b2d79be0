package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/studybuddy/internal/models"
)

type PostStore struct {
	pool Pool
}

func NewPostStore(pool Pool) *PostStore {
	return &PostStore{pool: pool}
}

const postSelect = `
		SELECT p.id, p.community_id, p.room_id, p.author_id, p.author_name, p.content, p.created_at,
		       COALESCE((SELECT array_agg(l.user_id) FROM post_likes l WHERE l.post_id = p.id), '{}')
		FROM posts p`

func scanPost(row pgx.Row, p *models.Post) error {
	return row.Scan(
		&p.ID,
		&p.CommunityID,
		&p.RoomID,
		&p.AuthorID,
		&p.AuthorName,
		&p.Content,
		&p.CreatedAt,
		&p.LikedBy,
	)
}

func (s *PostStore) Create(ctx context.Context, p *models.Post) (*models.Post, error) {
	query := `
		INSERT INTO posts (community_id, room_id, author_id, author_name, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	out := *p
	err := conn(ctx, s.pool).QueryRow(ctx, query, p.CommunityID, p.RoomID, p.AuthorID, p.AuthorName, p.Content).Scan(
		&out.ID,
		&out.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert post: %w", err)
	}
	out.LikedBy = make([]uuid.UUID, 0)
	return &out, nil
}

func (s *PostStore) GetByID(ctx context.Context, postID uuid.UUID) (*models.Post, error) {
	var p models.Post
	if err := scanPost(conn(ctx, s.pool).QueryRow(ctx, postSelect+` WHERE p.id = $1`, postID), &p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get post: %w", err)
	}
	return &p, nil
}

func (s *PostStore) ListByCommunity(ctx context.Context, communityID uuid.UUID) ([]models.Post, error) {
	return s.list(ctx, postSelect+`
		WHERE p.community_id = $1 AND p.room_id IS NULL
		ORDER BY p.created_at DESC, p.id`, communityID)
}

func (s *PostStore) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Post, error) {
	return s.list(ctx, postSelect+`
		WHERE p.room_id = $1
		ORDER BY p.created_at DESC, p.id`, roomID)
}

func (s *PostStore) list(ctx context.Context, query string, arg any) ([]models.Post, error) {
	rows, err := conn(ctx, s.pool).Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	posts := make([]models.Post, 0)
	for rows.Next() {
		var p models.Post
		if err := scanPost(rows, &p); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

func (s *PostStore) AddLike(ctx context.Context, postID, userID uuid.UUID) (bool, error) {
	tag, err := conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO post_likes (post_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (post_id, user_id) DO NOTHING`, postID, userID)
	if err != nil {
		return false, fmt.Errorf("add post like: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostStore) RemoveLike(ctx context.Context, postID, userID uuid.UUID) (bool, error) {
	tag, err := conn(ctx, s.pool).Exec(ctx, `DELETE FROM post_likes WHERE post_id = $1 AND user_id = $2`, postID, userID)
	if err != nil {
		return false, fmt.Errorf("remove post like: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostStore) Delete(ctx context.Context, postID uuid.UUID) error {
	db := conn(ctx, s.pool)
	if _, err := db.Exec(ctx, `DELETE FROM post_likes WHERE post_id = $1`, postID); err != nil {
		return fmt.Errorf("delete post likes: %w", err)
	}
	if _, err := db.Exec(ctx, `DELETE FROM posts WHERE id = $1`, postID); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

func (s *PostStore) DeleteByCommunity(ctx context.Context, communityID uuid.UUID) (int64, error) {
	db := conn(ctx, s.pool)
	_, err := db.Exec(ctx, `
		DELETE FROM post_likes
		WHERE post_id IN (SELECT id FROM posts WHERE community_id = $1 AND room_id IS NULL)`, communityID)
	if err != nil {
		return 0, fmt.Errorf("delete community post likes: %w", err)
	}
	tag, err := db.Exec(ctx, `DELETE FROM posts WHERE community_id = $1 AND room_id IS NULL`, communityID)
	if err != nil {
		return 0, fmt.Errorf("delete community posts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostStore) DeleteByRoom(ctx context.Context, roomID uuid.UUID) (int64, error) {
	db := conn(ctx, s.pool)
	_, err := db.Exec(ctx, `
		DELETE FROM post_likes
		WHERE post_id IN (SELECT id FROM posts WHERE room_id = $1)`, roomID)
	if err != nil {
		return 0, fmt.Errorf("delete room post likes: %w", err)
	}
	tag, err := db.Exec(ctx, `DELETE FROM posts WHERE room_id = $1`, roomID)
	if err != nil {
		return 0, fmt.Errorf("delete room posts: %w", err)
	}
	return tag.RowsAffected(), nil
}
