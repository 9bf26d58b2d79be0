package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type MembershipStore struct {
	pool Pool
}

func NewMembershipStore(pool Pool) *MembershipStore {
	return &MembershipStore{pool: pool}
}

func (s *MembershipStore) AddJoinRequest(ctx context.Context, communityID, userID uuid.UUID) (bool, error) {
	// ON CONFLICT DO NOTHING makes this an add-to-set: two concurrent
	// requests from the same user leave one row, and only the statement that
	// actually inserted reports RowsAffected() == 1. The NOT EXISTS guard keeps
	// members out of the request set.
	query := `
		INSERT INTO community_join_requests (community_id, user_id)
		SELECT $1, $2
		WHERE NOT EXISTS (
			SELECT 1 FROM community_members
			WHERE community_id = $1 AND user_id = $2
		)
		ON CONFLICT (community_id, user_id) DO NOTHING`

	tag, err := conn(ctx, s.pool).Exec(ctx, query, communityID, userID)
	if err != nil {
		return false, fmt.Errorf("add join request: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *MembershipStore) RemoveJoinRequest(ctx context.Context, communityID, userID uuid.UUID) (bool, error) {
	// DELETE is naturally idempotent: removing an absent request deletes zero rows.
	query := `
		DELETE FROM community_join_requests
		WHERE community_id = $1 AND user_id = $2`

	tag, err := conn(ctx, s.pool).Exec(ctx, query, communityID, userID)
	if err != nil {
		return false, fmt.Errorf("remove join request: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *MembershipStore) AddMember(ctx context.Context, communityID, userID uuid.UUID) (bool, error) {
	query := `
		INSERT INTO community_members (community_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (community_id, user_id) DO NOTHING`

	tag, err := conn(ctx, s.pool).Exec(ctx, query, communityID, userID)
	if err != nil {
		return false, fmt.Errorf("add member: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *MembershipStore) IsMember(ctx context.Context, communityID, userID uuid.UUID) (bool, error) {
	// EXISTS stops at the first match. Hot path: called before every post,
	// room and chat write.
	query := `
		SELECT EXISTS (
			SELECT 1 FROM community_members
			WHERE community_id = $1 AND user_id = $2
		)`

	var exists bool
	if err := conn(ctx, s.pool).QueryRow(ctx, query, communityID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}
