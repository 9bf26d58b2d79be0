package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/studybuddy/internal/models"
)

type StudyRoomStore struct {
	pool Pool
}

func NewStudyRoomStore(pool Pool) *StudyRoomStore {
	return &StudyRoomStore{pool: pool}
}

const roomColumns = `id, community_id, name, description, created_by, creator_name, is_active, deleting, created_at`

func scanRoom(row pgx.Row, r *models.StudyRoom) error {
	return row.Scan(
		&r.ID,
		&r.CommunityID,
		&r.Name,
		&r.Description,
		&r.CreatedBy,
		&r.CreatorName,
		&r.IsActive,
		&r.Deleting,
		&r.CreatedAt,
	)
}

func (s *StudyRoomStore) Create(ctx context.Context, r *models.StudyRoom) (*models.StudyRoom, error) {
	query := `
		INSERT INTO study_rooms (community_id, name, description, created_by, creator_name, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING ` + roomColumns

	var out models.StudyRoom
	err := scanRoom(conn(ctx, s.pool).QueryRow(ctx, query,
		r.CommunityID, r.Name, r.Description, r.CreatedBy, r.CreatorName,
	), &out)
	if err != nil {
		return nil, fmt.Errorf("insert study room: %w", err)
	}
	out.Participants = make([]uuid.UUID, 0)
	out.ParticipantInfo = make([]models.Participant, 0)
	return &out, nil
}

func (s *StudyRoomStore) GetByID(ctx context.Context, roomID uuid.UUID) (*models.StudyRoom, error) {
	return s.get(ctx, `SELECT `+roomColumns+` FROM study_rooms WHERE id = $1`, roomID)
}

func (s *StudyRoomStore) GetForUpdate(ctx context.Context, roomID uuid.UUID) (*models.StudyRoom, error) {
	return s.get(ctx, `SELECT `+roomColumns+` FROM study_rooms WHERE id = $1 FOR UPDATE`, roomID)
}

func (s *StudyRoomStore) MarkDeleting(ctx context.Context, roomID uuid.UUID) error {
	if _, err := conn(ctx, s.pool).Exec(ctx, `UPDATE study_rooms SET deleting = TRUE WHERE id = $1`, roomID); err != nil {
		return fmt.Errorf("tombstone study room: %w", err)
	}
	return nil
}

func (s *StudyRoomStore) get(ctx context.Context, query string, roomID uuid.UUID) (*models.StudyRoom, error) {
	var r models.StudyRoom
	if err := scanRoom(conn(ctx, s.pool).QueryRow(ctx, query, roomID), &r); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get study room: %w", err)
	}
	if err := s.loadParticipants(ctx, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *StudyRoomStore) ListByCommunity(ctx context.Context, communityID uuid.UUID) ([]models.StudyRoom, error) {
	query := `
		SELECT ` + roomColumns + `
		FROM study_rooms
		WHERE community_id = $1
		ORDER BY created_at DESC, id`

	rows, err := conn(ctx, s.pool).Query(ctx, query, communityID)
	if err != nil {
		return nil, fmt.Errorf("list study rooms: %w", err)
	}

	rooms := make([]models.StudyRoom, 0)
	for rows.Next() {
		var r models.StudyRoom
		if err := scanRoom(rows, &r); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan study room: %w", err)
		}
		rooms = append(rooms, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate study rooms: %w", err)
	}

	// Participants are loaded after the rows are closed: a transaction
	// connection can't run a second query while the first is still open.
	for i := range rooms {
		if err := s.loadParticipants(ctx, &rooms[i]); err != nil {
			return nil, err
		}
	}
	return rooms, nil
}

func (s *StudyRoomStore) loadParticipants(ctx context.Context, r *models.StudyRoom) error {
	query := `
		SELECT user_id, display_name, status, joined_at
		FROM study_room_participants
		WHERE room_id = $1
		ORDER BY joined_at, user_id`

	rows, err := conn(ctx, s.pool).Query(ctx, query, r.ID)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	r.Participants = make([]uuid.UUID, 0)
	r.ParticipantInfo = make([]models.Participant, 0)
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.UserID, &p.DisplayName, &p.Status, &p.JoinedAt); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		r.ParticipantInfo = append(r.ParticipantInfo, p)
		if p.Status == models.ParticipantActive {
			r.Participants = append(r.Participants, p.UserID)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate participants: %w", err)
	}
	return nil
}

func (s *StudyRoomStore) AddParticipant(ctx context.Context, roomID uuid.UUID, p models.Participant) error {
	// One row per (room, user) is what keeps the info list free of the
	// duplicate entries repeated joins would otherwise produce.
	query := `
		INSERT INTO study_room_participants (room_id, user_id, display_name, status, joined_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (room_id, user_id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    status       = EXCLUDED.status,
		    joined_at    = EXCLUDED.joined_at`

	_, err := conn(ctx, s.pool).Exec(ctx, query, roomID, p.UserID, p.DisplayName, models.ParticipantActive, p.JoinedAt)
	if err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

func (s *StudyRoomStore) RemoveParticipant(ctx context.Context, roomID, userID uuid.UUID) error {
	query := `
		UPDATE study_room_participants
		SET status = $3
		WHERE room_id = $1 AND user_id = $2`

	if _, err := conn(ctx, s.pool).Exec(ctx, query, roomID, userID, models.ParticipantLeft); err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	return nil
}

func (s *StudyRoomStore) Delete(ctx context.Context, roomID uuid.UUID) error {
	db := conn(ctx, s.pool)
	if _, err := db.Exec(ctx, `DELETE FROM study_room_participants WHERE room_id = $1`, roomID); err != nil {
		return fmt.Errorf("delete participants: %w", err)
	}
	if _, err := db.Exec(ctx, `DELETE FROM study_rooms WHERE id = $1`, roomID); err != nil {
		return fmt.Errorf("delete study room: %w", err)
	}
	return nil
}
