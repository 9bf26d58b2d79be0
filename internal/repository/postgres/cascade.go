package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/studybuddy/internal/models"
)

type CascadeJobStore struct {
	pool Pool
}

func NewCascadeJobStore(pool Pool) *CascadeJobStore {
	return &CascadeJobStore{pool: pool}
}

const cascadeJobColumns = `id, kind, target_id, requested_by, attempts, last_error, created_at`

func scanCascadeJob(row pgx.Row, j *models.CascadeJob) error {
	return row.Scan(&j.ID, &j.Kind, &j.TargetID, &j.RequestedBy, &j.Attempts, &j.LastError, &j.CreatedAt)
}

func (s *CascadeJobStore) Create(ctx context.Context, kind string, targetID, requestedBy uuid.UUID) (*models.CascadeJob, error) {
	// The no-op DO UPDATE makes RETURNING yield the existing row on conflict,
	// so a repeated delete request resumes the job instead of forking a second one.
	query := `
		INSERT INTO cascade_jobs (kind, target_id, requested_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (kind, target_id) DO UPDATE SET kind = EXCLUDED.kind
		RETURNING ` + cascadeJobColumns

	var j models.CascadeJob
	if err := scanCascadeJob(conn(ctx, s.pool).QueryRow(ctx, query, kind, targetID, requestedBy), &j); err != nil {
		return nil, fmt.Errorf("insert cascade job: %w", err)
	}
	return &j, nil
}

func (s *CascadeJobStore) ListPending(ctx context.Context, limit int) ([]models.CascadeJob, error) {
	query := `
		SELECT ` + cascadeJobColumns + `
		FROM cascade_jobs
		ORDER BY created_at, id
		LIMIT NULLIF($1, 0)`

	rows, err := conn(ctx, s.pool).Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list cascade jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]models.CascadeJob, 0)
	for rows.Next() {
		var j models.CascadeJob
		if err := scanCascadeJob(rows, &j); err != nil {
			return nil, fmt.Errorf("scan cascade job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cascade jobs: %w", err)
	}
	return jobs, nil
}

func (s *CascadeJobStore) RecordFailure(ctx context.Context, jobID uuid.UUID, reason string) error {
	query := `
		UPDATE cascade_jobs
		SET attempts = attempts + 1, last_error = $2
		WHERE id = $1`

	if _, err := conn(ctx, s.pool).Exec(ctx, query, jobID, reason); err != nil {
		return fmt.Errorf("record cascade failure: %w", err)
	}
	return nil
}

func (s *CascadeJobStore) Delete(ctx context.Context, jobID uuid.UUID) error {
	if _, err := conn(ctx, s.pool).Exec(ctx, `DELETE FROM cascade_jobs WHERE id = $1`, jobID); err != nil {
		return fmt.Errorf("delete cascade job: %w", err)
	}
	return nil
}
