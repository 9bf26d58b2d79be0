package memory

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/lalith-99/studybuddy/internal/models"
)

type cascadeRepo struct{ s *Store }

func (r *cascadeRepo) Create(ctx context.Context, kind string, targetID, requestedBy uuid.UUID) (*models.CascadeJob, error) {
	st, release, err := r.s.op(ctx, "cascadeJobs.Create")
	if err != nil {
		return nil, err
	}
	defer release()

	for _, j := range st.jobs {
		if j.Kind == kind && j.TargetID == targetID {
			return &j, nil
		}
	}
	j := models.CascadeJob{
		ID:          uuid.New(),
		Kind:        kind,
		TargetID:    targetID,
		RequestedBy: requestedBy,
		CreatedAt:   r.s.now(),
	}
	st.jobs[j.ID] = j
	st.track(j.ID)
	return &j, nil
}

func (r *cascadeRepo) ListPending(ctx context.Context, limit int) ([]models.CascadeJob, error) {
	st, release, err := r.s.op(ctx, "cascadeJobs.ListPending")
	if err != nil {
		return nil, err
	}
	defer release()

	out := make([]models.CascadeJob, 0, len(st.jobs))
	for _, j := range st.jobs {
		out = append(out, j)
	}
	// Oldest first: the reverse of newestFirst.
	slices.SortFunc(out, func(a, b models.CascadeJob) int {
		return st.newestFirst(b.CreatedAt, a.CreatedAt, b.ID, a.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *cascadeRepo) RecordFailure(ctx context.Context, jobID uuid.UUID, reason string) error {
	st, release, err := r.s.op(ctx, "cascadeJobs.RecordFailure")
	if err != nil {
		return err
	}
	defer release()

	if j, ok := st.jobs[jobID]; ok {
		j.Attempts++
		j.LastError = reason
		st.jobs[jobID] = j
	}
	return nil
}

func (r *cascadeRepo) Delete(ctx context.Context, jobID uuid.UUID) error {
	st, release, err := r.s.op(ctx, "cascadeJobs.Delete")
	if err != nil {
		return err
	}
	defer release()

	delete(st.jobs, jobID)
	delete(st.seq, jobID)
	return nil
}
