package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/studybuddy/internal/models"
	"github.com/lalith-99/studybuddy/internal/realtime"
	"github.com/lalith-99/studybuddy/internal/repository"
	"go.uber.org/zap"
)

// CascadeService deletes a community or study room together with
// everything that belongs to it.
//
// A delete is recorded as a cascade job before any child row is touched and
// the job is cleared only after the parent row is gone. Every step deletes
// by parent ID and is a no-op when there is nothing left, so a job that
// failed half way can simply be run again, by the next request or by the
// sweeper.
type CascadeService struct {
	store  repository.Store
	pub    publisher
	logger *zap.Logger
}

func NewCascadeService(store repository.Store, events Emitter, logger *zap.Logger) *CascadeService {
	return &CascadeService{
		store:  store,
		pub:    publisher{events: events, logger: logger},
		logger: logger,
	}
}

// DeleteCommunity tombstones the community, records the job, and runs it.
// Only the creator may delete. The authorization check happens before any
// write.
func (s *CascadeService) DeleteCommunity(ctx context.Context, communityID, requesterID uuid.UUID) error {
	var job *models.CascadeJob
	err := s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.store.Communities.GetForUpdate(ctx, communityID)
		if err != nil {
			return fmt.Errorf("lock community: %w", err)
		}
		if c == nil {
			return ErrNotFound
		}
		if c.CreatedBy != requesterID {
			return ErrForbidden
		}
		if err := s.store.Communities.MarkDeleting(ctx, communityID); err != nil {
			return fmt.Errorf("tombstone community: %w", err)
		}
		job, err = s.store.CascadeJobs.Create(ctx, models.CascadeCommunity, communityID, requesterID)
		if err != nil {
			return fmt.Errorf("record cascade job: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.Run(ctx, *job)
}

// DeleteStudyRoom tombstones the room, records the job, and runs it. Only
// the room's creator may delete it. A room whose community is already being
// deleted goes with the community's cascade.
func (s *CascadeService) DeleteStudyRoom(ctx context.Context, roomID, requesterID uuid.UUID) error {
	var job *models.CascadeJob
	err := s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		room, err := s.store.Rooms.GetForUpdate(ctx, roomID)
		if err != nil {
			return fmt.Errorf("lock study room: %w", err)
		}
		if room == nil {
			return ErrNotFound
		}
		if _, err := liveCommunity(ctx, s.store.Communities, room.CommunityID); err != nil {
			return err
		}
		if room.CreatedBy != requesterID {
			return ErrForbidden
		}
		if err := s.store.Rooms.MarkDeleting(ctx, roomID); err != nil {
			return fmt.Errorf("tombstone study room: %w", err)
		}
		job, err = s.store.CascadeJobs.Create(ctx, models.CascadeStudyRoom, roomID, requesterID)
		if err != nil {
			return fmt.Errorf("record cascade job: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.Run(ctx, *job)
}

// Run executes a job. On failure the job stays recorded with the error and
// its attempt count bumped.
func (s *CascadeService) Run(ctx context.Context, job models.CascadeJob) error {
	log := s.logger.With(
		zap.String("job_id", job.ID.String()),
		zap.String("kind", job.Kind),
		zap.String("target_id", job.TargetID.String()),
	)

	var (
		err  error
		room string
		name string
	)
	switch job.Kind {
	case models.CascadeCommunity:
		err = s.deleteCommunity(ctx, job.TargetID)
		room, name = realtime.CommunityRoom(job.TargetID), realtime.EventCommunityDeleted
	case models.CascadeStudyRoom:
		err = s.deleteStudyRoom(ctx, job.TargetID)
		room, name = realtime.StudyRoomRoom(job.TargetID), realtime.EventRoomDeleted
	default:
		err = fmt.Errorf("unknown cascade kind %q", job.Kind)
	}

	if err != nil {
		log.Error("cascade delete failed", zap.Int("attempt", job.Attempts+1), zap.Error(err))
		if rerr := s.store.CascadeJobs.RecordFailure(context.WithoutCancel(ctx), job.ID, err.Error()); rerr != nil {
			log.Error("failed to record cascade failure", zap.Error(rerr))
		}
		return fmt.Errorf("cascade delete %s %s: %w", job.Kind, job.TargetID, err)
	}

	if err := s.store.CascadeJobs.Delete(ctx, job.ID); err != nil {
		return fmt.Errorf("clear cascade job: %w", err)
	}
	log.Info("cascade delete finished")
	s.pub.publish(ctx, job.RequestedBy, name, room, map[string]any{"id": job.TargetID})
	return nil
}

// RunPending resumes up to limit unfinished jobs, oldest first, and returns
// how many completed.
func (s *CascadeService) RunPending(ctx context.Context, limit int) (int, error) {
	jobs, err := s.store.CascadeJobs.ListPending(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list cascade jobs: %w", err)
	}

	var (
		done int
		errs []error
	)
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.Run(ctx, job); err != nil {
			errs = append(errs, err)
			continue
		}
		done++
	}
	return done, errors.Join(errs...)
}

func (s *CascadeService) deleteCommunity(ctx context.Context, communityID uuid.UUID) error {
	rooms, err := s.store.Rooms.ListByCommunity(ctx, communityID)
	if err != nil {
		return fmt.Errorf("list study rooms: %w", err)
	}
	for _, room := range rooms {
		if err := s.deleteStudyRoom(ctx, room.ID); err != nil {
			return fmt.Errorf("study room %s: %w", room.ID, err)
		}
	}

	return s.step(ctx, "community", func(ctx context.Context) error {
		if _, err := s.store.Posts.DeleteByCommunity(ctx, communityID); err != nil {
			return fmt.Errorf("delete posts: %w", err)
		}
		if _, err := s.store.Notifications.DeleteByCommunity(ctx, communityID); err != nil {
			return fmt.Errorf("delete notifications: %w", err)
		}
		if err := s.store.Communities.Delete(ctx, communityID); err != nil {
			return fmt.Errorf("delete community row: %w", err)
		}
		return nil
	})
}

func (s *CascadeService) deleteStudyRoom(ctx context.Context, roomID uuid.UUID) error {
	return s.step(ctx, "study room", func(ctx context.Context) error {
		// Waits out any write still holding the room.
		if _, err := s.store.Rooms.GetForUpdate(ctx, roomID); err != nil {
			return fmt.Errorf("lock study room: %w", err)
		}
		if _, err := s.store.Messages.DeleteByRoom(ctx, roomID); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if _, err := s.store.Posts.DeleteByRoom(ctx, roomID); err != nil {
			return fmt.Errorf("delete room posts: %w", err)
		}
		if _, err := s.store.Resources.DeleteByRoom(ctx, roomID); err != nil {
			return fmt.Errorf("delete resources: %w", err)
		}
		if err := s.store.Rooms.Delete(ctx, roomID); err != nil {
			return fmt.Errorf("delete room row: %w", err)
		}
		return nil
	})
}

// step runs one unit of the cascade in its own transaction.
func (s *CascadeService) step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if err := s.store.Tx.WithinTx(ctx, fn); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
