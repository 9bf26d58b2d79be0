package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/lalith-99/studybuddy/internal/models"
)

// Conventions shared by every repository:
//
//   - context.Context comes first on every method; calls made with a ctx
//     handed out by Transactor.WithinTx join that transaction.
//   - Lookups return nil, nil when the row does not exist. The caller
//     decides whether that is a 404 or a no-op.
//   - Set mutations (Add*/Remove*) are idempotent and report whether they
//     changed anything, so callers can make side effects conditional on
//     the mutation actually happening.
//   - Delete* methods are idempotent: deleting an absent row is not an error.

// ErrDuplicate is returned when an insert collides with a unique key that
// the caller is expected to handle (for example a taken email).
var ErrDuplicate = errors.New("duplicate key")

// Transactor runs a unit of work atomically.
type Transactor interface {
	// WithinTx runs fn in one transaction. If fn returns an error every
	// write made through the ctx it received is rolled back. Nested calls
	// reuse the outer transaction.
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserRepository handles accounts and profiles.
type UserRepository interface {
	Create(ctx context.Context, email, displayName, passwordHash string, role models.Role) (*models.User, error)

	// GetByID returns the user with JoinedCommunities populated.
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)

	// GetByEmail is used for login; it includes PasswordHash.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	UpdateProfile(ctx context.Context, userID uuid.UUID, upd models.ProfileUpdate) (*models.User, error)
}

// CommunityRepository handles community rows. Returned communities always
// carry their Members and JoinRequests sets.
type CommunityRepository interface {
	// Create inserts the community and makes the creator its first member.
	Create(ctx context.Context, name, description string, createdBy uuid.UUID, isPrivate bool) (*models.Community, error)

	GetByID(ctx context.Context, communityID uuid.UUID) (*models.Community, error)

	// GetForUpdate is GetByID that also locks the community until the
	// surrounding transaction ends. Membership workflow steps call it first
	// so concurrent requests on one community serialize.
	GetForUpdate(ctx context.Context, communityID uuid.UUID) (*models.Community, error)

	// List returns live communities, newest first, optionally filtered by a
	// case-insensitive name substring.
	List(ctx context.Context, nameQuery string) ([]models.Community, error)

	ListByMember(ctx context.Context, userID uuid.UUID) ([]models.Community, error)

	AdjustPostCount(ctx context.Context, communityID uuid.UUID, delta int) error

	// MarkDeleting tombstones the community ahead of a cascade delete.
	MarkDeleting(ctx context.Context, communityID uuid.UUID) error

	// Delete removes the community row and its member and request sets.
	// It fails while child rows (posts, rooms, notifications) still exist.
	Delete(ctx context.Context, communityID uuid.UUID) error
}

// MembershipRepository mutates the member and join-request sets.
type MembershipRepository interface {
	// AddJoinRequest adds userID to the request set unless it is already
	// there or already a member. Returns true only if a row was added.
	AddJoinRequest(ctx context.Context, communityID, userID uuid.UUID) (bool, error)

	RemoveJoinRequest(ctx context.Context, communityID, userID uuid.UUID) (bool, error)

	AddMember(ctx context.Context, communityID, userID uuid.UUID) (bool, error)

	IsMember(ctx context.Context, communityID, userID uuid.UUID) (bool, error)
}

// NotificationRepository handles the notification feed.
type NotificationRepository interface {
	// Create inserts n. Approval and rejection notifications are unique per
	// (RequestID, Type); a duplicate returns the existing row and false.
	Create(ctx context.Context, n *models.Notification) (*models.Notification, bool, error)

	GetByID(ctx context.Context, notificationID uuid.UUID) (*models.Notification, error)

	MarkRead(ctx context.Context, notificationID uuid.UUID) error

	Delete(ctx context.Context, notificationID uuid.UUID) error

	// ListPending returns unread join requests addressed to creatorID as a
	// community creator, newest first.
	ListPending(ctx context.Context, creatorID uuid.UUID) ([]models.Notification, error)

	// ListForRequester returns notifications about userID's own requests:
	// approvals and rejections addressed to them plus the join requests they
	// sent. Newest first.
	ListForRequester(ctx context.Context, userID uuid.UUID) ([]models.Notification, error)

	// ListByRequest returns the notifications resolving one join request.
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]models.Notification, error)

	DeleteByCommunity(ctx context.Context, communityID uuid.UUID) (int64, error)
}

// PostRepository handles community feed posts and study-room discussion posts.
type PostRepository interface {
	Create(ctx context.Context, p *models.Post) (*models.Post, error)
	GetByID(ctx context.Context, postID uuid.UUID) (*models.Post, error)

	// ListByCommunity returns the community feed (posts without a room).
	ListByCommunity(ctx context.Context, communityID uuid.UUID) ([]models.Post, error)
	ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Post, error)

	AddLike(ctx context.Context, postID, userID uuid.UUID) (bool, error)
	RemoveLike(ctx context.Context, postID, userID uuid.UUID) (bool, error)

	Delete(ctx context.Context, postID uuid.UUID) error

	// DeleteByCommunity removes community feed posts; room posts go with
	// their room via DeleteByRoom.
	DeleteByCommunity(ctx context.Context, communityID uuid.UUID) (int64, error)
	DeleteByRoom(ctx context.Context, roomID uuid.UUID) (int64, error)
}

// StudyRoomRepository handles study rooms and their participants.
type StudyRoomRepository interface {
	Create(ctx context.Context, r *models.StudyRoom) (*models.StudyRoom, error)
	GetByID(ctx context.Context, roomID uuid.UUID) (*models.StudyRoom, error)

	// GetForUpdate is GetByID that also locks the room row until the
	// surrounding transaction ends. Writes into a room take this lock so
	// they cannot interleave with its cascade delete.
	GetForUpdate(ctx context.Context, roomID uuid.UUID) (*models.StudyRoom, error)

	// ListByCommunity includes tombstoned rooms.
	ListByCommunity(ctx context.Context, communityID uuid.UUID) ([]models.StudyRoom, error)

	// MarkDeleting tombstones the room ahead of a cascade delete.
	MarkDeleting(ctx context.Context, roomID uuid.UUID) error

	// AddParticipant puts the user in the participant set and upserts the
	// single info entry for that user.
	AddParticipant(ctx context.Context, roomID uuid.UUID, p models.Participant) error

	// RemoveParticipant drops the user from the participant set and marks
	// their info entry as left.
	RemoveParticipant(ctx context.Context, roomID, userID uuid.UUID) error

	// Delete removes the room row and its participants. It fails while
	// messages, posts or resources still reference the room.
	Delete(ctx context.Context, roomID uuid.UUID) error
}

// MessageRepository handles study-room chat.
type MessageRepository interface {
	Create(ctx context.Context, roomID, senderID uuid.UUID, senderName, content string) (*models.Message, error)
	GetByID(ctx context.Context, messageID int64) (*models.Message, error)

	// ListByRoom returns up to limit messages older than before (0 = latest),
	// oldest first.
	ListByRoom(ctx context.Context, roomID uuid.UUID, before int64, limit int) ([]models.Message, error)

	AddLike(ctx context.Context, messageID int64, userID uuid.UUID) (bool, error)
	RemoveLike(ctx context.Context, messageID int64, userID uuid.UUID) (bool, error)

	DeleteByRoom(ctx context.Context, roomID uuid.UUID) (int64, error)
}

// ResourceRepository handles study-room resources.
type ResourceRepository interface {
	Create(ctx context.Context, r *models.Resource) (*models.Resource, error)
	GetByID(ctx context.Context, resourceID uuid.UUID) (*models.Resource, error)
	ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Resource, error)
	Delete(ctx context.Context, resourceID uuid.UUID) error
	DeleteByRoom(ctx context.Context, roomID uuid.UUID) (int64, error)
}

// CascadeJobRepository is the log of deletions still in flight.
type CascadeJobRepository interface {
	// Create records a job. Creating a job for a target that already has
	// one returns the existing job.
	Create(ctx context.Context, kind string, targetID, requestedBy uuid.UUID) (*models.CascadeJob, error)

	// ListPending returns the oldest jobs first. A limit of 0 returns all.
	ListPending(ctx context.Context, limit int) ([]models.CascadeJob, error)

	RecordFailure(ctx context.Context, jobID uuid.UUID, reason string) error

	Delete(ctx context.Context, jobID uuid.UUID) error
}

// Store bundles every repository over one backing store.
type Store struct {
	Tx            Transactor
	Users         UserRepository
	Communities   CommunityRepository
	Memberships   MembershipRepository
	Notifications NotificationRepository
	Posts         PostRepository
	Rooms         StudyRoomRepository
	Messages      MessageRepository
	Resources     ResourceRepository
	CascadeJobs   CascadeJobRepository
}
