package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the coarse account role. Only "student" is assigned at signup;
// "admin" exists for operator accounts created out of band.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// User is an authenticated account.
//
// JoinedCommunities is not a column: it is derived from community_members
// when the user is loaded, so it can never drift from the membership rows.
type User struct {
	ID                uuid.UUID   `json:"id"`
	Email             string      `json:"email"`
	DisplayName       string      `json:"display_name"`
	Role              Role        `json:"role"`
	Bio               string      `json:"bio"`
	Location          string      `json:"location"`
	PasswordHash      string      `json:"-"`
	JoinedCommunities []uuid.UUID `json:"joined_communities"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// ProfileUpdate carries the editable profile fields. Nil means "leave as is".
type ProfileUpdate struct {
	DisplayName *string
	Bio         *string
	Location    *string
}

// Community is a group users can request to join.
//
// Members and JoinRequests are sets. A user ID is in at most one of them.
// Deleting is the tombstone set while a cascade delete is in flight; a
// tombstoned community accepts no new writes.
type Community struct {
	ID           uuid.UUID   `json:"id"`
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	CreatedBy    uuid.UUID   `json:"created_by"`
	Members      []uuid.UUID `json:"members"`
	JoinRequests []uuid.UUID `json:"join_requests"`
	PostCount    int         `json:"post_count"`
	IsPrivate    bool        `json:"is_private"`
	Deleting     bool        `json:"-"`
	CreatedAt    time.Time   `json:"created_at"`
}

// HasMember reports whether userID is in the member set.
func (c *Community) HasMember(userID uuid.UUID) bool {
	return ContainsID(c.Members, userID)
}

// HasJoinRequest reports whether userID has a pending request.
func (c *Community) HasJoinRequest(userID uuid.UUID) bool {
	return ContainsID(c.JoinRequests, userID)
}

// MembershipState is where a (user, community) pair sits in the join workflow.
type MembershipState string

const (
	StateNone    MembershipState = "NONE"
	StatePending MembershipState = "PENDING"
	StateMember  MembershipState = "MEMBER"
)

// StateOf derives the workflow state of userID from the community sets.
func (c *Community) StateOf(userID uuid.UUID) MembershipState {
	switch {
	case c.HasMember(userID):
		return StateMember
	case c.HasJoinRequest(userID):
		return StatePending
	default:
		return StateNone
	}
}

type NotificationType string

const (
	NotificationJoinRequest NotificationType = "join_request"
	NotificationApproval    NotificationType = "approval"
	NotificationRejection   NotificationType = "rejection"
)

// Notification is a message addressed to UserID.
//
// For join_request notifications UserID and CommunityCreatorID are both the
// community creator and SenderID is the requester. Approval and rejection
// notifications are addressed to the requester and carry RequestID, the ID
// of the join_request notification they resolve.
type Notification struct {
	ID                 uuid.UUID        `json:"id"`
	UserID             uuid.UUID        `json:"user_id"`
	SenderID           uuid.UUID        `json:"sender_id"`
	CommunityID        uuid.UUID        `json:"community_id"`
	CommunityCreatorID uuid.UUID        `json:"community_creator_id"`
	RequestID          *uuid.UUID       `json:"request_id,omitempty"`
	Type               NotificationType `json:"type"`
	Message            string           `json:"message"`
	Read               bool             `json:"read"`
	Timestamp          time.Time        `json:"timestamp"`
}

// Participant is the display entry for someone who has entered a study room.
type Participant struct {
	UserID      uuid.UUID `json:"id"`
	DisplayName string    `json:"name"`
	Status      string    `json:"status"`
	JoinedAt    time.Time `json:"joined_at"`
}

const (
	ParticipantActive = "active"
	ParticipantLeft   = "left"
)

// StudyRoom lives under a community. Participants is the set of users
// currently in the room; ParticipantInfo keeps one entry per user who has
// ever entered, including those who left.
type StudyRoom struct {
	ID              uuid.UUID     `json:"id"`
	CommunityID     uuid.UUID     `json:"community_id"`
	Name            string        `json:"name"`
	Description     string        `json:"description"`
	CreatedBy       uuid.UUID     `json:"created_by"`
	CreatorName     string        `json:"creator_name"`
	IsActive        bool          `json:"is_active"`
	Participants    []uuid.UUID   `json:"participants"`
	ParticipantInfo []Participant `json:"participants_list"`
	Deleting        bool          `json:"-"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Post is a feed entry. RoomID is nil for community feed posts and set for
// study-room discussion posts.
type Post struct {
	ID          uuid.UUID   `json:"id"`
	CommunityID uuid.UUID   `json:"community_id"`
	RoomID      *uuid.UUID  `json:"room_id,omitempty"`
	AuthorID    uuid.UUID   `json:"author_id"`
	AuthorName  string      `json:"author_name"`
	Content     string      `json:"content"`
	LikedBy     []uuid.UUID `json:"liked_by"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Message is a study-room chat line. IDs come from a bigserial so they
// double as a pagination cursor.
type Message struct {
	ID         int64       `json:"id"`
	RoomID     uuid.UUID   `json:"room_id"`
	SenderID   uuid.UUID   `json:"sender_id"`
	SenderName string      `json:"sender_name"`
	Content    string      `json:"content"`
	Likes      []uuid.UUID `json:"likes"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Resource is a shared link or file reference in a study room.
type Resource struct {
	ID          uuid.UUID `json:"id"`
	RoomID      uuid.UUID `json:"room_id"`
	AuthorID    uuid.UUID `json:"author_id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// CascadeJob records a parent deletion that has started but not finished.
type CascadeJob struct {
	ID          uuid.UUID `json:"id"`
	Kind        string    `json:"kind"`
	TargetID    uuid.UUID `json:"target_id"`
	RequestedBy uuid.UUID `json:"requested_by"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	CascadeCommunity = "community"
	CascadeStudyRoom = "study_room"
)

// ContainsID reports whether id is in ids.
func ContainsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
