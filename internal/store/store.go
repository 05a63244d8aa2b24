package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// User represents a dashboard account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	DisplayName  string
	CreatedAt    time.Time
}

// PlatformConnection links an account to a streaming platform.
type PlatformConnection struct {
	ID               int64
	UserID           int64
	Platform         string
	PlatformUserID   string
	PlatformUsername string
	IsPrimary        bool
	FollowerCount    int
	SubscriberCount  int
	CreatedAt        time.Time
}

// PlatformConnectionPatch carries partial updates for a platform connection.
// Nil fields are left untouched.
type PlatformConnectionPatch struct {
	PlatformUsername *string
	IsPrimary        *bool
	FollowerCount    *int
	SubscriberCount  *int
}

// ChatMessage is a chat line captured from a connected platform.
type ChatMessage struct {
	ID                int64
	UserID            int64
	Platform          string
	SenderUsername    string
	SenderDisplayName string
	Message           string
	Timestamp         time.Time
	UserBadges        map[string]string
}

// Follower records a follow event on a platform connection.
type Follower struct {
	ID                   int64
	UserID               int64
	PlatformConnectionID int64
	FollowerUsername     string
	FollowerDisplayName  string
	FollowedAt           time.Time
}

// Subscriber records a subscription on a platform connection.
type Subscriber struct {
	ID                    int64
	UserID                int64
	PlatformConnectionID  int64
	SubscriberUsername    string
	SubscriberDisplayName string
	Tier                  string
	SubscribedAt          time.Time
	RenewsAt              *time.Time
	IsGift                bool
}

// StreamSession is one broadcast: opened when the creator goes live and
// closed when they go offline. EndTime is nil while the stream is open.
type StreamSession struct {
	ID             int64
	UserID         int64
	Title          string
	Platform       string
	StartTime      time.Time
	EndTime        *time.Time
	PeakViewers    int
	AverageViewers int
	NewFollowers   int
	NewSubscribers int
	ChatMessages   int
}

// StreamSessionPatch carries partial updates for a stream session.
type StreamSessionPatch struct {
	Title          *string
	EndTime        *time.Time
	PeakViewers    *int
	AverageViewers *int
	NewFollowers   *int
	NewSubscribers *int
	ChatMessages   *int
}

// UserStore handles account persistence.
type UserStore interface {
	// CreateUser creates an account with a pre-hashed password.
	CreateUser(ctx context.Context, username, passwordHash, displayName string) (*User, error)

	// GetUserByID retrieves an account by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves an account by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// PlatformStore handles platform connection persistence.
type PlatformStore interface {
	// CreatePlatformConnection links a platform account to a user.
	CreatePlatformConnection(ctx context.Context, conn *PlatformConnection) (*PlatformConnection, error)

	// ListPlatformConnections returns all platform connections for an account.
	ListPlatformConnections(ctx context.Context, userID int64) ([]*PlatformConnection, error)

	// UpdatePlatformConnection applies a partial update to a connection.
	UpdatePlatformConnection(ctx context.Context, id int64, patch PlatformConnectionPatch) (*PlatformConnection, error)
}

// ChatStore handles chat message persistence.
type ChatStore interface {
	// CreateChatMessage persists a chat message and returns the stored record.
	CreateChatMessage(ctx context.Context, msg *ChatMessage) (*ChatMessage, error)

	// ListChatMessages returns recent messages for an account, newest first.
	// An empty platform matches all platforms. limit <= 0 means no limit.
	ListChatMessages(ctx context.Context, userID int64, limit int, platform string) ([]*ChatMessage, error)
}

// AudienceStore handles follower and subscriber persistence.
type AudienceStore interface {
	// CreateFollower records a new follower.
	CreateFollower(ctx context.Context, f *Follower) (*Follower, error)

	// ListFollowers returns recent followers for an account, newest first.
	ListFollowers(ctx context.Context, userID int64, limit int) ([]*Follower, error)

	// CreateSubscriber records a new subscriber.
	CreateSubscriber(ctx context.Context, s *Subscriber) (*Subscriber, error)

	// ListSubscribers returns recent subscribers for an account, newest first.
	ListSubscribers(ctx context.Context, userID int64, limit int) ([]*Subscriber, error)
}

// StreamStore handles stream session persistence.
type StreamStore interface {
	// GetOpenStreamSession returns the account's stream with no end time,
	// or ErrNotFound if the account is not live.
	GetOpenStreamSession(ctx context.Context, userID int64) (*StreamSession, error)

	// CreateStreamSession opens a new stream session.
	CreateStreamSession(ctx context.Context, s *StreamSession) (*StreamSession, error)

	// UpdateStreamSession applies a partial update to a stream session.
	UpdateStreamSession(ctx context.Context, id int64, patch StreamSessionPatch) (*StreamSession, error)

	// ListStreamSessions returns recent stream sessions, newest first.
	ListStreamSessions(ctx context.Context, userID int64, limit int) ([]*StreamSession, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	PlatformStore
	ChatStore
	AudienceStore
	StreamStore

	// Close closes the underlying database connection.
	Close() error
}
