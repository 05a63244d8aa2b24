// Package sqlite implements store.Store on a single SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/casthub/streamdash/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	display_name  TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS platform_connections (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id           INTEGER NOT NULL REFERENCES users(id),
	platform          TEXT NOT NULL,
	platform_user_id  TEXT NOT NULL DEFAULT '',
	platform_username TEXT NOT NULL DEFAULT '',
	is_primary        BOOLEAN NOT NULL DEFAULT 0,
	follower_count    INTEGER NOT NULL DEFAULT 0,
	subscriber_count  INTEGER NOT NULL DEFAULT 0,
	created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id             INTEGER NOT NULL REFERENCES users(id),
	platform            TEXT NOT NULL,
	sender_username     TEXT NOT NULL,
	sender_display_name TEXT NOT NULL,
	message             TEXT NOT NULL,
	timestamp           DATETIME NOT NULL,
	user_badges         TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS followers (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id                INTEGER NOT NULL REFERENCES users(id),
	platform_connection_id INTEGER NOT NULL REFERENCES platform_connections(id),
	follower_username      TEXT NOT NULL,
	follower_display_name  TEXT NOT NULL DEFAULT '',
	followed_at            DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS subscribers (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id                 INTEGER NOT NULL REFERENCES users(id),
	platform_connection_id  INTEGER NOT NULL REFERENCES platform_connections(id),
	subscriber_username     TEXT NOT NULL,
	subscriber_display_name TEXT NOT NULL DEFAULT '',
	tier                    TEXT NOT NULL DEFAULT '',
	subscribed_at           DATETIME NOT NULL,
	renews_at               DATETIME,
	is_gift                 BOOLEAN NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS stream_sessions (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id         INTEGER NOT NULL REFERENCES users(id),
	title           TEXT NOT NULL DEFAULT '',
	platform        TEXT NOT NULL DEFAULT '',
	start_time      DATETIME NOT NULL,
	end_time        DATETIME,
	peak_viewers    INTEGER NOT NULL DEFAULT 0,
	average_viewers INTEGER NOT NULL DEFAULT 0,
	new_followers   INTEGER NOT NULL DEFAULT 0,
	new_subscribers INTEGER NOT NULL DEFAULT 0,
	chat_messages   INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_user ON chat_messages(user_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_followers_user ON followers(user_id, followed_at DESC);
CREATE INDEX IF NOT EXISTS idx_subscribers_user ON subscribers(user_id, subscribed_at DESC);
CREATE INDEX IF NOT EXISTS idx_stream_sessions_open ON stream_sessions(user_id) WHERE end_time IS NULL;
`

// New opens (or creates) the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup opens the database and runs a setup function before use.
// Tests use it with ":memory:" and a custom schema or seed data.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates an account with a pre-hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash, displayName string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash, display_name)
		VALUES (?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash, displayName)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves an account by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, display_name, created_at
		FROM users
		WHERE id = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByUsername retrieves an account by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, display_name, created_at
		FROM users
		WHERE username = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, username))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.DisplayName,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// ==== PlatformStore implementation ====

// CreatePlatformConnection links a platform account to a user.
func (s *SQLiteStore) CreatePlatformConnection(ctx context.Context, conn *store.PlatformConnection) (*store.PlatformConnection, error) {
	query := `
		INSERT INTO platform_connections
			(user_id, platform, platform_user_id, platform_username, is_primary, follower_count, subscriber_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		conn.UserID,
		conn.Platform,
		conn.PlatformUserID,
		conn.PlatformUsername,
		conn.IsPrimary,
		conn.FollowerCount,
		conn.SubscriberCount,
	)
	if err != nil {
		return nil, fmt.Errorf("insert platform connection: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.getPlatformConnection(ctx, id)
}

// ListPlatformConnections returns all platform connections for an account.
func (s *SQLiteStore) ListPlatformConnections(ctx context.Context, userID int64) ([]*store.PlatformConnection, error) {
	query := `
		SELECT id, user_id, platform, platform_user_id, platform_username,
		       is_primary, follower_count, subscriber_count, created_at
		FROM platform_connections
		WHERE user_id = ?
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query platform connections: %w", err)
	}
	defer rows.Close()

	var conns []*store.PlatformConnection
	for rows.Next() {
		var conn store.PlatformConnection
		if err := rows.Scan(
			&conn.ID,
			&conn.UserID,
			&conn.Platform,
			&conn.PlatformUserID,
			&conn.PlatformUsername,
			&conn.IsPrimary,
			&conn.FollowerCount,
			&conn.SubscriberCount,
			&conn.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan platform connection: %w", err)
		}
		conns = append(conns, &conn)
	}
	return conns, rows.Err()
}

// UpdatePlatformConnection applies a partial update to a connection.
func (s *SQLiteStore) UpdatePlatformConnection(ctx context.Context, id int64, patch store.PlatformConnectionPatch) (*store.PlatformConnection, error) {
	var sets []string
	var args []any

	if patch.PlatformUsername != nil {
		sets = append(sets, "platform_username = ?")
		args = append(args, *patch.PlatformUsername)
	}
	if patch.IsPrimary != nil {
		sets = append(sets, "is_primary = ?")
		args = append(args, *patch.IsPrimary)
	}
	if patch.FollowerCount != nil {
		sets = append(sets, "follower_count = ?")
		args = append(args, *patch.FollowerCount)
	}
	if patch.SubscriberCount != nil {
		sets = append(sets, "subscriber_count = ?")
		args = append(args, *patch.SubscriberCount)
	}

	if len(sets) > 0 {
		args = append(args, id)
		query := "UPDATE platform_connections SET " + strings.Join(sets, ", ") + " WHERE id = ?"
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("update platform connection: %w", err)
		}
	}

	return s.getPlatformConnection(ctx, id)
}

func (s *SQLiteStore) getPlatformConnection(ctx context.Context, id int64) (*store.PlatformConnection, error) {
	query := `
		SELECT id, user_id, platform, platform_user_id, platform_username,
		       is_primary, follower_count, subscriber_count, created_at
		FROM platform_connections
		WHERE id = ?
	`
	var conn store.PlatformConnection
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&conn.ID,
		&conn.UserID,
		&conn.Platform,
		&conn.PlatformUserID,
		&conn.PlatformUsername,
		&conn.IsPrimary,
		&conn.FollowerCount,
		&conn.SubscriberCount,
		&conn.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query platform connection: %w", err)
	}
	return &conn, nil
}

// ==== ChatStore implementation ====

// CreateChatMessage persists a chat message and returns the stored record.
func (s *SQLiteStore) CreateChatMessage(ctx context.Context, msg *store.ChatMessage) (*store.ChatMessage, error) {
	badges, err := json.Marshal(msg.UserBadges)
	if err != nil {
		return nil, fmt.Errorf("marshal badges: %w", err)
	}

	query := `
		INSERT INTO chat_messages
			(user_id, platform, sender_username, sender_display_name, message, timestamp, user_badges)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		msg.UserID,
		msg.Platform,
		msg.SenderUsername,
		msg.SenderDisplayName,
		msg.Message,
		msg.Timestamp,
		string(badges),
	)
	if err != nil {
		return nil, fmt.Errorf("insert chat message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	stored := *msg
	stored.ID = id
	return &stored, nil
}

// ListChatMessages returns recent messages for an account, newest first.
func (s *SQLiteStore) ListChatMessages(ctx context.Context, userID int64, limit int, platform string) ([]*store.ChatMessage, error) {
	query := `
		SELECT id, user_id, platform, sender_username, sender_display_name, message, timestamp, user_badges
		FROM chat_messages
		WHERE user_id = ?
	`
	args := []any{userID}
	if platform != "" {
		query += " AND platform = ?"
		args = append(args, platform)
	}
	query += " ORDER BY timestamp DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer rows.Close()

	var msgs []*store.ChatMessage
	for rows.Next() {
		var msg store.ChatMessage
		var badges string
		if err := rows.Scan(
			&msg.ID,
			&msg.UserID,
			&msg.Platform,
			&msg.SenderUsername,
			&msg.SenderDisplayName,
			&msg.Message,
			&msg.Timestamp,
			&badges,
		); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		if err := json.Unmarshal([]byte(badges), &msg.UserBadges); err != nil {
			return nil, fmt.Errorf("unmarshal badges: %w", err)
		}
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}

// ==== AudienceStore implementation ====

// CreateFollower records a new follower.
func (s *SQLiteStore) CreateFollower(ctx context.Context, f *store.Follower) (*store.Follower, error) {
	query := `
		INSERT INTO followers
			(user_id, platform_connection_id, follower_username, follower_display_name, followed_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		f.UserID,
		f.PlatformConnectionID,
		f.FollowerUsername,
		f.FollowerDisplayName,
		f.FollowedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert follower: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	stored := *f
	stored.ID = id
	return &stored, nil
}

// ListFollowers returns recent followers for an account, newest first.
func (s *SQLiteStore) ListFollowers(ctx context.Context, userID int64, limit int) ([]*store.Follower, error) {
	query := `
		SELECT id, user_id, platform_connection_id, follower_username, follower_display_name, followed_at
		FROM followers
		WHERE user_id = ?
		ORDER BY followed_at DESC, id DESC
	`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query followers: %w", err)
	}
	defer rows.Close()

	var followers []*store.Follower
	for rows.Next() {
		var f store.Follower
		if err := rows.Scan(
			&f.ID,
			&f.UserID,
			&f.PlatformConnectionID,
			&f.FollowerUsername,
			&f.FollowerDisplayName,
			&f.FollowedAt,
		); err != nil {
			return nil, fmt.Errorf("scan follower: %w", err)
		}
		followers = append(followers, &f)
	}
	return followers, rows.Err()
}

// CreateSubscriber records a new subscriber.
func (s *SQLiteStore) CreateSubscriber(ctx context.Context, sub *store.Subscriber) (*store.Subscriber, error) {
	query := `
		INSERT INTO subscribers
			(user_id, platform_connection_id, subscriber_username, subscriber_display_name, tier, subscribed_at, renews_at, is_gift)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		sub.UserID,
		sub.PlatformConnectionID,
		sub.SubscriberUsername,
		sub.SubscriberDisplayName,
		sub.Tier,
		sub.SubscribedAt,
		nullableTime(sub.RenewsAt),
		sub.IsGift,
	)
	if err != nil {
		return nil, fmt.Errorf("insert subscriber: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	stored := *sub
	stored.ID = id
	return &stored, nil
}

// ListSubscribers returns recent subscribers for an account, newest first.
func (s *SQLiteStore) ListSubscribers(ctx context.Context, userID int64, limit int) ([]*store.Subscriber, error) {
	query := `
		SELECT id, user_id, platform_connection_id, subscriber_username, subscriber_display_name,
		       tier, subscribed_at, renews_at, is_gift
		FROM subscribers
		WHERE user_id = ?
		ORDER BY subscribed_at DESC, id DESC
	`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer rows.Close()

	var subs []*store.Subscriber
	for rows.Next() {
		var sub store.Subscriber
		var renewsAt sql.NullTime
		if err := rows.Scan(
			&sub.ID,
			&sub.UserID,
			&sub.PlatformConnectionID,
			&sub.SubscriberUsername,
			&sub.SubscriberDisplayName,
			&sub.Tier,
			&sub.SubscribedAt,
			&renewsAt,
			&sub.IsGift,
		); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		if renewsAt.Valid {
			t := renewsAt.Time
			sub.RenewsAt = &t
		}
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}

// ==== StreamStore implementation ====

// GetOpenStreamSession returns the account's stream with no end time.
func (s *SQLiteStore) GetOpenStreamSession(ctx context.Context, userID int64) (*store.StreamSession, error) {
	query := `
		SELECT id, user_id, title, platform, start_time, end_time,
		       peak_viewers, average_viewers, new_followers, new_subscribers, chat_messages
		FROM stream_sessions
		WHERE user_id = ? AND end_time IS NULL
		ORDER BY start_time DESC
		LIMIT 1
	`
	return s.scanStreamSession(s.db.QueryRowContext(ctx, query, userID))
}

// CreateStreamSession opens a new stream session.
func (s *SQLiteStore) CreateStreamSession(ctx context.Context, sess *store.StreamSession) (*store.StreamSession, error) {
	query := `
		INSERT INTO stream_sessions
			(user_id, title, platform, start_time, peak_viewers, average_viewers, new_followers, new_subscribers, chat_messages)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		sess.UserID,
		sess.Title,
		sess.Platform,
		sess.StartTime,
		sess.PeakViewers,
		sess.AverageViewers,
		sess.NewFollowers,
		sess.NewSubscribers,
		sess.ChatMessages,
	)
	if err != nil {
		return nil, fmt.Errorf("insert stream session: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.getStreamSession(ctx, id)
}

// UpdateStreamSession applies a partial update to a stream session.
func (s *SQLiteStore) UpdateStreamSession(ctx context.Context, id int64, patch store.StreamSessionPatch) (*store.StreamSession, error) {
	var sets []string
	var args []any

	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.EndTime != nil {
		sets = append(sets, "end_time = ?")
		args = append(args, *patch.EndTime)
	}
	if patch.PeakViewers != nil {
		sets = append(sets, "peak_viewers = ?")
		args = append(args, *patch.PeakViewers)
	}
	if patch.AverageViewers != nil {
		sets = append(sets, "average_viewers = ?")
		args = append(args, *patch.AverageViewers)
	}
	if patch.NewFollowers != nil {
		sets = append(sets, "new_followers = ?")
		args = append(args, *patch.NewFollowers)
	}
	if patch.NewSubscribers != nil {
		sets = append(sets, "new_subscribers = ?")
		args = append(args, *patch.NewSubscribers)
	}
	if patch.ChatMessages != nil {
		sets = append(sets, "chat_messages = ?")
		args = append(args, *patch.ChatMessages)
	}

	if len(sets) > 0 {
		args = append(args, id)
		query := "UPDATE stream_sessions SET " + strings.Join(sets, ", ") + " WHERE id = ?"
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("update stream session: %w", err)
		}
	}

	return s.getStreamSession(ctx, id)
}

// ListStreamSessions returns recent stream sessions, newest first.
func (s *SQLiteStore) ListStreamSessions(ctx context.Context, userID int64, limit int) ([]*store.StreamSession, error) {
	query := `
		SELECT id, user_id, title, platform, start_time, end_time,
		       peak_viewers, average_viewers, new_followers, new_subscribers, chat_messages
		FROM stream_sessions
		WHERE user_id = ?
		ORDER BY start_time DESC, id DESC
	`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stream sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*store.StreamSession
	for rows.Next() {
		sess, err := scanStreamSessionRow(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) getStreamSession(ctx context.Context, id int64) (*store.StreamSession, error) {
	query := `
		SELECT id, user_id, title, platform, start_time, end_time,
		       peak_viewers, average_viewers, new_followers, new_subscribers, chat_messages
		FROM stream_sessions
		WHERE id = ?
	`
	return s.scanStreamSession(s.db.QueryRowContext(ctx, query, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanStreamSession(row *sql.Row) (*store.StreamSession, error) {
	sess, err := scanStreamSessionRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

func scanStreamSessionRow(row rowScanner) (*store.StreamSession, error) {
	var sess store.StreamSession
	var endTime sql.NullTime
	err := row.Scan(
		&sess.ID,
		&sess.UserID,
		&sess.Title,
		&sess.Platform,
		&sess.StartTime,
		&endTime,
		&sess.PeakViewers,
		&sess.AverageViewers,
		&sess.NewFollowers,
		&sess.NewSubscribers,
		&sess.ChatMessages,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan stream session: %w", err)
	}
	if endTime.Valid {
		t := endTime.Time
		sess.EndTime = &t
	}
	return &sess, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
