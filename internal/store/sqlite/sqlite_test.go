package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/casthub/streamdash/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	st, err := New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func seedUser(t *testing.T, st *SQLiteStore, username string) *store.User {
	t.Helper()

	user, err := st.CreateUser(context.Background(), username, "hash", username)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func TestUserRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	created := seedUser(t, st, "alice")
	if created.ID == 0 || created.CreatedAt.IsZero() {
		t.Fatalf("unexpected created user: %+v", created)
	}

	byName, err := st.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("get by username: %v", err)
	}
	if byName.ID != created.ID || byName.PasswordHash != "hash" {
		t.Fatalf("unexpected user: %+v", byName)
	}

	if _, err := st.GetUserByUsername(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := st.GetUserByID(ctx, 9999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPlatformConnectionPatch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, st, "alice")

	conn, err := st.CreatePlatformConnection(ctx, &store.PlatformConnection{
		UserID:           user.ID,
		Platform:         "twitch",
		PlatformUsername: "alice_tv",
		FollowerCount:    10,
	})
	if err != nil {
		t.Fatalf("create connection: %v", err)
	}

	count := 11
	updated, err := st.UpdatePlatformConnection(ctx, conn.ID, store.PlatformConnectionPatch{
		FollowerCount: &count,
	})
	if err != nil {
		t.Fatalf("update connection: %v", err)
	}
	if updated.FollowerCount != 11 {
		t.Fatalf("expected follower count 11, got %d", updated.FollowerCount)
	}
	// Untouched fields survive the patch.
	if updated.PlatformUsername != "alice_tv" || updated.SubscriberCount != 0 {
		t.Fatalf("unexpected connection after patch: %+v", updated)
	}

	if _, err := st.UpdatePlatformConnection(ctx, 9999, store.PlatformConnectionPatch{}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListPlatformConnectionsScopedToUser(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	for _, conn := range []*store.PlatformConnection{
		{UserID: alice.ID, Platform: "twitch"},
		{UserID: alice.ID, Platform: "youtube"},
		{UserID: bob.ID, Platform: "twitch"},
	} {
		if _, err := st.CreatePlatformConnection(ctx, conn); err != nil {
			t.Fatalf("create connection: %v", err)
		}
	}

	conns, err := st.ListPlatformConnections(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list connections: %v", err)
	}
	if len(conns) != 2 {
		t.Fatalf("expected 2 connections, got %d", len(conns))
	}
}

func TestChatMessageBadgesRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, st, "alice")

	stored, err := st.CreateChatMessage(ctx, &store.ChatMessage{
		UserID:            user.ID,
		Platform:          "twitch",
		SenderUsername:    "bob",
		SenderDisplayName: "Bob",
		Message:           "hi",
		Timestamp:         time.Now().UTC(),
		UserBadges:        map[string]string{"moderator": "1", "subscriber": "12"},
	})
	if err != nil {
		t.Fatalf("create chat message: %v", err)
	}
	if stored.ID == 0 {
		t.Fatal("expected a row id")
	}

	msgs, err := st.ListChatMessages(ctx, user.ID, 10, "")
	if err != nil {
		t.Fatalf("list chat messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].UserBadges["moderator"] != "1" || msgs[0].UserBadges["subscriber"] != "12" {
		t.Fatalf("badges lost in round trip: %v", msgs[0].UserBadges)
	}
}

func TestListChatMessagesFilterAndLimit(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, st, "alice")

	base := time.Now().UTC()
	for i, platform := range []string{"twitch", "youtube", "twitch"} {
		if _, err := st.CreateChatMessage(ctx, &store.ChatMessage{
			UserID:         user.ID,
			Platform:       platform,
			SenderUsername: "bob",
			Message:        "hi",
			Timestamp:      base.Add(time.Duration(i) * time.Second),
			UserBadges:     map[string]string{},
		}); err != nil {
			t.Fatalf("create chat message: %v", err)
		}
	}

	msgs, err := st.ListChatMessages(ctx, user.ID, 0, "twitch")
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 twitch messages, got %d", len(msgs))
	}

	msgs, err = st.ListChatMessages(ctx, user.ID, 1, "")
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	// Newest first.
	if !msgs[0].Timestamp.After(base) {
		t.Fatalf("expected newest message first, got timestamp %v", msgs[0].Timestamp)
	}
}

func TestSubscriberRenewsAtNullable(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, st, "alice")

	conn, err := st.CreatePlatformConnection(ctx, &store.PlatformConnection{UserID: user.ID, Platform: "twitch"})
	if err != nil {
		t.Fatalf("create connection: %v", err)
	}

	renews := time.Now().UTC().Add(30 * 24 * time.Hour).Truncate(time.Second)
	if _, err := st.CreateSubscriber(ctx, &store.Subscriber{
		UserID:               user.ID,
		PlatformConnectionID: conn.ID,
		SubscriberUsername:   "patron",
		Tier:                 "2",
		SubscribedAt:         time.Now().UTC(),
		RenewsAt:             &renews,
		IsGift:               true,
	}); err != nil {
		t.Fatalf("create subscriber: %v", err)
	}
	if _, err := st.CreateSubscriber(ctx, &store.Subscriber{
		UserID:               user.ID,
		PlatformConnectionID: conn.ID,
		SubscriberUsername:   "other",
		SubscribedAt:         time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create subscriber: %v", err)
	}

	subs, err := st.ListSubscribers(ctx, user.ID, 0)
	if err != nil {
		t.Fatalf("list subscribers: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 subscribers, got %d", len(subs))
	}

	byName := map[string]*store.Subscriber{}
	for _, sub := range subs {
		byName[sub.SubscriberUsername] = sub
	}
	patron := byName["patron"]
	if patron == nil || patron.RenewsAt == nil || !patron.RenewsAt.Equal(renews) {
		t.Fatalf("expected renews_at round trip, got %+v", patron)
	}
	if !patron.IsGift || patron.Tier != "2" {
		t.Fatalf("unexpected subscriber: %+v", patron)
	}
	if other := byName["other"]; other == nil || other.RenewsAt != nil {
		t.Fatalf("expected nil renews_at, got %+v", other)
	}
}

func TestFollowersScopedToUser(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	aliceConn, err := st.CreatePlatformConnection(ctx, &store.PlatformConnection{UserID: alice.ID, Platform: "twitch"})
	if err != nil {
		t.Fatalf("create connection: %v", err)
	}
	bobConn, err := st.CreatePlatformConnection(ctx, &store.PlatformConnection{UserID: bob.ID, Platform: "twitch"})
	if err != nil {
		t.Fatalf("create connection: %v", err)
	}

	now := time.Now().UTC()
	for _, f := range []*store.Follower{
		{UserID: alice.ID, PlatformConnectionID: aliceConn.ID, FollowerUsername: "fan1", FollowedAt: now},
		{UserID: bob.ID, PlatformConnectionID: bobConn.ID, FollowerUsername: "fan2", FollowedAt: now},
	} {
		if _, err := st.CreateFollower(ctx, f); err != nil {
			t.Fatalf("create follower: %v", err)
		}
	}

	followers, err := st.ListFollowers(ctx, alice.ID, 0)
	if err != nil {
		t.Fatalf("list followers: %v", err)
	}
	if len(followers) != 1 || followers[0].FollowerUsername != "fan1" {
		t.Fatalf("unexpected followers: %+v", followers)
	}
}

func TestStreamSessionLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, st, "alice")

	if _, err := st.GetOpenStreamSession(ctx, user.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound with no open stream, got %v", err)
	}

	started, err := st.CreateStreamSession(ctx, &store.StreamSession{
		UserID:    user.ID,
		Title:     "Speedrun",
		Platform:  "twitch",
		StartTime: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create stream session: %v", err)
	}
	if started.EndTime != nil {
		t.Fatalf("new session must be open, got %+v", started)
	}

	open, err := st.GetOpenStreamSession(ctx, user.ID)
	if err != nil {
		t.Fatalf("get open stream: %v", err)
	}
	if open.ID != started.ID {
		t.Fatalf("expected open stream %d, got %d", started.ID, open.ID)
	}

	peak := 250
	updated, err := st.UpdateStreamSession(ctx, open.ID, store.StreamSessionPatch{PeakViewers: &peak})
	if err != nil {
		t.Fatalf("update stats: %v", err)
	}
	if updated.PeakViewers != 250 || updated.Title != "Speedrun" {
		t.Fatalf("unexpected session after patch: %+v", updated)
	}

	end := time.Now().UTC()
	ended, err := st.UpdateStreamSession(ctx, open.ID, store.StreamSessionPatch{EndTime: &end})
	if err != nil {
		t.Fatalf("end stream: %v", err)
	}
	if ended.EndTime == nil {
		t.Fatalf("expected end time set, got %+v", ended)
	}

	if _, err := st.GetOpenStreamSession(ctx, user.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after ending, got %v", err)
	}

	sessions, err := st.ListStreamSessions(ctx, user.ID, 0)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
}

func TestOpenStreamIsolatedPerUser(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	if _, err := st.CreateStreamSession(ctx, &store.StreamSession{
		UserID:    alice.ID,
		StartTime: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create stream session: %v", err)
	}

	if _, err := st.GetOpenStreamSession(ctx, bob.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other account, got %v", err)
	}
}
