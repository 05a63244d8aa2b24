package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/casthub/streamdash/internal/auth"
	"github.com/casthub/streamdash/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed while waiting for kind %v", kind)
			}
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustNoEvent(t *testing.T, ch <-chan *Event) {
	t.Helper()

	select {
	case ev, ok := <-ch:
		if ok {
			t.Fatalf("expected no event, got kind %v", ev.Kind)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

// fakeVerifier resolves credentials from a fixed table.
type fakeVerifier struct {
	users map[string]*store.User // username -> user, password is always "hunter22"
}

func (f *fakeVerifier) VerifyCredentials(_ context.Context, username, password string) (*store.User, error) {
	user, ok := f.users[username]
	if !ok || password != "hunter22" {
		return nil, auth.ErrInvalidCredentials
	}
	return user, nil
}

// fakeStore is an in-memory store.Store with injectable failures.
type fakeStore struct {
	mu sync.Mutex

	chatErr   error
	streamErr error

	nextID      int64
	chats       []*store.ChatMessage
	conns       []*store.PlatformConnection
	followers   []*store.Follower
	subscribers []*store.Subscriber
	streams     []*store.StreamSession
}

func newFakeStore() *fakeStore {
	return &fakeStore{}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) CreateUser(context.Context, string, string, string) (*store.User, error) {
	return nil, store.ErrNotFound
}

func (f *fakeStore) GetUserByID(context.Context, int64) (*store.User, error) {
	return nil, store.ErrNotFound
}

func (f *fakeStore) GetUserByUsername(context.Context, string) (*store.User, error) {
	return nil, store.ErrNotFound
}

func (f *fakeStore) CreatePlatformConnection(_ context.Context, conn *store.PlatformConnection) (*store.PlatformConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored := *conn
	stored.ID = f.id()
	f.conns = append(f.conns, &stored)
	return &stored, nil
}

func (f *fakeStore) ListPlatformConnections(_ context.Context, userID int64) ([]*store.PlatformConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*store.PlatformConnection
	for _, conn := range f.conns {
		if conn.UserID == userID {
			copied := *conn
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdatePlatformConnection(_ context.Context, id int64, patch store.PlatformConnectionPatch) (*store.PlatformConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, conn := range f.conns {
		if conn.ID != id {
			continue
		}
		if patch.PlatformUsername != nil {
			conn.PlatformUsername = *patch.PlatformUsername
		}
		if patch.IsPrimary != nil {
			conn.IsPrimary = *patch.IsPrimary
		}
		if patch.FollowerCount != nil {
			conn.FollowerCount = *patch.FollowerCount
		}
		if patch.SubscriberCount != nil {
			conn.SubscriberCount = *patch.SubscriberCount
		}
		copied := *conn
		return &copied, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) CreateChatMessage(_ context.Context, msg *store.ChatMessage) (*store.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.chatErr != nil {
		return nil, f.chatErr
	}
	stored := *msg
	stored.ID = f.id()
	f.chats = append(f.chats, &stored)
	return &stored, nil
}

func (f *fakeStore) ListChatMessages(context.Context, int64, int, string) ([]*store.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]*store.ChatMessage(nil), f.chats...), nil
}

func (f *fakeStore) CreateFollower(_ context.Context, fl *store.Follower) (*store.Follower, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored := *fl
	stored.ID = f.id()
	f.followers = append(f.followers, &stored)
	return &stored, nil
}

func (f *fakeStore) ListFollowers(context.Context, int64, int) ([]*store.Follower, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]*store.Follower(nil), f.followers...), nil
}

func (f *fakeStore) CreateSubscriber(_ context.Context, sub *store.Subscriber) (*store.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored := *sub
	stored.ID = f.id()
	f.subscribers = append(f.subscribers, &stored)
	return &stored, nil
}

func (f *fakeStore) ListSubscribers(context.Context, int64, int) ([]*store.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]*store.Subscriber(nil), f.subscribers...), nil
}

func (f *fakeStore) GetOpenStreamSession(_ context.Context, userID int64) (*store.StreamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.streamErr != nil {
		return nil, f.streamErr
	}
	for i := len(f.streams) - 1; i >= 0; i-- {
		if f.streams[i].UserID == userID && f.streams[i].EndTime == nil {
			copied := *f.streams[i]
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) CreateStreamSession(_ context.Context, sess *store.StreamSession) (*store.StreamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.streamErr != nil {
		return nil, f.streamErr
	}
	stored := *sess
	stored.ID = f.id()
	f.streams = append(f.streams, &stored)
	copied := stored
	return &copied, nil
}

func (f *fakeStore) UpdateStreamSession(_ context.Context, id int64, patch store.StreamSessionPatch) (*store.StreamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, sess := range f.streams {
		if sess.ID != id {
			continue
		}
		if patch.Title != nil {
			sess.Title = *patch.Title
		}
		if patch.EndTime != nil {
			end := *patch.EndTime
			sess.EndTime = &end
		}
		if patch.PeakViewers != nil {
			sess.PeakViewers = *patch.PeakViewers
		}
		if patch.AverageViewers != nil {
			sess.AverageViewers = *patch.AverageViewers
		}
		if patch.NewFollowers != nil {
			sess.NewFollowers = *patch.NewFollowers
		}
		if patch.NewSubscribers != nil {
			sess.NewSubscribers = *patch.NewSubscribers
		}
		if patch.ChatMessages != nil {
			sess.ChatMessages = *patch.ChatMessages
		}
		copied := *sess
		return &copied, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListStreamSessions(context.Context, int64, int) ([]*store.StreamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]*store.StreamSession(nil), f.streams...), nil
}

func (f *fakeStore) Close() error { return nil }
