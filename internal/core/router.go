package core

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/casthub/streamdash/internal/proto"
	"github.com/casthub/streamdash/internal/store"
)

// CredentialVerifier resolves an account from in-band credentials.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, username, password string) (*store.User, error)
}

// Router is the per-connection protocol state machine. It is stateless;
// the connection's auth state lives in the Registry and is looked up by
// client identity on every dispatch. Each inbound frame either answers the
// sending session directly or results in a write to the store followed by
// a broadcast to the account's sessions; the broadcast never happens before
// the write has been accepted.
type Router struct {
	store    store.Store
	registry *Registry
	verifier CredentialVerifier
	log      *zerolog.Logger
}

// NewRouter constructs a router over the given collaborators.
func NewRouter(st store.Store, reg *Registry, verifier CredentialVerifier, logger *zerolog.Logger) *Router {
	return &Router{
		store:    st,
		registry: reg,
		verifier: verifier,
		log:      logger,
	}
}

// Dispatch processes one inbound frame for the client. Failures never close
// the connection; they are logged, answered with an error event, or both.
func (r *Router) Dispatch(ctx context.Context, c *Client, frame proto.Frame) {
	if auth, ok := frame.(proto.AuthFrame); ok {
		r.handleAuth(ctx, c, auth)
		return
	}

	userID, ok := r.registry.AccountOf(c)
	if !ok {
		c.TrySend(&Event{
			Kind:  EventError,
			Error: coreError(ErrCodeUnauthorized, "authenticate first"),
		})
		return
	}

	switch f := frame.(type) {
	case proto.ChatFrame:
		r.handleChat(ctx, c, userID, f)
	case proto.StreamEventFrame:
		r.handleStreamEvent(ctx, userID, f)
	case proto.StreamStatusFrame:
		r.handleStreamStatus(ctx, userID, f)
	default:
		c.TrySend(&Event{
			Kind:  EventError,
			Error: coreError(ErrCodeBadRequest, "unsupported frame"),
		})
	}
}

// handleAuth validates credentials and binds the session. Re-authentication
// rebinds the existing session; a failed re-authentication drops it.
func (r *Router) handleAuth(ctx context.Context, c *Client, f proto.AuthFrame) {
	user, err := r.verifier.VerifyCredentials(ctx, f.Username, f.Password)
	if err != nil {
		r.registry.Unregister(c)
		c.TrySend(&Event{
			Kind: EventAuthResult,
			Auth: &AuthResult{Success: false, Reason: "invalid credentials"},
		})
		return
	}

	r.registry.Register(c, user.ID)
	c.TrySend(&Event{
		Kind: EventAuthResult,
		Auth: &AuthResult{Success: true, UserID: user.ID},
	})
	r.log.Info().
		Str("client_id", c.ID).
		Int64("user_id", user.ID).
		Msg("session authenticated")
}

// handleChat stores the message first, then broadcasts the stored record.
// A store failure drops the frame without any broadcast.
func (r *Router) handleChat(ctx context.Context, c *Client, userID int64, f proto.ChatFrame) {
	displayName := f.DisplayName
	if displayName == "" {
		displayName = f.Username
	}
	badges := f.Badges
	if badges == nil {
		badges = map[string]string{}
	}

	stored, err := r.store.CreateChatMessage(ctx, &store.ChatMessage{
		UserID:            userID,
		Platform:          f.Platform,
		SenderUsername:    f.Username,
		SenderDisplayName: displayName,
		Message:           f.Message,
		Timestamp:         time.Now().UTC(),
		UserBadges:        badges,
	})
	if err != nil {
		r.log.Error().Err(err).
			Str("client_id", c.ID).
			Int64("user_id", userID).
			Msg("store chat message")
		return
	}

	r.registry.Broadcast(userID, &Event{Kind: EventChatMessage, Chat: stored})
}

// handleStreamEvent relays the raw event to the account immediately, then
// records followers and subscribers with their counter updates.
func (r *Router) handleStreamEvent(ctx context.Context, userID int64, f proto.StreamEventFrame) {
	r.registry.Broadcast(userID, &Event{
		Kind: EventStreamEvent,
		StreamEvent: &StreamEventPayload{
			EventType: f.EventType,
			Platform:  f.Platform,
			Data:      f.Raw,
		},
	})

	switch f.EventType {
	case "follow":
		r.recordFollow(ctx, userID, f)
	case "subscription":
		r.recordSubscription(ctx, userID, f)
	}
}

func (r *Router) recordFollow(ctx context.Context, userID int64, f proto.StreamEventFrame) {
	conn, err := r.platformConnection(ctx, userID, f.Platform)
	if err != nil {
		r.log.Warn().Err(err).
			Int64("user_id", userID).
			Str("platform", f.Platform).
			Msg("follow event without platform connection")
		return
	}

	if _, err := r.store.CreateFollower(ctx, &store.Follower{
		UserID:               userID,
		PlatformConnectionID: conn.ID,
		FollowerUsername:     f.Data.Username,
		FollowerDisplayName:  f.Data.DisplayName,
		FollowedAt:           time.Now().UTC(),
	}); err != nil {
		r.log.Error().Err(err).Int64("user_id", userID).Msg("store follower")
		return
	}

	count := conn.FollowerCount + 1
	if _, err := r.store.UpdatePlatformConnection(ctx, conn.ID, store.PlatformConnectionPatch{
		FollowerCount: &count,
	}); err != nil {
		r.log.Error().Err(err).Int64("connection_id", conn.ID).Msg("update follower count")
	}
}

func (r *Router) recordSubscription(ctx context.Context, userID int64, f proto.StreamEventFrame) {
	conn, err := r.platformConnection(ctx, userID, f.Platform)
	if err != nil {
		r.log.Warn().Err(err).
			Int64("user_id", userID).
			Str("platform", f.Platform).
			Msg("subscription event without platform connection")
		return
	}

	var renewsAt *time.Time
	if f.Data.RenewsAt != "" {
		if t, err := time.Parse(time.RFC3339, f.Data.RenewsAt); err == nil {
			renewsAt = &t
		}
	}

	if _, err := r.store.CreateSubscriber(ctx, &store.Subscriber{
		UserID:                userID,
		PlatformConnectionID:  conn.ID,
		SubscriberUsername:    f.Data.Username,
		SubscriberDisplayName: f.Data.DisplayName,
		Tier:                  f.Data.Tier,
		SubscribedAt:          time.Now().UTC(),
		RenewsAt:              renewsAt,
		IsGift:                f.Data.IsGift,
	}); err != nil {
		r.log.Error().Err(err).Int64("user_id", userID).Msg("store subscriber")
		return
	}

	count := conn.SubscriberCount + 1
	if _, err := r.store.UpdatePlatformConnection(ctx, conn.ID, store.PlatformConnectionPatch{
		SubscriberCount: &count,
	}); err != nil {
		r.log.Error().Err(err).Int64("connection_id", conn.ID).Msg("update subscriber count")
	}
}

func (r *Router) platformConnection(ctx context.Context, userID int64, platform string) (*store.PlatformConnection, error) {
	conns, err := r.store.ListPlatformConnections(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, conn := range conns {
		if conn.Platform == platform {
			return conn, nil
		}
	}
	return nil, store.ErrNotFound
}

// handleStreamStatus resolves against the account's open stream session.
// Precedence: going live with no open stream starts one; going offline with
// an open stream ends it; anything else with an open stream merges stats.
func (r *Router) handleStreamStatus(ctx context.Context, userID int64, f proto.StreamStatusFrame) {
	open, err := r.store.GetOpenStreamSession(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		r.log.Error().Err(err).Int64("user_id", userID).Msg("lookup open stream")
		return
	}

	switch {
	case f.Status == proto.StatusLive && open == nil:
		started, err := r.store.CreateStreamSession(ctx, &store.StreamSession{
			UserID:    userID,
			Title:     f.Title,
			Platform:  f.Platform,
			StartTime: time.Now().UTC(),
		})
		if err != nil {
			r.log.Error().Err(err).Int64("user_id", userID).Msg("create stream session")
			return
		}
		r.registry.Broadcast(userID, &Event{Kind: EventStreamStarted, Stream: started})

	case f.Status == proto.StatusOffline && open != nil:
		now := time.Now().UTC()
		ended, err := r.store.UpdateStreamSession(ctx, open.ID, store.StreamSessionPatch{
			EndTime: &now,
		})
		if err != nil {
			r.log.Error().Err(err).Int64("stream_id", open.ID).Msg("end stream session")
			return
		}
		r.registry.Broadcast(userID, &Event{Kind: EventStreamEnded, Stream: ended})

	case open != nil:
		patch := store.StreamSessionPatch{}
		if f.Stats != nil {
			patch.PeakViewers = f.Stats.PeakViewers
			patch.AverageViewers = f.Stats.AverageViewers
			patch.NewFollowers = f.Stats.NewFollowers
			patch.NewSubscribers = f.Stats.NewSubscribers
			patch.ChatMessages = f.Stats.ChatMessages
		}
		updated, err := r.store.UpdateStreamSession(ctx, open.ID, patch)
		if err != nil {
			r.log.Error().Err(err).Int64("stream_id", open.ID).Msg("update stream stats")
			return
		}
		r.registry.Broadcast(userID, &Event{Kind: EventStreamStatsUpdated, Stream: updated})
	}
}
