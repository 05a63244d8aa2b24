// Package proto defines the JSON wire protocol spoken over the dashboard
// WebSocket. Inbound messages are flat objects tagged by a "type" field;
// DecodeInbound turns raw bytes into one of a closed set of frame types so
// the rest of the system never touches loosely-typed payloads.
package proto

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound frame type tags.
const (
	TypeAuth         = "auth"
	TypeChatMessage  = "chat_message"
	TypeStreamEvent  = "stream_event"
	TypeStreamStatus = "stream_status"
)

// Outbound frame type tags.
const (
	TypeError              = "error"
	TypeStreamStarted      = "stream_started"
	TypeStreamEnded        = "stream_ended"
	TypeStreamStatsUpdated = "stream_stats_updated"
)

// Stream status values.
const (
	StatusLive    = "live"
	StatusOffline = "offline"
)

var (
	// ErrUnknownType is returned for frames with an unrecognized type tag.
	ErrUnknownType = errors.New("unknown frame type")
	// ErrBadFrame is returned for frames that fail validation.
	ErrBadFrame = errors.New("bad frame")
)

// Frame is an inbound message decoded from the wire.
// Implementations form a closed set; new variants require a DecodeInbound case.
type Frame interface {
	frameType() string
}

// AuthFrame authenticates the connection with account credentials.
type AuthFrame struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ChatFrame carries one chat line relayed from a platform.
type ChatFrame struct {
	Platform    string            `json:"platform"`
	Username    string            `json:"username"`
	DisplayName string            `json:"displayName"`
	Message     string            `json:"message"`
	Badges      map[string]string `json:"badges"`
}

// StreamEventFrame carries a platform event such as a follow or subscription.
type StreamEventFrame struct {
	EventType string          `json:"eventType"`
	Platform  string          `json:"platform"`
	Data      EventData       `json:"data"`
	Raw       json.RawMessage `json:"-"`
}

// EventData holds the fields the router cares about for follow and
// subscription events. Other event types pass through untouched via Raw.
type EventData struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Tier        string `json:"tier"`
	RenewsAt    string `json:"renewsAt"`
	IsGift      bool   `json:"isGift"`
}

// StreamStatusFrame reports the creator going live or offline, or updates
// stats for the open stream.
type StreamStatusFrame struct {
	Status   string       `json:"status"`
	Platform string       `json:"platform"`
	Title    string       `json:"title"`
	Stats    *StreamStats `json:"stats"`
}

// StreamStats is the partial stats payload of a stream_status frame.
type StreamStats struct {
	PeakViewers    *int `json:"peakViewers"`
	AverageViewers *int `json:"averageViewers"`
	NewFollowers   *int `json:"newFollowers"`
	NewSubscribers *int `json:"newSubscribers"`
	ChatMessages   *int `json:"chatMessages"`
}

func (AuthFrame) frameType() string         { return TypeAuth }
func (ChatFrame) frameType() string         { return TypeChatMessage }
func (StreamEventFrame) frameType() string  { return TypeStreamEvent }
func (StreamStatusFrame) frameType() string { return TypeStreamStatus }

type envelope struct {
	Type string `json:"type"`
}

// DecodeInbound parses raw bytes into a typed inbound frame.
// Unknown type tags yield ErrUnknownType; the caller is expected to drop the
// frame and keep the connection open.
func DecodeInbound(raw []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}

	switch env.Type {
	case TypeAuth:
		var f AuthFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
		}
		if f.Username == "" {
			return nil, fmt.Errorf("%w: username is required", ErrBadFrame)
		}
		return f, nil
	case TypeChatMessage:
		var f ChatFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
		}
		if f.Platform == "" || f.Username == "" {
			return nil, fmt.Errorf("%w: platform and username are required", ErrBadFrame)
		}
		return f, nil
	case TypeStreamEvent:
		var f StreamEventFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
		}
		if f.EventType == "" {
			return nil, fmt.Errorf("%w: eventType is required", ErrBadFrame)
		}
		var passthrough struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &passthrough); err == nil {
			f.Raw = passthrough.Data
		}
		return f, nil
	case TypeStreamStatus:
		var f StreamStatusFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
		}
		if f.Status != "" && f.Status != StatusLive && f.Status != StatusOffline {
			return nil, fmt.Errorf("%w: status must be live or offline", ErrBadFrame)
		}
		return f, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrBadFrame)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// AuthResult tells the client whether in-band authentication succeeded.
type AuthResult struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	UserID  int64  `json:"userId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ChatBroadcast delivers a stored chat message to dashboard sessions.
type ChatBroadcast struct {
	Type    string          `json:"type"`
	Message ChatMessageBody `json:"message"`
}

// ChatMessageBody mirrors the stored chat message record on the wire.
type ChatMessageBody struct {
	ID                int64             `json:"id"`
	UserID            int64             `json:"userId"`
	Platform          string            `json:"platform"`
	SenderUsername    string            `json:"senderUsername"`
	SenderDisplayName string            `json:"senderDisplayName"`
	Message           string            `json:"message"`
	Timestamp         int64             `json:"timestamp"`
	UserBadges        map[string]string `json:"userBadges,omitempty"`
}

// StreamEventBroadcast relays a platform event to dashboard sessions.
type StreamEventBroadcast struct {
	Type      string          `json:"type"`
	EventType string          `json:"eventType"`
	Platform  string          `json:"platform"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// StreamLifecycle announces a stream starting, ending, or updating stats.
type StreamLifecycle struct {
	Type   string            `json:"type"`
	Stream StreamSessionBody `json:"stream"`
}

// StreamSessionBody mirrors the stored stream session record on the wire.
type StreamSessionBody struct {
	ID             int64  `json:"id"`
	UserID         int64  `json:"userId"`
	Title          string `json:"title"`
	Platform       string `json:"platform"`
	StartTime      int64  `json:"startTime"`
	EndTime        *int64 `json:"endTime,omitempty"`
	PeakViewers    int    `json:"peakViewers"`
	AverageViewers int    `json:"averageViewers"`
	NewFollowers   int    `json:"newFollowers"`
	NewSubscribers int    `json:"newSubscribers"`
	ChatMessages   int    `json:"chatMessages"`
}

// ProtocolError reports a recoverable protocol-level problem to the client.
type ProtocolError struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}
