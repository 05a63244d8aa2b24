package http

import (
	"github.com/casthub/streamdash/internal/core"
	"github.com/casthub/streamdash/internal/proto"
	"github.com/casthub/streamdash/internal/store"
)

// outboundFromEvent converts a core event into its wire representation.
func outboundFromEvent(event *core.Event) any {
	switch event.Kind {
	case core.EventAuthResult:
		out := proto.AuthResult{
			Type:    proto.TypeAuth,
			Success: event.Auth.Success,
			UserID:  event.Auth.UserID,
		}
		if !event.Auth.Success {
			out.Error = event.Auth.Reason
		}
		return out
	case core.EventChatMessage:
		return proto.ChatBroadcast{
			Type:    proto.TypeChatMessage,
			Message: chatMessageBody(event.Chat),
		}
	case core.EventStreamEvent:
		return proto.StreamEventBroadcast{
			Type:      proto.TypeStreamEvent,
			EventType: event.StreamEvent.EventType,
			Platform:  event.StreamEvent.Platform,
			Data:      event.StreamEvent.Data,
		}
	case core.EventStreamStarted:
		return proto.StreamLifecycle{Type: proto.TypeStreamStarted, Stream: streamSessionBody(event.Stream)}
	case core.EventStreamEnded:
		return proto.StreamLifecycle{Type: proto.TypeStreamEnded, Stream: streamSessionBody(event.Stream)}
	case core.EventStreamStatsUpdated:
		return proto.StreamLifecycle{Type: proto.TypeStreamStatsUpdated, Stream: streamSessionBody(event.Stream)}
	case core.EventError:
		if event.Error == nil {
			return proto.ProtocolError{Type: proto.TypeError, Code: "unknown", Error: "unknown error"}
		}
		return proto.ProtocolError{Type: proto.TypeError, Code: event.Error.Code, Error: event.Error.Message}
	default:
		return proto.ProtocolError{Type: proto.TypeError, Code: "unknown", Error: "unknown event"}
	}
}

func chatMessageBody(msg *store.ChatMessage) proto.ChatMessageBody {
	return proto.ChatMessageBody{
		ID:                msg.ID,
		UserID:            msg.UserID,
		Platform:          msg.Platform,
		SenderUsername:    msg.SenderUsername,
		SenderDisplayName: msg.SenderDisplayName,
		Message:           msg.Message,
		Timestamp:         msg.Timestamp.Unix(),
		UserBadges:        msg.UserBadges,
	}
}

func streamSessionBody(sess *store.StreamSession) proto.StreamSessionBody {
	body := proto.StreamSessionBody{
		ID:             sess.ID,
		UserID:         sess.UserID,
		Title:          sess.Title,
		Platform:       sess.Platform,
		StartTime:      sess.StartTime.Unix(),
		PeakViewers:    sess.PeakViewers,
		AverageViewers: sess.AverageViewers,
		NewFollowers:   sess.NewFollowers,
		NewSubscribers: sess.NewSubscribers,
		ChatMessages:   sess.ChatMessages,
	}
	if sess.EndTime != nil {
		end := sess.EndTime.Unix()
		body.EndTime = &end
	}
	return body
}
