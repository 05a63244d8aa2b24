package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/casthub/streamdash/internal/core"
	"github.com/casthub/streamdash/internal/proto"
)

// WSHandler terminates dashboard WebSocket connections. It runs one read
// goroutine and one write goroutine per connection: the read loop decodes
// inbound frames and hands them to the router, the write loop drains the
// client's event channel back onto the wire. Either loop erroring tears the
// connection down and unregisters the session.
type WSHandler struct {
	registry    *core.Registry
	router      *core.Router
	log         *zerolog.Logger
	sendBuffer  int
	authTimeout time.Duration
	limiter     *rateLimiter
}

// NewWSHandler builds a WebSocket handler over the registry and router.
func NewWSHandler(registry *core.Registry, router *core.Router, logger *zerolog.Logger, sendBuffer int, authTimeout time.Duration, limiter *rateLimiter) *WSHandler {
	return &WSHandler{
		registry:    registry,
		router:      router,
		log:         logger,
		sendBuffer:  sendBuffer,
		authTimeout: authTimeout,
		limiter:     limiter,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	if !h.limiter.allow() {
		stdhttp.Error(w, "too many connections", stdhttp.StatusTooManyRequests)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	client := core.NewClient(h.sendBuffer)
	defer h.registry.Unregister(client)
	defer client.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The connection starts unauthenticated and unregistered. If configured,
	// drop it when no auth frame has bound it to an account in time.
	if h.authTimeout > 0 {
		timer := time.AfterFunc(h.authTimeout, func() {
			if _, ok := h.registry.AccountOf(client); !ok {
				conn.Close(websocket.StatusPolicyViolation, "authentication timeout")
			}
		})
		defer timer.Stop()
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	client.Close()
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// readLoop pulls raw frames off the wire and dispatches them. A frame that
// fails to decode is logged and dropped; only transport errors end the loop.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		frame, err := proto.DecodeInbound(raw)
		if err != nil {
			h.log.Debug().Err(err).Str("client_id", client.ID).Msg("dropping undecodable frame")
			continue
		}

		h.router.Dispatch(ctx, client, frame)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events():
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
