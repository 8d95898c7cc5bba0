// Package live pushes view state to browsers over websockets. Each connection
// mounts one view and receives its state as JSON on every change.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vedant-vijay/community-platform/internal/session"
	"github.com/vedant-vijay/community-platform/internal/view"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	submitWait   = 10 * time.Second
	closeGrace   = time.Second
)

// Relay serves the live websocket endpoints.
type Relay struct {
	feeds    view.Feeds
	sessions view.Sessions
	logger   *slog.Logger
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	connections  atomic.Int64
	messagesSent atomic.Int64
	submits      atomic.Int64
}

// NewRelay creates a new Relay.
func NewRelay(feeds view.Feeds, sessions view.Sessions, logger *slog.Logger) *Relay {
	ctx, cancel := context.WithCancel(context.Background())
	return &Relay{
		feeds:    feeds,
		sessions: sessions,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// ServeFeed handles GET /live/feed. Clients may send
// {"type":"submit","draft":"..."} to post and {"type":"draft","draft":"..."}
// to save the composer text.
func (r *Relay) ServeFeed(w http.ResponseWriter, req *http.Request) {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "path", req.URL.Path, "error", err)
		return
	}

	out := newOutbox()
	f := view.NewFeed(r.feeds, r.sessions, sessionID(req), r.logger, func(st view.FeedState) {
		out.put(newFeedMessage(st))
	})

	r.serve(ws, out, f.Mount, f.Unmount, func(ctx context.Context, msg *inboundMessage) {
		switch msg.Type {
		case "submit":
			r.submits.Add(1)
			ctx, cancel := context.WithTimeout(ctx, submitWait)
			defer cancel()
			// Outcome is reported through the view state.
			_ = f.Submit(ctx, msg.Draft)
		case "draft":
			f.SetDraft(msg.Draft)
		default:
			r.logger.Debug("ignoring live message", "type", msg.Type)
		}
	})
}

// ServeProfile handles GET /live/profile/{userID}.
func (r *Relay) ServeProfile(w http.ResponseWriter, req *http.Request) {
	userID := req.PathValue("userID")

	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "path", req.URL.Path, "error", err)
		return
	}

	out := newOutbox()
	p := view.NewProfile(r.feeds, r.sessions, userID, sessionID(req), r.logger, func(st view.ProfileState) {
		out.put(newProfileMessage(st))
	})

	r.serve(ws, out, p.Mount, p.Unmount, func(ctx context.Context, msg *inboundMessage) {
		r.logger.Debug("ignoring live message", "type", msg.Type)
	})
}

// serve runs one connection until the client goes away or the relay is
// closed. The view is unmounted before the connection is closed.
func (r *Relay) serve(
	ws *websocket.Conn,
	out *outbox,
	mount func(context.Context),
	unmount func(),
	handle func(context.Context, *inboundMessage),
) {
	r.wg.Add(1)
	defer r.wg.Done()
	r.connections.Add(1)
	defer r.connections.Add(-1)

	ctx, cancel := context.WithCancel(r.ctx)
	defer cancel()

	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		r.writeLoop(ctx, ws, out)
	}()

	mount(ctx)
	if err := r.readLoop(ctx, ws, handle); err != nil && ctx.Err() == nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			r.logger.Info("live connection closed", "error", err)
		}
	}

	unmount()
	cancel()
	writer.Wait()
	ws.Close()
}

func (r *Relay) readLoop(ctx context.Context, ws *websocket.Conn, handle func(context.Context, *inboundMessage)) error {
	ws.SetReadLimit(64 * 1024)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}

		msg, err := parseInbound(data)
		if err != nil {
			r.logger.Warn("failed to parse live message", "error", err)
			continue
		}
		handle(ctx, msg)
	}
}

func (r *Relay) writeLoop(ctx context.Context, ws *websocket.Conn, out *outbox) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
			ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			// Unblock the reader if the client never answers the close.
			ws.SetReadDeadline(time.Now().Add(closeGrace))
			return
		case data := <-out.ready:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				r.logger.Warn("failed to write live message", "error", err)
				ws.Close()
				return
			}
			r.messagesSent.Add(1)
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				ws.Close()
				return
			}
		}
	}
}

// LogStats logs connection counts every interval until ctx is cancelled.
func (r *Relay) LogStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.logger.Info("live relay stats",
				"connections", r.connections.Load(),
				"messages_sent", r.messagesSent.Load(),
				"submits", r.submits.Load(),
			)
		}
	}
}

// Close disconnects every client and waits for their views to unmount.
func (r *Relay) Close() {
	r.cancel()
	r.wg.Wait()
}

func sessionID(req *http.Request) string {
	c, err := req.Cookie(session.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// outbox holds the latest encoded message for a connection. A slow client
// skips intermediate states and receives only the newest.
type outbox struct {
	mu    sync.Mutex
	ready chan []byte
}

func newOutbox() *outbox {
	return &outbox{ready: make(chan []byte, 1)}
}

func (o *outbox) put(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	select {
	case <-o.ready:
	default:
	}
	o.ready <- data
}
