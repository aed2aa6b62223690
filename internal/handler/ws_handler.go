package handler

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ylxai/Hafiportrait-sub001/internal/config"
	"github.com/ylxai/Hafiportrait-sub001/internal/domain"
	"github.com/ylxai/Hafiportrait-sub001/internal/metrics"
	"github.com/ylxai/Hafiportrait-sub001/internal/relay"
	"github.com/ylxai/Hafiportrait-sub001/internal/service"
	pkglog "github.com/ylxai/Hafiportrait-sub001/pkg/log"
)

// WSHandler upgrades relay connections and dispatches their frames.
type WSHandler struct {
	service        service.RelayService
	wsCfg          config.WebSocketConfig
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(svc service.RelayService, wsCfg config.WebSocketConfig, allowedOrigins []string) *WSHandler {
	h := &WSHandler{
		service:        svc,
		wsCfg:          wsCfg,
		allowedOrigins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin accepts listed origins and "*". Requests without an Origin
// header come from non-browser clients such as the DSLR uploader.
func (h *WSHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	l := pkglog.Ctx(r.Context())
	l.Warn().Str(pkglog.FieldOrigin, origin).Msg("websocket connection rejected from unlisted origin")
	return false
}

// HandleWebSocket handles WebSocket upgrade and connection.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	l := pkglog.Ctx(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := relay.NewClient(uuid.New().String(), conn, h.wsCfg)
	if err := h.service.HandleConnect(r.Context(), client); err != nil {
		l.Warn().Err(err).Msg("rejecting connection")
		conn.Close()
		return
	}

	// The request context ends with this handler; keep only its logger.
	ctx := pkglog.WithClient(pkglog.WithLogger(context.Background(), l), client.ID())

	go client.WritePump()
	go client.ReadPump(
		func(c *relay.Client, message []byte) {
			h.handleMessage(ctx, c, message)
		},
		func(c *relay.Client, reason string) {
			h.service.HandleDisconnect(ctx, c, reason)
		},
	)
}

func (h *WSHandler) handleMessage(ctx context.Context, client *relay.Client, message []byte) {
	l := pkglog.Ctx(ctx)

	frame, err := domain.DecodeFrame(message)
	if err != nil {
		l.Warn().Err(err).Msg("closing connection after malformed frame")
		h.service.HandleDisconnect(ctx, client, "malformed frame")
		return
	}

	switch frame.Type {
	case domain.MsgTypeJoinEvent:
		metrics.MessagesReceived.WithLabelValues(frame.Type).Inc()
		eventID, _ := frame.Value()
		if err := h.service.HandleJoinEvent(ctx, client, eventID); err != nil {
			l.Warn().Err(err).Msg("join-event failed")
		}

	case domain.MsgTypeJoinAdmin:
		metrics.MessagesReceived.WithLabelValues(frame.Type).Inc()
		var msg domain.JoinAdminMessage
		if frame.HasData() {
			if err := json.Unmarshal(frame.Data, &msg); err != nil {
				// Non-object data just means no token.
				l.Debug().Err(err).Msg("join-admin data carries no token")
			}
		}
		if err := h.service.HandleJoinAdmin(ctx, client, msg.Token); err != nil {
			l.Warn().Err(err).Msg("join-admin failed")
		}

	case domain.MsgTypePhotoUploaded, domain.MsgTypeDSLRNotification, domain.MsgTypeEventStatusUpdate:
		metrics.MessagesReceived.WithLabelValues(frame.Type).Inc()
		if err := h.service.HandlePublish(ctx, client, frame.Type, frame.Payload()); err != nil {
			l.Warn().Err(err).Str(pkglog.FieldEventType, frame.Type).Msg("publish failed")
		}

	case domain.MsgTypePing:
		metrics.MessagesReceived.WithLabelValues(frame.Type).Inc()
		if err := h.service.HandlePing(ctx, client); err != nil {
			l.Debug().Err(err).Msg("pong failed")
		}

	default:
		metrics.MessagesReceived.WithLabelValues("unknown").Inc()
		l.Debug().Str(pkglog.FieldEventType, frame.Type).Msg("ignoring unknown frame type")
	}
}
