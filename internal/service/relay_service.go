package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ylxai/Hafiportrait-sub001/internal/audit"
	"github.com/ylxai/Hafiportrait-sub001/internal/domain"
	"github.com/ylxai/Hafiportrait-sub001/internal/kafka"
	"github.com/ylxai/Hafiportrait-sub001/internal/relay"
	pkglog "github.com/ylxai/Hafiportrait-sub001/pkg/log"
)

type relayService struct {
	relay    *relay.Relay
	producer kafka.ActivityProducer
	verifier AdminVerifier
}

// NewRelayService wires the relay to its optional collaborators. A nil
// producer disables the activity stream; a nil verifier leaves join-admin open.
func NewRelayService(r *relay.Relay, producer kafka.ActivityProducer, verifier AdminVerifier) RelayService {
	if producer == nil {
		producer = kafka.NoopProducer{}
	}
	return &relayService{
		relay:    r,
		producer: producer,
		verifier: verifier,
	}
}

func (s *relayService) HandleConnect(ctx context.Context, c relay.Conn) error {
	if err := s.relay.Connect(c); err != nil {
		return fmt.Errorf("failed to register connection: %w", err)
	}
	return nil
}

func (s *relayService) HandleJoinEvent(ctx context.Context, c relay.Conn, eventID any) error {
	s.relay.JoinEvent(c.ID(), eventID)

	id := domain.FormatValue(eventID)
	audit.Log(ctx, audit.Entry{
		Action:   audit.ActionJoinEvent,
		ClientID: c.ID(),
		Room:     domain.EventRoom(id),
		EventID:  id,
	}, "client joined event room")
	return nil
}

func (s *relayService) HandleJoinAdmin(ctx context.Context, c relay.Conn, token string) error {
	entry := audit.Entry{Action: audit.ActionJoinAdmin, ClientID: c.ID(), Room: domain.AdminRoom}

	if s.verifier != nil {
		claims, err := s.verifier.VerifyAdmin(token)
		if err != nil {
			entry.Action = audit.ActionJoinAdminDenied
			entry.Detail = err.Error()
			audit.Log(ctx, entry, "admin join rejected")
			if sendErr := sendFrame(c, domain.MsgTypeError, domain.NewErrorMessage(domain.ErrCodeUnauthorized, "Admin access denied")); sendErr != nil {
				return sendErr
			}
			return fmt.Errorf("admin join rejected: %w", err)
		}
		entry.Actor = claims.Subject
	}

	s.relay.JoinAdmin(c.ID())
	audit.Log(ctx, entry, "client joined admin room")
	return nil
}

func (s *relayService) HandlePublish(ctx context.Context, c relay.Conn, eventType string, payload map[string]any) error {
	route, ok := relay.LookupRoute(eventType)
	if !ok {
		l := pkglog.Ctx(ctx)
		l.Debug().Str(pkglog.FieldClientID, c.ID()).Str(pkglog.FieldEventType, eventType).Msg("ignoring unknown event type")
		return nil
	}

	s.relay.Publish(c.ID(), eventType, payload)

	activity := &domain.Activity{
		ConnectionID: c.ID(),
		EventType:    eventType,
		Payload:      payload,
		ReceivedAt:   time.Now().UTC(),
	}
	entry := audit.Entry{Action: audit.ActionPublish, ClientID: c.ID(), EventType: eventType}
	if v, ok := route.RoomValue(payload); ok {
		activity.EventID = domain.FormatValue(v)
		entry.EventID = activity.EventID
		entry.Room = domain.EventRoom(activity.EventID)
	}
	audit.Log(ctx, entry, "client published event")

	if err := s.producer.ProduceActivity(ctx, activity); err != nil {
		l := pkglog.Ctx(ctx)
		l.Warn().Err(err).Str(pkglog.FieldClientID, c.ID()).Str(pkglog.FieldEventType, eventType).Msg("failed to produce activity")
	}
	return nil
}

func (s *relayService) HandlePing(ctx context.Context, c relay.Conn) error {
	return sendFrame(c, domain.MsgTypePong, domain.PongMessage{Timestamp: domain.FormatTimestamp(time.Now())})
}

func (s *relayService) HandleDisconnect(ctx context.Context, c relay.Conn, reason string) {
	rooms, ok := s.relay.Disconnect(c.ID(), reason)
	if !ok {
		return
	}

	audit.Log(ctx, audit.Entry{
		Action:   audit.ActionDisconnect,
		ClientID: c.ID(),
		Rooms:    rooms,
		Detail:   reason,
	}, "client disconnected")
}

func (s *relayService) Health() relay.Health {
	return s.relay.HealthSnapshot()
}

func (s *relayService) Stats() relay.Stats {
	return s.relay.Stats()
}

func (s *relayService) Stop() error {
	if err := s.producer.Close(); err != nil {
		return fmt.Errorf("failed to close activity producer: %w", err)
	}
	return nil
}

func sendFrame(c relay.Conn, msgType string, data any) error {
	frame, err := domain.EncodeFrame(msgType, data)
	if err != nil {
		return err
	}
	return c.Send(frame)
}
