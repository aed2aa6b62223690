package pubsub

import (
	"context"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

var subjectTokenReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_", "\t", "_")

// channelToSubject converts a Redis-style channel or pattern to a NATS subject.
// The room id becomes a single subject token; "*" is kept as the token wildcard.
//
//	"relay:room:event-42:broadcast" → "relay.room.event-42.broadcast"
//	"relay:room:*:broadcast"        → "relay.room.*.broadcast"
func channelToSubject(channel string) (string, error) {
	prefix, roomID, suffix, err := splitChannel(channel)
	if err != nil {
		return "", err
	}
	if roomID != "*" {
		roomID = subjectTokenReplacer.Replace(roomID)
	}
	return prefix + ".room." + roomID + "." + suffix, nil
}

// NATSPubSub carries room broadcasts over core NATS subjects.
type NATSPubSub struct {
	conn *nats.Conn
}

func NewNATSPubSub(cfg NATSConfig) (*NATSPubSub, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				l := logger()
				l.Warn().Err(err).Msg("nats: disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			l := logger()
			l.Info().Str("url", nc.ConnectedUrl()).Msg("nats: reconnected")
		}),
	}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return &NATSPubSub{conn: nc}, nil
}

func (n *NATSPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	subject, err := channelToSubject(channel)
	if err != nil {
		return fmt.Errorf("failed to parse channel: %w", err)
	}

	data, err := encodeEvent(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := n.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// SubscribePattern subscribes to the wildcard subject of pattern. The
// subscription and its channel end with ctx or when the connection closes.
func (n *NATSPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	subject, err := channelToSubject(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pattern: %w", err)
	}

	msgs := make(chan *nats.Msg, subscriptionBuffer)
	sub, err := n.conn.ChanSubscribe(subject, msgs)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	out := make(chan *Event, subscriptionBuffer)
	go n.consume(ctx, sub, msgs, out)
	return out, nil
}

func (n *NATSPubSub) consume(ctx context.Context, sub *nats.Subscription, msgs <-chan *nats.Msg, out chan<- *Event) {
	defer close(out)
	defer sub.Unsubscribe()

	closed := n.conn.StatusChanged(nats.CLOSED)
	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case msg := <-msgs:
			event, err := decodeEvent(msg.Data)
			if err != nil {
				l := logger()
				l.Warn().Err(err).Str("subject", msg.Subject).Msg("nats: invalid event")
				continue
			}
			if !forward(ctx, out, event, DriverNATS) {
				return
			}
		}
	}
}

// Close flushes pending publishes and closes the connection, which ends
// every subscription.
func (n *NATSPubSub) Close() error {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return fmt.Errorf("failed to drain nats connection: %w", err)
	}
	return nil
}
