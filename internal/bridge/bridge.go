// Package bridge links relay instances through the pub/sub bus so a room
// broadcast on one instance reaches members connected to the others.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/ylxai/Hafiportrait-sub001/internal/metrics"
	pkglog "github.com/ylxai/Hafiportrait-sub001/pkg/log"
	"github.com/ylxai/Hafiportrait-sub001/pkg/pubsub"
)

const (
	defaultQueueSize = 1024

	// Consecutive publish failures before the bus is skipped for breakerTimeout.
	breakerFailures = 5
	breakerTimeout  = 10 * time.Second
)

var ErrSubscriptionClosed = errors.New("bridge subscription closed")

// Deliverer fans a remote broadcast out to local members.
type Deliverer interface {
	Deliver(room, msgType string, frame []byte)
}

type outbound struct {
	room    string
	msgType string
	frame   []byte
}

type Bridge struct {
	bus        pubsub.PubSub
	instanceID string
	queue      chan outbound
	target     Deliverer
	breaker    *gobreaker.CircuitBreaker[struct{}]
}

func New(bus pubsub.PubSub, instanceID string, queueSize int) *Bridge {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Bridge{
		bus:        bus,
		instanceID: instanceID,
		queue:      make(chan outbound, queueSize),
		breaker:    newBreaker(instanceID),
	}
}

func newBreaker(instanceID string) *gobreaker.CircuitBreaker[struct{}] {
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "relay-bridge-publish",
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l := pkglog.L()
			l.Warn().
				Str(pkglog.FieldInstanceID, instanceID).
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("bridge publish breaker changed state")
		},
	})
}

// Attach sets where remote broadcasts are delivered. Call before Run.
func (b *Bridge) Attach(target Deliverer) {
	b.target = target
}

// OnBroadcast queues a local broadcast for publishing. It never blocks;
// when the queue is full the broadcast stays local.
func (b *Bridge) OnBroadcast(room, msgType string, frame []byte) {
	select {
	case b.queue <- outbound{room: room, msgType: msgType, frame: frame}:
	default:
		metrics.BridgeEvents.WithLabelValues(metrics.DirectionDropped).Inc()
	}
}

// Run publishes queued broadcasts and delivers remote ones until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	if b.target == nil {
		return errors.New("bridge has no delivery target")
	}

	events, err := b.bus.SubscribePattern(ctx, pubsub.PatternRoomBroadcast)
	if err != nil {
		return fmt.Errorf("failed to subscribe to room broadcasts: %w", err)
	}

	l := pkglog.L()
	l.Info().Str(pkglog.FieldInstanceID, b.instanceID).Msg("relay bridge started")

	for {
		select {
		case <-ctx.Done():
			return nil

		case out := <-b.queue:
			b.publish(ctx, out)

		case evt, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrSubscriptionClosed
			}
			b.deliver(evt)
		}
	}
}

func (b *Bridge) publish(ctx context.Context, out outbound) {
	evt := pubsub.NewRawEvent(out.msgType, out.room, b.instanceID, out.frame)
	_, err := b.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, b.bus.Publish(ctx, pubsub.RoomBroadcastChannel(out.room), evt)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.BridgeEvents.WithLabelValues(metrics.DirectionDropped).Inc()
		return
	}
	if err != nil {
		l := pkglog.L()
		l.Warn().Err(err).Str(pkglog.FieldRoom, out.room).Msg("failed to publish room broadcast")
		return
	}
	metrics.BridgeEvents.WithLabelValues(metrics.DirectionOut).Inc()
}

func (b *Bridge) deliver(evt *pubsub.Event) {
	if evt == nil || evt.Origin == b.instanceID {
		return
	}
	if evt.RoomID == "" || len(evt.Payload) == 0 {
		l := pkglog.L()
		l.Warn().Str(pkglog.FieldInstanceID, evt.Origin).Msg("dropping incomplete bridge event")
		return
	}
	metrics.BridgeEvents.WithLabelValues(metrics.DirectionIn).Inc()
	b.target.Deliver(evt.RoomID, evt.Type, evt.Payload)
}

func (b *Bridge) Close() error {
	return b.bus.Close()
}
