package kafka

import (
	"context"

	"github.com/ylxai/Hafiportrait-sub001/internal/domain"
)

type ActivityProducer interface {
	ProduceActivity(ctx context.Context, activity *domain.Activity) error
	Close() error
}

// NoopProducer is used when the activity stream is disabled.
type NoopProducer struct{}

func (NoopProducer) ProduceActivity(context.Context, *domain.Activity) error { return nil }

func (NoopProducer) Close() error { return nil }
