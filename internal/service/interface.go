package service

import (
	"context"

	"github.com/ylxai/Hafiportrait-sub001/internal/relay"
	"github.com/ylxai/Hafiportrait-sub001/pkg/jwt"
)

type RelayService interface {
	HandleConnect(ctx context.Context, c relay.Conn) error
	HandleJoinEvent(ctx context.Context, c relay.Conn, eventID any) error
	HandleJoinAdmin(ctx context.Context, c relay.Conn, token string) error
	HandlePublish(ctx context.Context, c relay.Conn, eventType string, payload map[string]any) error
	HandlePing(ctx context.Context, c relay.Conn) error
	HandleDisconnect(ctx context.Context, c relay.Conn, reason string)
	Health() relay.Health
	Stats() relay.Stats
	Stop() error
}

// AdminVerifier gates the admin room. *jwt.Verifier satisfies it.
type AdminVerifier interface {
	VerifyAdmin(token string) (*jwt.Claims, error)
}
