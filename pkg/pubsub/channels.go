package pubsub

import (
	"fmt"
	"strings"
)

// Channel naming conventions for the relay cluster.
const (
	// ChannelRoomBroadcast carries frames broadcast to one room on some instance.
	ChannelRoomBroadcast = "relay:room:%s:broadcast"

	// PatternRoomBroadcast matches every room broadcast channel.
	PatternRoomBroadcast = "relay:room:*:broadcast"
)

// RoomBroadcastChannel returns the channel name for broadcasts to roomID.
func RoomBroadcastChannel(roomID string) string {
	return fmt.Sprintf(ChannelRoomBroadcast, roomID)
}

// splitChannel breaks a "{prefix}:room:{roomID}:{suffix}" channel into its parts.
// Room ids may themselves contain ':'.
func splitChannel(channel string) (prefix, roomID, suffix string, err error) {
	parts := strings.Split(channel, ":")
	if len(parts) < 4 || parts[1] != "room" {
		return "", "", "", fmt.Errorf("invalid channel format: %s", channel)
	}
	prefix = parts[0]
	suffix = parts[len(parts)-1]
	roomID = strings.Join(parts[2:len(parts)-1], ":")
	if prefix == "" || roomID == "" || suffix == "" {
		return "", "", "", fmt.Errorf("invalid channel format: %s", channel)
	}
	return prefix, roomID, suffix, nil
}
