package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomBroadcastChannel(t *testing.T) {
	assert.Equal(t, "relay:room:event-42:broadcast", RoomBroadcastChannel("event-42"))
	assert.Equal(t, "relay:room:admin:broadcast", RoomBroadcastChannel("admin"))
}

func TestChannelToTopicAndKey(t *testing.T) {
	tests := []struct {
		name      string
		channel   string
		wantTopic string
		wantKey   string
		wantErr   bool
	}{
		{name: "event room", channel: "relay:room:event-42:broadcast", wantTopic: "relay-broadcast", wantKey: "event-42"},
		{name: "admin room", channel: "relay:room:admin:broadcast", wantTopic: "relay-broadcast", wantKey: "admin"},
		{name: "room id with colon", channel: "relay:room:event-a:b:broadcast", wantTopic: "relay-broadcast", wantKey: "event-a:b"},
		{name: "underscore suffix", channel: "relay:room:x:to_admin", wantTopic: "relay-to-admin", wantKey: "x"},
		{name: "too short", channel: "relay:room:broadcast", wantErr: true},
		{name: "missing room marker", channel: "relay:rooms:x:broadcast", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topic, key, err := channelToTopicAndKey(tt.channel)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTopic, topic)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestPatternToTopic(t *testing.T) {
	topic, err := patternToTopic(PatternRoomBroadcast)
	require.NoError(t, err)
	assert.Equal(t, "relay-broadcast", topic)
}

func TestChannelToSubject(t *testing.T) {
	tests := []struct {
		channel string
		want    string
	}{
		{channel: "relay:room:event-42:broadcast", want: "relay.room.event-42.broadcast"},
		{channel: PatternRoomBroadcast, want: "relay.room.*.broadcast"},
		{channel: "relay:room:event-1.5:broadcast", want: "relay.room.event-1_5.broadcast"},
		{channel: "relay:room:a>b:broadcast", want: "relay.room.a_b.broadcast"},
	}

	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			got, err := channelToSubject(tt.channel)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := channelToSubject("nope")
	assert.Error(t, err)
}

func TestConfigEnabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.False(t, Config{Driver: DriverNone}.Enabled())
	assert.True(t, Config{Driver: DriverRedis}.Enabled())
	assert.False(t, DefaultConfig().Enabled())
}

func TestNewPubSubUnknownDriver(t *testing.T) {
	_, err := NewPubSub(Config{Driver: "carrier-pigeon"})
	assert.Error(t, err)
}
