package domain

import (
	"math"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruthy(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want bool
	}{
		{name: "nil", v: nil, want: false},
		{name: "false", v: false, want: false},
		{name: "true", v: true, want: true},
		{name: "zero", v: float64(0), want: false},
		{name: "nan", v: math.NaN(), want: false},
		{name: "number", v: float64(7), want: true},
		{name: "empty string", v: "", want: false},
		{name: "string zero", v: "0", want: true},
		{name: "empty object", v: map[string]any{}, want: true},
		{name: "empty array", v: []any{}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truthy(tt.v))
		})
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want string
	}{
		{name: "integer", v: float64(42), want: "42"},
		{name: "fraction", v: 1.5, want: "1.5"},
		{name: "negative zero", v: math.Copysign(0, -1), want: "0"},
		{name: "large integer", v: 123456789012345680000.0, want: "123456789012345680000"},
		{name: "exponent threshold", v: 1e21, want: "1e+21"},
		{name: "large exponent", v: 1.5e300, want: "1.5e+300"},
		{name: "small", v: 1.5e-7, want: "1.5e-7"},
		{name: "small decimal", v: 0.000001, want: "0.000001"},
		{name: "negative small", v: -2e-7, want: "-2e-7"},
		{name: "json number", v: json.Number("7.0"), want: "7"},
		{name: "string", v: "abc", want: "abc"},
		{name: "null", v: nil, want: "null"},
		{name: "bool", v: true, want: "true"},
		{name: "object", v: map[string]any{"a": 1}, want: `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.v))
		})
	}

	assert.Equal(t, "event-0", EventRoom(FormatValue(math.Copysign(0, -1))))
}

func TestDisplay(t *testing.T) {
	payload := map[string]any{"eventId": float64(7), "status": nil}

	assert.Equal(t, "7", Display(payload, "eventId"))
	assert.Equal(t, "null", Display(payload, "status"))
	assert.Equal(t, "undefined", Display(payload, "fileName"))
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 30, 0, 123456789, time.FixedZone("WIB", 7*3600))
	assert.Equal(t, "2024-05-01T03:30:00.123Z", FormatTimestamp(ts))
}

func TestStamp(t *testing.T) {
	payload := map[string]any{"fileName": "x.jpg", "timestamp": "client"}
	out := Stamp(payload, "2024-05-01T03:30:00.123Z")

	assert.Equal(t, "x.jpg", out["fileName"])
	assert.Equal(t, "2024-05-01T03:30:00.123Z", out["timestamp"])
	assert.Equal(t, "client", payload["timestamp"], "input must not be mutated")
}

func TestDecodeFrame(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"type":"photo-uploaded","data":{"eventId":7,"fileName":"x.jpg"}}`))
	require.NoError(t, err)
	assert.Equal(t, MsgTypePhotoUploaded, f.Type)
	assert.Equal(t, map[string]any{"eventId": float64(7), "fileName": "x.jpg"}, f.Payload())

	f, err = DecodeFrame([]byte(`{"type":"join-admin"}`))
	require.NoError(t, err)
	assert.False(t, f.HasData())
	assert.Empty(t, f.Payload())

	f, err = DecodeFrame([]byte(`{"type":"join-event","data":"42"}`))
	require.NoError(t, err)
	v, err := f.Value()
	require.NoError(t, err)
	assert.Equal(t, "42", v)
	assert.Empty(t, f.Payload())

	_, err = DecodeFrame([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedFrame)

	_, err = DecodeFrame([]byte(`{"data":1}`))
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestEncodeFrame(t *testing.T) {
	raw, err := EncodeFrame(MsgTypeAdminStats, AdminStatsMessage{TotalConnections: 3, Timestamp: "t"})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, MsgTypeAdminStats, decoded["type"])
	assert.Equal(t, map[string]any{"totalConnections": float64(3), "timestamp": "t"}, decoded["data"])
}

func TestActivityPartitionKey(t *testing.T) {
	assert.Equal(t, "7", (&Activity{EventID: "7"}).PartitionKey())
	assert.Equal(t, AdminRoom, (&Activity{}).PartitionKey())
}
