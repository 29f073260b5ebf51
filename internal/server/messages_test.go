package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientMessage_Validate(t *testing.T) {
	tcases := []struct {
		name  string
		frame string
		valid bool
	}{
		{name: "join", frame: `{"id":1,"join":{"room_id":"r1"}}`, valid: true},
		{name: "join without room", frame: `{"id":1,"join":{}}`},
		{name: "leave", frame: `{"leave":{}}`, valid: true},
		{name: "move", frame: `{"move":{"x":1,"y":2}}`, valid: true},
		{name: "move with bad coordinates passes validation", frame: `{"move":{"x":"a"}}`, valid: true},
		{name: "no payload", frame: `{"id":1}`},
		{name: "two payloads", frame: `{"leave":{},"move":{"x":1,"y":2}}`},
		{name: "zone enter", frame: `{"zone":{"action":"enter","zone":"lounge"}}`, valid: true},
		{name: "zone leave", frame: `{"zone":{"action":"leave","zone":"garden"}}`, valid: true},
		{name: "unknown zone", frame: `{"zone":{"action":"enter","zone":"attic"}}`},
		{name: "unknown zone action", frame: `{"zone":{"action":"stay","zone":"lounge"}}`},
		{name: "watch load", frame: `{"watch":{"action":"load","url":"https://example.com/v"}}`, valid: true},
		{name: "watch load without url", frame: `{"watch":{"action":"load"}}`},
		{name: "watch load url too long", frame: `{"watch":{"action":"load","url":"` + strings.Repeat("a", maxURLLength+1) + `"}}`},
		{name: "watch play", frame: `{"watch":{"action":"play","time":12.5}}`, valid: true},
		{name: "watch play at zero", frame: `{"watch":{"action":"play","time":0}}`, valid: true},
		{name: "watch play without time", frame: `{"watch":{"action":"play"}}`},
		{name: "watch seek negative", frame: `{"watch":{"action":"seek","time":-1}}`},
		{name: "watch end", frame: `{"watch":{"action":"end"}}`, valid: true},
		{name: "watch sync", frame: `{"watch":{"action":"sync"}}`, valid: true},
		{name: "watch unknown", frame: `{"watch":{"action":"rewind"}}`},
		{name: "focus start", frame: `{"focus":{"action":"start","duration":900}}`, valid: true},
		{name: "focus start without duration", frame: `{"focus":{"action":"start"}}`, valid: true},
		{name: "focus unknown", frame: `{"focus":{"action":"stop"}}`},
		{name: "chat message", frame: `{"chat":{"action":"message","text":"hi"}}`, valid: true},
		{name: "chat history", frame: `{"chat":{"action":"history"}}`, valid: true},
		{name: "chat unknown", frame: `{"chat":{"action":"edit"}}`},
		{name: "signal", frame: `{"signal":{"channel":"webrtc","kind":"offer","payload":{"sdp":"x"}}}`, valid: true},
		{name: "screen signal", frame: `{"signal":{"channel":"screen","kind":"start"}}`, valid: true},
		{name: "signal unknown channel", frame: `{"signal":{"channel":"audio","kind":"offer"}}`},
		{name: "signal unknown kind", frame: `{"signal":{"channel":"webrtc","kind":"renegotiate"}}`},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			var msg ClientMessage
			require.NoError(t, json.Unmarshal([]byte(tc.frame), &msg))

			err := msg.Validate()
			if tc.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestClientMessage_expectsResponse(t *testing.T) {
	tcases := []struct {
		name     string
		msg      ClientMessage
		expected bool
	}{
		{name: "command with id", msg: ClientMessage{BaseMessage: BaseMessage{Id: 1}, Chat: &ChatCmd{}}, expected: true},
		{name: "command without id", msg: ClientMessage{Chat: &ChatCmd{}}},
		{name: "negative id", msg: ClientMessage{BaseMessage: BaseMessage{Id: -1}, Leave: &Leave{}}},
		{name: "move with id", msg: ClientMessage{BaseMessage: BaseMessage{Id: 1}, Move: &Move{}}},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.msg.expectsResponse())
		})
	}
}

func TestResponseConstructors(t *testing.T) {
	tcases := []struct {
		name  string
		msg   *ServerMessage
		code  int
		error string
	}{
		{name: "ok", msg: NoErrOK(1, nil), code: http.StatusOK},
		{name: "accepted", msg: NoErrAccepted(1, nil), code: http.StatusAccepted},
		{name: "room unavailable", msg: ErrRoomUnavailable(1), code: http.StatusForbidden, error: "room not found or access denied"},
		{name: "not in room", msg: ErrNotInRoomResponse(1), code: http.StatusConflict, error: "not in a room"},
		{name: "internal error", msg: ErrInternalError(1), code: http.StatusInternalServerError, error: "internal server error"},
		{name: "service unavailable", msg: ErrServiceUnavailable(1), code: http.StatusServiceUnavailable, error: "service unavailable"},
		{name: "bad request", msg: ErrBadRequest(1, "message is empty"), code: http.StatusBadRequest, error: "message is empty"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			require.NotNil(t, tc.msg.Response, "expected response to be non-nil")
			assert.Nil(t, tc.msg.Notification)
			assert.Equal(t, 1, tc.msg.Id, "expected Id to match")
			assert.WithinDuration(t, time.Now(), tc.msg.Timestamp, time.Second, "expected Timestamp to be within 1 second")
			assert.Equal(t, tc.code, tc.msg.Response.ResponseCode, "expected ResponseCode to match")
			assert.Equal(t, tc.error, tc.msg.Response.Error, "expected Error message to match")
		})
	}
}

func TestNoErrOK_data(t *testing.T) {
	result := NoErrOK(1, map[string]any{"testkey": "testvalue"})
	assert.Equal(t, map[string]any{"testkey": "testvalue"}, result.Response.Data, "expected Data to match")
}

func TestErrorInvalidMessage(t *testing.T) {
	result := ErrInvalidMessage(-1)
	assert.NotNil(t, result.Response, "expected response to be non-nil")
	assert.Equal(t, 0, result.Id, "expected Id to be zero")
	assert.Equal(t, http.StatusBadRequest, result.Response.ResponseCode)
	assert.Equal(t, "invalid message format", result.Response.Error)

	resultWithId := ErrInvalidMessage(42)
	assert.Equal(t, 42, resultWithId.Id, "expected Id to match")
	assert.Equal(t, http.StatusBadRequest, resultWithId.Response.ResponseCode)
}

func TestNotification_json(t *testing.T) {
	msg := notification(EventZoneLeft, ZoneLeft{UserId: "u1", Zone: "garden"}, nil)

	bytes, err := json.Marshal(msg.Notification)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"zone.left","data":{"user_id":"u1","zone":"garden"}}`, string(bytes))
	assert.Nil(t, msg.SkipClient)
	assert.Nil(t, msg.Response)
}
