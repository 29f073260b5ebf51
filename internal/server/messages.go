package server

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"slices"
	"time"

	"github.com/npezzotti/couple-room/internal/database"
)

// Notification event names.
const (
	EventPresenceMoved = "presence.moved"
	EventPresenceLeft  = "presence.left"
	EventZoneState     = "zone.state"
	EventZoneLeft      = "zone.left"
	EventWatchLoad     = "watch.load"
	EventWatchPlay     = "watch.play"
	EventWatchPause    = "watch.pause"
	EventWatchSeek     = "watch.seek"
	EventWatchEnd      = "watch.end"
	EventFocusStart    = "focus.start"
	EventFocusTick     = "focus.tick"
	EventFocusPause    = "focus.pause"
	EventFocusResume   = "focus.resume"
	EventFocusCancel   = "focus.cancel"
	EventFocusComplete = "focus.complete"
	EventChatMessage   = "chat.message"
	EventChatReaction  = "chat.reaction"
	EventSignal        = "signal"
)

const maxURLLength = 2048

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is a frame received from a connection. Exactly one of the
// payload fields is set on a valid message.
type ClientMessage struct {
	BaseMessage
	Join   *Join      `json:"join,omitempty"`
	Leave  *Leave     `json:"leave,omitempty"`
	Move   *Move      `json:"move,omitempty"`
	Zone   *ZoneCmd   `json:"zone,omitempty"`
	Watch  *WatchCmd  `json:"watch,omitempty"`
	Focus  *FocusCmd  `json:"focus,omitempty"`
	Chat   *ChatCmd   `json:"chat,omitempty"`
	Signal *SignalCmd `json:"signal,omitempty"`
	UserId string     `json:"-"`
	client *Client    `json:"-"`
}

type Join struct {
	RoomId string `json:"room_id"`
	// room is set once the membership gate has authorized the join
	room database.Room
	seq  uint64
}

type Leave struct{}

// Move carries raw values so a malformed coordinate drops the move
// instead of failing the whole frame.
type Move struct {
	X         any `json:"x"`
	Y         any `json:"y"`
	Direction any `json:"direction,omitempty"`
}

type ZoneCmd struct {
	Action string `json:"action"`
	Zone   string `json:"zone"`
}

type WatchCmd struct {
	Action string   `json:"action"`
	Url    string   `json:"url,omitempty"`
	Time   *float64 `json:"time,omitempty"`
}

type FocusCmd struct {
	Action   string   `json:"action"`
	Duration *float64 `json:"duration,omitempty"`
}

type ChatCmd struct {
	Action string `json:"action"`
	Text   string `json:"text,omitempty"`
	Emoji  string `json:"emoji,omitempty"`
}

type SignalCmd struct {
	Channel string          `json:"channel"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var (
	zoneActions   = []string{"enter", "leave"}
	focusActions  = []string{"start", "pause", "resume", "cancel", "sync"}
	chatActions   = []string{"message", "history", "reaction"}
	signalChannel = []string{"webrtc", "screen"}
	signalKinds   = []string{"offer", "answer", "ice", "hangup", "start", "stop"}
)

// Validate checks that exactly one payload is set and that its required
// fields are present. Coordinates of a move are checked by the presence
// relay, which drops bad moves without a response.
func (m *ClientMessage) Validate() error {
	set := 0
	for _, present := range []bool{
		m.Join != nil, m.Leave != nil, m.Move != nil, m.Zone != nil,
		m.Watch != nil, m.Focus != nil, m.Chat != nil, m.Signal != nil,
	} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: expected exactly one payload, got %d", ErrValidation, set)
	}

	switch {
	case m.Join != nil:
		if m.Join.RoomId == "" {
			return fmt.Errorf("%w: room_id is required", ErrValidation)
		}
	case m.Zone != nil:
		if !slices.Contains(zoneActions, m.Zone.Action) {
			return fmt.Errorf("%w: unknown zone action %q", ErrValidation, m.Zone.Action)
		}
		if !slices.Contains(Zones, m.Zone.Zone) {
			return fmt.Errorf("%w: unknown zone %q", ErrValidation, m.Zone.Zone)
		}
	case m.Watch != nil:
		return m.Watch.validate()
	case m.Focus != nil:
		if !slices.Contains(focusActions, m.Focus.Action) {
			return fmt.Errorf("%w: unknown focus action %q", ErrValidation, m.Focus.Action)
		}
	case m.Chat != nil:
		if !slices.Contains(chatActions, m.Chat.Action) {
			return fmt.Errorf("%w: unknown chat action %q", ErrValidation, m.Chat.Action)
		}
	case m.Signal != nil:
		if !slices.Contains(signalChannel, m.Signal.Channel) {
			return fmt.Errorf("%w: unknown signal channel %q", ErrValidation, m.Signal.Channel)
		}
		if !slices.Contains(signalKinds, m.Signal.Kind) {
			return fmt.Errorf("%w: unknown signal kind %q", ErrValidation, m.Signal.Kind)
		}
	}

	return nil
}

// expectsResponse reports whether the sender is waiting for a response.
// Moves are fire-and-forget even when they carry an id.
func (m *ClientMessage) expectsResponse() bool {
	return m.Id > 0 && m.Move == nil
}

func (w *WatchCmd) validate() error {
	switch w.Action {
	case "load":
		if w.Url == "" || len(w.Url) > maxURLLength {
			return fmt.Errorf("%w: url must be between 1 and %d characters", ErrValidation, maxURLLength)
		}
	case "play", "pause", "seek":
		if w.Time == nil || *w.Time < 0 || math.IsInf(*w.Time, 0) {
			return fmt.Errorf("%w: time must be a non-negative number", ErrValidation)
		}
	case "end", "sync":
	default:
		return fmt.Errorf("%w: unknown watch action %q", ErrValidation, w.Action)
	}

	return nil
}

type ServerMessage struct {
	BaseMessage
	Response     *Response     `json:"response,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
	SkipClient   *Client       `json:"-"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type JoinResult struct {
	RoomId    string                   `json:"room_id"`
	Positions map[string]PresenceEntry `json:"positions"`
}

func NoErrOK(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
			Data:         data,
		},
	}
}

// ErrRoomUnavailable answers both a missing room and a room the user is
// not a member of, so a caller cannot learn which rooms exist.
func ErrRoomUnavailable(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusForbidden,
			Error:        "room not found or access denied",
		},
	}
}

func ErrNotInRoomResponse(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusConflict,
			Error:        "not in a room",
		},
	}
}

func ErrJoinSuperseded(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusConflict,
			Error:        errJoinSuperseded.Error(),
		},
	}
}

func ErrInternalError(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func ErrBadRequest(id int, reason string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        reason,
		},
	}
}

func notification(event string, data any, skip *Client) *ServerMessage {
	return &ServerMessage{
		Notification: &Notification{
			Event: event,
			Data:  data,
		},
		SkipClient: skip,
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
