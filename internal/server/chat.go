package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/npezzotti/couple-room/internal/stats"
	"github.com/teris-io/shortid"
)

const (
	chatHistoryCapacity = 100
	chatHistoryPull     = 50
	maxChatTextLength   = 500
	maxEmojiLength      = 4
)

type ChatMessage struct {
	Id        string    `json:"id"`
	UserId    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type Reaction struct {
	UserId    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Emoji     string    `json:"emoji"`
	Timestamp time.Time `json:"timestamp"`
}

// chatHistory is a fixed size ring of the room's latest messages.
type chatHistory struct {
	buf   []ChatMessage
	start int
	size  int
}

func newChatHistory(capacity int) *chatHistory {
	return &chatHistory{buf: make([]ChatMessage, capacity)}
}

// append adds m, evicting the oldest message when the ring is full.
func (h *chatHistory) append(m ChatMessage) {
	if h.size < len(h.buf) {
		h.buf[(h.start+h.size)%len(h.buf)] = m
		h.size++
		return
	}

	h.buf[h.start] = m
	h.start = (h.start + 1) % len(h.buf)
}

// last returns up to n of the newest messages, oldest first.
func (h *chatHistory) last(n int) []ChatMessage {
	if n > h.size {
		n = h.size
	}

	out := make([]ChatMessage, 0, n)
	for i := h.size - n; i < h.size; i++ {
		out = append(out, h.buf[(h.start+i)%len(h.buf)])
	}
	return out
}

func (h *chatHistory) len() int {
	return h.size
}

// clampRunes trims s and cuts it to at most n characters.
func clampRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}

func newMessageId() string {
	id, err := shortid.Generate()
	if err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return id
}

func (r *Room) handleChat(msg *ClientMessage) {
	switch msg.Chat.Action {
	case "message":
		r.handleChatMessage(msg)
	case "history":
		r.reply(msg, NoErrOK(msg.Id, r.chat.last(chatHistoryPull)))
	case "reaction":
		r.handleReaction(msg)
	}
}

// handleChatMessage stores the message and relays it to the other
// connections. The sender gets the stored message back in the response.
func (r *Room) handleChatMessage(msg *ClientMessage) {
	text := clampRunes(msg.Chat.Text, maxChatTextLength)
	if text == "" {
		r.reply(msg, ErrBadRequest(msg.Id, "message is empty"))
		return
	}

	c := msg.client
	m := ChatMessage{
		Id:        newMessageId(),
		UserId:    c.user.Id,
		UserName:  c.user.DisplayName(),
		Text:      text,
		Timestamp: r.rs.now(),
	}
	r.chat.append(m)
	r.rs.stats.Incr(stats.ChatMessages)

	r.broadcast(notification(EventChatMessage, m, c))
	r.reply(msg, NoErrAccepted(msg.Id, m))
}

func (r *Room) handleReaction(msg *ClientMessage) {
	emoji := clampRunes(msg.Chat.Emoji, maxEmojiLength)
	if emoji == "" {
		r.reply(msg, ErrBadRequest(msg.Id, "reaction is empty"))
		return
	}

	c := msg.client
	r.broadcast(notification(EventChatReaction, Reaction{
		UserId:    c.user.Id,
		UserName:  c.user.DisplayName(),
		Emoji:     emoji,
		Timestamp: r.rs.now(),
	}, c))
	r.reply(msg, NoErrAccepted(msg.Id, nil))
}
