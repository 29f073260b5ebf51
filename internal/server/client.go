package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/couple-room/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	gateTimeout    = 5 * time.Second
)

type Client struct {
	conn       *websocket.Conn
	rs         *RelayServer
	log        *log.Logger
	user       types.User
	send       chan *ServerMessage
	room       *Room
	roomLock   sync.RWMutex
	closed     bool
	joinSeq    uint64
	lastActive atomic.Int64
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, rs *RelayServer, l *log.Logger) *Client {
	c := &Client{
		conn: conn,
		rs:   rs,
		log:  l,
		user: user,
		send: make(chan *ServerMessage, 256),
		stop: make(chan struct{}),
	}
	c.touch()

	return c
}

func (c *Client) User() types.User {
	return c.user
}

// LastActive reports when the connection last sent a frame.
func (c *Client) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

func (c *Client) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Printf("write exiting for %q", c.user.Id)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Printf("read exiting for %q", c.user.Id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		c.touch()

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		msg.client = c
		msg.UserId = c.user.Id
		msg.Timestamp = Now()

		c.dispatch(&msg)
	}
}

// dispatch routes a decoded frame. Frames without an id never get an error
// response, and a move never gets any response at all.
func (c *Client) dispatch(msg *ClientMessage) {
	if err := msg.Validate(); err != nil {
		c.log.Printf("dropping frame from %q: %v", c.user.Id, err)
		if msg.expectsResponse() {
			c.queueMessage(errorResponse(msg.Id, err))
		}
		return
	}

	switch {
	case msg.Join != nil:
		c.joinRoom(msg)
	case msg.Leave != nil:
		c.leaveRoom(msg)
	default:
		r := c.getRoom()
		if r == nil {
			if msg.expectsResponse() {
				c.queueMessage(ErrNotInRoomResponse(msg.Id))
			}
			return
		}

		select {
		case r.clientMsgChan <- msg:
		default:
			c.log.Printf("clientMsgChan full for room %q", r.id)
			if msg.expectsResponse() {
				c.queueMessage(ErrServiceUnavailable(msg.Id))
			}
		}
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// cleanup runs once the connection is gone: it deregisters the client and
// takes it out of its room, which clears its presence there.
func (c *Client) cleanup() {
	r := c.markClosed()
	c.stopClient()

	select {
	case c.rs.deRegisterChan <- c:
	case <-c.rs.done:
	}

	if r != nil {
		r.enqueueLeave(&ClientMessage{
			Leave:  &Leave{},
			UserId: c.user.Id,
			client: c,
		})
	}
}

// joinRoom authorizes the join against the couple membership before it
// reaches the hub, so a rejected connection is never added to a room.
func (c *Client) joinRoom(msg *ClientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), gateTimeout)
	room, err := c.rs.gate.Authorize(ctx, c.user, msg.Join.RoomId)
	cancel()
	if err != nil {
		c.log.Printf("join %q by %q rejected: %v", msg.Join.RoomId, c.user.Id, err)
		c.queueMessage(errorResponse(msg.Id, err))
		return
	}
	msg.Join.room = room
	msg.Join.seq = c.nextJoinSeq()

	// a connection is in at most one room
	if cur := c.getRoom(); cur != nil && cur.id != room.Id {
		c.detachRoom(cur)
		cur.enqueueLeave(&ClientMessage{
			Leave:  &Leave{},
			UserId: c.user.Id,
			client: c,
		})
	}

	select {
	case c.rs.joinChan <- msg:
	default:
		c.log.Printf("joinChan full")
		c.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

func (c *Client) leaveRoom(msg *ClientMessage) {
	r := c.getRoom()
	if r == nil {
		if msg.Id > 0 {
			c.queueMessage(ErrNotInRoomResponse(msg.Id))
		}
		return
	}

	c.detachRoom(r)
	r.enqueueLeave(msg)
}

var (
	errClientClosed   = errors.New("connection closed")
	errJoinSuperseded = errors.New("join superseded by a later join")
)

// nextJoinSeq stamps a join with its position among the connection's joins.
func (c *Client) nextJoinSeq() uint64 {
	c.roomLock.Lock()
	defer c.roomLock.Unlock()

	c.joinSeq++
	return c.joinSeq
}

// attachRoom records r as the client's room and returns the room it
// replaces. Only the latest join may attach: rooms handle joins on their
// own goroutines, so an older join can reach its room after a newer one.
// It also fails once the connection has been closed so a late join cannot
// leave a dead client in a room.
func (c *Client) attachRoom(r *Room, seq uint64) (*Room, error) {
	c.roomLock.Lock()
	defer c.roomLock.Unlock()

	if c.closed {
		return nil, errClientClosed
	}
	if seq != c.joinSeq {
		return nil, errJoinSuperseded
	}

	prev := c.room
	c.room = r
	return prev, nil
}

// detachRoom clears the client's room if it is still r.
func (c *Client) detachRoom(r *Room) {
	c.roomLock.Lock()
	defer c.roomLock.Unlock()

	if c.room == r {
		c.room = nil
	}
}

func (c *Client) markClosed() *Room {
	c.roomLock.Lock()
	defer c.roomLock.Unlock()

	c.closed = true
	r := c.room
	c.room = nil
	return r
}

func (c *Client) getRoom() *Room {
	c.roomLock.RLock()
	defer c.roomLock.RUnlock()

	return c.room
}
