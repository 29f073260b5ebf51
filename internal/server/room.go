package server

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/npezzotti/couple-room/internal/database"
)

const storeTimeout = 2 * time.Second

// Room is the actor for one loaded room. Every handler runs on the room's
// goroutine, so the fields below are never touched concurrently.
type Room struct {
	id            string
	coupleId      string
	rs            *RelayServer
	joinChan      chan *ClientMessage
	leaveChan     chan *ClientMessage
	clientMsgChan chan *ClientMessage
	clients       map[*Client]struct{}
	userMap       map[string]map[*Client]struct{}
	log           *log.Logger
	// killTimer unloads the room once it has been idle for idleTimeout
	killTimer *time.Timer
	exit      chan exitReq
	// done is closed when the room goroutine has exited
	done chan struct{}

	focusTicker ticker
	chat        *chatHistory
}

func (rs *RelayServer) newRoom(dbRoom database.Room) *Room {
	r := &Room{
		id:            dbRoom.Id,
		coupleId:      dbRoom.CoupleId,
		rs:            rs,
		joinChan:      make(chan *ClientMessage, 256),
		leaveChan:     make(chan *ClientMessage, 256),
		clientMsgChan: make(chan *ClientMessage, 256),
		clients:       make(map[*Client]struct{}),
		userMap:       make(map[string]map[*Client]struct{}),
		log:           rs.log,
		killTimer:     time.NewTimer(rs.idleTimeout),
		exit:          make(chan exitReq),
		done:          make(chan struct{}),
		chat:          newChatHistory(chatHistoryCapacity),
	}
	r.killTimer.Stop()

	return r
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.id)

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leaveMsg := <-r.leaveChan:
			r.handleLeave(leaveMsg)
		case msg := <-r.clientMsgChan:
			r.handleClientMessage(msg)
		case <-r.focusTick():
			r.handleFocusTick()
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case e := <-r.exit:
			if r.handleRoomExit(e) {
				return
			}
		}
	}
}

// enqueueLeave delivers a leave to the room unless the room has exited.
func (r *Room) enqueueLeave(msg *ClientMessage) {
	select {
	case r.leaveChan <- msg:
	case <-r.done:
	}
}

func (r *Room) storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeTimeout)
}

func (r *Room) handleRoomTimeout() {
	if r.focusTicker != nil {
		// a running focus timer keeps the room loaded
		r.killTimer.Reset(r.rs.idleTimeout)
		return
	}

	r.log.Printf("room %q timed out", r.id)
	select {
	case r.rs.unloadRoomChan <- r.id:
	default:
		r.log.Printf("unload channel full, retrying room %q later", r.id)
		r.killTimer.Reset(r.rs.idleTimeout)
	}
}

// handleRoomExit reports whether the room goroutine should return. An
// unload request is refused while the room is still in use.
func (r *Room) handleRoomExit(e exitReq) bool {
	if !e.shutdown && (len(r.clients) > 0 || len(r.joinChan) > 0 || r.focusTicker != nil) {
		e.done <- false
		return false
	}

	r.log.Printf("room %q is exiting", r.id)
	r.killTimer.Stop()
	r.stopFocusTicker()

	for c := range r.clients {
		c.detachRoom(r)
	}

	close(r.done)
	e.done <- true
	return true
}

func (r *Room) handleJoin(join *ClientMessage) {
	c := join.client

	ctx, cancel := r.storeCtx()
	positions, err := r.presenceSnapshot(ctx)
	cancel()
	if err != nil {
		r.log.Printf("presence snapshot for room %q: %v", r.id, err)
		c.queueMessage(ErrInternalError(join.Id))
		if len(r.clients) == 0 {
			r.killTimer.Reset(r.rs.idleTimeout)
		}
		return
	}

	prev, err := c.attachRoom(r, join.Join.seq)
	if err != nil {
		// closed connections get no reply
		if errors.Is(err, errJoinSuperseded) {
			c.queueMessage(ErrJoinSuperseded(join.Id))
		}
		if len(r.clients) == 0 {
			r.killTimer.Reset(r.rs.idleTimeout)
		}
		return
	}
	if prev != nil && prev != r {
		go prev.enqueueLeave(&ClientMessage{Leave: &Leave{}, UserId: c.user.Id, client: c})
	}

	r.killTimer.Stop()
	r.addClient(c)

	c.queueMessage(NoErrOK(join.Id, JoinResult{
		RoomId:    r.id,
		Positions: positions,
	}))
}

func (r *Room) handleLeave(leaveMsg *ClientMessage) {
	c := leaveMsg.client
	if !r.removeClient(c) {
		if leaveMsg.expectsResponse() {
			c.queueMessage(ErrNotInRoomResponse(leaveMsg.Id))
		}
		return
	}

	if leaveMsg.expectsResponse() {
		c.queueMessage(NoErrOK(leaveMsg.Id, nil))
	}

	// presence belongs to the user, so it goes with their last connection
	if r.userMap[c.user.Id] == nil {
		r.clearPresence(c.user.Id)
	}
}

// handleClientMessage runs a room-scoped command. Commands from a
// connection that already left are dropped.
func (r *Room) handleClientMessage(msg *ClientMessage) {
	if _, ok := r.clients[msg.client]; !ok {
		if msg.expectsResponse() {
			msg.client.queueMessage(ErrNotInRoomResponse(msg.Id))
		}
		return
	}

	switch {
	case msg.Move != nil:
		r.handleMove(msg)
	case msg.Zone != nil:
		r.handleZone(msg)
	case msg.Watch != nil:
		r.handleWatch(msg)
	case msg.Focus != nil:
		r.handleFocus(msg)
	case msg.Chat != nil:
		r.handleChat(msg)
	case msg.Signal != nil:
		r.handleSignal(msg)
	}
}

func (r *Room) addClient(c *Client) {
	r.clients[c] = struct{}{}
	if r.userMap[c.user.Id] == nil {
		r.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	r.userMap[c.user.Id][c] = struct{}{}

	r.log.Printf("added %q to room %q, %d connections", c.user.Id, r.id, len(r.clients))
}

// removeClient reports whether c was in the room.
func (r *Room) removeClient(c *Client) bool {
	if _, ok := r.clients[c]; !ok {
		return false
	}

	delete(r.clients, c)
	c.detachRoom(r)

	if userClients, ok := r.userMap[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(r.userMap, c.user.Id)
		}
	}

	r.log.Printf("removed %q from room %q, %d connections", c.user.Id, r.id, len(r.clients))

	if len(r.clients) == 0 {
		r.log.Printf("no clients in %q, starting kill timer", r.id)
		r.killTimer.Reset(r.rs.idleTimeout)
	}

	return true
}

// reply answers msg if its sender is waiting for a response.
func (r *Room) reply(msg *ClientMessage, resp *ServerMessage) {
	if msg.expectsResponse() {
		msg.client.queueMessage(resp)
	}
}

func (r *Room) broadcast(msg *ServerMessage) {
	msg.Timestamp = Now()

	for client := range r.clients {
		if client == msg.SkipClient {
			continue
		}

		client.queueMessage(msg)
	}
}
