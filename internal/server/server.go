package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/npezzotti/couple-room/internal/database"
	"github.com/npezzotti/couple-room/internal/stats"
	"github.com/npezzotti/couple-room/internal/store"
)

const DefaultRoomIdleTimeout = 5 * time.Minute

// ticker is the handle of a room's focus tick loop.
type ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func newTimeTicker(d time.Duration) ticker {
	return timeTicker{t: time.NewTicker(d)}
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

type exitReq struct {
	// shutdown forces the room to exit even when it is in use
	shutdown bool
	done     chan bool
}

// RelayServer owns the loaded rooms. Rooms are loaded on the first
// authorized join and unloaded after they have been idle for idleTimeout.
type RelayServer struct {
	log            *log.Logger
	db             database.RoomRepository
	store          store.Store
	stats          stats.StatsProvider
	gate           *Gate
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	registerChan   chan *Client
	joinChan       chan *ClientMessage
	deRegisterChan chan *Client
	unloadRoomChan chan string
	rooms          map[string]*Room
	idleTimeout    time.Duration
	newTicker      func(time.Duration) ticker
	now            func() time.Time
	stop           chan struct{}
	stopOnce       sync.Once
	done           chan struct{}
}

func NewRelayServer(logger *log.Logger, db database.RoomRepository, st store.Store, su stats.StatsProvider, idleTimeout time.Duration) *RelayServer {
	if idleTimeout <= 0 {
		idleTimeout = DefaultRoomIdleTimeout
	}

	for _, m := range []string{stats.ActiveClients, stats.ActiveRooms, stats.ActiveFocusTimers, stats.ChatMessages} {
		su.RegisterMetric(m)
	}

	return &RelayServer{
		log:            logger,
		db:             db,
		store:          st,
		stats:          su,
		gate:           NewGate(db),
		clients:        make(map[*Client]struct{}),
		registerChan:   make(chan *Client, 64),
		joinChan:       make(chan *ClientMessage, 256),
		deRegisterChan: make(chan *Client, 64),
		unloadRoomChan: make(chan string, 64),
		rooms:          make(map[string]*Room),
		idleTimeout:    idleTimeout,
		newTicker:      newTimeTicker,
		now:            func() time.Time { return time.Now().UTC() },
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

func (rs *RelayServer) Gate() *Gate {
	return rs.gate
}

func (rs *RelayServer) Run() {
	for {
		select {
		case joinMsg := <-rs.joinChan:
			rs.handleJoin(joinMsg)
		case client := <-rs.registerChan:
			rs.log.Printf("adding connection from %q", client.user.Id)
			rs.addClient(client)
		case client := <-rs.deRegisterChan:
			rs.log.Printf("removing connection from %q", client.user.Id)
			rs.removeClient(client)
		case id := <-rs.unloadRoomChan:
			rs.unloadRoom(id)
		case <-rs.stop:
			rs.log.Println("shutting down rooms")
			for id, r := range rs.rooms {
				rs.log.Println("shutting down room", id)
				req := exitReq{shutdown: true, done: make(chan bool, 1)}
				r.exit <- req
				<-req.done
				delete(rs.rooms, id)
				rs.stats.Decr(stats.ActiveRooms)
			}

			close(rs.done)
			return
		}
	}
}

// handleJoin hands an authorized join to its room, loading the room first
// if needed.
func (rs *RelayServer) handleJoin(joinMsg *ClientMessage) {
	dbRoom := joinMsg.Join.room
	room, ok := rs.rooms[dbRoom.Id]
	if !ok {
		room = rs.newRoom(dbRoom)
		rs.rooms[room.id] = room
		rs.stats.Incr(stats.ActiveRooms)
		rs.log.Printf("loaded room %q", room.id)

		go room.start()
	}

	select {
	case room.joinChan <- joinMsg:
	default:
		rs.log.Printf("join channel full on room %q", room.id)
		joinMsg.client.queueMessage(ErrServiceUnavailable(joinMsg.Id))
	}
}

// unloadRoom asks an idle room to exit. The room refuses if it picked up
// a client, a pending join or a running focus timer in the meantime.
func (rs *RelayServer) unloadRoom(roomId string) {
	r, ok := rs.rooms[roomId]
	if !ok {
		return
	}

	req := exitReq{done: make(chan bool, 1)}
	r.exit <- req
	if !<-req.done {
		rs.log.Printf("room %q is busy, not unloading", roomId)
		return
	}

	delete(rs.rooms, roomId)
	rs.stats.Decr(stats.ActiveRooms)
	rs.log.Printf("unloaded room %q, %d rooms loaded", roomId, len(rs.rooms))
}

// RegisterClient adds a connection that passed authentication.
func (rs *RelayServer) RegisterClient(c *Client) {
	select {
	case rs.registerChan <- c:
	case <-rs.done:
	}
}

func (rs *RelayServer) addClient(c *Client) {
	rs.clientsLock.Lock()
	defer rs.clientsLock.Unlock()

	if _, ok := rs.clients[c]; ok {
		return
	}
	rs.clients[c] = struct{}{}
	rs.stats.Incr(stats.ActiveClients)
}

func (rs *RelayServer) removeClient(c *Client) {
	rs.clientsLock.Lock()
	defer rs.clientsLock.Unlock()

	if _, ok := rs.clients[c]; !ok {
		return
	}
	delete(rs.clients, c)
	rs.stats.Decr(stats.ActiveClients)
}

// Shutdown stops every client and room. It returns ctx.Err() if the rooms
// have not exited before ctx is done.
func (rs *RelayServer) Shutdown(ctx context.Context) error {
	rs.log.Println("received shutdown signal")

	rs.clientsLock.Lock()
	for c := range rs.clients {
		c.stopClient()
	}
	rs.clientsLock.Unlock()

	rs.stopOnce.Do(func() { close(rs.stop) })

	select {
	case <-rs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
