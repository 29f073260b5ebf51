package server

import (
	"context"
	"encoding/json"
	"math"
	"slices"
	"time"
)

// positionTTL bounds how long a position outlives its last move, both for
// the whole hash and for each entry in it.
const positionTTL = 60 * time.Second

var directions = []string{"up", "down", "left", "right"}

type PresenceEntry struct {
	UserId    string    `json:"user_id"`
	Name      string    `json:"name"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Direction string    `json:"direction"`
	UpdatedAt time.Time `json:"updated_at"`
}

type PresenceLeft struct {
	UserId string `json:"user_id"`
}

func positionsKey(roomId string) string {
	return "room:" + roomId + ":positions"
}

// parse returns the move's coordinates and direction. A missing direction
// means "down".
func (m *Move) parse() (x, y float64, direction string, ok bool) {
	x, ok = coordinate(m.X)
	if !ok {
		return 0, 0, "", false
	}
	y, ok = coordinate(m.Y)
	if !ok {
		return 0, 0, "", false
	}

	if m.Direction == nil {
		return x, y, "down", true
	}

	direction, ok = m.Direction.(string)
	if !ok || !slices.Contains(directions, direction) {
		return 0, 0, "", false
	}

	return x, y, direction, true
}

func coordinate(v any) (float64, bool) {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// handleMove stores the sender's position and relays it to every other
// connection in the room. Bad moves are dropped without a response.
func (r *Room) handleMove(msg *ClientMessage) {
	x, y, direction, ok := msg.Move.parse()
	if !ok {
		return
	}

	c := msg.client
	entry := PresenceEntry{
		UserId:    c.user.Id,
		Name:      c.user.DisplayName(),
		X:         x,
		Y:         y,
		Direction: direction,
		UpdatedAt: r.rs.now(),
	}

	if data, err := json.Marshal(entry); err != nil {
		r.log.Println("marshal presence entry:", err)
	} else {
		ctx, cancel := r.storeCtx()
		key := positionsKey(r.id)
		if err := r.rs.store.HSet(ctx, key, c.user.Id, data); err != nil {
			r.log.Printf("store position for %q: %v", c.user.Id, err)
		} else if err := r.rs.store.Expire(ctx, key, positionTTL); err != nil {
			r.log.Printf("refresh positions ttl for room %q: %v", r.id, err)
		}
		cancel()
	}

	r.broadcast(notification(EventPresenceMoved, entry, c))
}

// presenceSnapshot returns the positions of the room's occupants, leaving
// out entries that have not been refreshed within positionTTL.
func (r *Room) presenceSnapshot(ctx context.Context) (map[string]PresenceEntry, error) {
	all, err := r.rs.store.HGetAll(ctx, positionsKey(r.id))
	if err != nil {
		return nil, err
	}

	now := r.rs.now()
	positions := make(map[string]PresenceEntry, len(all))
	for userId, raw := range all {
		var entry PresenceEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			r.log.Printf("skipping malformed position for %q: %v", userId, err)
			continue
		}

		if now.Sub(entry.UpdatedAt) > positionTTL {
			continue
		}

		positions[userId] = entry
	}

	return positions, nil
}

// clearPresence removes a user that has no connection left in the room:
// their position and their zone occupancy.
func (r *Room) clearPresence(userId string) {
	ctx, cancel := r.storeCtx()
	defer cancel()

	if err := r.rs.store.HDel(ctx, positionsKey(r.id), userId); err != nil {
		r.log.Printf("delete position for %q: %v", userId, err)
	}

	r.broadcast(notification(EventPresenceLeft, PresenceLeft{UserId: userId}, nil))

	r.clearZone(ctx, userId)
}
