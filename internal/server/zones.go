package server

import (
	"context"
	"errors"
	"time"

	"github.com/npezzotti/couple-room/internal/store"
)

const zoneTTL = 300 * time.Second

// Zones are the named areas of a room that activate a shared overlay when
// both partners are in the same one.
var Zones = []string{"kitchen", "lounge", "garden", "bedroom", "office"}

type ZoneState struct {
	Zone      string            `json:"zone"`
	UserId    string            `json:"user_id"`
	Active    bool              `json:"active"`
	Occupants map[string]string `json:"occupants"`
}

type ZoneLeft struct {
	UserId string `json:"user_id"`
	Zone   string `json:"zone"`
}

type ZoneResult struct {
	Activated bool `json:"activated"`
}

func activeZoneKey(roomId string) string {
	return "room:" + roomId + ":active_zone"
}

func (r *Room) handleZone(msg *ClientMessage) {
	switch msg.Zone.Action {
	case "enter":
		r.enterZone(msg)
	case "leave":
		r.leaveZone(msg)
	}
}

// enterZone records the sender in a zone. Occupancy is keyed by user, so
// entering a zone replaces the user's previous one.
func (r *Room) enterZone(msg *ClientMessage) {
	ctx, cancel := r.storeCtx()
	defer cancel()

	userId, zone := msg.client.user.Id, msg.Zone.Zone
	key := activeZoneKey(r.id)

	if err := r.rs.store.HSet(ctx, key, userId, []byte(zone)); err != nil {
		r.log.Printf("store zone for %q: %v", userId, err)
		r.reply(msg, ErrInternalError(msg.Id))
		return
	}
	if err := r.rs.store.Expire(ctx, key, zoneTTL); err != nil {
		r.log.Printf("refresh zone ttl for room %q: %v", r.id, err)
	}

	all, err := r.rs.store.HGetAll(ctx, key)
	if err != nil {
		r.log.Printf("read zones for room %q: %v", r.id, err)
		r.reply(msg, ErrInternalError(msg.Id))
		return
	}

	occupants := make(map[string]string, len(all))
	count := 0
	for id, z := range all {
		occupants[id] = string(z)
		if string(z) == zone {
			count++
		}
	}
	active := count >= 2

	r.broadcast(notification(EventZoneState, ZoneState{
		Zone:      zone,
		UserId:    userId,
		Active:    active,
		Occupants: occupants,
	}, nil))

	r.reply(msg, NoErrOK(msg.Id, ZoneResult{Activated: active}))
}

// leaveZone removes the sender from a zone. Leaving a zone the user is not
// recorded in changes nothing.
func (r *Room) leaveZone(msg *ClientMessage) {
	ctx, cancel := r.storeCtx()
	defer cancel()

	left, err := r.removeFromZone(ctx, msg.client.user.Id, msg.Zone.Zone)
	if err != nil {
		r.log.Printf("leave zone for %q: %v", msg.client.user.Id, err)
		r.reply(msg, ErrInternalError(msg.Id))
		return
	}

	if left != "" {
		r.broadcast(notification(EventZoneLeft, ZoneLeft{
			UserId: msg.client.user.Id,
			Zone:   left,
		}, msg.client))
	}

	r.reply(msg, NoErrAccepted(msg.Id, nil))
}

// removeFromZone deletes the user's occupancy if it is zone, or whatever it
// is when zone is empty, and returns the zone that was left.
func (r *Room) removeFromZone(ctx context.Context, userId, zone string) (string, error) {
	key := activeZoneKey(r.id)

	cur, err := r.rs.store.HGet(ctx, key, userId)
	if err != nil {
		if errors.Is(err, store.ErrNil) {
			return "", nil
		}
		return "", err
	}

	if zone != "" && string(cur) != zone {
		return "", nil
	}

	if err := r.rs.store.HDel(ctx, key, userId); err != nil {
		return "", err
	}

	return string(cur), nil
}

// clearZone drops the zone of a user that left the room.
func (r *Room) clearZone(ctx context.Context, userId string) {
	left, err := r.removeFromZone(ctx, userId, "")
	if err != nil {
		r.log.Printf("clear zone for %q: %v", userId, err)
		return
	}

	if left != "" {
		r.broadcast(notification(EventZoneLeft, ZoneLeft{UserId: userId, Zone: left}, nil))
	}
}
