package server

import (
	"time"

	"github.com/npezzotti/couple-room/internal/store"
)

const watchTTL = time.Hour

// PlaybackState is the room's shared player. Position is authoritative at
// UpdatedAt; clients interpolate from there.
type PlaybackState struct {
	Url       string    `json:"url"`
	Playing   bool      `json:"playing"`
	Position  float64   `json:"position"`
	UpdatedAt time.Time `json:"updated_at"`
}

type WatchEvent struct {
	UserId string `json:"user_id"`
	*PlaybackState
}

func watchKey(roomId string) string {
	return "room:" + roomId + ":watch"
}

func (r *Room) handleWatch(msg *ClientMessage) {
	cmd := msg.Watch

	switch cmd.Action {
	case "load":
		r.loadPlayback(msg)
	case "play", "pause", "seek":
		r.updatePlayback(msg)
	case "end":
		r.endPlayback(msg)
	case "sync":
		ctx, cancel := r.storeCtx()
		defer cancel()

		var state PlaybackState
		ok, err := store.GetJSON(ctx, r.rs.store, watchKey(r.id), &state)
		if err != nil {
			r.log.Printf("read playback for room %q: %v", r.id, err)
			r.reply(msg, ErrInternalError(msg.Id))
			return
		}
		if !ok {
			r.reply(msg, NoErrOK(msg.Id, nil))
			return
		}
		r.reply(msg, NoErrOK(msg.Id, &state))
	}
}

// loadPlayback replaces any current state; the last load wins.
func (r *Room) loadPlayback(msg *ClientMessage) {
	ctx, cancel := r.storeCtx()
	defer cancel()

	state := &PlaybackState{
		Url:       msg.Watch.Url,
		UpdatedAt: r.rs.now(),
	}
	if err := store.SetJSON(ctx, r.rs.store, watchKey(r.id), state, watchTTL); err != nil {
		r.log.Printf("store playback for room %q: %v", r.id, err)
		r.reply(msg, ErrInternalError(msg.Id))
		return
	}

	r.broadcast(notification(EventWatchLoad, WatchEvent{UserId: msg.client.user.Id, PlaybackState: state}, nil))
	r.reply(msg, NoErrAccepted(msg.Id, nil))
}

// updatePlayback applies play, pause or seek. Without a loaded video the
// command is dropped.
func (r *Room) updatePlayback(msg *ClientMessage) {
	ctx, cancel := r.storeCtx()
	defer cancel()

	key := watchKey(r.id)
	var state PlaybackState
	ok, err := store.GetJSON(ctx, r.rs.store, key, &state)
	if err != nil {
		r.log.Printf("read playback for room %q: %v", r.id, err)
		r.reply(msg, ErrInternalError(msg.Id))
		return
	}
	if !ok {
		r.reply(msg, NoErrAccepted(msg.Id, nil))
		return
	}

	var event string
	switch msg.Watch.Action {
	case "play":
		state.Playing = true
		event = EventWatchPlay
	case "pause":
		state.Playing = false
		event = EventWatchPause
	case "seek":
		event = EventWatchSeek
	}
	state.Position = *msg.Watch.Time
	state.UpdatedAt = r.rs.now()

	if err := store.SetJSON(ctx, r.rs.store, key, &state, watchTTL); err != nil {
		r.log.Printf("store playback for room %q: %v", r.id, err)
		r.reply(msg, ErrInternalError(msg.Id))
		return
	}

	r.broadcast(notification(event, WatchEvent{UserId: msg.client.user.Id, PlaybackState: &state}, msg.client))
	r.reply(msg, NoErrAccepted(msg.Id, nil))
}

// endPlayback reaches the sender as well, so their other devices stop too.
func (r *Room) endPlayback(msg *ClientMessage) {
	ctx, cancel := r.storeCtx()
	defer cancel()

	if err := r.rs.store.Del(ctx, watchKey(r.id)); err != nil {
		r.log.Printf("delete playback for room %q: %v", r.id, err)
		r.reply(msg, ErrInternalError(msg.Id))
		return
	}

	r.broadcast(notification(EventWatchEnd, WatchEvent{UserId: msg.client.user.Id}, nil))
	r.reply(msg, NoErrAccepted(msg.Id, nil))
}
