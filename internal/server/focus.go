package server

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/npezzotti/couple-room/internal/database"
	"github.com/npezzotti/couple-room/internal/stats"
	"github.com/npezzotti/couple-room/internal/store"
)

const (
	focusTickInterval    = time.Second
	defaultFocusDuration = 1500
	minFocusDuration     = 60
	maxFocusDuration     = 7200
	// a running timer's state outlives its remaining time by this much
	focusTTLSlack    = 60 * time.Second
	pausedFocusTTL   = time.Hour
	recordTimeout    = 5 * time.Second
	focusSessionType = "focus"
)

// TimerState is the room's focus countdown, in seconds.
type TimerState struct {
	Remaining int       `json:"remaining"`
	Total     int       `json:"total"`
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at"`
}

type FocusEvent struct {
	Remaining int    `json:"remaining"`
	Total     int    `json:"total"`
	UserId    string `json:"user_id,omitempty"`
}

func focusKey(roomId string) string {
	return "room:" + roomId + ":focus"
}

// clampFocusDuration treats a zero duration as missing.
func clampFocusDuration(d *float64) int {
	if d == nil || *d == 0 || math.IsNaN(*d) {
		return defaultFocusDuration
	}

	return int(math.Round(math.Max(minFocusDuration, math.Min(maxFocusDuration, *d))))
}

func (s TimerState) ttl() time.Duration {
	if !s.Running {
		return pausedFocusTTL
	}
	return time.Duration(s.Remaining)*time.Second + focusTTLSlack
}

// focusTick is nil while the room has no tick loop, which disables its case
// in the room's select.
func (r *Room) focusTick() <-chan time.Time {
	if r.focusTicker == nil {
		return nil
	}
	return r.focusTicker.C()
}

func (r *Room) startFocusTicker() {
	if r.focusTicker != nil {
		return
	}

	r.focusTicker = r.rs.newTicker(focusTickInterval)
	r.rs.stats.Incr(stats.ActiveFocusTimers)
}

func (r *Room) stopFocusTicker() {
	if r.focusTicker == nil {
		return
	}

	r.focusTicker.Stop()
	r.focusTicker = nil
	r.rs.stats.Decr(stats.ActiveFocusTimers)

	if len(r.clients) == 0 {
		r.killTimer.Reset(r.rs.idleTimeout)
	}
}

func (r *Room) loadTimer(ctx context.Context) (TimerState, bool, error) {
	var state TimerState
	ok, err := store.GetJSON(ctx, r.rs.store, focusKey(r.id), &state)
	return state, ok, err
}

func (r *Room) saveTimer(ctx context.Context, state TimerState) error {
	return store.SetJSON(ctx, r.rs.store, focusKey(r.id), state, state.ttl())
}

func (r *Room) handleFocus(msg *ClientMessage) {
	switch msg.Focus.Action {
	case "start":
		r.startFocus(msg)
	case "pause", "resume":
		r.toggleFocus(msg)
	case "cancel":
		r.cancelFocus(msg)
	case "sync":
		ctx, cancel := r.storeCtx()
		defer cancel()

		state, ok, err := r.loadTimer(ctx)
		if err != nil {
			r.log.Printf("read focus timer for room %q: %v", r.id, err)
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

// startFocus replaces any timer in the room. The old tick loop is stopped
// before the new state is written, so only one loop ever decrements.
func (r *Room) startFocus(msg *ClientMessage) {
	r.stopFocusTicker()

	total := clampFocusDuration(msg.Focus.Duration)
	state := TimerState{
		Remaining: total,
		Total:     total,
		Running:   true,
		StartedAt: r.rs.now(),
	}

	ctx, cancel := r.storeCtx()
	defer cancel()

	if err := r.saveTimer(ctx, state); err != nil {
		r.log.Printf("store focus timer for room %q: %v", r.id, err)
		r.reply(msg, ErrInternalError(msg.Id))
		return
	}

	r.startFocusTicker()

	r.broadcast(notification(EventFocusStart, FocusEvent{
		Remaining: state.Remaining,
		Total:     state.Total,
		UserId:    msg.client.user.Id,
	}, nil))
	r.reply(msg, NoErrAccepted(msg.Id, nil))
}

// toggleFocus pauses or resumes the timer. Remaining time is left alone.
func (r *Room) toggleFocus(msg *ClientMessage) {
	ctx, cancel := r.storeCtx()
	defer cancel()

	state, ok, err := r.loadTimer(ctx)
	if err != nil {
		r.log.Printf("read focus timer for room %q: %v", r.id, err)
		r.reply(msg, ErrInternalError(msg.Id))
		return
	}
	if !ok {
		r.reply(msg, NoErrAccepted(msg.Id, nil))
		return
	}

	event := EventFocusPause
	state.Running = false
	if msg.Focus.Action == "resume" {
		event = EventFocusResume
		state.Running = true
	}

	if err := r.saveTimer(ctx, state); err != nil {
		r.log.Printf("store focus timer for room %q: %v", r.id, err)
		r.reply(msg, ErrInternalError(msg.Id))
		return
	}

	if state.Running {
		r.startFocusTicker()
	}

	r.broadcast(notification(event, FocusEvent{
		Remaining: state.Remaining,
		Total:     state.Total,
		UserId:    msg.client.user.Id,
	}, nil))
	r.reply(msg, NoErrAccepted(msg.Id, nil))
}

func (r *Room) cancelFocus(msg *ClientMessage) {
	r.stopFocusTicker()

	ctx, cancel := r.storeCtx()
	defer cancel()

	if err := r.rs.store.Del(ctx, focusKey(r.id)); err != nil {
		r.log.Printf("delete focus timer for room %q: %v", r.id, err)
		r.reply(msg, ErrInternalError(msg.Id))
		return
	}

	r.broadcast(notification(EventFocusCancel, FocusEvent{UserId: msg.client.user.Id}, nil))
	r.reply(msg, NoErrAccepted(msg.Id, nil))
}

// handleFocusTick advances a running timer by one second. The loop stops
// when the state is gone, and a paused timer is skipped.
func (r *Room) handleFocusTick() {
	ctx, cancel := r.storeCtx()
	defer cancel()

	state, ok, err := r.loadTimer(ctx)
	if err != nil {
		r.log.Printf("read focus timer for room %q: %v", r.id, err)
		return
	}
	if !ok {
		r.stopFocusTicker()
		return
	}
	if !state.Running {
		return
	}

	state.Remaining--
	if state.Remaining <= 0 {
		r.completeFocus(ctx, state)
		return
	}

	if err := r.saveTimer(ctx, state); err != nil {
		r.log.Printf("store focus timer for room %q: %v", r.id, err)
	}

	r.broadcast(notification(EventFocusTick, FocusEvent{
		Remaining: state.Remaining,
		Total:     state.Total,
	}, nil))
}

func (r *Room) completeFocus(ctx context.Context, state TimerState) {
	r.stopFocusTicker()

	if err := r.rs.store.Del(ctx, focusKey(r.id)); err != nil {
		r.log.Printf("delete focus timer for room %q: %v", r.id, err)
	}

	r.broadcast(notification(EventFocusComplete, FocusEvent{Total: state.Total}, nil))

	go r.recordFocusSession(state.Total, r.rs.now())
}

// recordFocusSession writes the completed session. Failures are logged
// and not retried.
func (r *Room) recordFocusSession(total int, completedAt time.Time) {
	metadata, err := json.Marshal(map[string]any{"completedAt": completedAt.Format(time.RFC3339)})
	if err != nil {
		r.log.Println("marshal session metadata:", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if _, err := r.rs.db.CreateSession(ctx, database.CreateSessionParams{
		RoomId:   r.id,
		Type:     focusSessionType,
		Duration: &total,
		Metadata: metadata,
	}); err != nil {
		r.log.Printf("record focus session for room %q: %v", r.id, err)
	}
}
