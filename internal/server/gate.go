package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/npezzotti/couple-room/internal/database"
	"github.com/npezzotti/couple-room/internal/types"
)

var (
	ErrNotFound   = errors.New("room not found")
	ErrForbidden  = errors.New("not a member of this room")
	ErrValidation = errors.New("invalid message")
	ErrNotInRoom  = errors.New("not in a room")
)

// MembershipReader is the part of the durable store the gate reads.
type MembershipReader interface {
	GetRoomById(ctx context.Context, roomId string) (database.Room, error)
	GetCoupleMembers(ctx context.Context, coupleId string) ([]string, error)
}

// Gate decides whether a user may enter a room: the user must be one of
// the members of the couple that owns it.
type Gate struct {
	db MembershipReader
}

func NewGate(db MembershipReader) *Gate {
	return &Gate{db: db}
}

// Authorize returns the room when user is a member of its couple. Room ids
// that are not UUIDs are reported as ErrNotFound without a database lookup.
func (g *Gate) Authorize(ctx context.Context, user types.User, roomId string) (database.Room, error) {
	id, err := uuid.Parse(roomId)
	if err != nil {
		return database.Room{}, fmt.Errorf("%w: malformed id %q", ErrNotFound, roomId)
	}

	room, err := g.db.GetRoomById(ctx, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Room{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return database.Room{}, fmt.Errorf("get room %s: %w", id, err)
	}

	members, err := g.db.GetCoupleMembers(ctx, room.CoupleId)
	if err != nil {
		return database.Room{}, fmt.Errorf("get members of couple %s: %w", room.CoupleId, err)
	}

	if !slices.Contains(members, user.Id) {
		return database.Room{}, fmt.Errorf("%w: user %s, room %s", ErrForbidden, user.Id, id)
	}

	return room, nil
}

// errorResponse maps a gate or handler error to the response sent back for
// the request with the given id.
func errorResponse(id int, err error) *ServerMessage {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrForbidden):
		return ErrRoomUnavailable(id)
	case errors.Is(err, ErrNotInRoom):
		return ErrNotInRoomResponse(id)
	case errors.Is(err, ErrValidation):
		return ErrBadRequest(id, err.Error())
	default:
		return ErrInternalError(id)
	}
}
