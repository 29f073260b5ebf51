package database

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrEmailTaken = errors.New("email already registered")
	ErrCoupleFull = errors.New("couple is full")
)

// RoomRepository is the durable storage the relay consumes. Lookups that
// find nothing return sql.ErrNoRows.
type RoomRepository interface {
	Ping() error
	GetUserById(ctx context.Context, userId string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	CreateUser(ctx context.Context, params CreateUserParams) (User, error)
	GetCoupleByUser(ctx context.Context, userId string) (Couple, error)
	CreateCouple(ctx context.Context, userId, inviteCode string, layout json.RawMessage) (Couple, error)
	JoinCouple(ctx context.Context, userId, inviteCode string) (Couple, error)
	GetRoomById(ctx context.Context, roomId string) (Room, error)
	UpdateRoomLayout(ctx context.Context, roomId string, layout json.RawMessage) (Room, error)
	GetCoupleMembers(ctx context.Context, coupleId string) ([]string, error)
	CreateSession(ctx context.Context, params CreateSessionParams) (Session, error)
	ListSessions(ctx context.Context, roomId string, limit, offset int) ([]Session, error)
}
