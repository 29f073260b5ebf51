package database

import (
	"encoding/json"
	"time"
)

type User struct {
	Id           string
	Name         string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
}

// Room is the durable room record. The relay only reads Id and CoupleId;
// LayoutJson is owned by the layout editor.
type Room struct {
	Id         string          `json:"id"`
	CoupleId   string          `json:"couple_id"`
	LayoutJson json.RawMessage `json:"layout_json"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Couple is a pairing of at most two users. RoomId is empty until the
// couple's room exists.
type Couple struct {
	Id         string `json:"id"`
	InviteCode string `json:"invite_code"`
	RoomId     string `json:"room_id,omitempty"`
}

type CreateUserParams struct {
	Name         string
	EmailAddress string
	PasswordHash string
}

type Session struct {
	Id        int64           `json:"id"`
	RoomId    string          `json:"room_id"`
	Type      string          `json:"type"`
	Duration  *int            `json:"duration"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type CreateSessionParams struct {
	RoomId   string
	Type     string
	Duration *int
	Metadata json.RawMessage
}
