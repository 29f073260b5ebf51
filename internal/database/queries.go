package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/lib/pq"
)

const (
	defaultSessionLimit = 20
	maxSessionLimit     = 100

	uniqueViolation = "23505"
)

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func (db *PgRoomRepository) GetUserById(ctx context.Context, userId string) (User, error) {
	row := db.conn.QueryRowContext(
		ctx,
		"SELECT id, COALESCE(name, ''), email, created_at FROM users "+
			"WHERE id = $1 LIMIT 1",
		userId,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Name,
		&user.EmailAddress,
		&user.CreatedAt,
	)

	return user, err
}

// CreateUser inserts a user, returning ErrEmailTaken when the email is
// already registered.
func (db *PgRoomRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	row := db.conn.QueryRowContext(
		ctx,
		"INSERT INTO users (email, name, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING id, COALESCE(name, ''), email, created_at",
		params.EmailAddress,
		params.Name,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Name,
		&user.EmailAddress,
		&user.CreatedAt,
	)
	if isUniqueViolation(err) {
		return User{}, ErrEmailTaken
	}

	return user, err
}

func (db *PgRoomRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := db.conn.QueryRowContext(
		ctx,
		"SELECT id, COALESCE(name, ''), email, COALESCE(password_hash, ''), created_at FROM users "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Name,
		&user.EmailAddress,
		&user.PasswordHash,
		&user.CreatedAt,
	)

	return user, err
}

const roomColumns = "id, couple_id, COALESCE(layout_json, 'null'::jsonb), created_at, updated_at"

func (db *PgRoomRepository) GetRoomById(ctx context.Context, roomId string) (Room, error) {
	row := db.conn.QueryRowContext(
		ctx,
		"SELECT "+roomColumns+" FROM rooms WHERE id = $1 LIMIT 1",
		roomId,
	)

	return scanRoom(row)
}

func (db *PgRoomRepository) UpdateRoomLayout(ctx context.Context, roomId string, layout json.RawMessage) (Room, error) {
	row := db.conn.QueryRowContext(
		ctx,
		"UPDATE rooms SET layout_json = $1, updated_at = $2 WHERE id = $3 RETURNING "+roomColumns,
		[]byte(layout),
		time.Now().UTC(),
		roomId,
	)

	return scanRoom(row)
}

func scanRoom(row scanner) (Room, error) {
	var (
		room   Room
		layout []byte
	)

	if err := row.Scan(&room.Id, &room.CoupleId, &layout, &room.CreatedAt, &room.UpdatedAt); err != nil {
		return Room{}, err
	}
	room.LayoutJson = layout

	return room, nil
}

func (db *PgRoomRepository) GetCoupleMembers(ctx context.Context, coupleId string) ([]string, error) {
	return queryMembers(ctx, db.conn, coupleId)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryMembers(ctx context.Context, q querier, coupleId string) ([]string, error) {
	rows, err := q.QueryContext(
		ctx,
		"SELECT user_id FROM couple_members WHERE couple_id = $1",
		coupleId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]string, 0, 2)
	for rows.Next() {
		var userId string
		if err := rows.Scan(&userId); err != nil {
			return nil, err
		}

		members = append(members, userId)
	}

	return members, rows.Err()
}

func (db *PgRoomRepository) CreateSession(ctx context.Context, params CreateSessionParams) (Session, error) {
	var metadata any
	if len(params.Metadata) > 0 {
		metadata = []byte(params.Metadata)
	}

	row := db.conn.QueryRowContext(
		ctx,
		"INSERT INTO sessions (room_id, type, duration, metadata, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id, room_id, type, duration, metadata, created_at",
		params.RoomId,
		params.Type,
		params.Duration,
		metadata,
		time.Now().UTC(),
	)

	return scanSession(row)
}

// ListSessions returns a room's sessions, newest first. limit is clamped
// to [1, 100] and defaults to 20.
func (db *PgRoomRepository) ListSessions(ctx context.Context, roomId string, limit, offset int) ([]Session, error) {
	if limit <= 0 {
		limit = defaultSessionLimit
	}
	if limit > maxSessionLimit {
		limit = maxSessionLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.QueryContext(
		ctx,
		"SELECT id, room_id, type, duration, metadata, created_at FROM sessions "+
			"WHERE room_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		roomId,
		limit,
		offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]Session, 0, limit)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}

		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

// GetCoupleByUser returns the couple userId most recently joined.
func (db *PgRoomRepository) GetCoupleByUser(ctx context.Context, userId string) (Couple, error) {
	row := db.conn.QueryRowContext(
		ctx,
		"SELECT c.id, COALESCE(c.invite_code, ''), COALESCE(r.id::text, '') "+
			"FROM couple_members cm "+
			"JOIN couples c ON c.id = cm.couple_id "+
			"LEFT JOIN rooms r ON r.couple_id = c.id "+
			"WHERE cm.user_id = $1 ORDER BY cm.joined_at DESC LIMIT 1",
		userId,
	)

	var c Couple
	err := row.Scan(&c.Id, &c.InviteCode, &c.RoomId)

	return c, err
}

// CreateCouple creates a couple with userId as its first member, together
// with the couple's room.
func (db *PgRoomRepository) CreateCouple(ctx context.Context, userId, inviteCode string, layout json.RawMessage) (Couple, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Couple{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	c := Couple{InviteCode: inviteCode}
	err = tx.QueryRowContext(
		ctx,
		"INSERT INTO couples (invite_code) VALUES ($1) RETURNING id",
		inviteCode,
	).Scan(&c.Id)
	if err != nil {
		return Couple{}, err
	}

	_, err = tx.ExecContext(
		ctx,
		"INSERT INTO couple_members (couple_id, user_id) VALUES ($1, $2)",
		c.Id,
		userId,
	)
	if err != nil {
		return Couple{}, err
	}

	err = tx.QueryRowContext(
		ctx,
		"INSERT INTO rooms (couple_id, layout_json) VALUES ($1, $2) RETURNING id",
		c.Id,
		[]byte(layout),
	).Scan(&c.RoomId)
	if err != nil {
		return Couple{}, err
	}

	if err = tx.Commit(); err != nil {
		return Couple{}, err
	}

	return c, nil
}

// JoinCouple adds userId to the couple holding inviteCode, taking the user
// out of any other couple. Joining a couple the user is already in changes
// nothing. An unknown code returns sql.ErrNoRows and a couple that already
// has two members returns ErrCoupleFull.
func (db *PgRoomRepository) JoinCouple(ctx context.Context, userId, inviteCode string) (Couple, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Couple{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	c := Couple{InviteCode: inviteCode}
	err = tx.QueryRowContext(
		ctx,
		"SELECT id FROM couples WHERE invite_code = $1 FOR UPDATE",
		inviteCode,
	).Scan(&c.Id)
	if err != nil {
		return Couple{}, err
	}

	var members []string
	members, err = queryMembers(ctx, tx, c.Id)
	if err != nil {
		return Couple{}, err
	}

	if !slices.Contains(members, userId) {
		if len(members) >= 2 {
			err = ErrCoupleFull
			return Couple{}, err
		}

		if _, err = tx.ExecContext(ctx, "DELETE FROM couple_members WHERE user_id = $1", userId); err != nil {
			return Couple{}, err
		}

		_, err = tx.ExecContext(
			ctx,
			"INSERT INTO couple_members (couple_id, user_id) VALUES ($1, $2)",
			c.Id,
			userId,
		)
		if err != nil {
			return Couple{}, err
		}
	}

	err = tx.QueryRowContext(
		ctx,
		"SELECT COALESCE((SELECT id::text FROM rooms WHERE couple_id = $1), '')",
		c.Id,
	).Scan(&c.RoomId)
	if err != nil {
		return Couple{}, err
	}

	if err = tx.Commit(); err != nil {
		return Couple{}, err
	}

	return c, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var (
		s        Session
		duration sql.NullInt64
		metadata []byte
	)

	if err := row.Scan(&s.Id, &s.RoomId, &s.Type, &duration, &metadata, &s.CreatedAt); err != nil {
		return Session{}, err
	}

	if duration.Valid {
		d := int(duration.Int64)
		s.Duration = &d
	}
	s.Metadata = metadata

	return s, nil
}
