package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/npezzotti/couple-room/internal/database"
)

const inviteCodeLength = 12

// defaultLayout is the layout of a freshly created room.
var defaultLayout = json.RawMessage(`{"furniture":[],"theme":"night"}`)

type CoupleResponse struct {
	CoupleId   string `json:"couple_id"`
	InviteCode string `json:"invite_code,omitempty"`
	InviteLink string `json:"invite_link,omitempty"`
	RoomId     string `json:"room_id"`
}

type JoinCoupleRequest struct {
	InviteCode string `json:"invite_code"`
}

type MyCoupleResponse struct {
	Couple *database.Couple `json:"couple"`
	Room   *database.Room   `json:"room"`
}

func newInviteCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:inviteCodeLength]
}

// inviteLink points at the client that made the request, falling back to
// the first allowed origin.
func (s *App) inviteLink(r *http.Request, code string) string {
	base := r.Header.Get("Origin")
	if base == "" && len(s.allowedOrigins) > 0 {
		base = s.allowedOrigins[0]
	}
	if base == "" {
		return ""
	}

	return strings.TrimSuffix(base, "/") + "/invite/" + code
}

// createCouple starts a couple and its room for the caller. A caller who
// is already in a couple gets that couple back with a 200.
func (s *App) createCouple(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	status := http.StatusOK
	couple, err := s.db.GetCoupleByUser(r.Context(), user.Id)
	if errors.Is(err, sql.ErrNoRows) {
		status = http.StatusCreated
		couple, err = s.db.CreateCouple(r.Context(), user.Id, newInviteCode(), defaultLayout)
	}
	if err != nil {
		s.log.Println("create couple:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, status, CoupleResponse{
		CoupleId:   couple.Id,
		InviteCode: couple.InviteCode,
		InviteLink: s.inviteLink(r, couple.InviteCode),
		RoomId:     couple.RoomId,
	})
}

// joinCouple moves the caller into the couple holding the invite code.
func (s *App) joinCouple(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req JoinCoupleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	req.InviteCode = strings.TrimSpace(req.InviteCode)
	if req.InviteCode == "" {
		errResp := NewBadRequestError("invite_code is required")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	couple, err := s.db.JoinCouple(r.Context(), user.Id, req.InviteCode)
	if err != nil {
		var errResp *ApiError
		switch {
		case errors.Is(err, sql.ErrNoRows):
			errResp = NewNotFoundError("invalid invite code")
		case errors.Is(err, database.ErrCoupleFull):
			errResp = NewBadRequestError("couple is full")
		default:
			s.log.Println("join couple:", err)
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, CoupleResponse{
		CoupleId: couple.Id,
		RoomId:   couple.RoomId,
	})
}

// myCouple returns the caller's couple and room, both null when the
// caller has not paired yet.
func (s *App) myCouple(w http.ResponseWriter, r *http.Request) {
	couple, room, ok := s.callerCouple(w, r)
	if !ok {
		return
	}

	s.writeJson(w, http.StatusOK, MyCoupleResponse{Couple: couple, Room: room})
}

// callerCouple looks up the caller's couple and its room. It writes the
// error response itself and reports false on failure.
func (s *App) callerCouple(w http.ResponseWriter, r *http.Request) (*database.Couple, *database.Room, bool) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return nil, nil, false
	}

	couple, err := s.db.GetCoupleByUser(r.Context(), user.Id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, true
	}
	if err != nil {
		s.log.Println("get couple:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return nil, nil, false
	}

	if couple.RoomId == "" {
		return &couple, nil, true
	}

	room, err := s.db.GetRoomById(r.Context(), couple.RoomId)
	if errors.Is(err, sql.ErrNoRows) {
		return &couple, nil, true
	}
	if err != nil {
		s.log.Println("get room:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return nil, nil, false
	}

	return &couple, &room, true
}
