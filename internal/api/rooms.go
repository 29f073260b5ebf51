package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/npezzotti/couple-room/internal/database"
)

const maxLayoutSize = 256 * 1024

type MyRoomResponse struct {
	Room *database.Room `json:"room"`
}

func (s *App) myRoom(w http.ResponseWriter, r *http.Request) {
	_, room, ok := s.callerCouple(w, r)
	if !ok {
		return
	}

	s.writeJson(w, http.StatusOK, MyRoomResponse{Room: room})
}

func (s *App) getRoom(w http.ResponseWriter, r *http.Request) {
	room, ok := s.authorizeRoom(w, r)
	if !ok {
		return
	}

	s.writeJson(w, http.StatusOK, room)
}

// updateLayout replaces the room's layout with the JSON object in the body.
func (s *App) updateLayout(w http.ResponseWriter, r *http.Request) {
	room, ok := s.authorizeRoom(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxLayoutSize))
	if err != nil {
		var errResp *ApiError
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errResp = &ApiError{StatusCode: http.StatusRequestEntityTooLarge, Message: "layout too large"}
		} else {
			errResp = NewBadRequestError()
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	body = bytes.TrimSpace(body)
	if !json.Valid(body) || len(body) == 0 || body[0] != '{' {
		errResp := NewBadRequestError("layout must be a JSON object")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	updated, err := s.db.UpdateRoomLayout(r.Context(), room.Id, json.RawMessage(body))
	if err != nil {
		s.log.Println("update layout:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, updated)
}
