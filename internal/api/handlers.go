package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/couple-room/internal/database"
	"github.com/npezzotti/couple-room/internal/server"
)

const (
	defaultSessionLimit = 20
	maxSessionLimit     = 100
	healthCheckTimeout  = 2 * time.Second
)

type ListSessionsResponse struct {
	Sessions []database.Session `json:"sessions"`
}

type CreateSessionRequest struct {
	Type     string          `json:"type"`
	Duration *int            `json:"duration"`
	Metadata json.RawMessage `json:"metadata"`
}

func (s *App) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

// healthCheck reports 200 only when both the database and the ephemeral
// store answer.
func (s *App) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("health check: database:", err)
		errResp := NewServiceUnavailableError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.log.Println("health check: store:", err)
		errResp := NewServiceUnavailableError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// authorizeRoom runs the membership gate for the room in the request path.
// It writes the error response itself and reports false on failure.
func (s *App) authorizeRoom(w http.ResponseWriter, r *http.Request) (database.Room, bool) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return database.Room{}, false
	}

	room, err := s.rs.Gate().Authorize(r.Context(), user, r.PathValue("roomId"))
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, server.ErrNotFound) || errors.Is(err, server.ErrForbidden) {
			errResp = NewRoomUnavailableError()
		} else {
			s.log.Println("authorize room:", err)
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return database.Room{}, false
	}

	return room, true
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}

	return strconv.Atoi(v)
}

func (s *App) listSessions(w http.ResponseWriter, r *http.Request) {
	room, ok := s.authorizeRoom(w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit", defaultSessionLimit)
	if err != nil || limit < 1 {
		errResp := NewBadRequestError("limit must be a positive integer")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	limit = min(limit, maxSessionLimit)

	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		errResp := NewBadRequestError("offset must be a non-negative integer")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sessions, err := s.db.ListSessions(r.Context(), room.Id, limit, offset)
	if err != nil {
		s.log.Println("list sessions:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if sessions == nil {
		sessions = []database.Session{}
	}

	s.writeJson(w, http.StatusOK, ListSessionsResponse{Sessions: sessions})
}

func (s *App) createSession(w http.ResponseWriter, r *http.Request) {
	room, ok := s.authorizeRoom(w, r)
	if !ok {
		return
	}

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	req.Type = strings.TrimSpace(req.Type)
	if req.Type == "" {
		errResp := NewBadRequestError("type is required")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Duration != nil && *req.Duration < 0 {
		errResp := NewBadRequestError("duration must not be negative")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	session, err := s.db.CreateSession(r.Context(), database.CreateSessionParams{
		RoomId:   room.Id,
		Type:     req.Type,
		Duration: req.Duration,
		Metadata: req.Metadata,
	})
	if err != nil {
		s.log.Println("create session:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, session)
}

func (s *App) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// non-browser clients send no origin
		return true
	}

	return slices.Contains(s.allowedOrigins, origin)
}

func (s *App) serveWs(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(user, conn, s.rs, s.log)

	s.rs.RegisterClient(client)
	go client.Write()
	go client.Read()
}
