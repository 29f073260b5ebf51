package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/couple-room/internal/auth"
	"github.com/npezzotti/couple-room/internal/config"
	"github.com/npezzotti/couple-room/internal/database"
	"github.com/npezzotti/couple-room/internal/server"
	"github.com/npezzotti/couple-room/internal/store"
)

type App struct {
	log            *log.Logger
	db             database.RoomRepository
	store          store.Store
	rs             *server.RelayServer
	auth           *auth.Authenticator
	allowedOrigins []string
	srv            *http.Server
}

func NewApp(mux *http.ServeMux, logger *log.Logger, rs *server.RelayServer, db database.RoomRepository, st store.Store, cfg *config.Config) *App {
	s := &App{
		log:            logger,
		db:             db,
		store:          st,
		rs:             rs,
		auth:           auth.NewAuthenticator(cfg.SigningKey, db),
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/logout", s.logout)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("POST /api/couples/create", s.authMiddleware(s.createCouple))
	mux.HandleFunc("POST /api/couples/join", s.authMiddleware(s.joinCouple))
	mux.HandleFunc("GET /api/couples/my", s.authMiddleware(s.myCouple))
	mux.HandleFunc("GET /api/rooms/my", s.authMiddleware(s.myRoom))
	mux.HandleFunc("GET /api/rooms/{roomId}", s.authMiddleware(s.getRoom))
	mux.HandleFunc("PATCH /api/rooms/{roomId}/layout", s.authMiddleware(s.updateLayout))
	mux.HandleFunc("GET /api/rooms/{roomId}/sessions", s.authMiddleware(s.listSessions))
	mux.HandleFunc("POST /api/rooms/{roomId}/sessions", s.authMiddleware(s.createSession))
	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

// Handler returns the fully wrapped handler served by Start.
func (s *App) Handler() http.Handler {
	return s.srv.Handler
}

func (s *App) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *App) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
