package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/npezzotti/couple-room/internal/config"
	"github.com/npezzotti/couple-room/internal/database"
	"github.com/npezzotti/couple-room/internal/server"
	"github.com/npezzotti/couple-room/internal/stats"
	"github.com/npezzotti/couple-room/internal/store"
	"github.com/npezzotti/couple-room/internal/testutil"
	"github.com/npezzotti/couple-room/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testOrigin = "http://localhost:3000"

type testApp struct {
	app   *App
	db    *database.MockRoomRepository
	store *store.MemoryStore
	rs    *server.RelayServer
}

func newTestApp(t *testing.T) *testApp {
	db := &database.MockRoomRepository{}
	st := store.NewMemoryStore()
	logger := testutil.TestLogger(t)
	rs := server.NewRelayServer(logger, db, st, stats.NewMockStatsUpdaterAny(), time.Minute)

	app := NewApp(http.NewServeMux(), logger, rs, db, st, &config.Config{
		ServerAddr:     "localhost:0",
		SigningKey:     []byte("test-signing-key"),
		AllowedOrigins: []string{testOrigin},
	})

	return &testApp{app: app, db: db, store: st, rs: rs}
}

// login registers user with the mock repository and returns a token for it.
func (ta *testApp) login(t *testing.T, user types.User) string {
	t.Helper()

	ta.db.On("GetUserById", mock.Anything, user.Id).Return(database.User{
		Id:           user.Id,
		Name:         user.Name,
		EmailAddress: user.EmailAddress,
	}, nil).Maybe()

	token, err := ta.app.auth.IssueToken(user.Id, time.Hour)
	require.NoError(t, err)
	return token
}

func (ta *testApp) do(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	ta.app.Handler().ServeHTTP(rr, req)
	return rr
}

func TestNewApp(t *testing.T) {
	ta := newTestApp(t)

	assert.NotNil(t, ta.app.log, "expected logger to be set")
	assert.Equal(t, ta.db, ta.app.db, "expected db to be set")
	assert.Equal(t, ta.store, ta.app.store, "expected store to be set")
	assert.Equal(t, ta.rs, ta.app.rs, "expected relay server to be set")
	assert.NotNil(t, ta.app.auth, "expected authenticator to be set")
	assert.Equal(t, []string{testOrigin}, ta.app.allowedOrigins)
	assert.Equal(t, "localhost:0", ta.app.srv.Addr, "expected server address to match config")

	rr := ta.do(httptest.NewRequest(http.MethodGet, "/api/unknown", nil), "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestNewApp_cors(t *testing.T) {
	ta := newTestApp(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/session", nil)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")

	rr := ta.do(req, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, testOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
}
