package testutil

import (
	"bytes"
	"log"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/npezzotti/couple-room/internal/types"
)

func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "[test] ", log.LstdFlags)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}

// LogBuffer collects log output written from any goroutine.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// CaptureLogger returns a logger whose output can be inspected.
func CaptureLogger() (*log.Logger, *LogBuffer) {
	buf := &LogBuffer{}
	return log.New(buf, "[test] ", 0), buf
}

// TestUser returns a user with a fresh UUID.
func TestUser(name string) types.User {
	return types.User{
		Id:           uuid.NewString(),
		Name:         name,
		EmailAddress: name + "@example.com",
	}
}
