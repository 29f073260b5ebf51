package database

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"
)

type MockRoomRepository struct {
	mock.Mock
}

func (m *MockRoomRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRoomRepository) GetUserById(ctx context.Context, userId string) (User, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRoomRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRoomRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRoomRepository) GetCoupleByUser(ctx context.Context, userId string) (Couple, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).(Couple), args.Error(1)
}
func (m *MockRoomRepository) CreateCouple(ctx context.Context, userId, inviteCode string, layout json.RawMessage) (Couple, error) {
	args := m.Called(ctx, userId, inviteCode, layout)
	return args.Get(0).(Couple), args.Error(1)
}
func (m *MockRoomRepository) JoinCouple(ctx context.Context, userId, inviteCode string) (Couple, error) {
	args := m.Called(ctx, userId, inviteCode)
	return args.Get(0).(Couple), args.Error(1)
}
func (m *MockRoomRepository) UpdateRoomLayout(ctx context.Context, roomId string, layout json.RawMessage) (Room, error) {
	args := m.Called(ctx, roomId, layout)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRoomRepository) GetRoomById(ctx context.Context, roomId string) (Room, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRoomRepository) GetCoupleMembers(ctx context.Context, coupleId string) ([]string, error) {
	args := m.Called(ctx, coupleId)
	if members, ok := args.Get(0).([]string); ok {
		return members, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockRoomRepository) CreateSession(ctx context.Context, params CreateSessionParams) (Session, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Session), args.Error(1)
}
func (m *MockRoomRepository) ListSessions(ctx context.Context, roomId string, limit, offset int) ([]Session, error) {
	args := m.Called(ctx, roomId, limit, offset)
	if sessions, ok := args.Get(0).([]Session); ok {
		return sessions, args.Error(1)
	}
	return nil, args.Error(1)
}
