package server

import (
	"testing"
	"time"

	"github.com/npezzotti/couple-room/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enterZone(t *testing.T, room *Room, c *Client, zone string) bool {
	t.Helper()

	send(room, c, &ClientMessage{BaseMessage: BaseMessage{Id: 11}, Zone: &ZoneCmd{Action: "enter", Zone: zone}})

	var result *ServerMessage
	for _, m := range responses(drain(c)) {
		result = m
	}
	require.NotNil(t, result, "expected a zone response")
	require.Equal(t, 200, result.Response.ResponseCode)
	return result.Response.Data.(ZoneResult).Activated
}

func Test_enterZone(t *testing.T) {
	t.Run("activates with two occupants", func(t *testing.T) {
		env := newTestEnv(t)
		room := env.newRoom()

		alice := env.newClient(t, testutil.TestUser("alice"))
		bob := env.newClient(t, testutil.TestUser("bob"))
		join(t, room, alice)
		join(t, room, bob)

		send(room, alice, &ClientMessage{BaseMessage: BaseMessage{Id: 1}, Zone: &ZoneCmd{Action: "enter", Zone: "lounge"}})

		aliceMsgs := drain(alice)
		state := events(aliceMsgs, EventZoneState)
		require.Len(t, state, 1, "expected the sender to get the broadcast too")
		assert.False(t, state[0].Data.(ZoneState).Active)
		resp := responses(aliceMsgs)
		require.Len(t, resp, 1)
		assert.Equal(t, ZoneResult{Activated: false}, resp[0].Response.Data)

		bobState := events(drain(bob), EventZoneState)
		require.Len(t, bobState, 1)
		assert.Equal(t, ZoneState{
			Zone:      "lounge",
			UserId:    alice.user.Id,
			Active:    false,
			Occupants: map[string]string{alice.user.Id: "lounge"},
		}, bobState[0].Data)

		assert.True(t, enterZone(t, room, bob, "lounge"), "expected second occupant to activate the zone")

		aliceState := events(drain(alice), EventZoneState)
		require.Len(t, aliceState, 1)
		assert.Equal(t, ZoneState{
			Zone:      "lounge",
			UserId:    bob.user.Id,
			Active:    true,
			Occupants: map[string]string{alice.user.Id: "lounge", bob.user.Id: "lounge"},
		}, aliceState[0].Data)
	})

	t.Run("different zones do not activate", func(t *testing.T) {
		env := newTestEnv(t)
		room := env.newRoom()

		alice := env.newClient(t, testutil.TestUser("alice"))
		bob := env.newClient(t, testutil.TestUser("bob"))
		join(t, room, alice)
		join(t, room, bob)

		assert.False(t, enterZone(t, room, alice, "kitchen"))
		assert.False(t, enterZone(t, room, bob, "garden"))
	})

	t.Run("entering a zone replaces the previous one", func(t *testing.T) {
		env := newTestEnv(t)
		room := env.newRoom()

		alice := env.newClient(t, testutil.TestUser("alice"))
		bob := env.newClient(t, testutil.TestUser("bob"))
		join(t, room, alice)
		join(t, room, bob)

		enterZone(t, room, alice, "lounge")
		enterZone(t, room, alice, "office")
		assert.False(t, enterZone(t, room, bob, "lounge"), "expected alice to no longer occupy the lounge")

		ctx, cancel := room.storeCtx()
		defer cancel()
		all, err := env.store.HGetAll(ctx, activeZoneKey(room.id))
		assert.NoError(t, err)
		assert.Equal(t, map[string][]byte{alice.user.Id: []byte("office"), bob.user.Id: []byte("lounge")}, all)
	})

	t.Run("occupancy expires", func(t *testing.T) {
		env := newTestEnv(t)
		room := env.newRoom()

		alice := env.newClient(t, testutil.TestUser("alice"))
		bob := env.newClient(t, testutil.TestUser("bob"))
		join(t, room, alice)
		join(t, room, bob)

		enterZone(t, room, alice, "lounge")
		env.clock.Advance(zoneTTL + time.Second)
		assert.False(t, enterZone(t, room, bob, "lounge"), "expected expired occupancy not to count")
	})
}

func Test_leaveZone(t *testing.T) {
	t.Run("broadcast to the rest of the room", func(t *testing.T) {
		env := newTestEnv(t)
		room := env.newRoom()

		alice := env.newClient(t, testutil.TestUser("alice"))
		bob := env.newClient(t, testutil.TestUser("bob"))
		join(t, room, alice)
		join(t, room, bob)

		enterZone(t, room, alice, "lounge")
		drain(bob)

		send(room, alice, &ClientMessage{BaseMessage: BaseMessage{Id: 2}, Zone: &ZoneCmd{Action: "leave", Zone: "lounge"}})

		aliceMsgs := drain(alice)
		assert.Empty(t, events(aliceMsgs, EventZoneLeft), "expected the sender to be skipped")
		require.Len(t, responses(aliceMsgs), 1)
		assert.Equal(t, 202, responses(aliceMsgs)[0].Response.ResponseCode)

		bobMsgs := drain(bob)
		left := events(bobMsgs, EventZoneLeft)
		require.Len(t, left, 1)
		assert.Equal(t, ZoneLeft{UserId: alice.user.Id, Zone: "lounge"}, left[0].Data)
		assert.Empty(t, events(bobMsgs, EventZoneState), "expected no activation recompute on leave")
	})

	t.Run("leaving another zone is a no-op", func(t *testing.T) {
		env := newTestEnv(t)
		room := env.newRoom()

		alice := env.newClient(t, testutil.TestUser("alice"))
		bob := env.newClient(t, testutil.TestUser("bob"))
		join(t, room, alice)
		join(t, room, bob)

		enterZone(t, room, alice, "lounge")
		drain(bob)

		send(room, alice, &ClientMessage{Zone: &ZoneCmd{Action: "leave", Zone: "garden"}})
		assert.Empty(t, drain(bob))

		ctx, cancel := room.storeCtx()
		defer cancel()
		zone, err := env.store.HGet(ctx, activeZoneKey(room.id), alice.user.Id)
		assert.NoError(t, err)
		assert.Equal(t, []byte("lounge"), zone)
	})
}
