package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/npezzotti/couple-room/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMove_parse(t *testing.T) {
	tcases := []struct {
		name      string
		frame     string
		x, y      float64
		direction string
		ok        bool
	}{
		{name: "valid", frame: `{"x":3,"y":4,"direction":"up"}`, x: 3, y: 4, direction: "up", ok: true},
		{name: "fractional", frame: `{"x":3.5,"y":-1,"direction":"left"}`, x: 3.5, y: -1, direction: "left", ok: true},
		{name: "missing direction defaults to down", frame: `{"x":1,"y":2}`, x: 1, y: 2, direction: "down", ok: true},
		{name: "string coordinate", frame: `{"x":"3","y":4}`},
		{name: "missing coordinate", frame: `{"x":3}`},
		{name: "null coordinate", frame: `{"x":null,"y":4}`},
		{name: "boolean coordinate", frame: `{"x":true,"y":4}`},
		{name: "unknown direction", frame: `{"x":3,"y":4,"direction":"north"}`},
		{name: "numeric direction", frame: `{"x":3,"y":4,"direction":1}`},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			var m Move
			require.NoError(t, json.Unmarshal([]byte(tc.frame), &m))

			x, y, direction, ok := m.parse()
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.x, x)
				assert.Equal(t, tc.y, y)
				assert.Equal(t, tc.direction, direction)
			}
		})
	}
}

func Test_handleMove(t *testing.T) {
	t.Run("relayed to every other connection", func(t *testing.T) {
		env := newTestEnv(t)
		room := env.newRoom()

		aliceUser := testutil.TestUser("alice")
		alice := env.newClient(t, aliceUser)
		alicePhone := env.newClient(t, aliceUser)
		bob := env.newClient(t, testutil.TestUser("bob"))
		join(t, room, alice)
		join(t, room, alicePhone)
		join(t, room, bob)

		moves := []*Move{
			{X: 1.0, Y: 2.0, Direction: "up"},
			{X: 2.0, Y: 2.0, Direction: "right"},
			{X: 2.0, Y: 3.0},
		}
		for _, m := range moves {
			send(room, alice, &ClientMessage{Move: m})
		}

		assert.Empty(t, drain(alice), "expected the sender to observe nothing")

		for _, peer := range []*Client{alicePhone, bob} {
			moved := events(drain(peer), EventPresenceMoved)
			require.Len(t, moved, len(moves), "expected one event per move")

			for i, n := range moved {
				entry := n.Data.(PresenceEntry)
				assert.Equal(t, alice.user.Id, entry.UserId)
				assert.Equal(t, "alice", entry.Name)
				assert.Equal(t, moves[i].X, entry.X)
				assert.Equal(t, moves[i].Y, entry.Y)
			}
		}
	})

	t.Run("invalid move is dropped", func(t *testing.T) {
		env := newTestEnv(t)
		room := env.newRoom()

		alice := env.newClient(t, testutil.TestUser("alice"))
		bob := env.newClient(t, testutil.TestUser("bob"))
		join(t, room, alice)
		join(t, room, bob)

		send(room, alice, &ClientMessage{BaseMessage: BaseMessage{Id: 4}, Move: &Move{X: "a", Y: 1.0}})

		assert.Empty(t, drain(alice), "expected no response for a bad move")
		assert.Empty(t, drain(bob), "expected no broadcast for a bad move")

		ctx, cancel := room.storeCtx()
		defer cancel()
		all, err := env.store.HGetAll(ctx, positionsKey(room.id))
		assert.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("store failure still relays", func(t *testing.T) {
		env := newTestEnv(t)
		room := env.newRoom()

		alice := env.newClient(t, testutil.TestUser("alice"))
		bob := env.newClient(t, testutil.TestUser("bob"))
		join(t, room, alice)
		join(t, room, bob)

		// a plain value under the hash key makes HSet fail
		ctx, cancel := room.storeCtx()
		defer cancel()
		require.NoError(t, env.store.Set(ctx, positionsKey(room.id), []byte("x"), 0))

		send(room, alice, &ClientMessage{Move: &Move{X: 1.0, Y: 1.0}})
		assert.Len(t, events(drain(bob), EventPresenceMoved), 1)
	})
}

func Test_presenceSnapshot_ttl(t *testing.T) {
	t.Run("stale entry is filtered while the hash is alive", func(t *testing.T) {
		env := newTestEnv(t)
		room := env.newRoom()

		alice := env.newClient(t, testutil.TestUser("alice"))
		bob := env.newClient(t, testutil.TestUser("bob"))
		join(t, room, alice)
		join(t, room, bob)

		send(room, alice, &ClientMessage{Move: &Move{X: 1.0, Y: 1.0}})
		env.clock.Advance(positionTTL - time.Second)
		send(room, bob, &ClientMessage{Move: &Move{X: 2.0, Y: 2.0}})
		env.clock.Advance(2 * time.Second)

		carol := env.newClient(t, testutil.TestUser("carol"))
		res := join(t, room, carol)
		assert.NotContains(t, res.Positions, alice.user.Id, "expected alice's stale entry to be filtered")
		assert.Contains(t, res.Positions, bob.user.Id, "expected bob's fresh entry to be kept")
	})

	t.Run("hash expires without moves", func(t *testing.T) {
		env := newTestEnv(t)
		room := env.newRoom()

		alice := env.newClient(t, testutil.TestUser("alice"))
		join(t, room, alice)
		send(room, alice, &ClientMessage{Move: &Move{X: 1.0, Y: 1.0}})

		env.clock.Advance(positionTTL + time.Second)

		ctx, cancel := room.storeCtx()
		defer cancel()
		all, err := env.store.HGetAll(ctx, positionsKey(room.id))
		assert.NoError(t, err)
		assert.Empty(t, all, "expected positions to expire")

		bob := env.newClient(t, testutil.TestUser("bob"))
		res := join(t, room, bob)
		assert.Empty(t, res.Positions)
	})

	t.Run("malformed entry is skipped", func(t *testing.T) {
		env := newTestEnv(t)
		room := env.newRoom()

		ctx, cancel := room.storeCtx()
		defer cancel()
		require.NoError(t, env.store.HSet(ctx, positionsKey(room.id), "ghost", []byte("{")))

		positions, err := room.presenceSnapshot(ctx)
		assert.NoError(t, err)
		assert.Empty(t, positions)
	})
}

func Test_clearPresence_clearsZone(t *testing.T) {
	env := newTestEnv(t)
	room := env.newRoom()

	alice := env.newClient(t, testutil.TestUser("alice"))
	bob := env.newClient(t, testutil.TestUser("bob"))
	join(t, room, alice)
	join(t, room, bob)

	send(room, alice, &ClientMessage{Zone: &ZoneCmd{Action: "enter", Zone: "lounge"}})
	drain(bob)

	room.handleLeave(&ClientMessage{Leave: &Leave{}, client: alice})

	msgs := drain(bob)
	assert.Len(t, events(msgs, EventPresenceLeft), 1)
	zoneLeft := events(msgs, EventZoneLeft)
	require.Len(t, zoneLeft, 1, "expected alice's zone to be cleared")
	assert.Equal(t, ZoneLeft{UserId: alice.user.Id, Zone: "lounge"}, zoneLeft[0].Data)
}
