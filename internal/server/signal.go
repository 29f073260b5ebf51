package server

import "encoding/json"

// Signal is a WebRTC or screen share message relayed as is to the peer.
type Signal struct {
	Channel string          `json:"channel"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
	From    string          `json:"from"`
}

func (r *Room) handleSignal(msg *ClientMessage) {
	r.broadcast(notification(EventSignal, Signal{
		Channel: msg.Signal.Channel,
		Kind:    msg.Signal.Kind,
		Payload: msg.Signal.Payload,
		From:    msg.client.user.Id,
	}, msg.client))

	r.reply(msg, NoErrAccepted(msg.Id, nil))
}
