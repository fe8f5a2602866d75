// Package realtime provides the real-time channel attached to the HTTP
// listener.
//
// The server treats the channel as an external collaborator: it hands over
// the listener's route registration at startup ([Channel.Attach]) and later
// asks it to tear down through [Channel.Close]. Nothing else crosses the
// boundary.
//
// [Hub] is the default implementation:
//
//   - "/ws": WebSocket clients; every text message is relayed to all subscribers
//   - "/events": Server-Sent Events stream of the same messages
//
// Subscribers receive updates via buffered channels with non-blocking sends,
// so slow subscribers miss messages rather than block the hub.
package realtime
