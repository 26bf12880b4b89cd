// Package realtime implements the live comment stream for tasks.
//
// A Registry groups connected peers into one room per task and fans messages
// out to a room. A Protocol runs one WebSocket session: it authenticates the
// token, checks the task, joins the room and then turns inbound comment and
// typing frames into broadcasts. Conn adapts a gorilla/websocket connection to
// the Peer and Transport interfaces with a bounded per-connection send queue
// drained by a single writer goroutine.
//
// The registry is an explicit value constructed at startup and shared by
// pointer. Its lock is only held while looking up or mutating membership,
// never while sending to a peer.
package realtime
