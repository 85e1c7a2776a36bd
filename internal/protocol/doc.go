// Package protocol defines the JSON control messages exchanged over the
// dictation WebSocket. Binary frames carry raw container audio and never
// pass through this package; text frames are commands from the client and
// events from the server.
package protocol
