// Package session owns the dictation lifecycle: one Session per WebSocket
// connection, a periodic decode/transcribe/merge loop while recording, and
// the command surface (start, stop, flush, clear, set_text, save).
//
// At most one cycle is in flight per session; a one-slot token channel
// serializes the ticker, flush, stop and save paths. Ticks that arrive while
// a cycle is running are skipped, never queued.
package session
