// Package transcription is the speech engine boundary. Engine is the
// contract the dictation loop depends on; Client is the HTTP implementation
// for a local speech server. A GPU-bound engine handles one request at a
// time, so the client carries an engine-wide semaphore that serializes
// requests across sessions.
package transcription
