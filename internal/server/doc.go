// Package server exposes the two network surfaces of the service: the
// WebSocket endpoint that carries dictation audio and control commands, and
// the HTTP API used for health checks, monitoring and history lookups.
package server
