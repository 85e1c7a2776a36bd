// Package audio holds the per-session container buffer and the WAV codec
// used to ship decoded PCM to the speech engine.
//
// The buffer accumulates raw bytes of a growing, not-yet-finalized media
// container exactly as they arrive; it never inspects or reorders them. The
// decoder is the only component that interprets the container.
package audio
