// Package merge reconciles successive transcription hypotheses against the
// committed transcript. Each decode cycle re-processes audio from (near) the
// start of the stream, so every hypothesis overlaps what has already been
// committed; the engine finds the longest suffix/prefix token anchor and
// appends only the genuinely new tail. When no trustworthy anchor exists the
// cycle's output is discarded rather than risking duplicated or regressed
// text.
package merge
