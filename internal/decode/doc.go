// Package decode turns a snapshot of a growing media container into raw PCM
// by shelling out to ffmpeg. A streamed container's trailing bytes are
// unreliable until more data arrives, so the primary decode reads only a
// bounded tail window; when that fails the whole buffer is retried before
// the cycle is reported as needing more data.
package decode
