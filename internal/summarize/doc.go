// Package summarize produces note summaries and titles for saved
// transcripts through a local Ollama instance. Long transcripts are split
// into chunks, summarized independently, and the chunk summaries are
// condensed in a final pass.
package summarize
