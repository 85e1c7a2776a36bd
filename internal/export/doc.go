// Package export writes the artifacts of a saved dictation: the plain
// transcript, a JSON record with metadata, and a Markdown note. Each save
// gets its own directory named after the save time and note title.
package export
