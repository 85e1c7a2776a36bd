// Package history records saved dictations in a local SQLite database so
// past notes can be listed and searched from the monitoring API.
package history
