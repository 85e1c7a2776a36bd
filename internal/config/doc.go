// Package config loads and validates the YAML service configuration.
//
// Every section carries its own Validate method so a bad file fails fast
// at startup with a path back to the offending key. Duration-typed
// tunables are stored as plain numbers in YAML and exposed through
// Get*Duration helpers.
package config
